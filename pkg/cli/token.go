package cli

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/platinummonkey/tasklane/pkg/auth"
)

func newTokenCommand(env *environment) *Command {
	return &Command{
		Name:        "token",
		Description: "Issue a bearer token for a user",
		Run:         env.runToken,
	}
}

func (e *environment) runToken(args []string) error {
	flags := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := flags.String("secret", os.Getenv("TASKLANE_JWT_SECRET"), "Signing secret")
	issuer := flags.String("issuer", envOr("TASKLANE_JWT_ISSUER", "tasklane"), "Token issuer")
	audience := flags.String("audience", envOr("TASKLANE_JWT_AUDIENCE", "tasklane-api"), "Token audience")
	user := flags.Int64("user", 0, "User ID")
	role := flags.String("role", string(auth.RoleMember), "Coarse role claim (admin or member)")
	ttl := flags.Duration("ttl", time.Hour, "Token lifetime")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return fmt.Errorf("-secret is required")
	}

	token, err := auth.NewTokenManager(*secret, *issuer, *audience, *ttl).Issue(*user, auth.Role(*role))
	if err != nil {
		return err
	}
	e.printf("%s\n", token)
	return nil
}
