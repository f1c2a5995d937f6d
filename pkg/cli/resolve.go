package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/platinummonkey/tasklane/pkg/settings"
)

func newResolveCommand(env *environment) *Command {
	return &Command{
		Name:        "resolve",
		Description: "Print the effective settings for a user and project",
		Run:         env.runResolve,
	}
}

func (e *environment) runResolve(args []string) error {
	flags := flag.NewFlagSet("resolve", flag.ContinueOnError)
	conn := addConnFlags(flags)
	user := flags.Int64("user", 0, "User ID (0 skips the user layer)")
	project := flags.Int64("project", 0, "Project ID (0 skips the project layer)")
	category := flags.String("category", "", "Category to resolve (all when empty)")
	explain := flags.Bool("explain", false, "Show every resolution step")
	defaultsFile := flags.String("defaults", "", "System defaults file (embedded table when empty)")
	overridable := flags.String("user-overridable", "", "Comma separated categories where the user layer wins")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *explain && *category == "" {
		return fmt.Errorf("-explain needs -category")
	}

	defaults := settings.EmbeddedDefaults()
	if *defaultsFile != "" {
		var err error
		if defaults, err = settings.LoadDefaultsFile(*defaultsFile); err != nil {
			return err
		}
	}
	policy := settings.DefaultPolicy()
	if *overridable != "" {
		policy = settings.NewPolicy(strings.Split(*overridable, ","))
	}

	ctx := context.Background()
	s, err := e.open(ctx, conn)
	if err != nil {
		return err
	}
	defer s.Close()

	resolver, err := settings.NewResolver(settings.NewSQLStore(s.db), defaults, settings.WithPolicy(policy))
	if err != nil {
		return err
	}

	var projectID *int64
	if *project > 0 {
		projectID = project
	}

	var result interface{}
	switch {
	case *explain:
		result, err = resolver.Explain(ctx, *category, *user, projectID)
	case *category != "":
		result, err = resolver.Resolve(ctx, *category, *user, projectID)
	default:
		result, err = resolver.ResolveAll(ctx, *user, projectID)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
