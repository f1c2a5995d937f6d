package cli

import (
	"context"
	"flag"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tasklane/pkg/database"
	"github.com/platinummonkey/tasklane/pkg/server"
)

func newMigrateCommand(env *environment) *Command {
	return &Command{
		Name:        "migrate",
		Description: "Apply pending schema migrations",
		Run:         env.runMigrate,
	}
}

func (e *environment) runMigrate(args []string) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	conn := addConnFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := e.open(ctx, conn)
	if err != nil {
		return err
	}
	defer s.Close()

	total := 0
	for _, c := range server.Schema() {
		applied, err := database.Migrate(ctx, s.db, s.driver, c.Name, c.Migrations)
		if err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{"component": c.Name, "applied": applied}).Info("migrated")
		total += applied
	}
	e.printf("applied %d migrations\n", total)
	return nil
}
