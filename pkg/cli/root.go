package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet

	usageOut io.Writer
}

// NewRootCommand creates the tasklane-admin root command. Command output
// goes to out; progress messages go to stderr through logrus.
func NewRootCommand(out io.Writer) *Command {
	root := &Command{
		Name:        "tasklane-admin",
		Description: "Tasklane - permission and settings administration",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("tasklane-admin", flag.ContinueOnError),
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	env := &environment{out: out, log: log}

	for _, cmd := range []*Command{
		newMigrateCommand(env),
		newSeedCommand(env),
		newRolesCommand(env),
		newGrantCommand(env),
		newRevokeCommand(env),
		newCheckCommand(env),
		newResolveCommand(env),
		newTokenCommand(env),
	} {
		root.Subcommands[cmd.Name] = cmd
	}
	root.usageOut = out
	return root
}

// Execute dispatches args (without the program name) to a subcommand.
func (c *Command) Execute(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	switch strings.ToLower(args[0]) {
	case "-h", "--help", "help":
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	out := c.usageOut
	if out == nil {
		out = os.Stdout
	}
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
