package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tasklane/pkg/rbac"
)

func (e *environment) printf(format string, args ...interface{}) {
	fmt.Fprintf(e.out, format, args...)
}

func newSeedCommand(env *environment) *Command {
	return &Command{
		Name:        "seed",
		Description: "Sync the permission catalog and restore the system roles",
		Run:         env.runSeed,
	}
}

func (e *environment) runSeed(args []string) error {
	flags := flag.NewFlagSet("seed", flag.ContinueOnError)
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

	if err := s.admin.EnsurePermissions(ctx); err != nil {
		return err
	}
	created, err := s.admin.SeedSystemRoles(ctx)
	if err != nil {
		return err
	}
	e.log.WithField("created", created).Info("system roles seeded")
	e.printf("permissions: %d, system roles created: %d\n", len(rbac.DefaultRegistry().All()), created)
	return nil
}

func newRolesCommand(env *environment) *Command {
	return &Command{
		Name:        "roles",
		Description: "List roles and their permissions",
		Run:         env.runRoles,
	}
}

func (e *environment) runRoles(args []string) error {
	flags := flag.NewFlagSet("roles", flag.ContinueOnError)
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

	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSYSTEM\tPERMISSIONS")
	for _, r := range roles {
		fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", r.ID, r.Name, r.IsSystem, strings.Join(r.Permissions, ","))
	}
	return w.Flush()
}

func newGrantCommand(env *environment) *Command {
	return &Command{
		Name:        "grant",
		Description: "Assign a role to a user, globally or in one project",
		Run:         env.runGrant,
	}
}

func (e *environment) runGrant(args []string) error {
	flags := flag.NewFlagSet("grant", flag.ContinueOnError)
	conn := addConnFlags(flags)
	user := flags.Int64("user", 0, "User ID")
	role := flags.String("role", "", "Role name")
	project := flags.Int64("project", 0, "Project ID (0 grants globally)")
	actor := flags.Int64("actor", 0, "User ID recorded as the grantor")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *user <= 0 || *role == "" {
		return fmt.Errorf("-user and -role are required")
	}

	ctx := context.Background()
	s, err := e.open(ctx, conn)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.store.GetRoleByName(ctx, *role)
	if err != nil {
		return fmt.Errorf("role %q: %w", *role, err)
	}

	in := rbac.AssignmentInput{UserID: *user, RoleID: r.ID, ScopeType: rbac.ScopeGlobal}
	if *project > 0 {
		in.ScopeType = rbac.ScopeProject
		in.ScopeID = project
	}
	a, err := s.admin.AssignRole(ctx, *actor, in)
	if err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{"user": *user, "role": r.Name, "scope": in.ScopeType}).Info("role granted")
	e.printf("assignment %d: user %d holds %s (%s)\n", a.ID, a.UserID, r.Name, describeScope(a.ScopeType, a.ScopeID))
	return nil
}

func newRevokeCommand(env *environment) *Command {
	return &Command{
		Name:        "revoke",
		Description: "Remove a role assignment",
		Run:         env.runRevoke,
	}
}

func (e *environment) runRevoke(args []string) error {
	flags := flag.NewFlagSet("revoke", flag.ContinueOnError)
	conn := addConnFlags(flags)
	assignment := flags.Int64("assignment", 0, "Assignment ID")
	actor := flags.Int64("actor", 0, "User ID recorded as the revoker")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *assignment <= 0 {
		return fmt.Errorf("-assignment is required")
	}

	ctx := context.Background()
	s, err := e.open(ctx, conn)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.admin.RevokeAssignment(ctx, *actor, *assignment); err != nil {
		return err
	}
	e.printf("assignment %d revoked\n", *assignment)
	return nil
}

func newCheckCommand(env *environment) *Command {
	return &Command{
		Name:        "check",
		Description: "Check whether a user holds a permission",
		Run:         env.runCheck,
	}
}

func (e *environment) runCheck(args []string) error {
	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	conn := addConnFlags(flags)
	user := flags.Int64("user", 0, "User ID")
	permission := flags.String("permission", "", "Permission key, e.g. task.delete")
	project := flags.Int64("project", 0, "Project ID (0 checks unscoped)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *user <= 0 || *permission == "" {
		return fmt.Errorf("-user and -permission are required")
	}

	ctx := context.Background()
	s, err := e.open(ctx, conn)
	if err != nil {
		return err
	}
	defer s.Close()

	var scopeID *int64
	if *project > 0 {
		scopeID = project
	}
	// the resolver fails closed, so a store error also prints denied
	result := "denied"
	if s.resolver.HasPermission(ctx, *user, *permission, scopeID) {
		result = "granted"
	}

	perms, err := s.resolver.EffectivePermissions(ctx, *user, scopeID)
	if err != nil {
		return err
	}
	e.printf("%s: user %d %s (%s)\n", result, *user, *permission, describeScope(rbac.ScopeProject, scopeID))
	e.printf("effective: %s\n", strings.Join(perms, ","))
	return nil
}

func describeScope(scope rbac.ScopeType, scopeID *int64) string {
	if scopeID == nil {
		return "global"
	}
	return fmt.Sprintf("%s %d", scope, *scopeID)
}
