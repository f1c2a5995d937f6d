package server

import (
	"github.com/platinummonkey/tasklane/pkg/activity"
	"github.com/platinummonkey/tasklane/pkg/database"
	"github.com/platinummonkey/tasklane/pkg/rbac"
	"github.com/platinummonkey/tasklane/pkg/settings"
)

// SchemaComponent pairs a component name with its migrations.
type SchemaComponent struct {
	Name       string
	Migrations []database.Migration
}

// Schema lists every component the API serves, in apply order.
func Schema() []SchemaComponent {
	return []SchemaComponent{
		{Name: rbac.Component, Migrations: rbac.Migrations()},
		{Name: settings.Component, Migrations: settings.Migrations()},
		{Name: activity.Component, Migrations: activity.Migrations()},
	}
}
