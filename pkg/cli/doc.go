// Package cli implements tasklane-admin, the operator tool for the permission
// and settings stores.
//
// Every command that touches the database accepts -driver and -dsn, which
// default to TASKLANE_DB_DRIVER and TASKLANE_DATABASE_URL. Commands that
// change role grants also accept -redis-url; when the API runs with the redis
// permission cache, pass the same URL so that grants and revocations reach
// running servers immediately.
//
// # Commands
//
//	tasklane-admin migrate
//	tasklane-admin seed
//	tasklane-admin roles
//	tasklane-admin grant   -user 42 -role project_manager -project 7
//	tasklane-admin revoke  -assignment 19
//	tasklane-admin check   -user 42 -permission task.delete -project 7
//	tasklane-admin resolve -user 42 -project 7 -category dependencies -explain
//	tasklane-admin token   -user 42 -role admin
package cli
