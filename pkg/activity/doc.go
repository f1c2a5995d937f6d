// Package activity records who changed roles, assignments and settings.
//
// Writers call Logger.Log with an Event built by NewEvent. Three sinks exist:
// DBLogger (activity_events table, also the query Store), SlogLogger
// (structured log lines) and NoopLogger. A failed activity write never fails
// the mutation that produced it; callers log and continue.
//
// RetentionJob deletes events older than the configured retention on a
// robfig/cron schedule.
package activity
