// Package jobstore persists job records and their status history in SQLite.
//
// The leader rank is the only writer. Every status change it makes is
// stored twice: as the job's current status and as a row in job_history, so
// the full path a job took can be replayed after the fact.
//
// The database is local state for one host. Schema changes bump the version
// in schema.go; users remove the database to adopt the new schema.
package jobstore
