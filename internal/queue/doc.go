// Package queue is the work queue shared by every pipeline stage.
//
// A Queue stores stage jobs keyed by job identifier and discriminated by a
// stage tag. Jobs move waiting -> active -> completed|failed and never go
// back: Enqueue refuses a reused identifier, Claim hands a waiting job to
// exactly one caller, and Complete/Fail only accept active jobs. Retrying a
// failed stage means enqueuing a new identifier.
//
// Four backends implement the same contract. SQLStore covers SQLite (the
// default, embedded) and MySQL; BadgerStore keeps jobs in an embedded Badger
// database through badgerhold; MemoryStore keeps them in a map for tests and
// ephemeral runs. Open picks one from configuration.
//
// The store is transient storage for in-flight and recently finished work,
// not an archive. Schema changes bump schemaVersion; users clear the
// database to adopt the new schema.
package queue
