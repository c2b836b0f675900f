// Package store provides a shared-connection data access layer over a
// document store backed by DynamoDB.
//
// Pergola establishes one connection per process, makes sure a declared
// set of named collections exists, and exposes a small set of generic CRUD
// operations keyed by collection name. A collection is a DynamoDB table
// named "<database>.<collection>" whose hash key is the string attribute
// "id".
//
// # Lifecycle
//
// [Connect] registers the process-wide connection and drives it through
// Idle -> Connecting -> Reconciling -> Ready in the background. The first
// call wins; later calls return the existing connection untouched. A
// failed connection attempt is fatal: the cause is logged and the process
// exits, since nothing downstream can function without the store.
//
// Collections named in [Config.Collections] are reconciled exactly once,
// after the connection opens: existing tables are listed, the missing ones
// are created, and tables that already exist are left alone. Ready is not
// declared until reconciliation has settled.
//
// Callers coordinate with readiness through [Connection.OnReady]:
//
//	conn, _ := store.Connect(ctx, cfg)
//	conn.OnReady(func() {
//	    // collections exist, CRUD is safe from here
//	})
//
// Callbacks fire in registration order, exactly once each. Nothing stops a
// caller from issuing CRUD before Ready; doing so is a contract violation
// that surfaces as store-level faults.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotInitialized] - Instance called before any Connect
//   - [ErrDuplicateCallback] - callback reference registered twice
//   - [ErrInvalidCallback] - nil callback
//   - [ErrNotFound] - no document matched a fetch
package store
