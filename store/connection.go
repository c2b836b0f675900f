package store

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// State is a connection lifecycle state.
type State int32

const (
	// StateIdle means the connection is constructed but not yet connecting.
	StateIdle State = iota

	// StateConnecting means the connection attempt is in flight.
	StateConnecting

	// StateReconciling means the connection is open and collection
	// reconciliation is in flight.
	StateReconciling

	// StateReady is the terminal success state; collections exist and
	// readiness callbacks have been released.
	StateReady

	// StateFailed is the terminal error state. It is process-fatal and
	// observable only in the instant before exit.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReconciling:
		return "reconciling"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Connection owns the single shared client handle and drives the
// lifecycle state machine. It is created through Connect and reached
// through Instance; the handle itself is never exposed.
type Connection struct {
	cfg      Config
	logger   *slog.Logger
	registry *Registry

	client Client
	state  atomic.Int32
}

// Process-wide connection. First Connect wins; torn down only at
// process exit.
var (
	defaultMu   sync.RWMutex
	defaultConn *Connection
)

// Test seams for the fatal connect path.
var (
	dial = Dial
	exit = os.Exit
)

// Connect constructs the process-wide connection and starts it in the
// background. If a connection already exists, it is returned unchanged
// and the arguments are ignored.
//
// The connection is registered before any network I/O begins, so
// Instance calls made from readiness callbacks observe it. The connect
// attempt itself runs asynchronously: a failure to reach the store is
// fatal (logged, then process exit), and success proceeds through
// collection reconciliation before Ready is declared.
func Connect(ctx context.Context, cfg Config) (*Connection, error) {
	defaultMu.Lock()
	if defaultConn != nil {
		c := defaultConn
		defaultMu.Unlock()
		return c, nil
	}

	if err := cfg.validate(); err != nil {
		defaultMu.Unlock()
		return nil, err
	}

	c := &Connection{
		cfg:      cfg,
		logger:   cfg.Logger,
		registry: NewRegistry(cfg.Logger),
	}
	defaultConn = c
	defaultMu.Unlock()

	go c.run(ctx)
	return c, nil
}

// Instance returns the process-wide connection, in whatever lifecycle
// state it is in. It fails with ErrNotInitialized before the first
// Connect call.
func Instance() (*Connection, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultConn == nil {
		return nil, ErrNotInitialized
	}
	return defaultConn, nil
}

// OnReady registers a zero-argument readiness hook. Hooks fire in
// registration order, exactly once each, after the connection reaches
// Ready; a hook registered after Ready runs immediately. Registering the
// same reference twice fails with ErrDuplicateCallback, and a nil hook
// fails with ErrInvalidCallback.
func (c *Connection) OnReady(fn func()) error {
	return c.registry.Register(fn)
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Database returns the logical database name this connection serves.
func (c *Connection) Database() string {
	return c.cfg.Database
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// run drives Idle -> Connecting -> Reconciling -> Ready.
func (c *Connection) run(ctx context.Context) {
	c.setState(StateConnecting)

	client, err := dial(ctx, c.cfg)
	if err != nil {
		c.fail(err)
		return
	}

	// The SDK client is lazy; a cheap list call proves the endpoint and
	// credentials actually work before anything is declared open.
	if _, err := client.ListTables(ctx, &dynamodb.ListTablesInput{
		Limit: aws.Int32(1),
	}); err != nil {
		c.fail(err)
		return
	}

	c.client = client
	c.setState(StateReconciling)
	reconcileCollections(ctx, client, c.cfg.Database, c.cfg.Collections, c.logger)

	c.setState(StateReady)
	c.logger.Info("connection ready",
		"endpoint", c.cfg.Endpoint,
		"database", c.cfg.Database,
	)
	c.registry.Fire()
}

// fail is the fatal connect path: there is no retry and no degraded
// mode, the process cannot function without the store.
func (c *Connection) fail(err error) {
	c.setState(StateFailed)
	c.logger.Error("connection failed",
		"endpoint", c.cfg.Endpoint,
		"error", err,
	)
	exit(1)
}
