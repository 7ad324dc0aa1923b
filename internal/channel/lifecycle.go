package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a platform connection.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

// ErrAlreadyRunning reports a Start call on a running lifecycle. Start
// treats it as a logged no-op and does not return it; it exists for tests
// and callers that inspect state transitions.
var ErrAlreadyRunning = errors.New("channel connection already running")

// Lifecycle guards a single platform connection with an explicit state
// machine: Stopped -> Starting -> Running -> Stopped. Start is a no-op when
// already running; Stop is idempotent.
type Lifecycle struct {
	connector Connector
	handler   Handler
	logger    *slog.Logger

	mu    sync.Mutex
	state State
	conn  Connection
}

// NewLifecycle creates a stopped lifecycle that will connect via connector
// and dispatch inbound messages to handler.
func NewLifecycle(log *slog.Logger, connector Connector, handler Handler) *Lifecycle {
	if log == nil {
		log = slog.Default()
	}
	return &Lifecycle{
		connector: connector,
		handler:   handler,
		logger:    log.With(slog.String("component", "channel")),
		state:     StateStopped,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Running reports whether the connection is currently established.
func (l *Lifecycle) Running() bool {
	return l.State() == StateRunning
}

// Start establishes the platform connection. Calling Start while running
// logs and returns nil. On connect failure the lifecycle reverts to
// Stopped and the error is returned to the caller.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case StateRunning:
		l.mu.Unlock()
		l.logger.Info("start ignored, connection already running")
		return nil
	case StateStarting:
		l.mu.Unlock()
		return fmt.Errorf("channel connection start already in progress")
	}
	if l.connector == nil {
		l.mu.Unlock()
		return fmt.Errorf("channel connector not configured")
	}
	l.state = StateStarting
	l.mu.Unlock()

	l.logger.Info("connecting")
	conn, err := l.connector.Connect(ctx, l.handler)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state = StateStopped
		l.logger.Error("connect failed", slog.Any("error", err))
		return err
	}
	l.conn = conn
	l.state = StateRunning
	l.logger.Info("connected")
	return nil
}

// Stop tears down the platform connection. It is an idempotent no-op when
// already stopped.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return nil
	}
	conn := l.conn
	l.conn = nil
	l.state = StateStopped
	l.mu.Unlock()

	if conn == nil {
		return nil
	}
	l.logger.Info("disconnecting")
	if err := conn.Stop(ctx); err != nil {
		l.logger.Warn("disconnect failed", slog.Any("error", err))
		return err
	}
	return nil
}

// BaseConnection is a default Connection implementation backed by a stop
// function.
type BaseConnection struct {
	stop    func(ctx context.Context) error
	running atomic.Bool
}

// NewConnection creates a BaseConnection for the given stop function.
func NewConnection(stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{stop: stop}
	conn.running.Store(true)
	return conn
}

// Stop shuts down the connection.
func (c *BaseConnection) Stop(ctx context.Context) error {
	c.running.Store(false)
	if c.stop == nil {
		return nil
	}
	return c.stop(ctx)
}

// Running reports whether the connection is still active.
func (c *BaseConnection) Running() bool {
	return c.running.Load()
}
