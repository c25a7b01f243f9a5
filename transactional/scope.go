package transactional

import (
	"context"
	"log/slog"
	"sync"

	"github.com/uptrace/bun"
)

// State is the lifecycle position of a Scope.
type State int

const (
	StatePending State = iota
	StateActive
	StateCommitted
	StateRolledBack
	StateReleased
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// TransactionError wraps a begin/commit/rollback failure from the underlying
// engine, keeping the failing operation and connection name.
type TransactionError struct {
	Op         string
	Connection string
	Err        error
}

func (e *TransactionError) Error() string {
	return "transaction " + e.Op + " failed on connection " + e.Connection + ": " + e.Err.Error()
}

func (e *TransactionError) Unwrap() error { return e.Err }

// StateError reports an operation invoked from a state it is not legal in.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return "transaction " + e.Op + " not legal from state " + e.State.String()
}

// Scope wraps one database transaction with an explicit lifecycle. It is
// owned by the call chain that created it and moves exactly once through
//
//	Pending --Begin--> Active --Commit|Rollback--> Committed|RolledBack --Release--> Released
//
// No state is revisited; Commit and Rollback are mutually exclusive; Release
// always runs last regardless of outcome.
type Scope struct {
	mu    sync.Mutex
	db    *bun.DB
	name  string
	tx    bun.Tx
	state State
}

// NewScope returns a Pending scope over the given data source.
func NewScope(db *bun.DB, name string) *Scope {
	return &Scope{db: db, name: name}
}

// State reports the current lifecycle position.
func (s *Scope) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connection is the logical connection name the scope owns.
func (s *Scope) Connection() string { return s.name }

// Executor returns the transaction handle queries should run against. Only
// meaningful while the scope is Active.
func (s *Scope) Executor() bun.IDB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

// Begin starts the transaction. On failure the scope never reaches Active
// and the engine error surfaces wrapped in a *TransactionError.
func (s *Scope) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePending {
		return &StateError{Op: "begin", State: s.state}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &TransactionError{Op: "begin", Connection: s.name, Err: err}
	}
	s.tx = tx
	s.state = StateActive
	return nil
}

// Commit commits the transaction. Only legal from Active. On failure the
// scope stays Active so the caller can still roll back before releasing.
func (s *Scope) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return &StateError{Op: "commit", State: s.state}
	}
	if err := s.tx.Commit(); err != nil {
		return &TransactionError{Op: "commit", Connection: s.name, Err: err}
	}
	s.state = StateCommitted
	return nil
}

// Rollback rolls the transaction back. Only legal from Active. Rollback is
// best-effort: a failure surfaces but the scope still transitions to
// RolledBack so Release can run.
func (s *Scope) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return &StateError{Op: "rollback", State: s.state}
	}
	err := s.tx.Rollback()
	s.state = StateRolledBack
	if err != nil {
		return &TransactionError{Op: "rollback", Connection: s.name, Err: err}
	}
	return nil
}

// Release returns the scope's resources and enters the terminal state. It is
// idempotent with respect to resource return and safe on every exit path: a
// scope still Active (commit failed and rollback was skipped) is rolled back
// here so the connection is not left holding an open transaction.
func (s *Scope) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReleased:
		return
	case StateActive:
		if err := s.tx.Rollback(); err != nil {
			slog.Error("transaction release rollback failed",
				"connection", s.name, "error", err)
		}
	}
	s.state = StateReleased
}
