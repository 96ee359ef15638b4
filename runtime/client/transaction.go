package client

import (
	"context"
	"database/sql"

	"github.com/satishbabariya/querykit/query/executor"
)

// IsolationLevel represents transaction isolation levels
type IsolationLevel int

const (
	// DefaultIsolation uses the driver's default level.
	DefaultIsolation IsolationLevel = iota
	// ReadCommitted prevents dirty reads
	ReadCommitted
	// RepeatableRead prevents dirty reads and non-repeatable reads
	RepeatableRead
	// Serializable prevents dirty reads, non-repeatable reads, and phantom reads
	Serializable
)

// ToSQLIsolationLevel converts IsolationLevel to sql.IsolationLevel
func (level IsolationLevel) ToSQLIsolationLevel() sql.IsolationLevel {
	switch level {
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// Snapshot executes registered queries inside one read-only transaction.
type Snapshot struct {
	reg  *Registry
	exec *executor.Executor
}

// Query starts an execution of a registered query within the snapshot.
func (s *Snapshot) Query(name string) *Execution {
	def, err := s.reg.Get(name)
	return newExecution(s.reg, s.exec, def, err)
}

// Snapshot runs fn with a consistent read-only view of the database. Every
// execution started from the snapshot, including its count statement, reads
// the same state.
func (r *Registry) Snapshot(ctx context.Context, level IsolationLevel, fn func(s *Snapshot) error) error {
	opts := &sql.TxOptions{Isolation: level.ToSQLIsolationLevel(), ReadOnly: true}
	return r.exec.Snapshot(ctx, opts, func(tx *executor.Executor) error {
		return fn(&Snapshot{reg: r, exec: tx})
	})
}
