// Package txn implements the Transaction Manager : a LIFO
// rollback stack plus a withTransaction wrapper so every multi-step
// lifecycle operation (create, pull-replace, docker export) either fully
// commits or fully unwinds. There is no server-lifecycle equivalent of this exact
// shape (lazydocker has no multi-step rollback concept), so this package is
// grounded directly on the rollback-ordering invariants below rather than adapted
// line-for-line from an example file; its error wrapping still uses the
// apperrors/go-errors stack this repo carries throughout.
package txn

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/spindb/spindb/internal/apperrors"
)

// RollbackAction is one undo step: a human description plus an idempotent
// undo function.
type RollbackAction struct {
	Description string
	Undo        func() error
}

// Transaction holds an ordered list of rollback actions for one multi-step
// operation.
type Transaction struct {
	actions   []RollbackAction
	committed bool
	logger    func(format string, args ...interface{})
}

// New creates a transaction. logger may be nil; when set, it receives one
// line per rollback action attempted (success or failure), matching the
// "swallowing and logging individual failures" requirement below
func New(logger func(format string, args ...interface{})) *Transaction {
	return &Transaction{logger: logger}
}

// AddRollback pushes a new rollback action onto the stack. Adding to a
// committed transaction is an error ("After commit, addRollback
// fails with a stable error").
func (t *Transaction) AddRollback(description string, undo func() error) error {
	if t.committed {
		return apperrors.New(apperrors.CodeRollbackFailed, apperrors.SeverityError,
			"cannot add a rollback action to a committed transaction")
	}
	t.actions = append(t.actions, RollbackAction{Description: description, Undo: undo})
	return nil
}

// Commit discards the rollback stack and marks the transaction committed.
// Calling Commit more than once is a no-op.
func (t *Transaction) Commit() {
	t.actions = nil
	t.committed = true
}

// Rollback executes every action in strict reverse insertion order,
// swallowing individual failures so every action is still attempted
// ("For all rollback sequences where action k fails, all other
// actions still execute exactly once"). It is a no-op after commit, and a
// no-op on an empty stack. Rollback is itself idempotent: once run, the
// stack is cleared, so a second call does nothing.
func (t *Transaction) Rollback() error {
	if t.committed {
		return nil
	}

	var errs *multierror.Error
	for i := len(t.actions) - 1; i >= 0; i-- {
		action := t.actions[i]
		if err := action.Undo(); err != nil {
			wrapped := fmt.Errorf("rollback %q failed: %w", action.Description, err)
			errs = multierror.Append(errs, wrapped)
			if t.logger != nil {
				t.logger("rollback action %q failed: %v", action.Description, err)
			}
		} else if t.logger != nil {
			t.logger("rollback action %q succeeded", action.Description)
		}
	}
	t.actions = nil

	if errs != nil {
		return apperrors.New(apperrors.CodeRollbackFailed, apperrors.SeverityError, errs.Error()).WithCause(errs)
	}
	return nil
}

// WithTransaction constructs a transaction, invokes op with it, commits on
// success, and rolls back then rethrows on failure.
func WithTransaction(logger func(format string, args ...interface{}), op func(tx *Transaction) error) error {
	tx := New(logger)
	if err := op(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && logger != nil {
			logger("transaction rollback encountered errors: %v", rbErr)
		}
		return err
	}
	tx.Commit()
	return nil
}
