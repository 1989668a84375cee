package txn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollbackRunsInReverseOrder(t *testing.T) {
	tx := New(nil)
	var order []int

	require.NoError(t, tx.AddRollback("first", func() error {
		order = append(order, 1)
		return nil
	}))
	require.NoError(t, tx.AddRollback("second", func() error {
		order = append(order, 2)
		return nil
	}))
	require.NoError(t, tx.AddRollback("third", func() error {
		order = append(order, 3)
		return nil
	}))

	require.NoError(t, tx.Rollback())
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestRollbackAttemptsAllActionsEvenIfOneFails(t *testing.T) {
	tx := New(nil)
	var ran []string

	require.NoError(t, tx.AddRollback("a", func() error {
		ran = append(ran, "a")
		return nil
	}))
	require.NoError(t, tx.AddRollback("b", func() error {
		ran = append(ran, "b")
		return errors.New("boom")
	}))
	require.NoError(t, tx.AddRollback("c", func() error {
		ran = append(ran, "c")
		return nil
	}))

	err := tx.Rollback()
	require.Error(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ran)
}

func TestCommitThenRollbackIsNoop(t *testing.T) {
	tx := New(nil)
	ran := false
	require.NoError(t, tx.AddRollback("only", func() error {
		ran = true
		return nil
	}))

	tx.Commit()
	require.NoError(t, tx.Rollback())
	assert.False(t, ran)
}

func TestCommitThenAddRollbackFails(t *testing.T) {
	tx := New(nil)
	tx.Commit()

	err := tx.AddRollback("late", func() error { return nil })
	require.Error(t, err)
}

func TestRollbackOnEmptyStackIsNoop(t *testing.T) {
	tx := New(nil)
	require.NoError(t, tx.Rollback())
}

func TestWithTransactionCommitsOnSuccess(t *testing.T) {
	undoCalled := false
	err := WithTransaction(nil, func(tx *Transaction) error {
		return tx.AddRollback("x", func() error {
			undoCalled = true
			return nil
		})
	})
	require.NoError(t, err)
	assert.False(t, undoCalled)
}

func TestWithTransactionRollsBackOnFailure(t *testing.T) {
	undoCalled := false
	sentinel := errors.New("step failed")

	err := WithTransaction(nil, func(tx *Transaction) error {
		if rbErr := tx.AddRollback("x", func() error {
			undoCalled = true
			return nil
		}); rbErr != nil {
			return rbErr
		}
		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	assert.True(t, undoCalled)
}
