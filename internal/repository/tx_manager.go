package repository

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// txState is the open transaction and the hooks waiting for its commit.
type txState struct {
	db       *gorm.DB
	onCommit []func()
}

// TransactionManager runs a function inside a database transaction. The
// transaction travels in the context so repositories pick it up via GetDB.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db}
}

// RunInTx opens a transaction, or joins the one already in ctx. Hooks added
// with AfterCommit run once the outermost transaction has committed and are
// dropped on rollback.
func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	state := &txState{}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state.db = tx
		return fn(context.WithValue(ctx, txKey{}, state))
	})
	if err != nil {
		return err
	}
	for _, hook := range state.onCommit {
		hook()
	}
	return nil
}

// AfterCommit defers hook until the transaction in ctx commits. Outside a
// transaction it runs immediately.
func AfterCommit(ctx context.Context, hook func()) {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		state.onCommit = append(state.onCommit, hook)
		return
	}
	hook()
}

// GetDB returns the transaction in ctx, or rootDB outside one.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		return state.db.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
