package gormrepo

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// Batch runs multi-table writes, such as a gym and its roster, in one
// transaction.
type Batch struct {
	db *gorm.DB
}

func NewBatch(db *gorm.DB) Batch {
	return Batch{db: db}
}

// RunInTx joins an enclosing transaction instead of nesting a savepoint.
func (b Batch) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction carried by ctx, or base bound to ctx.
func conn(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return base.WithContext(ctx)
}
