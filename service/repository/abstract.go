package repository

import (
	"context"

	"gorm.io/gorm"
)

// DBProvider hands out database handles; frame's service.DB satisfies it.
type DBProvider func(ctx context.Context, readOnly bool) *gorm.DB

type txKey struct{}

type abstractRepository struct {
	db DBProvider
}

func (ar *abstractRepository) readDb(ctx context.Context) *gorm.DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return ar.db(ctx, true)
}

func (ar *abstractRepository) writeDb(ctx context.Context) *gorm.DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return ar.db(ctx, false)
}

func txFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}

// WithTransaction runs fn with a context that routes every repository call through one transaction.
// Nested calls join the outer transaction. Returning an error from fn rolls everything back.
func WithTransaction(ctx context.Context, db DBProvider, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	return db(ctx, false).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
