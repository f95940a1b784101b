package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle produced by a TransactionManager.
// Postgres repositories expect a pgx.Tx; passing NoTX runs on the pool.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a single database transaction.
//
// Repositories receiving a live tx lock the rows they read (SELECT ... FOR UPDATE),
// which makes each fn a read-modify-write unit on the rows it touches:
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		p, err := payments.FindByReference(ctx, tx, ref)
//		...
//		return payments.Update(ctx, tx, p)
//	})
//
// fn's error rolls the transaction back; nil commits.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
