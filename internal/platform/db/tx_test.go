package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type recordingTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *recordingTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *recordingTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type recordingBeginner struct {
	opts pgx.TxOptions
	tx   *recordingTx
}

func (b *recordingBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	b.tx = &recordingTx{}
	return b.tx, nil
}

func TestWithTxUsesReadCommitted(t *testing.T) {
	conn := &recordingBeginner{}
	require.NoError(t, WithTx(context.Background(), conn, func(pgx.Tx) error { return nil }))
	require.Equal(t, pgx.ReadCommitted, conn.opts.IsoLevel)
	require.True(t, conn.tx.committed)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	conn := &recordingBeginner{}
	boom := errors.New("boom")
	err := WithTx(context.Background(), conn, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, conn.tx.committed)
	require.True(t, conn.tx.rolledBack)
}
