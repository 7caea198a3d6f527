package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rental-ledger/ledger"
)

func TestWithTx_SecondWriterGetsContention(t *testing.T) {
	// GIVEN: two stores on the same file
	path := filepath.Join(t.TempDir(), "ledger.db")
	first, err := New(path)
	require.NoError(t, err)
	defer first.Close()
	second, err := New(path, WithBusyTimeout(100))
	require.NoError(t, err)
	defer second.Close()
	ctx := context.Background()

	// WHEN: the second store begins while the first holds an immediate transaction
	var blocked error
	err = first.WithTx(ctx, func(tx ledger.Tx) error {
		_, err := tx.ListEquipment(ctx, false)
		require.NoError(t, err)
		blocked = second.WithTx(ctx, func(ledger.Tx) error { return nil })
		return nil
	})
	require.NoError(t, err)

	// THEN: the second writer fails with a retryable contention error
	require.Error(t, blocked)
	assert.ErrorIs(t, blocked, ledger.ErrContention)
	assert.True(t, ledger.IsRetryable(blocked))

	// and succeeds once the first has committed
	assert.NoError(t, second.WithTx(ctx, func(ledger.Tx) error { return nil }))
}
