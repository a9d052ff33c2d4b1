package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"essay-review-bot/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBalanceCreatesUser(t *testing.T) {
	ledger := NewLedger(storetest.NewDB(t))
	ctx := context.Background()

	bal, err := ledger.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestGrantAndConsume(t *testing.T) {
	ledger := NewLedger(storetest.NewDB(t))
	ctx := context.Background()

	require.NoError(t, ledger.Grant(ctx, 1, 2))
	require.NoError(t, ledger.Grant(ctx, 1, 3))

	bal, err := ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), bal)

	ok, err := ledger.ConsumeOne(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	bal, err = ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), bal)
}

func TestConsumeOneInsufficient(t *testing.T) {
	ledger := NewLedger(storetest.NewDB(t))
	ctx := context.Background()

	ok, err := ledger.ConsumeOne(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ledger.Grant(ctx, 7, 1))
	ok, err = ledger.ConsumeOne(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.ConsumeOne(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	bal, err := ledger.GetBalance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestConsumeOneConcurrent(t *testing.T) {
	ledger := NewLedger(storetest.NewDB(t))
	ctx := context.Background()
	require.NoError(t, ledger.Grant(ctx, 9, 1))

	const callers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.ConsumeOne(ctx, 9)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	bal, err := ledger.GetBalance(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestRefund(t *testing.T) {
	ledger := NewLedger(storetest.NewDB(t))
	ctx := context.Background()

	require.NoError(t, ledger.Grant(ctx, 3, 1))
	ok, err := ledger.ConsumeOne(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, ledger.Refund(ctx, 3, 1))

	bal, err := ledger.GetBalance(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal)
}

func TestGrantRejectsNonPositive(t *testing.T) {
	ledger := NewLedger(storetest.NewDB(t))
	assert.ErrorIs(t, ledger.Grant(context.Background(), 1, 0), ErrInvalidAmount)
	assert.ErrorIs(t, ledger.Grant(context.Background(), 1, -3), ErrInvalidAmount)
}

func TestGrantFreeTrialOnce(t *testing.T) {
	ledger := NewLedger(storetest.NewDB(t))
	ctx := context.Background()

	used, err := ledger.HasUsedFreeTrial(ctx, 5)
	require.NoError(t, err)
	assert.False(t, used)

	granted, err := ledger.GrantFreeTrial(ctx, 5)
	require.NoError(t, err)
	assert.True(t, granted)

	for i := 0; i < 3; i++ {
		granted, err = ledger.GrantFreeTrial(ctx, 5)
		require.NoError(t, err)
		assert.False(t, granted)
	}

	used, err = ledger.HasUsedFreeTrial(ctx, 5)
	require.NoError(t, err)
	assert.True(t, used)

	bal, err := ledger.GetBalance(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal)
}

func TestNotInitialized(t *testing.T) {
	ctx := context.Background()

	_, err := NewLedger(nil).GetBalance(ctx, 1)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = NewLedger(nil).ConsumeOne(ctx, 1)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = NewPayments(nil).Decide(ctx, "p", 1, true)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, _, err = NewReviews(nil).Reopen(ctx, "e")
	assert.ErrorIs(t, err, ErrNotInitialized)
}
