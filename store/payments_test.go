package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"essay-review-bot/model"
	"essay-review-bot/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayment(id string, userID int64) *model.Payment {
	return &model.Payment{
		PaymentID:   id,
		UserID:      userID,
		Amount:      1,
		Username:    "tester",
		ReceiptKind: model.ReceiptImage,
		ReceiptRef:  "file-" + id,
	}
}

func TestPaymentCreatePending(t *testing.T) {
	db := storetest.NewDB(t)
	payments := NewPayments(db)
	ctx := context.Background()

	require.NoError(t, payments.Create(ctx, newPayment("p1", 10)))

	p, err := payments.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.Nil(t, p.DecidedBy)

	n, err := payments.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = payments.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaymentDecideApproveOnce(t *testing.T) {
	db := storetest.NewDB(t)
	payments := NewPayments(db)
	ledger := NewLedger(db)
	ctx := context.Background()

	p := newPayment("p2", 11)
	p.Amount = 3
	require.NoError(t, payments.Create(ctx, p))

	decided, err := payments.Decide(ctx, "p2", 99, true)
	require.NoError(t, err)
	require.NotNil(t, decided)
	assert.Equal(t, model.PaymentApproved, decided.Status)
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, int64(99), *decided.DecidedBy)
	assert.NotNil(t, decided.DecidedAt)

	again, err := payments.Decide(ctx, "p2", 99, true)
	require.NoError(t, err)
	assert.Nil(t, again)

	rejected, err := payments.Decide(ctx, "p2", 99, false)
	require.NoError(t, err)
	assert.Nil(t, rejected)

	bal, err := ledger.GetBalance(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(3), bal)
}

func TestPaymentDecideReject(t *testing.T) {
	db := storetest.NewDB(t)
	payments := NewPayments(db)
	ledger := NewLedger(db)
	ctx := context.Background()

	require.NoError(t, payments.Create(ctx, newPayment("p3", 12)))

	decided, err := payments.Decide(ctx, "p3", 1, false)
	require.NoError(t, err)
	require.NotNil(t, decided)
	assert.Equal(t, model.PaymentRejected, decided.Status)

	bal, err := ledger.GetBalance(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestPaymentDecideMissing(t *testing.T) {
	payments := NewPayments(storetest.NewDB(t))
	decided, err := payments.Decide(context.Background(), "nope", 1, true)
	require.NoError(t, err)
	assert.Nil(t, decided)
}

func TestPaymentDecideConcurrent(t *testing.T) {
	db := storetest.NewDB(t)
	payments := NewPayments(db)
	ledger := NewLedger(db)
	ctx := context.Background()

	require.NoError(t, payments.Create(ctx, newPayment("p4", 13)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			decided, err := payments.Decide(ctx, "p4", 1, approve)
			assert.NoError(t, err)
			if decided != nil {
				wins.Add(1)
			}
		}(true)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	bal, err := ledger.GetBalance(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal)
}

func TestPaymentCreateRejectsNonPositive(t *testing.T) {
	payments := NewPayments(storetest.NewDB(t))
	p := newPayment("p5", 1)
	p.Amount = 0
	assert.ErrorIs(t, payments.Create(context.Background(), p), ErrInvalidAmount)
}
