package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/flipchat-tipjar/iap"
	"github.com/code-payments/flipchat-tipjar/model"
)

// Pusher makes the queue under test deliver a batch of transaction updates.
type Pusher func(transactions ...*iap.Transaction)

func RunQueueTests(t *testing.T, q iap.Queue, push Pusher, teardown func()) {
	for _, tf := range []func(t *testing.T, q iap.Queue, push Pusher){
		testQueue_ObserverRegistration,
		testQueue_DeliversToObservers,
		testQueue_RemovedObserverNotNotified,
		testQueue_FinishOnce,
	} {
		tf(t, q, push)
		teardown()
	}
}

type observerSpy struct {
	mu      sync.Mutex
	batches [][]*iap.Transaction
}

func (s *observerSpy) OnTransactionsUpdated(transactions []*iap.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches = append(s.batches, transactions)
}

func (s *observerSpy) received() [][]*iap.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([][]*iap.Transaction(nil), s.batches...)
}

func testQueue_ObserverRegistration(t *testing.T, q iap.Queue, _ Pusher) {
	a := &observerSpy{}
	b := &observerSpy{}

	require.False(t, iap.IsObserving(q, a))

	q.AddObserver(a)
	q.AddObserver(a)
	require.True(t, iap.IsObserving(q, a))
	require.False(t, iap.IsObserving(q, b))
	require.Len(t, q.Observers(), 1)

	q.AddObserver(b)
	require.Len(t, q.Observers(), 2)

	q.RemoveObserver(a)
	q.RemoveObserver(a)
	require.False(t, iap.IsObserving(q, a))
	require.True(t, iap.IsObserving(q, b))

	q.RemoveObserver(b)
	require.Empty(t, q.Observers())
}

func testQueue_DeliversToObservers(t *testing.T, q iap.Queue, push Pusher) {
	a := &observerSpy{}
	b := &observerSpy{}
	q.AddObserver(a)
	q.AddObserver(a)
	q.AddObserver(b)

	first := newTransaction("com.test.smallTip", iap.StatePurchased)
	second := newTransaction("com.test.largeTip", iap.StateFailed)
	push(first, second)

	for _, spy := range []*observerSpy{a, b} {
		require.Eventually(t, func() bool { return len(spy.received()) == 1 }, time.Second, time.Millisecond)

		batch := spy.received()[0]
		require.Len(t, batch, 2)
		require.Equal(t, first.ID.Value, batch[0].ID.Value)
		require.Equal(t, iap.StatePurchased, batch[0].State)
		require.Equal(t, second.ID.Value, batch[1].ID.Value)
		require.Equal(t, iap.StateFailed, batch[1].State)
	}
}

func testQueue_RemovedObserverNotNotified(t *testing.T, q iap.Queue, push Pusher) {
	removed := &observerSpy{}
	kept := &observerSpy{}
	q.AddObserver(removed)
	q.AddObserver(kept)
	q.RemoveObserver(removed)

	push(newTransaction("com.test.smallTip", iap.StatePurchased))

	require.Eventually(t, func() bool { return len(kept.received()) == 1 }, time.Second, time.Millisecond)
	require.Empty(t, removed.received())
}

func testQueue_FinishOnce(t *testing.T, q iap.Queue, push Pusher) {
	ctx := context.Background()

	txn := newTransaction("com.test.smallTip", iap.StatePurchased)
	push(txn)

	require.NoError(t, q.Finish(ctx, txn))
	require.True(t, errors.Is(q.Finish(ctx, txn), iap.ErrAlreadyFinished))

	unknown := newTransaction("com.test.smallTip", iap.StatePurchased)
	require.True(t, errors.Is(q.Finish(ctx, unknown), iap.ErrNotFound))
	require.True(t, errors.Is(q.Finish(ctx, nil), iap.ErrNotFound))
}

func newTransaction(productID string, state iap.State) *iap.Transaction {
	return &iap.Transaction{
		ID:        model.MustGenerateTransactionID(),
		Payment:   &iap.Payment{ProductID: productID, Quantity: 1},
		State:     state,
		UpdatedAt: time.Now(),
	}
}
