package tipjar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/text/language"

	"github.com/code-payments/flipchat-tipjar/catalog"
	catalogmemory "github.com/code-payments/flipchat-tipjar/catalog/memory"
	"github.com/code-payments/flipchat-tipjar/iap"
	iapmemory "github.com/code-payments/flipchat-tipjar/iap/memory"
	"github.com/code-payments/flipchat-tipjar/model"
	"github.com/code-payments/flipchat-tipjar/product"
)

const (
	smallTip = "com.test.smallTip"
	largeTip = "com.test.largeTip"
)

var testProducts = map[string]string{
	smallTip: "0.99",
	largeTip: "9.99",
}

type hostSpy struct {
	mu        sync.Mutex
	received  [][]*product.Product
	succeeded atomic.Int32
	failed    atomic.Int32
}

func (h *hostSpy) onProductsReceived(products []*product.Product) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.received = append(h.received, products)
}

func (h *hostSpy) receivedCalls() [][]*product.Product {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([][]*product.Product(nil), h.received...)
}

func (h *hostSpy) options() []Option {
	return []Option{
		WithProductsReceived(h.onProductsReceived),
		WithPurchaseSucceeded(func() { h.succeeded.Add(1) }),
		WithPurchaseFailed(func() { h.failed.Add(1) }),
	}
}

type processingSpy struct {
	mu      sync.Mutex
	batches [][]*iap.Transaction
}

func (s *processingSpy) ProcessTransactions(_ context.Context, transactions []*iap.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches = append(s.batches, transactions)
}

func (s *processingSpy) timesRequestedToProcess() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.batches)
}

type env struct {
	service *catalogmemory.InMemoryService
	queue   *iapmemory.InMemoryQueue
	host    *hostSpy
	tipJar  *TipJar
}

func newEnv(t *testing.T, queueOpts []iapmemory.Option, opts ...Option) *env {
	service := catalogmemory.NewInMemory(zaptest.NewLogger(t))
	for id, amount := range testProducts {
		service.AddProducts(&catalog.RawProduct{
			ID:          id,
			Title:       id,
			Price:       decimal.RequireFromString(amount),
			PriceLocale: language.AmericanEnglish,
		})
	}

	queue := iapmemory.NewInMemory(zaptest.NewLogger(t), queueOpts...)
	host := &hostSpy{}

	identifiers := catalog.NewIdentifiers(smallTip, largeTip)
	tipJar := New(zaptest.NewLogger(t), identifiers, service, queue, append(host.options(), opts...)...)
	t.Cleanup(func() {
		tipJar.Close()
		service.Wait()
		queue.Wait()
	})

	return &env{
		service: service,
		queue:   queue,
		host:    host,
		tipJar:  tipJar,
	}
}

func (e *env) requestProducts(t *testing.T) {
	before := len(e.host.receivedCalls())
	require.NotNil(t, e.tipJar.RequestProducts(context.Background()))
	require.Eventually(t, func() bool { return len(e.host.receivedCalls()) == before+1 }, time.Second, time.Millisecond)
}

func newTransaction(productID string, state iap.State) *iap.Transaction {
	return &iap.Transaction{
		ID:        model.MustGenerateTransactionID(),
		Payment:   &iap.Payment{ProductID: productID, Quantity: 1},
		State:     state,
		UpdatedAt: time.Now(),
	}
}

func TestTipJar_New(t *testing.T) {
	e := newEnv(t, nil)

	require.True(t, e.tipJar.ProductIdentifiers().Equal(catalog.NewIdentifiers(smallTip, largeTip)))
	require.False(t, e.tipJar.IsObserving())
	require.Nil(t, e.tipJar.PendingRequest())
	require.Empty(t, e.tipJar.Products())
}

func TestTipJar_EmptyIdentifiers(t *testing.T) {
	service := catalogmemory.NewInMemory(zaptest.NewLogger(t))
	queue := iapmemory.NewInMemory(zaptest.NewLogger(t))

	tipJar := New(zaptest.NewLogger(t), catalog.NewIdentifiers(), service, queue)
	defer tipJar.Close()

	require.Nil(t, tipJar.RequestProducts(context.Background()))
	require.Equal(t, 0, service.Started())
}

func TestTipJar_ReceivesProducts(t *testing.T) {
	e := newEnv(t, nil)
	e.requestProducts(t)

	calls := e.host.receivedCalls()
	require.Len(t, calls, 1)
	require.Equal(t, []*product.Product{
		{ID: smallTip, DisplayName: smallTip, DisplayPrice: "$0.99"},
		{ID: largeTip, DisplayName: largeTip, DisplayPrice: "$9.99"},
	}, calls[0])
	require.Equal(t, calls[0], e.tipJar.Products())

	for id, amount := range testProducts {
		p, ok := e.tipJar.ProductFor(id)
		require.True(t, ok)
		require.Equal(t, id, p.ID)

		actual, ok := e.tipJar.PriceFor(id)
		require.True(t, ok)
		require.True(t, decimal.RequireFromString(amount).Equal(actual))

		formatted, ok := e.tipJar.LocalizedPriceFor(id)
		require.True(t, ok)
		require.Equal(t, "$"+amount, formatted)

		title, ok := e.tipJar.LocalizedTitleFor(id)
		require.True(t, ok)
		require.Equal(t, id, title)
	}
}

func TestTipJar_StaleResponseIgnored(t *testing.T) {
	service := catalogmemory.NewInMemory(zaptest.NewLogger(t), catalogmemory.WithLatency(10*time.Millisecond))
	service.AddProducts(&catalog.RawProduct{
		ID:          smallTip,
		Title:       "Small Tip",
		Price:       decimal.RequireFromString("0.99"),
		PriceLocale: language.AmericanEnglish,
	})
	queue := iapmemory.NewInMemory(zaptest.NewLogger(t))
	host := &hostSpy{}

	tipJar := New(zaptest.NewLogger(t), catalog.NewIdentifiers(smallTip), service, queue, host.options()...)
	defer tipJar.Close()

	tipJar.RequestProducts(context.Background())
	tipJar.RequestProducts(context.Background())
	service.Wait()

	require.Equal(t, 2, service.Started())
	require.Len(t, host.receivedCalls(), 1)
	require.Len(t, tipJar.Products(), 1)
}

func TestTipJar_CallbacksMayCallBack(t *testing.T) {
	service := catalogmemory.NewInMemory(zaptest.NewLogger(t))
	service.AddProducts(&catalog.RawProduct{
		ID:          smallTip,
		Title:       "Small Tip",
		Price:       decimal.RequireFromString("0.99"),
		PriceLocale: language.AmericanEnglish,
	})
	queue := iapmemory.NewInMemory(zaptest.NewLogger(t))

	prices := make(chan string, 1)
	var tipJar *TipJar
	tipJar = New(zaptest.NewLogger(t), catalog.NewIdentifiers(smallTip), service, queue,
		WithProductsReceived(func(products []*product.Product) {
			formatted, _ := tipJar.LocalizedPriceFor(products[0].ID)
			prices <- formatted
		}),
	)
	defer tipJar.Close()

	tipJar.RequestProducts(context.Background())

	select {
	case formatted := <-prices:
		require.Equal(t, "$0.99", formatted)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for products")
	}
}

func TestTipJar_Observing(t *testing.T) {
	e := newEnv(t, nil)

	require.False(t, e.tipJar.IsObserving())

	e.tipJar.StartObserving()
	require.True(t, e.tipJar.IsObserving())

	e.tipJar.StartObserving()
	require.Len(t, e.queue.Observers(), 1)

	e.tipJar.StopObserving()
	require.False(t, e.tipJar.IsObserving())
}

func TestTipJar_TransactionBatch(t *testing.T) {
	e := newEnv(t, nil)
	e.tipJar.StartObserving()

	purchased := newTransaction(smallTip, iap.StatePurchased)
	failed := newTransaction(largeTip, iap.StateFailed)
	e.queue.Push(purchased, failed)

	require.EqualValues(t, 1, e.host.succeeded.Load())
	require.EqualValues(t, 1, e.host.failed.Load())

	finished := e.queue.Finished()
	require.Len(t, finished, 2)
	require.Equal(t, purchased.ID.Value, finished[0].ID.Value)
	require.Equal(t, failed.ID.Value, finished[1].ID.Value)
}

func TestTipJar_IgnoredStates(t *testing.T) {
	e := newEnv(t, nil)
	e.tipJar.StartObserving()

	e.queue.Push(
		newTransaction(smallTip, iap.StatePurchasing),
		newTransaction(smallTip, iap.StateRestored),
		newTransaction(smallTip, iap.StateDeferred),
		newTransaction(smallTip, iap.State(99)),
	)

	require.EqualValues(t, 0, e.host.succeeded.Load())
	require.EqualValues(t, 0, e.host.failed.Load())
	require.Equal(t, 0, e.queue.FinishCalls())
	require.Len(t, e.queue.Unfinished(), 4)
}

func TestTipJar_PurchaseSucceeded(t *testing.T) {
	e := newEnv(t, []iapmemory.Option{iapmemory.WithAutoComplete(iapmemory.AlwaysPurchased)})
	e.requestProducts(t)
	e.tipJar.StartObserving()

	require.NoError(t, e.tipJar.InitiatePurchase(context.Background(), smallTip))
	e.queue.Wait()

	submitted := e.queue.Submitted()
	require.Len(t, submitted, 1)
	require.Equal(t, smallTip, submitted[0].ProductID)

	require.EqualValues(t, 1, e.host.succeeded.Load())
	require.EqualValues(t, 0, e.host.failed.Load())
	require.Len(t, e.queue.Finished(), 1)
	require.Empty(t, e.queue.Unfinished())
}

func TestTipJar_PurchaseFailed(t *testing.T) {
	e := newEnv(t, []iapmemory.Option{iapmemory.WithAutoComplete(iapmemory.AlwaysFailed)})
	e.requestProducts(t)
	e.tipJar.StartObserving()

	require.NoError(t, e.tipJar.InitiatePurchase(context.Background(), largeTip))
	e.queue.Wait()

	require.EqualValues(t, 0, e.host.succeeded.Load())
	require.EqualValues(t, 1, e.host.failed.Load())
	require.Len(t, e.queue.Finished(), 1)
}

func TestTipJar_PurchaseUnknownProduct(t *testing.T) {
	e := newEnv(t, nil)

	// No catalog response yet.
	err := e.tipJar.InitiatePurchase(context.Background(), smallTip)
	require.True(t, errors.Is(err, ErrUnknownProduct))

	e.requestProducts(t)
	err = e.tipJar.InitiatePurchase(context.Background(), "unknown")
	require.True(t, errors.Is(err, ErrUnknownProduct))

	require.Empty(t, e.queue.Submitted())
	require.Len(t, e.tipJar.Products(), 2)
}

func TestTipJar_PurchasePaymentsDisabled(t *testing.T) {
	e := newEnv(t, []iapmemory.Option{iapmemory.WithPaymentsDisabled()})
	e.requestProducts(t)

	err := e.tipJar.InitiatePurchase(context.Background(), smallTip)
	require.True(t, errors.Is(err, ErrPaymentsDisabled))
	require.Empty(t, e.queue.Submitted())
}

func TestTipJar_TransactionProcessor(t *testing.T) {
	spy := &processingSpy{}
	e := newEnv(t, []iapmemory.Option{iapmemory.WithAutoComplete(iapmemory.AlwaysPurchased)}, WithTransactionProcessor(spy))
	e.requestProducts(t)
	e.tipJar.StartObserving()

	require.NoError(t, e.tipJar.InitiatePurchase(context.Background(), smallTip))
	e.queue.Wait()

	// Purchasing, then purchased. The spy finishes nothing.
	require.Equal(t, 2, spy.timesRequestedToProcess())
	require.EqualValues(t, 0, e.host.succeeded.Load())
	require.Len(t, e.queue.Unfinished(), 1)

	// Back to the default processor.
	e.tipJar.SetTransactionProcessor(nil)
	e.queue.Redeliver()
	require.EqualValues(t, 1, e.host.succeeded.Load())
	require.Empty(t, e.queue.Unfinished())
}

func TestTipJar_Close(t *testing.T) {
	service := catalogmemory.NewInMemory(zaptest.NewLogger(t), catalogmemory.WithLatency(20*time.Millisecond))
	service.AddProducts(&catalog.RawProduct{
		ID:          smallTip,
		Title:       "Small Tip",
		Price:       decimal.RequireFromString("0.99"),
		PriceLocale: language.AmericanEnglish,
	})
	queue := iapmemory.NewInMemory(zaptest.NewLogger(t))
	host := &hostSpy{}

	tipJar := New(zaptest.NewLogger(t), catalog.NewIdentifiers(smallTip), service, queue, host.options()...)
	tipJar.StartObserving()
	require.NotNil(t, tipJar.RequestProducts(context.Background()))

	require.NoError(t, tipJar.Close())
	require.NoError(t, tipJar.Close())

	require.False(t, tipJar.IsObserving())
	require.Empty(t, queue.Observers())

	// The in-flight response lands on a closed tip jar.
	service.Wait()
	require.Empty(t, host.receivedCalls())
	require.Empty(t, tipJar.Products())

	require.Nil(t, tipJar.RequestProducts(context.Background()))
	require.True(t, errors.Is(tipJar.InitiatePurchase(context.Background(), smallTip), ErrClosed))

	tipJar.StartObserving()
	require.False(t, tipJar.IsObserving())

	queue.Push(newTransaction(smallTip, iap.StatePurchased))
	require.EqualValues(t, 0, host.succeeded.Load())
}
