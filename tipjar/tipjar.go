// Package tipjar is the host-facing entry point: it asks the catalog for a
// fixed set of tip products, keeps the validated products, submits purchases
// and reports their outcome.
//
// Catalog responses and transaction batches are processed one at a time.
// Catalog services and transaction queues must deliver their callbacks
// asynchronously, so host callbacks are free to call back into the TipJar.
package tipjar

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-tipjar/catalog"
	"github.com/code-payments/flipchat-tipjar/iap"
	"github.com/code-payments/flipchat-tipjar/product"
	"github.com/code-payments/flipchat-tipjar/transaction"
)

var (
	ErrClosed = errors.New("tip jar is closed")
)

type Option func(*options)

type options struct {
	onProductsReceived  func([]*product.Product)
	onPurchaseSucceeded func()
	onPurchaseFailed    func()
	processor           transaction.Processor
	retainPolicy        catalog.RetainPolicy
}

func WithProductsReceived(fn func([]*product.Product)) Option {
	return func(o *options) {
		o.onProductsReceived = fn
	}
}

func WithPurchaseSucceeded(fn func()) Option {
	return func(o *options) {
		o.onPurchaseSucceeded = fn
	}
}

func WithPurchaseFailed(fn func()) Option {
	return func(o *options) {
		o.onPurchaseFailed = fn
	}
}

// WithTransactionProcessor replaces the default classification of
// transaction updates.
func WithTransactionProcessor(p transaction.Processor) Option {
	return func(o *options) {
		o.processor = p
	}
}

func WithRetainPolicy(policy catalog.RetainPolicy) Option {
	return func(o *options) {
		o.retainPolicy = policy
	}
}

type TipJar struct {
	log        *zap.Logger
	queue      iap.Queue
	catalog    *catalog.Coordinator
	classifier *transaction.Classifier
	observer   *transaction.Observer
	purchaser  *Purchaser

	// serial orders catalog responses and transaction batches.
	serial sync.Mutex

	mu        sync.RWMutex
	processor transaction.Processor
	closed    bool
}

func New(
	log *zap.Logger,
	identifiers catalog.Identifiers,
	service catalog.Service,
	queue iap.Queue,
	opts ...Option,
) *TipJar {
	if log == nil {
		log = zap.NewNop()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tj := &TipJar{
		log:   log,
		queue: queue,
	}

	tj.catalog = catalog.NewCoordinator(
		log.Named("catalog"),
		service,
		identifiers,
		catalog.WithResponseHandler(catalog.ResponseHandlerFunc(tj.onCatalogResponse)),
		catalog.WithProductsReceived(o.onProductsReceived),
		catalog.WithRetainPolicy(o.retainPolicy),
	)
	tj.classifier = transaction.NewClassifier(log.Named("transaction"), queue, o.onPurchaseSucceeded, o.onPurchaseFailed)
	tj.observer = transaction.NewObserver(log.Named("observer"), queue, transaction.ProcessorFunc(tj.onTransactionsUpdated))
	tj.purchaser = NewPurchaser(log.Named("purchase"), queue, tj.catalog)

	tj.processor = o.processor
	if tj.processor == nil {
		tj.processor = tj
	}

	return tj
}

func (tj *TipJar) ProductIdentifiers() catalog.Identifiers {
	return tj.catalog.Identifiers()
}

// RequestProducts starts a catalog request for the product identifiers,
// superseding any request still in flight. It returns nil if there is
// nothing to ask for or the TipJar is closed.
func (tj *TipJar) RequestProducts(ctx context.Context) *catalog.Request {
	if tj.isClosed() {
		return nil
	}
	return tj.catalog.StartRequest(ctx)
}

func (tj *TipJar) PendingRequest() *catalog.Request {
	return tj.catalog.PendingRequest()
}

// Products returns the retained products in ascending price order.
func (tj *TipJar) Products() []*product.Product {
	return tj.catalog.Products()
}

func (tj *TipJar) ProductFor(id string) (*catalog.RawProduct, bool) {
	return tj.catalog.ProductFor(id)
}

func (tj *TipJar) PriceFor(id string) (decimal.Decimal, bool) {
	return tj.catalog.PriceFor(id)
}

func (tj *TipJar) LocalizedPriceFor(id string) (string, bool) {
	return tj.catalog.LocalizedPriceFor(id)
}

func (tj *TipJar) LocalizedTitleFor(id string) (string, bool) {
	return tj.catalog.LocalizedTitleFor(id)
}

func (tj *TipJar) StartObserving() {
	if tj.isClosed() {
		return
	}
	tj.observer.Start()
}

func (tj *TipJar) StopObserving() {
	tj.observer.Stop()
}

func (tj *TipJar) IsObserving() bool {
	return tj.observer.IsObserving()
}

// SetTransactionProcessor replaces the processor that transaction updates
// are handed to. A nil processor restores the default.
func (tj *TipJar) SetTransactionProcessor(p transaction.Processor) {
	tj.mu.Lock()
	defer tj.mu.Unlock()

	if p == nil {
		p = tj
	}
	tj.processor = p
}

// ProcessTransactions is the default processor: purchased and failed
// transactions are reported through the configured callbacks and finished.
func (tj *TipJar) ProcessTransactions(ctx context.Context, transactions []*iap.Transaction) {
	tj.classifier.ProcessTransactions(ctx, transactions)
}

// InitiatePurchase submits a purchase of the product with the given
// identifier. Nothing is submitted if payments are disabled or the product
// has not been received from the catalog. The outcome arrives later through
// the purchase callbacks.
func (tj *TipJar) InitiatePurchase(ctx context.Context, id string) error {
	if tj.isClosed() {
		return ErrClosed
	}
	return tj.purchaser.InitiatePurchase(ctx, id)
}

// Close stops observing the transaction queue and abandons any pending
// catalog request. It is safe to call more than once.
func (tj *TipJar) Close() error {
	tj.mu.Lock()
	if tj.closed {
		tj.mu.Unlock()
		return nil
	}
	tj.closed = true
	tj.mu.Unlock()

	tj.observer.Close()
	tj.catalog.Abandon()

	tj.log.Debug("Closed tip jar")
	return nil
}

func (tj *TipJar) onCatalogResponse(req *catalog.Request, resp *catalog.Response) {
	tj.serial.Lock()
	defer tj.serial.Unlock()

	tj.catalog.OnResponse(req, resp)
}

func (tj *TipJar) onTransactionsUpdated(ctx context.Context, transactions []*iap.Transaction) {
	tj.serial.Lock()
	defer tj.serial.Unlock()

	tj.mu.RLock()
	p := tj.processor
	tj.mu.RUnlock()

	p.ProcessTransactions(ctx, transactions)
}

func (tj *TipJar) isClosed() bool {
	tj.mu.RLock()
	defer tj.mu.RUnlock()

	return tj.closed
}
