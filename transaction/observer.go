package transaction

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/code-payments/flipchat-tipjar/iap"
)

// Observer connects a Processor to a transaction queue. Close must be called
// once the Observer is no longer needed, otherwise the queue keeps it
// registered.
type Observer struct {
	log   *zap.Logger
	queue iap.Queue

	mu        sync.RWMutex
	processor Processor
}

func NewObserver(log *zap.Logger, queue iap.Queue, processor Processor) *Observer {
	if log == nil {
		log = zap.NewNop()
	}

	return &Observer{
		log:       log,
		queue:     queue,
		processor: processor,
	}
}

func (o *Observer) Start() {
	o.queue.AddObserver(o)
}

func (o *Observer) Stop() {
	o.queue.RemoveObserver(o)
}

// Close unregisters the observer. It is safe to call more than once.
func (o *Observer) Close() error {
	o.Stop()
	return nil
}

func (o *Observer) IsObserving() bool {
	return iap.IsObserving(o.queue, o)
}

func (o *Observer) SetProcessor(p Processor) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.processor = p
}

func (o *Observer) Processor() Processor {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.processor
}

func (o *Observer) OnTransactionsUpdated(transactions []*iap.Transaction) {
	p := o.Processor()
	if p == nil {
		o.log.Debug("Dropping transaction updates, no processor", zap.Int("num_transactions", len(transactions)))
		return
	}
	p.ProcessTransactions(context.Background(), transactions)
}
