package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-tipjar/event"
	"github.com/code-payments/flipchat-tipjar/iap"
	"github.com/code-payments/flipchat-tipjar/model"
)

// Outcome decides the final state of an automatically completed payment.
type Outcome func(payment *iap.Payment) iap.State

func AlwaysPurchased(*iap.Payment) iap.State { return iap.StatePurchased }
func AlwaysFailed(*iap.Payment) iap.State    { return iap.StateFailed }

type Option func(*InMemoryQueue)

func WithPaymentsDisabled() Option {
	return func(q *InMemoryQueue) {
		q.paymentsDisabled = true
	}
}

// WithAutoComplete makes every submitted payment produce a purchasing
// transaction followed by an update to the state chosen by outcome.
func WithAutoComplete(outcome Outcome) Option {
	return func(q *InMemoryQueue) {
		q.outcome = outcome
	}
}

type record struct {
	transaction *iap.Transaction
	finished    bool
}

// InMemoryQueue is a process-local transaction queue.
type InMemoryQueue struct {
	log       *zap.Logger
	observers *event.Bus[iap.Observer]
	outcome   Outcome

	mu               sync.RWMutex
	paymentsDisabled bool
	records          map[string]*record
	order            []string
	submitted        []*iap.Payment
	finishCalls      int

	pending sync.WaitGroup
}

func NewInMemory(log *zap.Logger, opts ...Option) *InMemoryQueue {
	if log == nil {
		log = zap.NewNop()
	}

	q := &InMemoryQueue{
		log:       log,
		observers: event.NewBus[iap.Observer](),
		records:   map[string]*record{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *InMemoryQueue) reset() {
	q.pending.Wait()

	for _, o := range q.observers.Handlers() {
		q.observers.RemoveHandler(o)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.records = make(map[string]*record)
	q.order = nil
	q.submitted = nil
	q.finishCalls = 0
}

func (q *InMemoryQueue) AddObserver(o iap.Observer) {
	if q.observers.AddHandler(o) {
		q.log.Debug("Added transaction observer", zap.Int("num_observers", len(q.observers.Handlers())))
	}
}

func (q *InMemoryQueue) RemoveObserver(o iap.Observer) {
	if q.observers.RemoveHandler(o) {
		q.log.Debug("Removed transaction observer", zap.Int("num_observers", len(q.observers.Handlers())))
	}
}

func (q *InMemoryQueue) Observers() []iap.Observer {
	return q.observers.Handlers()
}

func (q *InMemoryQueue) CanMakePayments() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return !q.paymentsDisabled
}

func (q *InMemoryQueue) SetPaymentsDisabled(disabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.paymentsDisabled = disabled
}

func (q *InMemoryQueue) Add(ctx context.Context, payment *iap.Payment) error {
	if payment == nil || payment.ProductID == "" {
		return errors.New("payment must have a product")
	}

	q.mu.Lock()
	if q.paymentsDisabled {
		q.mu.Unlock()
		return iap.ErrPaymentsDisabled
	}
	q.submitted = append(q.submitted, payment.Clone())
	outcome := q.outcome
	q.mu.Unlock()

	q.log.Debug("Payment submitted", zap.String("product_id", payment.ProductID))

	if outcome == nil {
		return nil
	}

	txn := &iap.Transaction{
		ID:        model.MustGenerateTransactionID(),
		Payment:   payment.Clone(),
		State:     iap.StatePurchasing,
		UpdatedAt: time.Now(),
	}

	q.pending.Add(1)
	go func() {
		defer q.pending.Done()

		q.Push(txn)

		completed := txn.Clone()
		completed.State = outcome(payment)
		if completed.State == iap.StateFailed {
			completed.Failure = "payment cancelled"
		}
		completed.UpdatedAt = time.Now()
		q.Push(completed)
	}()

	return nil
}

func (q *InMemoryQueue) Finish(ctx context.Context, transaction *iap.Transaction) error {
	if transaction == nil || transaction.ID == nil {
		return iap.ErrNotFound
	}

	key := model.TransactionIDString(transaction.ID)

	q.mu.Lock()
	defer q.mu.Unlock()

	q.finishCalls++

	r, ok := q.records[key]
	if !ok {
		return errors.Wrapf(iap.ErrNotFound, "transaction %s", key)
	}
	if r.finished {
		return errors.Wrapf(iap.ErrAlreadyFinished, "transaction %s", key)
	}
	r.finished = true
	return nil
}

// Push records the given transaction updates and delivers them, as one batch,
// to every registered observer on the calling goroutine.
func (q *InMemoryQueue) Push(transactions ...*iap.Transaction) {
	if len(transactions) == 0 {
		return
	}

	q.mu.Lock()
	for _, txn := range transactions {
		key := model.TransactionIDString(txn.ID)
		r, ok := q.records[key]
		if !ok {
			r = &record{}
			q.records[key] = r
			q.order = append(q.order, key)
		}
		r.transaction = txn.Clone()
	}
	q.mu.Unlock()

	q.deliver(transactions)
}

// Redeliver delivers every unfinished transaction again, as happens when an
// application relaunches.
func (q *InMemoryQueue) Redeliver() {
	unfinished := q.Unfinished()
	if len(unfinished) == 0 {
		return
	}
	q.deliver(unfinished)
}

// Unfinished returns the transactions that have not been finished, in the
// order they first appeared.
func (q *InMemoryQueue) Unfinished() []*iap.Transaction {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var unfinished []*iap.Transaction
	for _, key := range q.order {
		r := q.records[key]
		if !r.finished {
			unfinished = append(unfinished, r.transaction.Clone())
		}
	}
	return unfinished
}

// Finished returns the transactions that have been finished.
func (q *InMemoryQueue) Finished() []*iap.Transaction {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var finished []*iap.Transaction
	for _, key := range q.order {
		r := q.records[key]
		if r.finished {
			finished = append(finished, r.transaction.Clone())
		}
	}
	return finished
}

// FinishCalls returns how many times Finish was called, including calls that
// failed.
func (q *InMemoryQueue) FinishCalls() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.finishCalls
}

// Submitted returns every payment accepted by Add.
func (q *InMemoryQueue) Submitted() []*iap.Payment {
	q.mu.RLock()
	defer q.mu.RUnlock()

	submitted := make([]*iap.Payment, len(q.submitted))
	for i, p := range q.submitted {
		submitted[i] = p.Clone()
	}
	return submitted
}

// Wait blocks until every automatically completed payment has been delivered.
func (q *InMemoryQueue) Wait() {
	q.pending.Wait()
}

func (q *InMemoryQueue) deliver(transactions []*iap.Transaction) {
	q.observers.Notify(func(o iap.Observer) {
		batch := make([]*iap.Transaction, len(transactions))
		for i, txn := range transactions {
			batch[i] = txn.Clone()
		}
		o.OnTransactionsUpdated(batch)
	})
}
