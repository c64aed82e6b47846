package iap

import (
	"context"
	"errors"
	"time"

	"github.com/code-payments/flipchat-tipjar/model"
)

var (
	ErrNotFound         = errors.New("transaction not found")
	ErrAlreadyFinished  = errors.New("transaction already finished")
	ErrPaymentsDisabled = errors.New("payments are disabled")
)

type State uint8

const (
	StateUnknown State = iota
	StatePurchasing
	StatePurchased
	StateFailed
	StateRestored
	StateDeferred
)

func (s State) String() string {
	switch s {
	case StatePurchasing:
		return "purchasing"
	case StatePurchased:
		return "purchased"
	case StateFailed:
		return "failed"
	case StateRestored:
		return "restored"
	case StateDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Payment is a request to buy a product.
type Payment struct {
	ProductID string
	Quantity  int
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	return &Payment{
		ProductID: p.ProductID,
		Quantity:  p.Quantity,
	}
}

// Transaction is the queue's record of a payment moving through its
// lifecycle. A transaction stays in the queue, and is redelivered, until it
// is finished.
type Transaction struct {
	ID        *model.TransactionID
	Payment   *Payment
	State     State
	Failure   string
	UpdatedAt time.Time
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}

	var id *model.TransactionID
	if t.ID != nil {
		id = &model.TransactionID{Value: append([]byte(nil), t.ID.Value...)}
	}

	return &Transaction{
		ID:        id,
		Payment:   t.Payment.Clone(),
		State:     t.State,
		Failure:   t.Failure,
		UpdatedAt: t.UpdatedAt,
	}
}

func (t *Transaction) ProductID() string {
	if t == nil || t.Payment == nil {
		return ""
	}
	return t.Payment.ProductID
}

type Observer interface {

	// OnTransactionsUpdated delivers a batch of transaction updates, in the
	// order the queue produced them.
	OnTransactionsUpdated(transactions []*Transaction)
}

// Queue is the platform transaction queue. It is shared by everything in the
// process that observes it.
type Queue interface {

	// AddObserver registers o. Registering the same observer twice has no
	// effect.
	AddObserver(o Observer)

	// RemoveObserver unregisters o. Removing an observer that is not
	// registered has no effect.
	RemoveObserver(o Observer)

	// Observers returns the registered observers.
	Observers() []Observer

	// CanMakePayments reports whether the platform allows payments.
	CanMakePayments() bool

	// Add submits a payment and returns immediately. The outcome is
	// delivered to observers later.
	Add(ctx context.Context, payment *Payment) error

	// Finish acknowledges a transaction so that it is not redelivered.
	Finish(ctx context.Context, transaction *Transaction) error
}

// IsObserving reports whether o is among q's registered observers. Observers
// are compared by identity.
func IsObserving(q Queue, o Observer) bool {
	for _, existing := range q.Observers() {
		if existing == o {
			return true
		}
	}
	return false
}
