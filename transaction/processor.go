package transaction

import (
	"context"

	"go.uber.org/zap"

	"github.com/code-payments/flipchat-tipjar/iap"
	"github.com/code-payments/flipchat-tipjar/model"
)

type Processor interface {
	ProcessTransactions(ctx context.Context, transactions []*iap.Transaction)
}

// ProcessorFunc is an adapter to allow the use of ordinary
// functions as Processors.
type ProcessorFunc func(ctx context.Context, transactions []*iap.Transaction)

// ProcessTransactions calls f(ctx, transactions).
func (f ProcessorFunc) ProcessTransactions(ctx context.Context, transactions []*iap.Transaction) {
	f(ctx, transactions)
}

// Classifier is the default Processor. Purchased and failed transactions are
// reported to the host and then finished. Every other state, including ones
// this package does not know about, is left alone.
type Classifier struct {
	log         *zap.Logger
	queue       iap.Queue
	onSucceeded func()
	onFailed    func()
}

func NewClassifier(log *zap.Logger, queue iap.Queue, onSucceeded, onFailed func()) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}

	return &Classifier{
		log:         log,
		queue:       queue,
		onSucceeded: onSucceeded,
		onFailed:    onFailed,
	}
}

func (c *Classifier) ProcessTransactions(ctx context.Context, transactions []*iap.Transaction) {
	for _, txn := range transactions {
		if txn == nil {
			continue
		}

		log := c.log.With(
			zap.String("transaction_id", model.TransactionIDString(txn.ID)),
			zap.String("product_id", txn.ProductID()),
			zap.String("state", txn.State.String()),
		)

		switch txn.State {
		case iap.StatePurchased:
			log.Info("Purchase succeeded")
			if c.onSucceeded != nil {
				c.onSucceeded()
			}
			c.finish(ctx, log, txn)
		case iap.StateFailed:
			log.Info("Purchase failed", zap.String("failure", txn.Failure))
			if c.onFailed != nil {
				c.onFailed()
			}
			c.finish(ctx, log, txn)
		case iap.StatePurchasing, iap.StateRestored, iap.StateDeferred:
			log.Debug("Ignoring transaction")
		default:
			log.Debug("Ignoring transaction in unrecognized state", zap.Uint8("raw_state", uint8(txn.State)))
		}
	}
}

func (c *Classifier) finish(ctx context.Context, log *zap.Logger, txn *iap.Transaction) {
	if err := c.queue.Finish(ctx, txn); err != nil {
		log.Warn("Failed to finish transaction", zap.Error(err))
	}
}
