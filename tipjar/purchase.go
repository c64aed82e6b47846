package tipjar

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/code-payments/flipchat-tipjar/catalog"
	"github.com/code-payments/flipchat-tipjar/iap"
)

var (
	ErrUnknownProduct   = errors.New("unknown product")
	ErrPaymentsDisabled = iap.ErrPaymentsDisabled
)

// ProductLookup resolves an identifier to a product received from the
// catalog.
type ProductLookup interface {
	ProductFor(id string) (*catalog.RawProduct, bool)
}

// Purchaser submits payments for catalog products to a transaction queue.
type Purchaser struct {
	log      *zap.Logger
	queue    iap.Queue
	products ProductLookup
}

func NewPurchaser(log *zap.Logger, queue iap.Queue, products ProductLookup) *Purchaser {
	if log == nil {
		log = zap.NewNop()
	}

	return &Purchaser{
		log:      log,
		queue:    queue,
		products: products,
	}
}

// InitiatePurchase submits one unit of the product with the given
// identifier. It does not wait for the outcome.
func (p *Purchaser) InitiatePurchase(ctx context.Context, id string) error {
	log := p.log.With(zap.String("product_id", id))

	if !p.queue.CanMakePayments() {
		log.Debug("Not purchasing, payments are disabled")
		return ErrPaymentsDisabled
	}

	product, ok := p.products.ProductFor(id)
	if !ok {
		log.Debug("Not purchasing, product not in catalog")
		return ErrUnknownProduct
	}

	err := p.queue.Add(ctx, &iap.Payment{
		ProductID: product.ID,
		Quantity:  1,
	})
	if err != nil {
		log.Warn("Failed to submit payment", zap.Error(err))
		return err
	}

	log.Info("Submitted payment")
	return nil
}
