package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-tipjar/model"
	"github.com/code-payments/flipchat-tipjar/product"
)

// RetainPolicy controls what happens to previously retained products when a
// new response is accepted.
type RetainPolicy uint8

const (
	// RetainReplace discards earlier products.
	RetainReplace RetainPolicy = iota

	// RetainAppend appends to earlier products. Asking for the same
	// identifiers twice retains duplicates.
	RetainAppend
)

func (p RetainPolicy) String() string {
	switch p {
	case RetainReplace:
		return "replace"
	case RetainAppend:
		return "append"
	default:
		return "unknown"
	}
}

type Option func(*Coordinator)

// WithResponseHandler registers h on started requests instead of the
// coordinator itself. h is expected to eventually forward to
// Coordinator.OnResponse.
func WithResponseHandler(h ResponseHandler) Option {
	return func(c *Coordinator) {
		c.handler = h
	}
}

func WithProductsReceived(fn func([]*product.Product)) Option {
	return func(c *Coordinator) {
		c.onProductsReceived = fn
	}
}

func WithRetainPolicy(policy RetainPolicy) Option {
	return func(c *Coordinator) {
		c.policy = policy
	}
}

// Coordinator turns an identifier set into validated, price-ordered products.
type Coordinator struct {
	log         *zap.Logger
	service     Service
	identifiers Identifiers

	handler            ResponseHandler
	policy             RetainPolicy
	onProductsReceived func([]*product.Product)

	mu       sync.RWMutex
	pending  *Request
	response *Response
	products []*product.Product
}

func NewCoordinator(log *zap.Logger, service Service, identifiers Identifiers, opts ...Option) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}

	c := &Coordinator{
		log:         log,
		service:     service,
		identifiers: identifiers,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.handler == nil {
		c.handler = c
	}
	return c
}

func (c *Coordinator) Identifiers() Identifiers {
	return c.identifiers
}

// BuildRequest returns a request for the identifier set, or nil if the set
// is empty.
func (c *Coordinator) BuildRequest() *Request {
	if c.identifiers.IsEmpty() {
		return nil
	}
	return NewRequest(c.identifiers)
}

// StartRequest replaces the pending request with a new one and starts it. Any
// earlier request still in flight becomes stale. It returns the new pending
// request, or nil if there is nothing to ask for.
func (c *Coordinator) StartRequest(ctx context.Context) *Request {
	req := c.BuildRequest()

	c.mu.Lock()
	c.pending = req
	c.mu.Unlock()

	if req == nil {
		c.log.Debug("Not starting catalog request, no identifiers")
		return nil
	}

	c.log.Debug("Starting catalog request",
		zap.String("request_id", model.RequestIDString(req.ID)),
		zap.Int("num_identifiers", req.Identifiers.Len()),
	)

	c.service.Start(ctx, req, c.handler)
	return req
}

// Abandon forgets the pending request so that its response is ignored.
func (c *Coordinator) Abandon() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

func (c *Coordinator) PendingRequest() *Request {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pending
}

// OnResponse accepts resp if req is the pending request, retains the valid
// products in ascending price order and notifies the host once. Responses for
// any other request are dropped.
func (c *Coordinator) OnResponse(req *Request, resp *Response) {
	if req == nil {
		return
	}

	log := c.log.With(zap.String("request_id", model.RequestIDString(req.ID)))

	c.mu.Lock()
	if req != c.pending {
		c.mu.Unlock()
		log.Debug("Dropping response for stale request")
		return
	}
	c.pending = nil

	if resp == nil {
		resp = &Response{}
	}
	resp = resp.Clone()

	received := toProducts(log, resp.Products)

	switch c.policy {
	case RetainAppend:
		for _, p := range received {
			if containsProduct(c.products, p.ID) {
				log.Warn("Appending duplicate product", zap.String("product_id", p.ID))
			}
		}
		c.products = append(c.products, received...)
	default:
		c.products = received
	}
	c.response = resp

	snapshot := product.SliceClone(c.products)
	notify := c.onProductsReceived
	c.mu.Unlock()

	if len(resp.InvalidIdentifiers) > 0 {
		log.Warn("Catalog reported invalid identifiers", zap.Strings("identifiers", resp.InvalidIdentifiers))
	}
	log.Info("Received catalog response",
		zap.Int("num_raw", len(resp.Products)),
		zap.Int("num_valid", len(received)),
		zap.Int("num_retained", len(snapshot)),
	)

	if notify != nil {
		notify(snapshot)
	}
}

// Products returns a copy of the retained products.
func (c *Coordinator) Products() []*product.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return product.SliceClone(c.products)
}

// LastResponse returns a copy of the most recently accepted response, or nil.
func (c *Coordinator) LastResponse() *Response {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.response.Clone()
}

func (c *Coordinator) ProductFor(id string) (*RawProduct, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := c.lookup(id)
	if p == nil {
		return nil, false
	}
	return p.Clone(), true
}

func (c *Coordinator) PriceFor(id string) (decimal.Decimal, bool) {
	p, ok := c.ProductFor(id)
	if !ok {
		return decimal.Decimal{}, false
	}
	return p.Price, true
}

func (c *Coordinator) LocalizedPriceFor(id string) (string, bool) {
	p, ok := c.ProductFor(id)
	if !ok {
		return "", false
	}

	formatted, err := p.LocalizedPrice()
	if err != nil {
		c.log.Debug("Failed to format price", zap.String("product_id", id), zap.Error(err))
		return "", false
	}
	return formatted, true
}

func (c *Coordinator) LocalizedTitleFor(id string) (string, bool) {
	p, ok := c.ProductFor(id)
	if !ok {
		return "", false
	}
	return p.Title, true
}

func (c *Coordinator) lookup(id string) *RawProduct {
	if c.response == nil {
		return nil
	}
	for _, p := range c.response.Products {
		if p != nil && p.ID == id {
			return p
		}
	}
	return nil
}

func toProducts(log *zap.Logger, raw []*RawProduct) []*product.Product {
	sorted := make([]*RawProduct, 0, len(raw))
	for _, p := range raw {
		if p != nil {
			sorted = append(sorted, p)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price.LessThan(sorted[j].Price)
	})

	products := make([]*product.Product, 0, len(sorted))
	for _, p := range sorted {
		displayPrice, err := p.LocalizedPrice()
		if err != nil {
			log.Debug("Failed to format price", zap.String("product_id", p.ID), zap.Error(err))
		}

		descriptor := &product.Product{
			ID:           p.ID,
			DisplayName:  p.Title,
			DisplayPrice: displayPrice,
		}
		if !descriptor.IsValid() {
			log.Warn("Dropping invalid product", zap.String("product_id", p.ID))
			continue
		}
		products = append(products, descriptor)
	}
	return products
}

func containsProduct(products []*product.Product, id string) bool {
	for _, p := range products {
		if p.ID == id {
			return true
		}
	}
	return false
}
