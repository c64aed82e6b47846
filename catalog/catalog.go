package catalog

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"github.com/code-payments/flipchat-tipjar/model"
	"github.com/code-payments/flipchat-tipjar/price"
)

// RawProduct is a catalog entry as returned by the catalog service.
type RawProduct struct {
	ID          string
	Title       string
	Price       decimal.Decimal
	PriceLocale language.Tag

	// Currency overrides the currency implied by PriceLocale when set.
	Currency currency.Unit
}

func (p *RawProduct) Clone() *RawProduct {
	if p == nil {
		return nil
	}
	return &RawProduct{
		ID:          p.ID,
		Title:       p.Title,
		Price:       p.Price,
		PriceLocale: p.PriceLocale,
		Currency:    p.Currency,
	}
}

// CurrencyUnit returns the currency the price is denominated in.
func (p *RawProduct) CurrencyUnit() (currency.Unit, error) {
	if p.Currency != (currency.Unit{}) {
		return p.Currency, nil
	}
	return price.CurrencyFor(p.PriceLocale)
}

// LocalizedPrice formats the price under the product's own locale.
func (p *RawProduct) LocalizedPrice() (string, error) {
	cur, err := p.CurrencyUnit()
	if err != nil {
		return "", err
	}
	return price.Format(p.Price, p.PriceLocale, cur)
}

// Request is a single catalog query. Requests are compared by pointer: a
// response is matched to the exact *Request it was started with.
type Request struct {
	ID          *model.RequestID
	Identifiers Identifiers
}

func NewRequest(identifiers Identifiers) *Request {
	return &Request{
		ID:          model.MustGenerateRequestID(),
		Identifiers: identifiers,
	}
}

type Response struct {
	Products           []*RawProduct
	InvalidIdentifiers []string
}

func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}

	products := make([]*RawProduct, len(r.Products))
	for i, p := range r.Products {
		products[i] = p.Clone()
	}

	var invalid []string
	if r.InvalidIdentifiers != nil {
		invalid = make([]string, len(r.InvalidIdentifiers))
		copy(invalid, r.InvalidIdentifiers)
	}

	return &Response{
		Products:           products,
		InvalidIdentifiers: invalid,
	}
}

type ResponseHandler interface {
	OnResponse(req *Request, resp *Response)
}

// ResponseHandlerFunc is an adapter to allow the use of ordinary
// functions as ResponseHandlers.
type ResponseHandlerFunc func(req *Request, resp *Response)

// OnResponse calls f(req, resp).
func (f ResponseHandlerFunc) OnResponse(req *Request, resp *Response) {
	f(req, resp)
}

type Service interface {

	// Start submits req and returns immediately. The service calls
	// handler.OnResponse at most once, on a goroutine other than the
	// caller's. If no response arrives (for example, ctx is done first),
	// the handler is never called.
	Start(ctx context.Context, req *Request, handler ResponseHandler)
}
