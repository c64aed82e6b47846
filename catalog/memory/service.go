package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/code-payments/flipchat-tipjar/catalog"
	"github.com/code-payments/flipchat-tipjar/model"
)

type Option func(*InMemoryService)

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option {
	return func(s *InMemoryService) {
		s.latency = d
	}
}

// InMemoryService is a catalog service backed by a map of products. Responses
// are delivered on their own goroutine.
type InMemoryService struct {
	log     *zap.Logger
	latency time.Duration

	mu       sync.RWMutex
	products map[string]*catalog.RawProduct
	started  int

	inflight sync.WaitGroup
}

func NewInMemory(log *zap.Logger, opts ...Option) *InMemoryService {
	if log == nil {
		log = zap.NewNop()
	}

	s := &InMemoryService{
		log:      log,
		products: map[string]*catalog.RawProduct{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryService) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = make(map[string]*catalog.RawProduct)
	s.started = 0
}

// AddProducts makes products resolvable, replacing entries with the same ID.
func (s *InMemoryService) AddProducts(products ...*catalog.RawProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range products {
		s.products[p.ID] = p.Clone()
	}
}

func (s *InMemoryService) RemoveProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.products, id)
}

// Started returns how many requests have been started.
func (s *InMemoryService) Started() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.started
}

// Wait blocks until every started request has either responded or been
// dropped.
func (s *InMemoryService) Wait() {
	s.inflight.Wait()
}

func (s *InMemoryService) Start(ctx context.Context, req *catalog.Request, handler catalog.ResponseHandler) {
	s.mu.Lock()
	s.started++
	s.mu.Unlock()

	log := s.log.With(zap.String("request_id", model.RequestIDString(req.ID)))

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		if s.latency > 0 {
			select {
			case <-time.After(s.latency):
			case <-ctx.Done():
				log.Debug("Dropping catalog request", zap.Error(ctx.Err()))
				return
			}
		}
		if ctx.Err() != nil {
			log.Debug("Dropping catalog request", zap.Error(ctx.Err()))
			return
		}

		handler.OnResponse(req, s.resolve(req.Identifiers))
	}()
}

func (s *InMemoryService) resolve(identifiers catalog.Identifiers) *catalog.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := &catalog.Response{}
	for _, id := range identifiers.Slice() {
		p, ok := s.products[id]
		if !ok {
			resp.InvalidIdentifiers = append(resp.InvalidIdentifiers, id)
			continue
		}
		resp.Products = append(resp.Products, p.Clone())
	}
	return resp
}
