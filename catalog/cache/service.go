package cache

import (
	"context"
	"time"

	"github.com/ReneKroon/ttlcache"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-tipjar/catalog"
	"github.com/code-payments/flipchat-tipjar/model"
)

// Cache serves repeated requests for the same identifier set from memory
// until the entry expires. Every request still gets its own response, tied
// to the *catalog.Request it was started with.
type Cache struct {
	log   *zap.Logger
	next  catalog.Service
	ttl   time.Duration
	cache *ttlcache.Cache
}

func NewInCache(log *zap.Logger, next catalog.Service, ttl time.Duration) *Cache {
	if log == nil {
		log = zap.NewNop()
	}

	return &Cache{
		log:   log,
		next:  next,
		ttl:   ttl,
		cache: newTTLCache(ttl),
	}
}

func newTTLCache(ttl time.Duration) *ttlcache.Cache {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	return cache
}

func (c *Cache) Start(ctx context.Context, req *catalog.Request, handler catalog.ResponseHandler) {
	if ctx.Err() != nil {
		return
	}

	cacheKey := toCacheKey(req.Identifiers)

	cached, ok := c.cache.Get(cacheKey)
	if ok {
		c.log.Debug("Serving catalog request from cache", zap.String("request_id", model.RequestIDString(req.ID)))

		copied := cached.(*catalog.Response).Clone()
		go handler.OnResponse(req, copied)
		return
	}

	c.next.Start(ctx, req, catalog.ResponseHandlerFunc(func(r *catalog.Request, resp *catalog.Response) {
		if resp != nil {
			c.cache.Set(cacheKey, resp.Clone())
		}
		handler.OnResponse(r, resp)
	}))
}

// Invalidate drops any cached response for identifiers.
func (c *Cache) Invalidate(identifiers catalog.Identifiers) {
	c.cache.Remove(toCacheKey(identifiers))
}

func (c *Cache) Close() {
	c.cache.Close()
}

func (c *Cache) reset() {
	c.cache.Close()
	c.cache = newTTLCache(c.ttl)
}

func toCacheKey(identifiers catalog.Identifiers) string {
	return identifiers.Key()
}
