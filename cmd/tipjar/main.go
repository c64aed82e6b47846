package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-tipjar/catalog"
	catalogcache "github.com/code-payments/flipchat-tipjar/catalog/cache"
	catalogmemory "github.com/code-payments/flipchat-tipjar/catalog/memory"
	"github.com/code-payments/flipchat-tipjar/iap"
	iapmemory "github.com/code-payments/flipchat-tipjar/iap/memory"
	"github.com/code-payments/flipchat-tipjar/product"
	"github.com/code-payments/flipchat-tipjar/tipjar"
)

var priceTiers = []string{"0.99", "2.99", "4.99", "9.99", "19.99"}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	if err := run(logger, cfg); err != nil {
		logger.Fatal("Tip jar failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(logger *zap.Logger, cfg *config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	memoryCatalog := catalogmemory.NewInMemory(logger.Named("memory_catalog"), catalogmemory.WithLatency(cfg.CatalogLatency))
	for i, id := range cfg.ProductIDs {
		memoryCatalog.AddProducts(&catalog.RawProduct{
			ID:          id,
			Title:       fmt.Sprintf("Tip #%d", i+1),
			Price:       decimal.RequireFromString(priceTiers[i%len(priceTiers)]),
			PriceLocale: cfg.Locale,
		})
	}

	var service catalog.Service = memoryCatalog
	if cfg.CatalogCacheTTL > 0 {
		cached := catalogcache.NewInCache(logger.Named("catalog_cache"), memoryCatalog, cfg.CatalogCacheTTL)
		defer cached.Close()
		service = cached
	}

	outcome := iapmemory.AlwaysPurchased
	if cfg.Fail {
		outcome = iapmemory.AlwaysFailed
	}
	queue := iapmemory.NewInMemory(logger.Named("memory_queue"), iapmemory.WithAutoComplete(outcome))

	received := make(chan []*product.Product, 1)
	done := make(chan iap.State, 1)

	tj := tipjar.New(
		logger,
		catalog.NewIdentifiers(cfg.ProductIDs...),
		service,
		queue,
		tipjar.WithProductsReceived(func(products []*product.Product) {
			received <- products
		}),
		tipjar.WithPurchaseSucceeded(func() {
			done <- iap.StatePurchased
		}),
		tipjar.WithPurchaseFailed(func() {
			done <- iap.StateFailed
		}),
	)
	defer tj.Close()

	tj.StartObserving()

	if tj.RequestProducts(ctx) == nil {
		logger.Info("No product identifiers configured")
		return nil
	}

	var products []*product.Product
	select {
	case products = <-received:
	case <-ctx.Done():
		return fmt.Errorf("no catalog response: %w", ctx.Err())
	}

	for _, p := range products {
		fmt.Printf("%-32s %-16s %s\n", p.ID, p.DisplayName, p.DisplayPrice)
	}

	if cfg.Purchase == "" {
		return nil
	}

	if err := tj.InitiatePurchase(ctx, cfg.Purchase); err != nil {
		return fmt.Errorf("cannot purchase %s: %w", cfg.Purchase, err)
	}

	select {
	case state := <-done:
		fmt.Printf("Purchase of %s: %s\n", cfg.Purchase, state)
	case <-ctx.Done():
		return fmt.Errorf("no purchase outcome: %w", ctx.Err())
	}

	return nil
}
