package main

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/text/language"
)

const (
	envProductIDs      = "TIPJAR_PRODUCT_IDS"
	envLocale          = "TIPJAR_LOCALE"
	envCatalogLatency  = "TIPJAR_CATALOG_LATENCY"
	envCatalogCacheTTL = "TIPJAR_CATALOG_CACHE_TTL"
	envDebug           = "TIPJAR_DEBUG"
	envPurchase        = "TIPJAR_PURCHASE"
	envFail            = "TIPJAR_FAIL"
)

var defaultProductIDs = []string{
	"com.flipchat.tip.small",
	"com.flipchat.tip.medium",
	"com.flipchat.tip.large",
}

type config struct {
	ProductIDs      []string
	Locale          language.Tag
	CatalogLatency  time.Duration
	CatalogCacheTTL time.Duration
	Debug           bool
	Purchase        string
	Fail            bool
}

// loadConfig reads .env, if present, and then the environment.
func loadConfig() (*config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, pkgerrors.Wrap(err, "failed to load .env")
	}

	cfg := &config{
		ProductIDs:     defaultProductIDs,
		Locale:         language.AmericanEnglish,
		CatalogLatency: 100 * time.Millisecond,
	}

	if v := os.Getenv(envProductIDs); v != "" {
		cfg.ProductIDs = splitList(v)
	}

	if v := os.Getenv(envLocale); v != "" {
		tag, err := language.Parse(v)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "invalid %s", envLocale)
		}
		cfg.Locale = tag
	}

	var err error
	if cfg.CatalogLatency, err = durationEnv(envCatalogLatency, cfg.CatalogLatency); err != nil {
		return nil, err
	}
	if cfg.CatalogCacheTTL, err = durationEnv(envCatalogCacheTTL, 0); err != nil {
		return nil, err
	}
	if cfg.Debug, err = boolEnv(envDebug); err != nil {
		return nil, err
	}
	if cfg.Fail, err = boolEnv(envFail); err != nil {
		return nil, err
	}

	cfg.Purchase = os.Getenv(envPurchase)

	return cfg, nil
}

func splitList(v string) []string {
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "invalid %s", key)
	}
	return d, nil
}

func boolEnv(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, pkgerrors.Wrapf(err, "invalid %s", key)
	}
	return b, nil
}
