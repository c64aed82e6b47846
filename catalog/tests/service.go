package tests

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/code-payments/flipchat-tipjar/catalog"
)

// Seeder makes products resolvable by the service under test.
type Seeder func(products ...*catalog.RawProduct)

type delivery struct {
	req  *catalog.Request
	resp *catalog.Response
}

func RunServiceTests(t *testing.T, s catalog.Service, seed Seeder, teardown func()) {
	for _, tf := range []func(t *testing.T, s catalog.Service, seed Seeder){
		testResolvesKnownProducts,
		testReportsInvalidIdentifiers,
		testRespondsOnce,
		testCancelledBeforeStart,
	} {
		tf(t, s, seed)
		teardown()
	}
}

func testResolvesKnownProducts(t *testing.T, s catalog.Service, seed Seeder) {
	seed(
		newRawProduct("com.test.smallTip", "Small Tip", "0.99"),
		newRawProduct("com.test.largeTip", "Large Tip", "9.99"),
	)

	req := catalog.NewRequest(catalog.NewIdentifiers("com.test.smallTip", "com.test.largeTip"))
	deliveries := start(s, context.Background(), req)

	d := awaitDelivery(t, deliveries)
	require.True(t, d.req == req)
	require.Empty(t, d.resp.InvalidIdentifiers)
	require.Len(t, d.resp.Products, 2)

	byID := map[string]*catalog.RawProduct{}
	for _, p := range d.resp.Products {
		byID[p.ID] = p
	}
	require.Equal(t, "Small Tip", byID["com.test.smallTip"].Title)
	require.True(t, decimal.RequireFromString("9.99").Equal(byID["com.test.largeTip"].Price))
}

func testReportsInvalidIdentifiers(t *testing.T, s catalog.Service, seed Seeder) {
	seed(newRawProduct("com.test.smallTip", "Small Tip", "0.99"))

	req := catalog.NewRequest(catalog.NewIdentifiers("com.test.smallTip", "com.test.missing"))
	d := awaitDelivery(t, start(s, context.Background(), req))

	require.Len(t, d.resp.Products, 1)
	require.Equal(t, "com.test.smallTip", d.resp.Products[0].ID)
	require.Equal(t, []string{"com.test.missing"}, d.resp.InvalidIdentifiers)
}

func testRespondsOnce(t *testing.T, s catalog.Service, seed Seeder) {
	seed(newRawProduct("com.test.smallTip", "Small Tip", "0.99"))

	req := catalog.NewRequest(catalog.NewIdentifiers("com.test.smallTip"))
	deliveries := start(s, context.Background(), req)

	awaitDelivery(t, deliveries)
	select {
	case <-deliveries:
		t.Fatal("unexpected second response")
	case <-time.After(50 * time.Millisecond):
	}
}

func testCancelledBeforeStart(t *testing.T, s catalog.Service, seed Seeder) {
	seed(newRawProduct("com.test.smallTip", "Small Tip", "0.99"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	deliveries := start(s, ctx, catalog.NewRequest(catalog.NewIdentifiers("com.test.smallTip")))
	select {
	case <-deliveries:
		t.Fatal("unexpected response for cancelled request")
	case <-time.After(50 * time.Millisecond):
	}
}

func start(s catalog.Service, ctx context.Context, req *catalog.Request) <-chan delivery {
	deliveries := make(chan delivery, 2)
	s.Start(ctx, req, catalog.ResponseHandlerFunc(func(req *catalog.Request, resp *catalog.Response) {
		deliveries <- delivery{req: req, resp: resp}
	}))
	return deliveries
}

func awaitDelivery(t *testing.T, deliveries <-chan delivery) delivery {
	select {
	case d := <-deliveries:
		require.NotNil(t, d.resp)
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for catalog response")
		return delivery{}
	}
}

func newRawProduct(id, title, amount string) *catalog.RawProduct {
	return &catalog.RawProduct{
		ID:          id,
		Title:       title,
		Price:       decimal.RequireFromString(amount),
		PriceLocale: language.AmericanEnglish,
	}
}
