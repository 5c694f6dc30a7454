package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

type fakeProvider struct {
	name    domain.TokenSource
	price   decimal.Decimal
	fail    bool
	calls   int
}

func (f *fakeProvider) Name() domain.TokenSource { return f.name }

func (f *fakeProvider) Quote(ctx context.Context, token string) (ports.PriceResult, error) {
	f.calls++
	if f.fail {
		return ports.PriceResult{}, errors.New("boom")
	}
	return ports.PriceResult{OK: true, Price: f.price, Source: f.name, ObservedAt: time.Now()}, nil
}

func (f *fakeProvider) Batch(ctx context.Context, tokens []string) (map[string]ports.PriceResult, error) {
	if f.fail {
		return nil, errors.New("boom")
	}
	out := make(map[string]ports.PriceResult, len(tokens))
	for _, t := range tokens {
		out[t] = ports.PriceResult{OK: true, Price: f.price, Source: f.name}
	}
	return out, nil
}

func TestOracleFallsBackToNextProvider(t *testing.T) {
	primary := &fakeProvider{name: domain.SourcePrimaryFeed, fail: true}
	secondary := &fakeProvider{name: domain.SourceSecondaryFeed, price: decimal.NewFromFloat(1.5)}
	o := New([]ports.PriceProvider{primary, secondary}, time.Minute, time.Second, time.Second)

	res := o.PriceOf(context.Background(), "tokenA")
	if !res.OK || res.Source != domain.SourceSecondaryFeed {
		t.Fatalf("expected fallback to secondary, got %+v", res)
	}
}

func TestOracleCachesWithinTTL(t *testing.T) {
	primary := &fakeProvider{name: domain.SourcePrimaryFeed, price: decimal.NewFromFloat(2.0)}
	o := New([]ports.PriceProvider{primary}, time.Minute, time.Hour, time.Second)

	o.PriceOf(context.Background(), "tokenA")
	o.PriceOf(context.Background(), "tokenA")

	if primary.calls != 1 {
		t.Fatalf("expected cached second lookup, provider called %d times", primary.calls)
	}
}

func TestOracleRejectsOutOfRangePrice(t *testing.T) {
	primary := &fakeProvider{name: domain.SourcePrimaryFeed, price: decimal.NewFromFloat(1e18)}
	o := New([]ports.PriceProvider{primary}, time.Minute, time.Second, time.Second)

	res := o.PriceOf(context.Background(), "tokenA")
	if res.OK {
		t.Fatalf("expected out-of-range price to be rejected, got %+v", res)
	}
}

func TestOracleCanaryProbeAdmitsOneCallerAfterCooldownExpires(t *testing.T) {
	o := New(nil, 10*time.Millisecond, time.Second, time.Second)

	o.markCooldown("primary")
	if !o.inCooldown("primary") {
		t.Fatal("expected provider to be cooled down immediately after marking")
	}

	time.Sleep(15 * time.Millisecond)

	if o.inCooldown("primary") {
		t.Fatal("expected the first caller after expiry to be let through as the canary probe")
	}
	if !o.inCooldown("primary") {
		t.Fatal("expected a second concurrent caller to still see the provider as cooled down while the canary probe is unresolved")
	}

	o.clearCooldown("primary")
	if o.inCooldown("primary") {
		t.Fatal("expected the provider to be fully readmitted once the canary probe resolves successfully")
	}
}

func TestOracleReCoolsProviderWhenCanaryProbeFails(t *testing.T) {
	primary := &fakeProvider{name: domain.SourcePrimaryFeed, fail: true}
	o := New([]ports.PriceProvider{primary}, 10*time.Millisecond, time.Millisecond, time.Second)

	o.PriceOf(context.Background(), "tokenA")
	time.Sleep(15 * time.Millisecond)

	// The canary probe itself fails again: the provider must go straight
	// back into a fresh cooldown rather than being readmitted.
	res := o.PriceOf(context.Background(), "tokenA")
	if res.OK {
		t.Fatalf("expected failure, got %+v", res)
	}
	if !o.inCooldown(string(primary.Name())) {
		t.Fatal("expected a failed canary probe to re-cool the provider")
	}
}

func TestPricesOfDedupsAndBatches(t *testing.T) {
	primary := &fakeProvider{name: domain.SourcePrimaryFeed, price: decimal.NewFromFloat(1.0)}
	o := New([]ports.PriceProvider{primary}, time.Minute, time.Second, time.Second)

	out := o.PricesOf(context.Background(), []string{"a", "b", "a"})
	if len(out) != 2 {
		t.Fatalf("expected 2 unique results, got %d", len(out))
	}
}
