package sizing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/config"
	"github.com/walltrack/walltrack/internal/domain"
)

type fakeOpenPositions struct{ views []OpenPositionView }

func (f fakeOpenPositions) ListOpenViews() []OpenPositionView { return f.views }

func TestSizerSkipsLowScore(t *testing.T) {
	cfg := config.SizingConfig{MinConvictionThreshold: 0.65}
	s := NewSizer(cfg, nil)
	res := s.Size(Request{SignalScore: 0.5}, 5)
	if res.Outcome != Skipped || res.SkipReason != SkipLowScore {
		t.Fatalf("expected Skipped(LowScore), got %+v", res)
	}
}

func TestSizerSkipsMaxPositions(t *testing.T) {
	cfg := config.SizingConfig{MinConvictionThreshold: 0.5}
	s := NewSizer(cfg, nil)
	res := s.Size(Request{SignalScore: 0.9, CurrentPositionCount: 5}, 5)
	if res.Outcome != Skipped || res.SkipReason != SkipMaxPositions {
		t.Fatalf("expected Skipped(MaxPositions), got %+v", res)
	}
}

func TestSizerFixedPercentHappyPath(t *testing.T) {
	cfg := config.SizingConfig{
		MinConvictionThreshold: 0.5, BasePositionPct: 2.0, MinPositionSOL: 0.01,
		MaxPositionSOL: 1.0, ReserveSOL: 0.05, MaxCapitalAllocationPct: 50,
		TotalCapitalSOL: 10, StandardConvictionMultiplier: 1.0, HighConvictionMultiplier: 1.5,
		SizingMode: config.SizingFixedPercent,
	}
	s := NewSizer(cfg, nil)
	res := s.Size(Request{
		SignalScore: 0.8, Conviction: domain.ConvictionStandard,
		AvailableBalanceSOL: decimal.NewFromFloat(10), CurrentPositionCount: 0,
		CurrentAllocatedSOL: decimal.Zero,
	}, 5)
	if res.Outcome != Approved {
		t.Fatalf("expected Approved, got %+v", res)
	}
	if !res.AmountSOL.Equal(decimal.NewFromFloat(0.1)) {
		t.Fatalf("expected 0.1 SOL sized, got %v", res.AmountSOL)
	}
}

func TestConcentrationBlocksDuplicate(t *testing.T) {
	cfg := config.ConcentrationConfig{Enabled: true, BlockDuplicatePositions: true, MaxTokenConcentrationPct: 50, MaxClusterConcentrationPct: 50, MaxPositionsPerCluster: 5}
	positions := fakeOpenPositions{views: []OpenPositionView{{TokenAddress: "T1", EntryAmountSOL: decimal.NewFromFloat(1)}}}
	c := NewConcentrationChecker(cfg, positions)

	res := c.Check("T1", "", decimal.NewFromFloat(0.5), decimal.NewFromFloat(10))
	if res.Outcome != Blocked || res.BlockReason != BlockDuplicate {
		t.Fatalf("I7: expected duplicate block, got %+v", res)
	}
}

func TestConcentrationReducesOverTokenLimit(t *testing.T) {
	cfg := config.ConcentrationConfig{Enabled: true, MaxTokenConcentrationPct: 20, MaxClusterConcentrationPct: 50, MaxPositionsPerCluster: 5}
	positions := fakeOpenPositions{views: []OpenPositionView{{TokenAddress: "T1", EntryAmountSOL: decimal.NewFromFloat(1)}}}
	c := NewConcentrationChecker(cfg, positions)

	res := c.Check("T1", "", decimal.NewFromFloat(2), decimal.NewFromFloat(10))
	if res.Outcome != Approved || !res.WasAdjusted {
		t.Fatalf("I7: expected requested amount reduced to stay under token cap, got %+v", res)
	}
	if res.AllowedSOL.GreaterThan(decimal.NewFromFloat(1)) {
		t.Fatalf("expected allowed <= 1 SOL (20%% of 10 less the 1 SOL already held), got %v", res.AllowedSOL)
	}
}
