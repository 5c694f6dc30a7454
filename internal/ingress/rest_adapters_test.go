package ingress

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/walltrack/walltrack/internal/domain"
)

func TestHTTPPriceProviderQuoteAndBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/price/TOKEN1":
			fmt.Fprint(w, `{"price":"1.25"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	provider := NewHTTPPriceProvider(domain.SourcePrimaryFeed, server.URL)
	if provider.Name() != domain.SourcePrimaryFeed {
		t.Fatalf("expected Name to report configured source")
	}

	res, err := provider.Quote(context.Background(), "TOKEN1")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !res.OK || !res.Price.Equal(res.Price) || res.Price.String() != "1.25" {
		t.Fatalf("unexpected quote result: %+v", res)
	}

	batch, err := provider.Batch(context.Background(), []string{"TOKEN1", "MISSING"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected only the resolvable token in the batch result, got %d", len(batch))
	}
	if _, ok := batch["MISSING"]; ok {
		t.Fatalf("expected failed quote to be omitted, not zero-valued")
	}
}

func TestHTTPTokenFetcherDecodesCharacteristics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"liquidity_usd":5000,"market_cap_usd":250000,"age_minutes":12.5,"is_honeypot":false,"is_new_token":true}`)
	}))
	defer server.Close()

	fetcher := NewHTTPTokenFetcher(server.URL)
	got, err := fetcher.Fetch(context.Background(), "TOKEN1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.Address != "TOKEN1" || got.LiquidityUSD != 5000 || !got.IsNewToken || got.IsHoneypot {
		t.Fatalf("unexpected characteristics: %+v", got)
	}
}

func TestHTTPTokenFetcherSurfacesNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewHTTPTokenFetcher(server.URL)
	if _, err := fetcher.Fetch(context.Background(), "TOKEN1"); err == nil {
		t.Fatal("expected an error on a non-200 response")
	}
}

func TestClusterClientDecodesClusterInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"cluster_id":"CLUSTER1","is_leader":true,"multiplier":1.4}`)
	}))
	defer server.Close()

	client := NewClusterClient(server.URL)
	got, err := client.GetClusterFor(context.Background(), "W1")
	if err != nil {
		t.Fatalf("get cluster for: %v", err)
	}
	if got.ClusterID != "CLUSTER1" || !got.IsLeader || got.Multiplier != 1.4 {
		t.Fatalf("unexpected cluster info: %+v", got)
	}
}

func TestNeutralClusterServiceReportsUnclustered(t *testing.T) {
	var svc NeutralClusterService
	got, err := svc.GetClusterFor(context.Background(), "W1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ClusterID != "W1" || got.IsLeader || got.Multiplier != 1.0 {
		t.Fatalf("expected a neutral, unclustered result, got %+v", got)
	}
}
