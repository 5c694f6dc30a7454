package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/walltrack/walltrack/internal/domain"
)

// ClusterClient is the ports.ClusterService adapter over the external
// wallet-graph service (§4.4's ClusterInfo dependency). Graph internals
// never live in the core; this is the sole edge crossing into it,
// grounded on HistoryFetcher's REST shape.
type ClusterClient struct {
	baseURL string
	client  *http.Client
}

// NewClusterClient builds a ClusterClient against baseURL.
func NewClusterClient(baseURL string) *ClusterClient {
	return &ClusterClient{baseURL: baseURL, client: &http.Client{Timeout: 3 * time.Second}}
}

type clusterWireEntry struct {
	ClusterID  string  `json:"cluster_id"`
	IsLeader   bool    `json:"is_leader"`
	Multiplier float64 `json:"multiplier"`
}

// GetClusterFor implements ports.ClusterService.
func (c *ClusterClient) GetClusterFor(ctx context.Context, wallet string) (domain.ClusterInfo, error) {
	url := fmt.Sprintf("%s/wallets/%s/cluster", c.baseURL, wallet)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ClusterInfo{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.ClusterInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ClusterInfo{}, fmt.Errorf("ingress: cluster lookup for %s returned status %d", wallet, resp.StatusCode)
	}

	var wire clusterWireEntry
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return domain.ClusterInfo{}, err
	}

	return domain.ClusterInfo{ClusterID: wire.ClusterID, IsLeader: wire.IsLeader, Multiplier: wire.Multiplier}, nil
}

// NeutralClusterService is a ports.ClusterService that reports every
// wallet as its own unclustered, non-leading cluster with a multiplier
// of 1.0 — a deployment with no wallet-graph service wires this instead
// of ClusterClient so C4's scoring math still runs.
type NeutralClusterService struct{}

func (NeutralClusterService) GetClusterFor(ctx context.Context, wallet string) (domain.ClusterInfo, error) {
	return domain.ClusterInfo{ClusterID: wallet, IsLeader: false, Multiplier: 1.0}, nil
}
