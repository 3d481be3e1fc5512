package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FeatureFlags governs which event types a project accepts. §4.3:
// "a separate call resolves per-project feature flags governing which
// event types are accepted; on upstream error, a default 'all core
// features on, location off, all triggers on' shape is returned."
type FeatureFlags struct {
	CoreEventsEnabled     bool `json:"coreEventsEnabled"`
	LocationEnabled       bool `json:"locationEnabled"`
	TriggerEventsEnabled  bool `json:"triggerEventsEnabled"`
}

// DefaultFlags is the safe fallback shape used both on upstream error
// and, deterministically, in mock mode.
func DefaultFlags() FeatureFlags {
	return FeatureFlags{CoreEventsEnabled: true, LocationEnabled: false, TriggerEventsEnabled: true}
}

// ResolveFlags fetches per-project feature flags. On any upstream
// failure it returns DefaultFlags rather than propagating an error,
// since flag resolution must never block ingestion.
func (g *Gateway) ResolveFlags(ctx context.Context, projectID string) FeatureFlags {
	if g.isMock() {
		return DefaultFlags()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/internal/projects/%s/flags", g.endpoint, projectID), nil)
	if err != nil {
		return DefaultFlags()
	}

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req = req.WithContext(ctx2)

	resp, err := g.client.Do(req)
	if err != nil {
		return DefaultFlags()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DefaultFlags()
	}

	var flags FeatureFlags
	if err := json.NewDecoder(resp.Body).Decode(&flags); err != nil {
		return DefaultFlags()
	}
	return flags
}
