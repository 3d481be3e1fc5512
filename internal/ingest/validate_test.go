package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overwatch/ingestion-gateway/internal/auth"
	"github.com/overwatch/ingestion-gateway/internal/event"
)

func baseRecord() event.SDKRecord {
	return event.SDKRecord{
		ID:        "e1",
		Type:      event.TypePageview,
		Timestamp: time.Now().UnixMilli(),
		SessionID: "s1",
		URL:       "https://a.test/",
		UserAgent: "ua",
	}
}

func TestValidateRecord_RequiredFields(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		mutate func(*event.SDKRecord)
	}{
		{"missing id", func(r *event.SDKRecord) { r.ID = "" }},
		{"missing sessionId", func(r *event.SDKRecord) { r.SessionID = "" }},
		{"missing url", func(r *event.SDKRecord) { r.URL = "" }},
		{"missing userAgent", func(r *event.SDKRecord) { r.UserAgent = "" }},
		{"unknown type", func(r *event.SDKRecord) { r.Type = "not_a_real_type" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := baseRecord()
			tt.mutate(&r)
			err := validateRecord(&r, now, auth.DefaultFlags())
			assert.Error(t, err)
		})
	}
}

func TestValidateRecord_TimestampWindow(t *testing.T) {
	now := time.Now()

	r := baseRecord()
	r.Timestamp = now.Add(-48 * time.Hour).UnixMilli()
	assert.Error(t, validateRecord(&r, now, auth.DefaultFlags()), "24h-old timestamp should be rejected")

	r.Timestamp = now.Add(time.Minute).UnixMilli()
	assert.Error(t, validateRecord(&r, now, auth.DefaultFlags()), "future timestamp beyond the 5s grace window should be rejected")

	r.Timestamp = now.Add(2 * time.Second).UnixMilli()
	assert.NoError(t, validateRecord(&r, now, auth.DefaultFlags()))
}

func TestValidateRecord_CustomShape(t *testing.T) {
	now := time.Now()

	r := baseRecord()
	r.Type = event.TypeCustom
	require.Error(t, validateRecord(&r, now, auth.DefaultFlags()), "custom event without extras.name should fail")

	r.Extras = map[string]any{"name": "signup", "properties": map[string]any{"plan": "pro"}}
	assert.NoError(t, validateRecord(&r, now, auth.DefaultFlags()))

	r.Extras = map[string]any{"name": ""}
	assert.Error(t, validateRecord(&r, now, auth.DefaultFlags()), "empty name should fail the 1-100 char bound")
}

func TestValidateRecord_TriggerShape(t *testing.T) {
	now := time.Now()

	r := baseRecord()
	r.Type = event.TypeEngagementSnapshot
	r.Extras = map[string]any{"engagementScore": float64(150)}
	assert.Error(t, validateRecord(&r, now, auth.DefaultFlags()), "engagementScore above 100 should fail")

	r.Extras = map[string]any{"engagementScore": float64(42)}
	assert.NoError(t, validateRecord(&r, now, auth.DefaultFlags()))

	r.Type = event.TypeTriggerFired
	r.Extras = map[string]any{"priority": float64(-1)}
	assert.Error(t, validateRecord(&r, now, auth.DefaultFlags()), "negative priority should fail")
}

func TestValidateRecord_PerformanceShape(t *testing.T) {
	now := time.Now()

	r := baseRecord()
	r.Type = event.TypePerformance
	r.Extras = map[string]any{"lcp": float64(120)}
	assert.Error(t, validateRecord(&r, now, auth.DefaultFlags()), "lcp above 60s should fail")

	r.Extras = map[string]any{"fid": float64(20)}
	assert.Error(t, validateRecord(&r, now, auth.DefaultFlags()), "fid above 10s should fail")

	r.Extras = map[string]any{"cls": float64(11)}
	assert.Error(t, validateRecord(&r, now, auth.DefaultFlags()), "cls above 10.0 should fail")

	r.Extras = map[string]any{"lcp": float64(2.1), "fid": float64(0.05), "cls": float64(0.1)}
	assert.NoError(t, validateRecord(&r, now, auth.DefaultFlags()))
}

func TestValidateRecord_ScrollShape(t *testing.T) {
	now := time.Now()

	r := baseRecord()
	r.Type = event.TypeScroll
	r.Extras = map[string]any{"depth": float64(150)}
	assert.Error(t, validateRecord(&r, now, auth.DefaultFlags()), "depth above 100 should fail")

	r.Extras = map[string]any{"direction": "sideways"}
	assert.Error(t, validateRecord(&r, now, auth.DefaultFlags()), "unknown direction should fail")

	r.Extras = map[string]any{"depth": float64(40), "direction": "down"}
	assert.NoError(t, validateRecord(&r, now, auth.DefaultFlags()))
}

func TestValidateRecord_FeatureFlagGating(t *testing.T) {
	now := time.Now()

	r := baseRecord()
	r.Type = event.TypePageview
	disabledCore := auth.FeatureFlags{CoreEventsEnabled: false, TriggerEventsEnabled: true}
	assert.Error(t, validateRecord(&r, now, disabledCore), "core events disabled should reject a pageview")

	r.Type = event.TypeTriggerFired
	r.Extras = map[string]any{"priority": float64(5)}
	disabledTrigger := auth.FeatureFlags{CoreEventsEnabled: true, TriggerEventsEnabled: false}
	assert.Error(t, validateRecord(&r, now, disabledTrigger), "trigger events disabled should reject a trigger_fired event")
	assert.NoError(t, validateRecord(&r, now, auth.DefaultFlags()))
}
