package ingest

import (
	"fmt"
	"time"

	"github.com/overwatch/ingestion-gateway/internal/auth"
	"github.com/overwatch/ingestion-gateway/internal/event"
)

// ValidationError pairs a record's originating batch index with the
// reason it was rejected, rendered as "event[{i}]: {reason}" (§4.2).
type ValidationError struct {
	Index  int
	Reason string
}

func (v ValidationError) String() string {
	return fmt.Sprintf("event[%d]: %s", v.Index, v.Reason)
}

// validateRecord runs the static shape pass and the cross-field pass
// (I2) against a single SDK record, gated by the project's feature
// flags (§4.3): trigger events require TriggerEventsEnabled, every
// other event type requires CoreEventsEnabled. now is injected for
// testability.
func validateRecord(r *event.SDKRecord, now time.Time, flags auth.FeatureFlags) error {
	if r.ID == "" {
		return fmt.Errorf("missing id")
	}
	if r.SessionID == "" {
		return fmt.Errorf("missing sessionId")
	}
	if r.URL == "" {
		return fmt.Errorf("missing url")
	}
	if r.UserAgent == "" {
		return fmt.Errorf("missing userAgent")
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("unknown event type %q", r.Type)
	}

	if len(r.URL) > event.MaxURLLength {
		return fmt.Errorf("url exceeds %d characters", event.MaxURLLength)
	}
	if len(r.Path) > event.MaxPathLength {
		return fmt.Errorf("path exceeds %d characters", event.MaxPathLength)
	}
	if len(r.UserAgent) > event.MaxUserAgentLength {
		return fmt.Errorf("userAgent exceeds %d characters", event.MaxUserAgentLength)
	}
	if len(r.UserID) > event.MaxUserIDLength {
		return fmt.Errorf("userId exceeds %d characters", event.MaxUserIDLength)
	}
	if len(r.Referrer) > event.MaxReferrerLength {
		return fmt.Errorf("referrer exceeds %d characters", event.MaxReferrerLength)
	}

	// I2: timestamp within [now-24h, now+5s].
	ts := time.UnixMilli(r.Timestamp)
	maxFuture := now.Add(5 * time.Second)
	maxPast := now.Add(-24 * time.Hour)
	if ts.After(maxFuture) {
		return fmt.Errorf("timestamp too far in the future")
	}
	if ts.Before(maxPast) {
		return fmt.Errorf("timestamp too far in the past")
	}

	if r.Type.IsTrigger() {
		if !flags.TriggerEventsEnabled {
			return fmt.Errorf("trigger events disabled for project")
		}
		if err := validateTriggerShape(r); err != nil {
			return err
		}
		return nil
	}

	if !flags.CoreEventsEnabled {
		return fmt.Errorf("core events disabled for project")
	}

	switch r.Type {
	case event.TypeCustom:
		if err := validateCustomShape(r); err != nil {
			return err
		}
	case event.TypePerformance:
		if err := validatePerformanceShape(r); err != nil {
			return err
		}
	case event.TypeScroll:
		if err := validateScrollShape(r); err != nil {
			return err
		}
	}

	return nil
}

// validateCustomShape enforces I4: extras must carry a "name" (1-100
// chars) and a "properties" object whose serialised size is <= 16KiB.
func validateCustomShape(r *event.SDKRecord) error {
	nameRaw, ok := r.Extras["name"]
	if !ok {
		return fmt.Errorf("custom event missing extras.name")
	}
	name, ok := nameRaw.(string)
	if !ok {
		return fmt.Errorf("custom event extras.name must be a string")
	}
	if len(name) < event.MinCustomNameLength || len(name) > event.MaxCustomNameLength {
		return fmt.Errorf("custom event extras.name must be 1-100 characters")
	}
	props, ok := r.Extras["properties"]
	if !ok {
		return fmt.Errorf("custom event missing extras.properties")
	}
	if _, isObject := props.(map[string]any); !isObject {
		return fmt.Errorf("custom event extras.properties must be an object")
	}
	if size := jsonSize(props); size > event.MaxExtrasBytes {
		return fmt.Errorf("custom event properties exceed %d bytes", event.MaxExtrasBytes)
	}
	return nil
}

// validateTriggerShape enforces I5: type-specific numeric ranges for
// trigger events.
func validateTriggerShape(r *event.SDKRecord) error {
	switch r.Type {
	case event.TypeEngagementSnapshot:
		if score, ok := numberField(r.Extras, "engagementScore"); ok {
			if score < 0 || score > event.MaxEngagementScore {
				return fmt.Errorf("engagementScore out of range [0,100]")
			}
		}
	case event.TypeTriggerRegistered, event.TypeTriggerFired, event.TypeTriggerDismissed, event.TypeTriggerAction:
		if priority, ok := numberField(r.Extras, "priority"); ok {
			if priority < 0 || priority > event.MaxTriggerPriority {
				return fmt.Errorf("priority out of range [0,1000]")
			}
		}
	}
	return nil
}

// validatePerformanceShape enforces the web-vital ranges named in §4.2:
// LCP/FID/CLS must fall within the plausible bounds a real browser can
// report.
func validatePerformanceShape(r *event.SDKRecord) error {
	if lcp, ok := numberField(r.Extras, "lcp"); ok {
		if lcp < 0 || lcp > event.MaxLCPSeconds {
			return fmt.Errorf("lcp out of range [0,%g]", event.MaxLCPSeconds)
		}
	}
	if fid, ok := numberField(r.Extras, "fid"); ok {
		if fid < 0 || fid > event.MaxFIDSeconds {
			return fmt.Errorf("fid out of range [0,%g]", event.MaxFIDSeconds)
		}
	}
	if cls, ok := numberField(r.Extras, "cls"); ok {
		if cls < 0 || cls > event.MaxCLS {
			return fmt.Errorf("cls out of range [0,%g]", event.MaxCLS)
		}
	}
	return nil
}

var validScrollDirections = map[string]bool{"up": true, "down": true}

// validateScrollShape enforces the scroll-depth and direction enum
// named in §4.2.
func validateScrollShape(r *event.SDKRecord) error {
	if depth, ok := numberField(r.Extras, "depth"); ok {
		if depth < 0 || depth > event.MaxScrollDepth {
			return fmt.Errorf("scroll depth out of range [0,%g]", event.MaxScrollDepth)
		}
	}
	if dirRaw, ok := r.Extras["direction"]; ok {
		dir, ok := dirRaw.(string)
		if !ok || !validScrollDirections[dir] {
			return fmt.Errorf("scroll direction must be one of up, down")
		}
	}
	return nil
}

func numberField(extras map[string]any, key string) (float64, bool) {
	v, ok := extras[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
