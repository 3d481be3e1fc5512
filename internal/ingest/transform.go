package ingest

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/overwatch/ingestion-gateway/internal/auth"
	"github.com/overwatch/ingestion-gateway/internal/event"
)

var sanitizer = bluemonday.StrictPolicy()

// TransformBatch runs the static and cross-field validation passes
// over records, then transforms survivors into storage records. It
// returns the accepted storage records and a parallel list of
// validation errors (§4.2). Per OQ1, a record is dropped from the
// batch and reported as an error; the caller decides whether the
// entire batch should be rejected (zero survivors) or treated as
// partially successful. flags gates which event categories the
// project is allowed to send (§4.3).
func TransformBatch(records []event.SDKRecord, projectID string, now time.Time, flags auth.FeatureFlags) ([]event.StorageRecord, []ValidationError) {
	accepted := make([]event.StorageRecord, 0, len(records))
	var errs []ValidationError

	for i, r := range records {
		if err := validateRecord(&r, now, flags); err != nil {
			errs = append(errs, ValidationError{Index: i, Reason: err.Error()})
			continue
		}
		accepted = append(accepted, transformRecord(r, projectID))
	}

	return accepted, errs
}

func transformRecord(r event.SDKRecord, projectID string) event.StorageRecord {
	sr := event.StorageRecord{
		EventID:   orGenerateID(r.ID),
		ProjectID: projectID,
		SessionID: r.SessionID,
		EventType: r.Type,
		Timestamp: earlierMillis(r.Timestamp),
		URL:       r.URL,
		Path:      extractPath(r.URL, r.Path),
		UserAgent: r.UserAgent,
	}

	if r.UserID != "" {
		sr.UserID = &r.UserID
	}
	if r.Referrer != "" {
		sr.Referrer = &r.Referrer
	}

	sr.DeviceType = event.DeviceUnknown
	sr.BrowserName = "unknown"
	sr.BrowserVersion = "unknown"
	sr.OS = "unknown"
	if r.Device != nil {
		if r.Device.DeviceType != "" {
			sr.DeviceType = event.DeviceType(r.Device.DeviceType)
		}
		if r.Device.BrowserName != "" {
			sr.BrowserName = r.Device.BrowserName
		}
		if r.Device.BrowserVersion != "" {
			sr.BrowserVersion = r.Device.BrowserVersion
		}
		if r.Device.OS != "" {
			sr.OS = r.Device.OS
		}
	}

	sr.Country = "unknown"
	if r.Location != nil {
		if r.Location.Country != "" {
			sr.Country = r.Location.Country
		}
		if r.Location.Region != "" {
			region := r.Location.Region
			sr.Region = &region
		}
		if r.Location.City != "" {
			city := r.Location.City
			sr.City = &city
		}
	}

	sr.Extras = marshalExtras(r.Extras)

	if r.Type == event.TypeCustom {
		if name, ok := r.Extras["name"].(string); ok {
			clean := sanitizer.Sanitize(name)
			sr.CustomName = &clean
		}
	}

	return sr
}

// extractPath implements §4.2's path rule: if the SDK supplied an
// explicit path, it wins; otherwise parse the URL and use its path;
// if the URL fails to parse, emit "/".
func extractPath(rawURL, explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// earlierMillis resolves the "earlier of the two candidates" leap
// second ambiguity rule by being a pure pass-through: Go's UnixMilli
// representation has no leap-second duplication, so the millisecond
// value is already unambiguous.
func earlierMillis(ms int64) int64 { return ms }

func marshalExtras(extras map[string]any) string {
	if len(extras) == 0 {
		return "{}"
	}
	data, err := json.Marshal(extras)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func orGenerateID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func jsonSize(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
