package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overwatch/ingestion-gateway/internal/auth"
	"github.com/overwatch/ingestion-gateway/internal/event"
)

func TestTransformBatch_DropsInvalidKeepsValid(t *testing.T) {
	now := time.Now()
	records := []event.SDKRecord{
		baseRecord(),
		{ID: "", Type: event.TypePageview, Timestamp: now.UnixMilli(), SessionID: "s1", URL: "https://a.test/", UserAgent: "ua"},
	}

	accepted, errs := TransformBatch(records, "proj_1", now, auth.DefaultFlags())
	require.Len(t, accepted, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Index)
	assert.Contains(t, errs[0].String(), "event[1]")
}

func TestTransformRecord_DefaultsUnknownFields(t *testing.T) {
	r := baseRecord()
	sr := transformRecord(r, "proj_1")

	assert.Equal(t, "proj_1", sr.ProjectID)
	assert.Equal(t, event.DeviceUnknown, sr.DeviceType)
	assert.Equal(t, "unknown", sr.BrowserName)
	assert.Equal(t, "unknown", sr.OS)
	assert.Equal(t, "unknown", sr.Country)
	assert.Equal(t, "{}", sr.Extras)
}

func TestTransformRecord_DeviceAndLocationPassthrough(t *testing.T) {
	r := baseRecord()
	r.Device = &event.DeviceInfo{DeviceType: "mobile", BrowserName: "Safari", BrowserVersion: "17", OS: "iOS"}
	r.Location = &event.LocationInfo{Country: "US", Region: "CA", City: "SF"}

	sr := transformRecord(r, "proj_1")
	assert.Equal(t, event.DeviceType("mobile"), sr.DeviceType)
	assert.Equal(t, "Safari", sr.BrowserName)
	assert.Equal(t, "US", sr.Country)
	require.NotNil(t, sr.Region)
	assert.Equal(t, "CA", *sr.Region)
}

func TestTransformRecord_CustomNameSanitized(t *testing.T) {
	r := baseRecord()
	r.Type = event.TypeCustom
	r.Extras = map[string]any{"name": "<script>alert(1)</script>signup"}

	sr := transformRecord(r, "proj_1")
	require.NotNil(t, sr.CustomName)
	assert.NotContains(t, *sr.CustomName, "<script>")
}

func TestTransformRecord_CustomNameOnlyForCustomType(t *testing.T) {
	r := baseRecord()
	r.Extras = map[string]any{"name": "should not surface"}

	sr := transformRecord(r, "proj_1")
	assert.Nil(t, sr.CustomName)
}

func TestExtractPath(t *testing.T) {
	assert.Equal(t, "/explicit", extractPath("https://a.test/ignored", "/explicit"))
	assert.Equal(t, "/from-url", extractPath("https://a.test/from-url?q=1", ""))
	assert.Equal(t, "/", extractPath("not a url :// ::", ""))
}

func TestOrGenerateID(t *testing.T) {
	assert.Equal(t, "given", orGenerateID("given"))
	assert.NotEmpty(t, orGenerateID(""))
}
