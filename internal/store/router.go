// Package store implements the columnar analytics store sink: the
// per-event-type router of §4.7 and the bulk-insert sink backed by
// lib/pq, standing in for the store's native HTTP bulk-insert
// protocol named in §6.
package store

import (
	"encoding/json"

	"github.com/overwatch/ingestion-gateway/internal/event"
)

// RoutedBatch groups a set of storage records by destination table.
type RoutedBatch map[string][]event.StorageRecord

// Route groups records by event type into their destination sink
// tables, per the routing table in §4.7.
func Route(records []event.StorageRecord) RoutedBatch {
	out := make(RoutedBatch)
	for _, r := range records {
		table := RouteTable(r.EventType)
		out[table] = append(out[table], r)
	}
	return out
}

// extraString reads a string field out of a record's serialised
// extras JSON, used to extract the per-table columns named in §4.7
// (click x/y/target/selector, scroll depth, etc.). Each call parses
// the whole extras document.
func extraString(extrasJSON, key string) string {
	var m map[string]any
	if json.Unmarshal([]byte(extrasJSON), &m) != nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func extraFloat(extrasJSON, key string) float64 {
	var m map[string]any
	if json.Unmarshal([]byte(extrasJSON), &m) != nil {
		return 0
	}
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

// extraRawJSON re-serialises a sub-object of extras (e.g. a custom
// event's "properties" payload) for a dedicated per-table JSON column,
// without requiring the caller to re-walk the whole extras document.
func extraRawJSON(extrasJSON, key string) string {
	var m map[string]json.RawMessage
	if json.Unmarshal([]byte(extrasJSON), &m) != nil {
		return "{}"
	}
	if v, ok := m[key]; ok {
		return string(v)
	}
	return "{}"
}

// ClickColumns extracts the click-specific columns named in §4.7.
type ClickColumns struct {
	X, Y           float64
	Target         string
	Selector       string
}

func ExtractClick(r event.StorageRecord) ClickColumns {
	return ClickColumns{
		X:        extraFloat(r.Extras, "x"),
		Y:        extraFloat(r.Extras, "y"),
		Target:   extraString(r.Extras, "target"),
		Selector: extraString(r.Extras, "selector"),
	}
}

// ScrollColumns extracts the scroll-specific columns. MaxDepth falls
// back to Depth when absent, per §4.7.
type ScrollColumns struct {
	Depth    float64
	MaxDepth float64
}

func ExtractScroll(r event.StorageRecord) ScrollColumns {
	depth := extraFloat(r.Extras, "depth")
	maxDepth := extraFloat(r.Extras, "maxDepth")
	if maxDepth == 0 {
		maxDepth = depth
	}
	return ScrollColumns{Depth: depth, MaxDepth: maxDepth}
}

// MouseMoveColumns extracts viewport-relative coordinates.
type MouseMoveColumns struct {
	X, Y, ViewportX, ViewportY float64
}

func ExtractMouseMove(r event.StorageRecord) MouseMoveColumns {
	return MouseMoveColumns{
		X:         extraFloat(r.Extras, "x"),
		Y:         extraFloat(r.Extras, "y"),
		ViewportX: extraFloat(r.Extras, "viewportX"),
		ViewportY: extraFloat(r.Extras, "viewportY"),
	}
}

// FormColumns extracts form-event identity columns.
type FormColumns struct {
	FormID    string
	FieldName string
}

func ExtractForm(r event.StorageRecord) FormColumns {
	return FormColumns{
		FormID:    extraString(r.Extras, "formId"),
		FieldName: extraString(r.Extras, "fieldName"),
	}
}

// ErrorColumns extracts JS error detail columns.
type ErrorColumns struct {
	Message string
	Stack   string
	Line    float64
	Column  float64
}

func ExtractError(r event.StorageRecord) ErrorColumns {
	return ErrorColumns{
		Message: extraString(r.Extras, "message"),
		Stack:   extraString(r.Extras, "stack"),
		Line:    extraFloat(r.Extras, "line"),
		Column:  extraFloat(r.Extras, "column"),
	}
}

// PerformanceColumns extracts web-vital metrics.
type PerformanceColumns struct {
	LCP, FID, CLS, TTFB, FCP float64
}

func ExtractPerformance(r event.StorageRecord) PerformanceColumns {
	return PerformanceColumns{
		LCP:  extraFloat(r.Extras, "lcp"),
		FID:  extraFloat(r.Extras, "fid"),
		CLS:  extraFloat(r.Extras, "cls"),
		TTFB: extraFloat(r.Extras, "ttfb"),
		FCP:  extraFloat(r.Extras, "fcp"),
	}
}

// VisibilityColumns extracts tab-visibility columns.
type VisibilityColumns struct {
	State          string
	HiddenDuration float64
}

func ExtractVisibility(r event.StorageRecord) VisibilityColumns {
	return VisibilityColumns{
		State:          extraString(r.Extras, "state"),
		HiddenDuration: extraFloat(r.Extras, "hiddenDuration"),
	}
}

// ResourceLoadColumns extracts resource-timing columns.
type ResourceLoadColumns struct {
	ResourceURL  string
	ResourceType string
	Duration     float64
	Size         float64
}

func ExtractResourceLoad(r event.StorageRecord) ResourceLoadColumns {
	return ResourceLoadColumns{
		ResourceURL:  extraString(r.Extras, "resourceUrl"),
		ResourceType: extraString(r.Extras, "resourceType"),
		Duration:     extraFloat(r.Extras, "duration"),
		Size:         extraFloat(r.Extras, "size"),
	}
}

// GeographicColumns extracts the geographic sink's columns.
type GeographicColumns struct {
	Country, Region, City string
	Lat, Lng               float64
}

func ExtractGeographic(r event.StorageRecord) GeographicColumns {
	region := ""
	if r.Region != nil {
		region = *r.Region
	}
	city := ""
	if r.City != nil {
		city = *r.City
	}
	return GeographicColumns{
		Country: r.Country,
		Region:  region,
		City:    city,
		Lat:     extraFloat(r.Extras, "lat"),
		Lng:     extraFloat(r.Extras, "lng"),
	}
}
