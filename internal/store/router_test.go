package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/overwatch/ingestion-gateway/internal/event"
)

func TestRouteTable(t *testing.T) {
	tests := []struct {
		eventType event.Type
		want      string
	}{
		{event.TypePageview, TablePageviews},
		{event.TypePageleave, TablePageviews},
		{event.TypeClick, TableClicks},
		{event.TypeScroll, TableScrollEvents},
		{event.TypeMouseMove, TableMouseMoves},
		{event.TypeError, TableErrors},
		{event.TypePerformance, TablePerformance},
		{event.TypeVisibilityChange, TableVisibility},
		{event.TypeResourceLoad, TableResourceLoad},
		{event.TypeCustom, TableCustomEvents},
		{event.TypeFormSubmit, TableFormEvents},
		{event.TypeSessionStart, TableEvents},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.want, RouteTable(tt.eventType))
		})
	}
}

func TestRoute_GroupsByTable(t *testing.T) {
	records := []event.StorageRecord{
		{EventType: event.TypeClick},
		{EventType: event.TypeClick},
		{EventType: event.TypeScroll},
	}

	routed := Route(records)
	assert.Len(t, routed[TableClicks], 2)
	assert.Len(t, routed[TableScrollEvents], 1)
}

func TestExtractClick(t *testing.T) {
	r := event.StorageRecord{Extras: `{"x":10,"y":20,"target":"button","selector":"#cta"}`}
	cols := ExtractClick(r)
	assert.Equal(t, float64(10), cols.X)
	assert.Equal(t, float64(20), cols.Y)
	assert.Equal(t, "button", cols.Target)
	assert.Equal(t, "#cta", cols.Selector)
}

func TestExtractScroll_MaxDepthFallsBackToDepth(t *testing.T) {
	r := event.StorageRecord{Extras: `{"depth":55}`}
	cols := ExtractScroll(r)
	assert.Equal(t, float64(55), cols.Depth)
	assert.Equal(t, float64(55), cols.MaxDepth)
}

func TestExtractGeographic_PointerFieldsAndExtras(t *testing.T) {
	region := "CA"
	city := "SF"
	r := event.StorageRecord{Country: "US", Region: &region, City: &city, Extras: `{"lat":37.7,"lng":-122.4}`}
	cols := ExtractGeographic(r)
	assert.Equal(t, "US", cols.Country)
	assert.Equal(t, "CA", cols.Region)
	assert.Equal(t, "SF", cols.City)
	assert.InDelta(t, 37.7, cols.Lat, 0.001)
}

func TestExtraString_MalformedJSONReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", extraString("not json", "x"))
	assert.Equal(t, float64(0), extraFloat("not json", "x"))
}
