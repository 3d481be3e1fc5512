package store

import "github.com/overwatch/ingestion-gateway/internal/event"

// Table names are fixed per §4.7's routing table, prefixed to match
// the analytics-store schema this gateway's consumer writes into.
const (
	TablePageviews    = "overwatch.pageviews"
	TableClicks       = "overwatch.clicks"
	TableScrollEvents = "overwatch.scroll_events"
	TableMouseMoves   = "overwatch.mouse_moves"
	TableFormEvents   = "overwatch.form_events"
	TableErrors       = "overwatch.errors"
	TablePerformance  = "overwatch.performance_metrics"
	TableVisibility   = "overwatch.visibility_events"
	TableResourceLoad = "overwatch.resource_loads"
	TableCustomEvents = "overwatch.custom_events"
	TableGeographic   = "overwatch.geographic"
	TableEvents       = "overwatch.events" // catch-all
)

// RouteTable maps an event type to its sink table, per §4.7.
func RouteTable(t event.Type) string {
	switch t {
	case event.TypePageview, event.TypePageleave:
		return TablePageviews
	case event.TypeClick:
		return TableClicks
	case event.TypeScroll:
		return TableScrollEvents
	case event.TypeMouseMove:
		return TableMouseMoves
	case event.TypeError:
		return TableErrors
	case event.TypePerformance:
		return TablePerformance
	case event.TypeVisibilityChange:
		return TableVisibility
	case event.TypeResourceLoad:
		return TableResourceLoad
	case event.TypeCustom:
		return TableCustomEvents
	default:
		if t.IsFormEvent() {
			return TableFormEvents
		}
		return TableEvents
	}
}
