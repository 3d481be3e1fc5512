// Package event defines the wire and storage shapes for analytics
// events, the closed event-type enumeration, and the numeric/string
// size bounds enforced by the validator.
package event

// Type is the closed enumeration of event-type tags. It partitions
// into analytics events and trigger events (context-notification
// subsystem).
type Type string

// Analytics event types.
const (
	TypePageview         Type = "pageview"
	TypePageleave        Type = "pageleave"
	TypeClick            Type = "click"
	TypeScroll           Type = "scroll"
	TypeMouseMove        Type = "mouse_move"
	TypeFormFocus        Type = "form_focus"
	TypeFormBlur         Type = "form_blur"
	TypeFormSubmit       Type = "form_submit"
	TypeFormAbandon      Type = "form_abandon"
	TypeError            Type = "error"
	TypeVisibilityChange Type = "visibility_change"
	TypeResourceLoad     Type = "resource_load"
	TypeSessionStart     Type = "session_start"
	TypeSessionEnd       Type = "session_end"
	TypePerformance      Type = "performance"
	TypeCustom           Type = "custom"
)

// Trigger event types (context-notification subsystem).
const (
	TypeExitIntent         Type = "exit_intent"
	TypeIdleStart          Type = "idle_start"
	TypeIdleEnd            Type = "idle_end"
	TypeEngagementSnapshot Type = "engagement_snapshot"
	TypeTriggerRegistered  Type = "trigger_registered"
	TypeTriggerFired       Type = "trigger_fired"
	TypeTriggerDismissed   Type = "trigger_dismissed"
	TypeTriggerAction      Type = "trigger_action"
	TypeTriggerError       Type = "trigger_error"
)

var validTypes = map[Type]bool{
	TypePageview: true, TypePageleave: true, TypeClick: true, TypeScroll: true,
	TypeMouseMove: true, TypeFormFocus: true, TypeFormBlur: true, TypeFormSubmit: true,
	TypeFormAbandon: true, TypeError: true, TypeVisibilityChange: true, TypeResourceLoad: true,
	TypeSessionStart: true, TypeSessionEnd: true, TypePerformance: true, TypeCustom: true,
	TypeExitIntent: true, TypeIdleStart: true, TypeIdleEnd: true, TypeEngagementSnapshot: true,
	TypeTriggerRegistered: true, TypeTriggerFired: true, TypeTriggerDismissed: true,
	TypeTriggerAction: true, TypeTriggerError: true,
}

// IsValid reports whether t is a member of the closed enumeration.
func (t Type) IsValid() bool { return validTypes[t] }

// HighVolume reports whether t is marked high-volume (downstream
// sampling eligible): mouse_move and engagement_snapshot.
func (t Type) HighVolume() bool {
	return t == TypeMouseMove || t == TypeEngagementSnapshot
}

// IsTrigger reports whether t belongs to the trigger-event family.
func (t Type) IsTrigger() bool {
	switch t {
	case TypeExitIntent, TypeIdleStart, TypeIdleEnd, TypeEngagementSnapshot,
		TypeTriggerRegistered, TypeTriggerFired, TypeTriggerDismissed,
		TypeTriggerAction, TypeTriggerError:
		return true
	default:
		return false
	}
}

// IsFormEvent reports whether t is one of the form_* event types.
func (t Type) IsFormEvent() bool {
	switch t {
	case TypeFormFocus, TypeFormBlur, TypeFormSubmit, TypeFormAbandon:
		return true
	default:
		return false
	}
}

// Size and numeric bounds from §3 I3, I4, I5 and §4.2's static shape
// pass. Millisecond timestamps are 64-bit signed; counters/bytes are
// 64-bit unsigned; rate-limit rates and bursts are 32-bit unsigned per
// §9.
const (
	MaxExtrasBytes   = 16 * 1024
	MaxBatchBodyBytes = 1 * 1024 * 1024
	MaxBatchEvents   = 1000
	MaxEventBytes    = 32 * 1024

	MaxURLLength       = 2048
	MaxPathLength      = 2000
	MaxUserAgentLength = 512
	MaxUserIDLength    = 128
	MaxReferrerLength  = 2048
	MaxLanguageLength  = 16
	MaxTimezoneLength  = 64

	MaxCustomNameLength = 100
	MinCustomNameLength = 1

	MaxLCPSeconds = 60.0
	MaxFIDSeconds = 10.0
	MaxCLS        = 10.0

	MaxEngagementScore = 100.0
	MaxScrollDepth     = 100.0
	MaxTriggerPriority = 1000.0
)

// DeviceType is the normalized device category used on the storage
// record, as produced either by the SDK directly or by user-agent
// enrichment.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceBot     DeviceType = "bot"
	DeviceOther   DeviceType = "other"
	DeviceUnknown DeviceType = "unknown"
)

// SDKRecord is the wire input shape, one per event, as received from
// browser SDKs. Mandatory: ID, Type, Timestamp, SessionID, URL,
// UserAgent. Everything else is optional; Extras preserves unknown
// fields so they survive to the storage record's JSON column.
type SDKRecord struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	Timestamp   int64          `json:"timestamp"`
	SessionID   string         `json:"sessionId"`
	URL         string         `json:"url"`
	UserAgent   string         `json:"userAgent"`
	UserID      string         `json:"userId,omitempty"`
	Path        string         `json:"path,omitempty"`
	Referrer    string         `json:"referrer,omitempty"`
	Device      *DeviceInfo    `json:"device,omitempty"`
	Location    *LocationInfo  `json:"location,omitempty"`
	Extras      map[string]any `json:"-"`
}

// DeviceInfo carries SDK-supplied device/browser/OS fields.
type DeviceInfo struct {
	DeviceType     string `json:"deviceType,omitempty"`
	OS             string `json:"os,omitempty"`
	BrowserName    string `json:"browserName,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
}

// LocationInfo carries SDK-supplied geographic fields.
type LocationInfo struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// BatchMetadata is the optional metadata object accompanying the
// "object with events array" wire shape (§4.1 shape 2).
type BatchMetadata struct {
	SDKVersion      string `json:"sdkVersion,omitempty"`
	QueueSize       int    `json:"queueSize,omitempty"`
	ClientTimestamp int64  `json:"clientTimestamp,omitempty"`
}

// StorageRecord is the flat, post-transform shape inserted into the
// column store, per §3.
type StorageRecord struct {
	EventID        string     `json:"event_id"`
	ProjectID      string     `json:"project_id"`
	SessionID      string     `json:"session_id"`
	UserID         *string    `json:"user_id,omitempty"`
	EventType      Type       `json:"event_type"`
	Timestamp      int64      `json:"timestamp"`
	URL            string     `json:"url"`
	Path           string     `json:"path"`
	Referrer       *string    `json:"referrer,omitempty"`
	UserAgent      string     `json:"user_agent"`
	DeviceType     DeviceType `json:"device_type"`
	BrowserName    string     `json:"browser_name"`
	BrowserVersion string     `json:"browser_version"`
	OS             string     `json:"os"`
	Country        string     `json:"country"`
	Region         *string    `json:"region,omitempty"`
	City           *string    `json:"city,omitempty"`
	Extras         string     `json:"extras"`
	CustomName     *string    `json:"custom_name,omitempty"`
}
