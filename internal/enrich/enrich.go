// Package enrich fills in device/browser/OS fields on a storage
// record from its user-agent string, when the SDK did not already
// supply them, per §4.7.
package enrich

import (
	"strings"

	"github.com/mssola/user_agent"

	"github.com/overwatch/ingestion-gateway/internal/event"
)

// Enrich parses r.UserAgent (when non-empty) and fills browser name,
// browser version, and OS from the parse whenever the parser yields a
// non-empty value for them, and fills
// device type only when the SDK left it empty or "unknown" — SDK
// values are always authoritative over UA-parser inference.
func Enrich(r *event.StorageRecord) {
	if r.UserAgent == "" {
		return
	}

	ua := user_agent.New(r.UserAgent)

	name, version := ua.Browser()
	if name != "" {
		r.BrowserName = name
	}
	if version != "" {
		r.BrowserVersion = version
	}
	if os := ua.OS(); os != "" {
		r.OS = os
	}

	if r.DeviceType == "" || r.DeviceType == event.DeviceUnknown {
		r.DeviceType = deviceTypeFromUA(ua)
	}
}

// deviceTypeFromUA maps the parser's platform/category signal onto
// the normalized DeviceType enumeration:
// pc -> desktop, smartphone|mobilephone -> mobile, crawler -> bot,
// appliance -> other, else unknown. The parser reports a platform
// rather than a category, so Windows, Macintosh, X11 and Linux
// platforms that are not flagged mobile count as pc.
func deviceTypeFromUA(ua *user_agent.UserAgent) event.DeviceType {
	if ua.Bot() {
		return event.DeviceBot
	}

	platform := strings.ToLower(ua.Platform())
	mobile := ua.Mobile()

	switch {
	case mobile || strings.Contains(platform, "smartphone") || strings.Contains(platform, "mobilephone") || strings.Contains(platform, "iphone") || strings.Contains(platform, "android"):
		return event.DeviceMobile
	case strings.Contains(platform, "crawler"):
		return event.DeviceBot
	case strings.Contains(platform, "appliance") || strings.Contains(platform, "tv") || strings.Contains(platform, "console"):
		return event.DeviceOther
	case strings.Contains(platform, "pc") || strings.Contains(platform, "windows") || strings.Contains(platform, "macintosh") || strings.Contains(platform, "x11") || strings.Contains(platform, "linux") || platform == "" && !mobile:
		return event.DeviceDesktop
	default:
		return event.DeviceUnknown
	}
}
