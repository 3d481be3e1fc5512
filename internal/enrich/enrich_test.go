package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/overwatch/ingestion-gateway/internal/event"
)

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
const mobileUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
const botUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

func TestEnrich_EmptyUserAgentNoOp(t *testing.T) {
	r := &event.StorageRecord{DeviceType: event.DeviceUnknown, BrowserName: "unknown"}
	Enrich(r)
	assert.Equal(t, event.DeviceUnknown, r.DeviceType)
	assert.Equal(t, "unknown", r.BrowserName)
}

func TestEnrich_FillsUnknownDeviceType(t *testing.T) {
	r := &event.StorageRecord{UserAgent: mobileUA, DeviceType: event.DeviceUnknown, BrowserName: "unknown", BrowserVersion: "unknown", OS: "unknown"}
	Enrich(r)
	assert.Equal(t, event.DeviceMobile, r.DeviceType)
	assert.NotEqual(t, "unknown", r.BrowserName)
}

func TestEnrich_NeverOverridesSDKSuppliedDeviceType(t *testing.T) {
	r := &event.StorageRecord{UserAgent: mobileUA, DeviceType: event.DeviceDesktop, BrowserName: "unknown"}
	Enrich(r)
	assert.Equal(t, event.DeviceDesktop, r.DeviceType, "SDK-supplied device type must win over UA inference")
}

func TestEnrich_DesktopUserAgent(t *testing.T) {
	r := &event.StorageRecord{UserAgent: desktopUA, DeviceType: event.DeviceUnknown}
	Enrich(r)
	assert.Equal(t, event.DeviceDesktop, r.DeviceType)
}

func TestEnrich_BotUserAgent(t *testing.T) {
	r := &event.StorageRecord{UserAgent: botUA, DeviceType: event.DeviceUnknown}
	Enrich(r)
	assert.Equal(t, event.DeviceBot, r.DeviceType)
}
