package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultFlags(t *testing.T) {
	flags := DefaultFlags()
	assert.True(t, flags.CoreEventsEnabled)
	assert.False(t, flags.LocationEnabled)
	assert.True(t, flags.TriggerEventsEnabled)
}

func TestResolveFlags_MockModeReturnsDefault(t *testing.T) {
	gateway := NewGateway("", NewCache(nil))
	flags := gateway.ResolveFlags(context.Background(), "proj_1")
	assert.Equal(t, DefaultFlags(), flags)
}

func TestResolveFlags_UnreachableEndpointFallsBackToDefault(t *testing.T) {
	gateway := NewGateway("http://127.0.0.1:1", NewCache(nil))
	flags := gateway.ResolveFlags(context.Background(), "proj_1")
	assert.Equal(t, DefaultFlags(), flags, "upstream failure must never block ingestion")
}
