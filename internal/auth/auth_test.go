package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr string
		wantEnv Env
	}{
		{"empty key", "", "AUTH_001", ""},
		{"malformed key", "not-a-key", "AUTH_002", ""},
		{"too short", "owk_live_short", "AUTH_002", ""},
		{"valid live key", "owk_live_" + repeat("a", 32), "", EnvLive},
		{"valid test key", "owk_test_" + repeat("b", 32), "", EnvTest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseKey(tt.key)
			if tt.wantErr != "" {
				require.NotNil(t, err)
				assert.Equal(t, tt.wantErr, err.Code)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tt.wantEnv, parsed.Env)
		})
	}
}

func TestExtractCredential_BearerTakesPrecedence(t *testing.T) {
	key := "owk_live_" + repeat("a", 32)
	parsed, err := ExtractCredential("Bearer "+key, "owk_test_"+repeat("b", 32))
	require.Nil(t, err)
	assert.Equal(t, key, parsed.Raw)
}

func TestExtractCredential_FallsBackToAPIKeyHeader(t *testing.T) {
	key := "owk_test_" + repeat("b", 32)
	parsed, err := ExtractCredential("", key)
	require.Nil(t, err)
	assert.Equal(t, key, parsed.Raw)
}

func TestExtractCredential_MissingBoth(t *testing.T) {
	_, err := ExtractCredential("", "")
	require.NotNil(t, err)
	assert.Equal(t, "AUTH_001", err.Code)
}

func TestResponse_RateLimitOrDefault(t *testing.T) {
	r := &Response{}
	assert.Equal(t, 1000, r.RateLimitOrDefault())

	r.RateLimit = 250
	assert.Equal(t, 250, r.RateLimitOrDefault())
}

func TestResponse_ToProjectID(t *testing.T) {
	valid := &Response{Valid: true, ProjectID: "proj_1"}
	id, err := valid.ToProjectID()
	require.Nil(t, err)
	assert.Equal(t, "proj_1", id)

	revoked := &Response{Valid: false, Error: &ResponseError{Code: "AUTH_004", Message: "revoked"}}
	_, err = revoked.ToProjectID()
	require.NotNil(t, err)
	assert.Equal(t, "AUTH_004", err.Code)

	missingProject := &Response{Valid: true}
	_, err = missingProject.ToProjectID()
	require.NotNil(t, err)
}

func TestGateway_MockModeIsDeterministic(t *testing.T) {
	gateway := NewGateway("", NewCache(nil))
	key, err := ParseKey("owk_test_" + repeat("c", 32))
	require.Nil(t, err)

	first, authErr := gateway.Validate(context.Background(), key)
	require.Nil(t, authErr)
	second, authErr := gateway.Validate(context.Background(), key)
	require.Nil(t, authErr)

	assert.Equal(t, first.ProjectID, second.ProjectID, "mock responses must be deterministic per credential")
	assert.True(t, first.Valid)
}

func TestGateway_MockModeTreatsEmptyAndLiteralMockTheSame(t *testing.T) {
	key, err := ParseKey("owk_test_" + repeat("d", 32))
	require.Nil(t, err)

	a := NewGateway("", NewCache(nil))
	b := NewGateway("mock", NewCache(nil))

	respA, _ := a.Validate(context.Background(), key)
	respB, _ := b.Validate(context.Background(), key)
	assert.Equal(t, respA.ProjectID, respB.ProjectID)
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
