// Package auth implements the credential extraction, format
// validation, and external-service lookup described in §4.3 of the
// specification.
package auth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/overwatch/ingestion-gateway/internal/apperr"
	"github.com/overwatch/ingestion-gateway/internal/logger"
)

// credentialPattern matches owk_(live|test)_[A-Za-z0-9]{32}.
var credentialPattern = regexp.MustCompile(`^owk_(live|test)_[A-Za-z0-9]{32}$`)

// Env is the API key's environment tag.
type Env string

const (
	EnvLive Env = "live"
	EnvTest Env = "test"
)

// ParsedKey is a validated credential extracted from a request.
type ParsedKey struct {
	Raw string
	Env Env
}

// ParseKey validates key against the credential pattern and reports
// its environment.
func ParseKey(key string) (*ParsedKey, *apperr.AppError) {
	if key == "" {
		return nil, apperr.MissingCredential()
	}
	if !credentialPattern.MatchString(key) {
		return nil, apperr.MalformedCredential()
	}
	env := EnvTest
	if strings.HasPrefix(key, "owk_live_") {
		env = EnvLive
	}
	return &ParsedKey{Raw: key, Env: env}, nil
}

// ExtractCredential reads the credential from request headers in the
// order mandated by §4.3: Authorization: Bearer <key>, then
// X-API-Key: <key>.
func ExtractCredential(authHeader, apiKeyHeader string) (*ParsedKey, *apperr.AppError) {
	if authHeader != "" {
		if key, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			return ParseKey(strings.TrimSpace(key))
		}
	}
	if apiKeyHeader != "" {
		return ParseKey(strings.TrimSpace(apiKeyHeader))
	}
	return nil, apperr.MissingCredential()
}

// MAUStatus reports monthly-active-user ceiling state for a project,
// carried through from the auth service but not enforced by the
// gateway itself (read-only passthrough; see SPEC_FULL.md Part D.3).
type MAUStatus struct {
	Limit       int  `json:"limit"`
	IsOverLimit bool `json:"isOverLimit"`
}

// ResponseError is the structured error payload in a failed
// AuthResponse.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the auth service's response shape (§3).
type Response struct {
	Valid          bool           `json:"valid"`
	ProjectID      string         `json:"projectId,omitempty"`
	Permissions    []string       `json:"permissions,omitempty"`
	RateLimit      int            `json:"rateLimit,omitempty"`
	AllowedOrigins []string       `json:"allowedOrigins,omitempty"`
	Error          *ResponseError `json:"error,omitempty"`
	MAU            *MAUStatus     `json:"mau,omitempty"`
}

// RateLimitOrDefault returns the per-minute rate limit, defaulting to
// 1000 when the auth service did not supply one.
func (r *Response) RateLimitOrDefault() int {
	if r.RateLimit > 0 {
		return r.RateLimit
	}
	return 1000
}

// ToProjectID validates r and returns the project identifier, mapping
// the auth service's AUTH_00x error codes onto AppError.
func (r *Response) ToProjectID() (string, *apperr.AppError) {
	if !r.Valid {
		code, msg := "AUTH_003", "invalid API key"
		if r.Error != nil {
			code, msg = r.Error.Code, r.Error.Message
		}
		switch code {
		case "AUTH_001":
			return "", apperr.MissingCredential()
		case "AUTH_002":
			return "", apperr.MalformedCredential()
		case "AUTH_004":
			return "", apperr.Revoked(msg)
		case "AUTH_005":
			return "", apperr.Forbidden(msg)
		default:
			return "", apperr.UnknownCredential(msg)
		}
	}
	if r.ProjectID == "" {
		return "", apperr.UnknownCredential("missing project id in auth response")
	}
	return r.ProjectID, nil
}

// Gateway validates credentials against the external auth service,
// with a short-lived cache in front of it.
type Gateway struct {
	endpoint string
	client   *http.Client
	cache    *Cache
}

// NewGateway builds a Gateway. endpoint is the auth service base URL;
// an empty string or the literal "mock" selects mock mode (§4.3).
func NewGateway(endpoint string, cache *Cache) *Gateway {
	return &Gateway{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		cache:    cache,
	}
}

func (g *Gateway) isMock() bool {
	return g.endpoint == "" || g.endpoint == "mock"
}

// Validate resolves key to a project id, consulting the cache first
// and falling through to the external service (or mock mode) on miss.
func (g *Gateway) Validate(ctx context.Context, key *ParsedKey) (*Response, *apperr.AppError) {
	if cached, ok := g.cache.Get(key.Raw); ok {
		return cached, nil
	}

	var resp *Response
	if g.isMock() {
		resp = mockResponse(key.Raw)
	} else {
		var appErr *apperr.AppError
		resp, appErr = g.callService(ctx, key.Raw)
		if appErr != nil {
			return nil, appErr
		}
	}

	g.cache.Set(key.Raw, resp)
	return resp, nil
}

// Invalidate explicitly evicts a cached response (§4.3: "cache
// invalidation is an explicit operation").
func (g *Gateway) Invalidate(key string) {
	g.cache.Delete(key)
}

type validateRequest struct {
	APIKey             string `json:"apiKey"`
	RequiredPermission string `json:"requiredPermission"`
}

func (g *Gateway) callService(ctx context.Context, key string) (*Response, *apperr.AppError) {
	reqBody, _ := json.Marshal(validateRequest{APIKey: key, RequiredPermission: "write"})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/internal/auth/validate", g.endpoint), bytes.NewReader(reqBody))
	if err != nil {
		return nil, apperr.UnknownCredential("auth request construction failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		logger.Auth().Warn().Err(err).Msg("auth service call failed")
		return nil, apperr.UnknownCredential("auth service unavailable")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.UnknownCredential(fmt.Sprintf("auth service returned %d", resp.StatusCode))
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.UnknownCredential("malformed auth service response")
	}
	return &parsed, nil
}

// mockResponse is the testing substitute for the external auth
// service (§4.3): deterministic, keyed off a hash of the credential
// string, so tests and production share the exact same code path
// past this point.
func mockResponse(key string) *Response {
	sum := sha256.Sum256([]byte(key))
	projectID := "proj_" + hex.EncodeToString(sum[:])[:16]
	return &Response{
		Valid:       true,
		ProjectID:   projectID,
		Permissions: []string{"read", "write"},
		RateLimit:   1000,
	}
}
