package apperr

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{CodeAuthMissingCredential, http.StatusUnauthorized},
		{CodeAuthForbidden, http.StatusForbidden},
		{CodeValidInvalidPayload, http.StatusBadRequest},
		{CodeRateExceeded, http.StatusTooManyRequests},
		{CodeDownstreamFailure, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "x").StatusCode)
		})
	}
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, CodeAuthMissingCredential, MissingCredential().Code)
	assert.Equal(t, CodeAuthMalformed, MalformedCredential().Code)
	assert.Equal(t, CodeRateExceeded, RateLimited().Code)
	assert.Equal(t, CodeDownstreamFailure, Downstream(errors.New("boom")).Code)
}

func TestAbort_WritesStandardizedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		Abort(c, RateLimited())
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_001")
}

func TestMiddleware_FallsBackForUnrecognizedError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(errors.New("unexpected"))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "DB_001")
}
