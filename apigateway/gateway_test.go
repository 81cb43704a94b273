package gateway

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFromCtx(c)) })

	tests := []struct {
		name   string
		header string
	}{
		{"generated", ""},
		{"propagated", "abc-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			r.ServeHTTP(w, req)
			got := w.Header().Get(RequestIDHeader)
			require.NotEmpty(t, got)
			assert.Equal(t, got, w.Body.String())
			if tt.header != "" {
				assert.Equal(t, tt.header, got)
			}
		})
	}
}

func TestLogSampler(t *testing.T) {
	now := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newLogSampler(LogSamplingConfig{Tick: time.Second, After: 100 * time.Millisecond})
	s.now = func() time.Time { return now }

	assert.True(t, s.Allow(time.Millisecond), "first request")
	assert.False(t, s.Allow(time.Millisecond), "same tick")
	assert.True(t, s.Allow(200*time.Millisecond), "slow request")
	now = now.Add(2 * time.Second)
	assert.True(t, s.Allow(time.Millisecond), "next tick")

	assert.True(t, newLogSampler(LogSamplingConfig{}).Allow(0), "sampling disabled")
}

func TestRequestLogger(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	r := gin.New()
	r.Use(RequestID(), RequestLogger(logger, LogSamplingConfig{Tick: time.Hour}))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/ok", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, "/ok", entries[0].Data["path"])
	assert.Equal(t, logrus.ErrorLevel, entries[1].Level)
	assert.Equal(t, http.StatusInternalServerError, entries[1].Data["status"])
	assert.NotEmpty(t, entries[1].Data["request_id"])
}

func TestInstrumentation(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := gin.New()
	r.Use(Instrumentation(reg))
	// Registering twice must not panic.
	r.Use(Instrumentation(reg))
	r.GET("/satellites/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/satellites/1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/satellites/2", nil))

	n, err := testutil.GatherAndCount(reg, "kaos_request_requests_count")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one series per route")
}

func TestJWTAuth(t *testing.T) {
	auth := &JWTAuth{Key: []byte("abcdef012345678")}
	valid, err := auth.GenerateJWT("operator", time.Hour)
	require.NoError(t, err)
	expired, err := auth.GenerateJWT("operator", -time.Hour)
	require.NoError(t, err)
	other, err := (&JWTAuth{Key: []byte("another key")}).GenerateJWT("operator", time.Hour)
	require.NoError(t, err)

	claims, err := auth.VerifyJWT(valid)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
	assert.Equal(t, "kaos", claims.Issuer)

	_, err = (&JWTAuth{}).GenerateJWT("operator", time.Hour)
	assert.ErrorIs(t, err, errEmptyKey)

	r := gin.New()
	r.POST("/upload", auth.AuthMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("username"))
	})

	tests := []struct {
		name   string
		header string
		status int
		reason string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, ""},
		{"missing", "", http.StatusUnauthorized, "empty header was sent"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "Token has expired"},
		{"wrong key", "Bearer " + other, http.StatusUnauthorized, "Malformed token"},
		{"garbage", "Bearer nope", http.StatusUnauthorized, "Malformed token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(nil))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.reason != "" {
				assert.Contains(t, w.Body.String(), tt.reason)
			} else {
				assert.Equal(t, "operator", w.Body.String())
			}
		})
	}

	var ve *jwt.ValidationError
	_, err = auth.VerifyJWT(expired)
	require.ErrorAs(t, err, &ve)
}
