package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tutorwise/config"
	"tutorwise/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() { gin.SetMode(gin.TestMode) }

var jwtCfg = &config.JWTConfig{AccessSecret: "test", AccessExpiry: time.Hour, Issuer: "tutorwise"}

func protected() *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthRequired(jwtCfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"actor_id": GetActorID(c)})
	})
	r.GET("/admin", AuthRequired(jwtCfg), AdminRequired(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := protected()

	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "garbage").Code)

	token, err := auth.GenerateAccessToken(jwtCfg, 42, "a@example.com", false)
	require.NoError(t, err)
	w := get(r, "/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"actor_id":42}`, w.Body.String())
}

func TestAdminRequired(t *testing.T) {
	r := protected()

	user, err := auth.GenerateAccessToken(jwtCfg, 1, "u@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", user).Code)

	admin, err := auth.GenerateAccessToken(jwtCfg, 2, "ops@example.com", true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", admin).Code)
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	r := gin.New()
	r.Use(RateLimit(rl))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/", "").Code)

	// a different client has its own bucket
	assert.True(t, rl.Allow("10.0.0.9"))

	rl.Sweep()
	rl.mu.Lock()
	_, kept := rl.visitors["192.0.2.1"]
	rl.mu.Unlock()
	assert.True(t, kept, "drained bucket must survive a sweep")
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := get(r, "/ok", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	get(r, "/missing", "")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "/missing", entries[1].ContextMap()["path"])
}
