package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"timetracker/internal/ratelimit"
	"timetracker/internal/security"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type roleMap map[uuid.UUID]string

func (m roleMap) GetRole(_ context.Context, id uuid.UUID) (string, error) {
	role, ok := m[id]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return role, nil
}

func signToken(t *testing.T, secret []byte, sub, role string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  exp.Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func newAuthRouter(auth *Authenticator) *gin.Engine {
	r := gin.New()
	r.GET("/me", auth.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.GetString(ContextUserID), "role": c.GetString(ContextUserRole)})
	})
	r.GET("/admin", auth.RequireAuth(), auth.RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	user := uuid.New()
	events := security.NewEventLog(10, quietLogger())
	auth := NewAuthenticator(testSecret, false, roleMap{user: "user"}, events)
	r := newAuthRouter(auth)
	valid := signToken(t, testSecret, user.String(), "admin", time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		header string
		cookie string
		status int
	}{
		{"bearer", "Bearer " + valid, "", http.StatusOK},
		{"cookie", "", valid, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"malformed", "Token " + valid, "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, []byte("other"), user.String(), "user", time.Now().Add(time.Hour)), "", http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, user.String(), "user", time.Now().Add(-time.Hour)), "", http.StatusUnauthorized},
		{"unknown user", "Bearer " + signToken(t, testSecret, uuid.NewString(), "user", time.Now().Add(time.Hour)), "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	assert.Equal(t, 5, events.Len())
	for _, e := range events.RecentEvents(5) {
		assert.Equal(t, security.EventAuthFailure, e.Type)
	}
}

func TestRequireAuthUsesStoredRole(t *testing.T) {
	user := uuid.New()
	auth := NewAuthenticator(testSecret, false, roleMap{user: "user"}, security.NewEventLog(10, quietLogger()))
	r := newAuthRouter(auth)

	// The token claims admin but the stored grant says user.
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, user.String(), "admin", time.Now().Add(time.Hour)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRoleAllowsAdmin(t *testing.T) {
	admin := uuid.New()
	auth := NewAuthenticator(testSecret, false, roleMap{admin: "admin"}, security.NewEventLog(10, quietLogger()))
	r := newAuthRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, admin.String(), "user", time.Now().Add(time.Hour)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTokenCookie(t *testing.T) {
	auth := NewAuthenticator(testSecret, true, nil, security.NewEventLog(10, quietLogger()))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	auth.SetTokenCookie(c, "abc", time.Hour)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookies[0].SameSite)
	assert.Equal(t, 3600, cookies[0].MaxAge)
}

type rejectCounter map[string]int

func (r rejectCounter) ObserveRateLimited(limiter string) { r[limiter]++ }

func TestRateLimit(t *testing.T) {
	events := security.NewEventLog(10, quietLogger())
	limiter := ratelimit.NewLimiter("api", ratelimit.Config{MaxRequests: 2, Window: time.Minute}, ratelimit.NewMemoryStore())
	rejected := rejectCounter{}

	r := gin.New()
	r.GET("/ping", RateLimit(limiter, events, rejected, quietLogger()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	var codes []int
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), "Too many requests, try again in")
	assert.Equal(t, 1, rejected["api"])
	require.Equal(t, 1, events.Len())
	assert.Equal(t, security.EventRateLimitExceeded, events.RecentEvents(1)[0].Type)

	// Another client has its own window.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

type requestRecorder struct {
	routes   []string
	statuses []int
}

func (r *requestRecorder) ObserveRequest(_, route string, status int, _ time.Duration) {
	r.routes = append(r.routes, route)
	r.statuses = append(r.statuses, status)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	rec := &requestRecorder{}
	r := gin.New()
	r.Use(Metrics(rec))
	r.GET("/entries/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/entries/1", "/entries/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []string{"/entries/:id", "/entries/:id", "unmatched"}, rec.routes)
	assert.Equal(t, []int{200, 200, 404}, rec.statuses)
}
