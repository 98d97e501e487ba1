package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/SamiSolomon/mobile/internal/domain"
)

func serve(api *API, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func loginRequest(username string, password string) *http.Request {
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// login returns a bearer token for one of the seeded accounts.
func login(t *testing.T, api *API, username string, password string) string {
	t.Helper()
	res := serve(api, loginRequest(username, password))
	require.Equal(t, http.StatusOK, res.Code, "login %s: %s", username, res.Body.String())

	var payload domain.LoginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.NotEmpty(t, strings.TrimSpace(payload.AccessToken))
	return payload.AccessToken
}

func loginAsAdmin(t *testing.T, api *API) string {
	return login(t, api, "admin", "admin123")
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	res := serve(api, httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.NotEmpty(t, payload["csrf_token"])
	return payload["csrf_token"]
}

func TestSecurityHeaders(t *testing.T) {
	res := serve(newTestAPI(t), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options":      "nosniff",
		"X-Frame-Options":             "DENY",
		"Referrer-Policy":             "strict-origin-when-cross-origin",
		"Cross-Origin-Opener-Policy":  "same-origin",
		"Access-Control-Allow-Origin": "*",
	} {
		assert.Equal(t, want, res.Header().Get(header), header)
	}
}

func TestPreflightSkipsAuth(t *testing.T) {
	res := serve(newTestAPI(t), httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil))
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Contains(t, res.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestLoginIsRateLimitedPerClient(t *testing.T) {
	api := newTestAPI(t)

	for attempt := 1; attempt <= 6; attempt++ {
		req := loginRequest("admin", "wrong-pass")
		req.RemoteAddr = "10.0.0.7:5000"
		res := serve(api, req)
		if attempt <= 5 {
			require.Equal(t, http.StatusUnauthorized, res.Code, "attempt %d", attempt)
			continue
		}
		require.Equal(t, http.StatusTooManyRequests, res.Code, "attempt %d", attempt)
	}

	other := loginRequest("admin", "admin123")
	other.RemoteAddr = "10.0.0.8:5000"
	assert.Equal(t, http.StatusOK, serve(api, other).Code, "a different client keeps its own budget")
}

func TestOversizedBodyRejected(t *testing.T) {
	api := newTestAPI(t)
	name := strings.Repeat("n", (1<<20)+1024)
	body := `{"username":"` + name + `","password":"x"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, serve(api, req).Code)
}

func TestMutationsNeedCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	body, _ := json.Marshal(domain.SaleRequest{Items: []domain.SaleLine{{ProductID: 1, Dozens: decimal.NewFromInt(1)}}})
	sell := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(body))
	sell.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, serve(api, sell).Code)

	del := httptest.NewRequest(http.MethodDelete, "/api/v1/sales/1", nil)
	del.Header.Set("Authorization", "Bearer "+token)
	del.Header.Set("X-CSRF-Token", "forged")
	assert.Equal(t, http.StatusForbidden, serve(api, del).Code)

	list := httptest.NewRequest(http.MethodGet, "/api/v1/sales", nil)
	list.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, serve(api, list).Code, "reads need no token")
}

func TestCSRFTokenFromAnotherServerIsRejected(t *testing.T) {
	a, b := newTestAPI(t), newTestAPI(t)
	now := time.Now()
	assert.True(t, a.csrf.valid(fetchCSRFToken(t, a), now))
	assert.False(t, b.csrf.valid(fetchCSRFToken(t, a), now))
	assert.False(t, a.csrf.valid("", now))
	assert.False(t, a.csrf.valid("not-hex", now))
}

func TestCSRFTokenLivesForTwoHourBuckets(t *testing.T) {
	signer := newCSRFSigner()
	issued := time.Date(2025, 3, 14, 9, 40, 0, 0, time.UTC)
	token := signer.issue(issued)

	assert.True(t, signer.valid(token, issued.Add(10*time.Minute)))
	assert.True(t, signer.valid(token, issued.Add(70*time.Minute)), "previous hour still accepted")
	assert.False(t, signer.valid(token, issued.Add(2*time.Hour)))
	assert.False(t, signer.valid(token, issued.Add(-time.Hour)), "not valid before it was issued")
}

func TestServerErrorsHideTheCause(t *testing.T) {
	api := newTestAPI(t)
	res := httptest.NewRecorder()
	api.writeServiceError(res, errors.New("pq: connection refused on 10.1.2.3"))

	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.NotContains(t, res.Body.String(), "10.1.2.3")
}

func TestRequestID(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "till-3")
	assert.Equal(t, "till-3", serve(api, req).Header().Get("X-Request-ID"))

	generated := serve(api, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Header().Get("X-Request-ID")
	assert.True(t, strings.HasPrefix(generated, "req-"), generated)
}

func TestParsePositiveLimit(t *testing.T) {
	cases := map[string]int{"9999": 200, "": 50, "invalid": 50, "-3": 50, "20": 20}
	for raw, want := range cases {
		assert.Equal(t, want, parsePositiveLimit(raw, 50, 200), raw)
	}
}

func TestRateLimiterKeepsBucketsApart(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 2)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	var unlimited *RateLimiter
	assert.True(t, unlimited.Allow("a"))
}

func TestClientKey(t *testing.T) {
	cases := []struct {
		remote string
		want   string
	}{
		{"192.168.1.4:51000", "192.168.1.4"},
		{"[::1]:8080", "::1"},
		{"till-2:9", "till-2"},
		{"", "unknown"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		assert.Equal(t, tc.want, clientKey(req), tc.remote)
	}
}
