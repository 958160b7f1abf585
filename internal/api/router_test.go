package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func doAuthRequest(t *testing.T, srv *Server, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func signTestToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func TestRoutesExist(t *testing.T) {
	srv, _ := newTestServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/api/v1/models"},
		{http.MethodGet, "/api/v1/doses"},
		{http.MethodGet, "/api/v1/doses/planned"},
		{http.MethodPost, "/api/v1/doses"},
		{http.MethodGet, "/api/v1/tests"},
		{http.MethodPost, "/api/v1/tests"},
		{http.MethodGet, "/api/v1/schedules"},
		{http.MethodPost, "/api/v1/schedules"},
		{http.MethodGet, "/api/v1/level/current"},
		{http.MethodGet, "/api/v1/level/curve"},
		{http.MethodGet, "/api/v1/level/reference"},
		{http.MethodPost, "/api/v1/regimen/suggest"},
		{http.MethodPost, "/api/v1/regimen/cyclefit"},
		{http.MethodPost, "/api/v1/calibration/preview"},
		{http.MethodGet, "/api/v1/alerts"},
		{http.MethodGet, "/api/v1/alerts/rules"},
		{http.MethodGet, "/ws"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			w := doRequest(t, srv, route.method, route.path, nil)
			if w.Code == http.StatusNotFound {
				t.Errorf("%s %s returned 404", route.method, route.path)
			}
			if w.Code == http.StatusMethodNotAllowed {
				t.Errorf("%s %s returned 405", route.method, route.path)
			}
		})
	}
}

func TestWriteGuard(t *testing.T) {
	cfg := testConfig()
	cfg.Server.JWTSecret = "test-secret"
	srv, _ := newTestServerWithConfig(t, cfg)

	doseBody := func() io.Reader {
		return jsonBody(t, map[string]interface{}{"model_key": "EEn im", "amount_mg": 4.0})
	}

	w := doAuthRequest(t, srv, http.MethodPost, "/api/v1/doses", "", doseBody())
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w = doAuthRequest(t, srv, http.MethodPost, "/api/v1/doses", "garbage", doseBody())
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	token := signTestToken(t, "test-secret", jwt.MapClaims{
		"sub": "user-1",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	w = doAuthRequest(t, srv, http.MethodPost, "/api/v1/doses", token, doseBody())
	if w.Code != http.StatusCreated {
		t.Errorf("valid token: status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	// Reads and solver endpoints stay open.
	w = doAuthRequest(t, srv, http.MethodGet, "/api/v1/doses", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("read: status = %d, want %d", w.Code, http.StatusOK)
	}
	w = doAuthRequest(t, srv, http.MethodPost, "/api/v1/regimen/suggest", "",
		jsonBody(t, map[string]interface{}{"model_key": "EEn im", "target_trough": 150.0}))
	if w.Code != http.StatusOK {
		t.Errorf("suggest: status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestWriteGuardDisabled(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/doses", jsonBody(t, map[string]interface{}{
		"model_key": "EEn im",
		"amount_mg": 4.0,
	}))
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d without a configured secret", w.Code, http.StatusCreated)
	}
}
