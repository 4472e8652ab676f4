package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, ts *TokenService, method, path, authz string) (*httptest.ResponseRecorder, *Claims, bool) {
	t.Helper()
	var (
		called bool
		claims *Claims
	)
	handler := RequireAuth(ts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, claims, called
}

func TestRequireAuth_SkipsPublicPaths(t *testing.T) {
	ts := newTestTokenService(t)
	for _, path := range []string{
		"/healthz",
		"/readyz",
		"/metrics",
		"/swagger/index.html",
		"/api/v1/health",
		"/api/v1/stream/metrics",
		"/api/v1/ws/metrics",
	} {
		t.Run(path, func(t *testing.T) {
			w, _, called := serve(t, ts, http.MethodGet, path, "")
			if !called || w.Code != http.StatusOK {
				t.Errorf("path %s: called=%v status=%d", path, called, w.Code)
			}
		})
	}
}

func TestRequireAuth_RejectsMissingOrBadHeader(t *testing.T) {
	ts := newTestTokenService(t)
	for _, authz := range []string{"", "Basic YWRtaW46YWRtaW4=", "Bearer ", "Bearer garbage"} {
		w, _, called := serve(t, ts, http.MethodGet, "/api/v1/integrations", authz)
		if called {
			t.Errorf("handler called with Authorization %q", authz)
		}
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Authorization %q: status = %d, want 401", authz, w.Code)
		}
		if w.Header().Get("WWW-Authenticate") == "" {
			t.Errorf("Authorization %q: missing WWW-Authenticate", authz)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
			t.Errorf("Content-Type = %q", ct)
		}
	}
}

func TestRequireAuth_AcceptsValidToken(t *testing.T) {
	ts := newTestTokenService(t)
	token, err := ts.IssueAccessToken("admin", RoleAdmin, 0)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	w, claims, called := serve(t, ts, http.MethodPost, "/api/v1/notification-rules", "Bearer "+token)
	if !called || w.Code != http.StatusOK {
		t.Fatalf("called=%v status=%d", called, w.Code)
	}
	if claims == nil || claims.Subject != "admin" {
		t.Errorf("claims in context = %+v", claims)
	}
}

func TestClaimsFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if c := ClaimsFromContext(req.Context()); c != nil {
		t.Errorf("ClaimsFromContext = %+v, want nil", c)
	}
}
