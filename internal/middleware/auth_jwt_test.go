package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthJWT(t *testing.T) {
	const secret = "s3cret"
	valid, _ := SignJWT(secret, TokenClaims{Sub: "u1", Locale: "id-ID", Exp: time.Now().Add(time.Hour).Unix()})
	expired, _ := SignJWT(secret, TokenClaims{Sub: "u1", Exp: time.Now().Add(-time.Hour).Unix()})
	noSubject, _ := SignJWT(secret, TokenClaims{Exp: time.Now().Add(time.Hour).Unix()})
	forged, _ := SignJWT("other", TokenClaims{Sub: "u1"})

	var gotUser, gotLocale string
	h := AuthJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotLocale = LocaleFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{name: "valid", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) }, status: http.StatusOK},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "wrong scheme", setup: func(r *http.Request) { r.Header.Set("Authorization", "Basic "+valid) }, status: http.StatusUnauthorized},
		{name: "expired", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }, status: http.StatusUnauthorized},
		{name: "no subject", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+noSubject) }, status: http.StatusUnauthorized},
		{name: "forged", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+forged) }, status: http.StatusUnauthorized},
		{name: "query token ignored without upgrade", setup: func(r *http.Request) { r.URL.RawQuery = "token=" + valid }, status: http.StatusUnauthorized},
		{
			name: "query token on websocket upgrade",
			setup: func(r *http.Request) {
				r.URL.RawQuery = "token=" + valid
				r.Header.Set("Upgrade", "websocket")
			},
			status: http.StatusOK,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotUser, gotLocale = "", ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.setup != nil {
				tc.setup(req)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			if tc.status == http.StatusOK && (gotUser != "u1" || gotLocale != "id") {
				t.Fatalf("context user = %q locale = %q", gotUser, gotLocale)
			}
		})
	}
}
