package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeLocale(t *testing.T) {
	cases := map[string]string{
		"id":    "id",
		"id-ID": "id",
		"ID":    "id",
		"en-GB": "en",
		"fr-FR": "en",
		"":      "en",
	}
	for in, want := range cases {
		if got := normalizeLocale(in); got != want {
			t.Fatalf("normalizeLocale(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		fallback string
		country  string
		want     string
	}{
		{name: "storefront header wins over country", headers: map[string]string{"X-Locale": "id-ID"}, country: "US", want: "id"},
		{name: "first accept-language entry", headers: map[string]string{"Accept-Language": "id;q=0.9,en;q=0.8"}, want: "id"},
		{name: "unsupported language maps to english", headers: map[string]string{"Accept-Language": "de-DE"}, country: "ID", want: "en"},
		{name: "indonesian shopper without headers", country: "id", want: "id"},
		{name: "other countries get english", country: "SG", fallback: "id", want: "en"},
		{name: "configured default", fallback: "id", want: "id"},
		{name: "no hints at all", want: "en"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/jobs", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := detectLocale(req, tc.fallback, tc.country); got != tc.want {
				t.Fatalf("detectLocale() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		lookup  CountryLookup
		want    string
	}{
		{name: "edge header", headers: map[string]string{"CF-IPCountry": "tr"}, want: "TR"},
		{name: "locale region", headers: map[string]string{"X-Locale": "en-AE"}, want: "AE"},
		{name: "bare indonesian locale", headers: map[string]string{"Accept-Language": "id"}, want: "ID"},
		{
			name:    "geoip lookup on the client address",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.1"},
			lookup: func(ip string) (string, error) {
				if ip != "198.51.100.7" {
					return "", errors.New("unexpected ip " + ip)
				}
				return "it", nil
			},
			want: "IT",
		},
		{
			name:   "lookup failure leaves country empty",
			lookup: func(string) (string, error) { return "", errors.New("no record") },
			want:   "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.4:443"
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := ResolveCountry(req, tc.lookup); got != tc.want {
				t.Fatalf("ResolveCountry() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestI18NStoresLocaleAndCountry(t *testing.T) {
	var locale, country string
	h := I18N("en", func(string) (string, error) { return "id", nil })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale = LocaleFromContext(r.Context())
		country = CountryFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if locale != "id" || country != "ID" {
		t.Fatalf("locale = %q country = %q", locale, country)
	}

	if got := LocaleFromContext(context.Background()); got != "en" {
		t.Fatalf("LocaleFromContext() default = %q", got)
	}
	if got := CountryFromContext(context.Background()); got != "" {
		t.Fatalf("CountryFromContext() default = %q", got)
	}
}
