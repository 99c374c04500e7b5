package auth

import (
	"net/http/httptest"
	"testing"
)

func TestParseBearer(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("POST", "/v1/alerts/broadcast", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		got, ok := ParseBearer(r)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseBearer(%q) = %q, %v; want %q, %v", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMatchKey(t *testing.T) {
	keys := map[string]struct{}{"admin-1": {}, "admin-2": {}}
	if !MatchKey("admin-2", keys) {
		t.Error("MatchKey(admin-2) = false")
	}
	if MatchKey("admin-3", keys) || MatchKey("", keys) || MatchKey("admin-1", nil) {
		t.Error("MatchKey accepted an unknown key")
	}
}

func TestPrincipalContext(t *testing.T) {
	ctx := WithPrincipal(t.Context(), &Principal{APIKey: "k", Role: RoleAdmin})
	p, ok := PrincipalFrom(ctx)
	if !ok || !p.IsAdmin() {
		t.Fatalf("PrincipalFrom() = %+v, %v", p, ok)
	}
	if _, ok := PrincipalFrom(t.Context()); ok {
		t.Error("PrincipalFrom(empty) ok = true")
	}
}
