package sources

import "testing"

func TestBaseDomain(t *testing.T) {
	cases := []struct {
		host string
		want string
	}{
		{"www.google-analytics.com", "google-analytics.com"},
		{"google-analytics.com", "google-analytics.com"},
		{"api.segment.io", "segment.io"},
		{"app.posthog.com", "posthog.com"},
		{"a.b.c.example.com", "example.com"},
		{"example.co.uk", "example.co.uk"},
		{"www.example.co.uk", "example.co.uk"},
		{"shop.example.com.au", "example.com.au"},
		{"EXAMPLE.COM", "example.com"},
		{"localhost", "localhost"},
		{"192.168.1.50", "192.168.1.50"},
		{"trailing.example.com.", "example.com"},
	}

	for _, tc := range cases {
		if got := BaseDomain(tc.host); got != tc.want {
			t.Errorf("BaseDomain(%q) = %q, want %q", tc.host, got, tc.want)
		}
	}
}

func TestBaseDomain_Idempotent(t *testing.T) {
	hosts := []string{
		"www.google-analytics.com",
		"api.segment.io",
		"a.b.example.co.uk",
		"localhost",
		"10.0.0.1",
	}
	for _, h := range hosts {
		once := BaseDomain(h)
		if twice := BaseDomain(once); twice != once {
			t.Errorf("BaseDomain not idempotent for %q: %q != %q", h, once, twice)
		}
	}
}
