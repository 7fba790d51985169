package sources

import "testing"

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		path    string
		pattern string
		want    bool
	}{
		{"/anything/at/all", "", true},
		{"/g/collect", "/*/collect*", true},
		{"/mp/collect", "/mp/collect*", true},
		{"/mp/collect", "/*/collect*", true},
		{"/a/b/collect", "/*/collect*", false}, // single star stays in one segment
		{"/a/b/collect", "/**/collect*", true},
		{"/v1/batch", "/v1/*", true},
		{"/v1/a/b", "/v1/*", false},
		{"/v1/a/b", "/v1/**", true},
		{"/rp.gif", "/rp.gif*", true},
		{"/rp.gif?", "/rp.gif*", true},
		{"/other", "/rp.gif*", false},
		{"/track", "/track", true},
		{"/track/extra", "/track", false},
	}

	for _, tc := range cases {
		if got := MatchGlob(tc.path, tc.pattern); got != tc.want {
			t.Errorf("MatchGlob(%q, %q) = %v, want %v", tc.path, tc.pattern, got, tc.want)
		}
	}
}
