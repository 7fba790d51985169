package extract

import (
	"testing"

	json "github.com/goccy/go-json"
)

func decodeJSON(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("test payload does not parse: %v", err)
	}
	return v
}

func TestResolve(t *testing.T) {
	payload := decodeJSON(t, `{
		"events": [{"name": "x", "props": {"a": 1}}, {"name": "y"}],
		"user": {"profile": {"email": "u@example.com"}},
		"n": 3
	}`)

	cases := []struct {
		path string
		want interface{}
		ok   bool
	}{
		{"events[0].name", "x", true},
		{"events[1].name", "y", true},
		{"events[0].props.a", float64(1), true},
		{"user.profile.email", "u@example.com", true},
		{"n", float64(3), true},
		{"events[5].name", nil, false},
		{"events[0].missing", nil, false},
		{"missing.deep.path", nil, false},
		{"user.profile.email.extra", nil, false},
		{"n[0]", nil, false},
	}

	for _, tc := range cases {
		got, ok := Resolve(payload, tc.path)
		if ok != tc.ok {
			t.Errorf("Resolve(%q) ok = %v, want %v", tc.path, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("Resolve(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestResolve_RootArray(t *testing.T) {
	payload := decodeJSON(t, `[{"name": "first"}]`)

	got, ok := Resolve(payload, "[0].name")
	if !ok || got != "first" {
		t.Errorf("Resolve([0].name) = %v, %v; want 'first', true", got, ok)
	}
}

func TestResolve_NeverPanics(t *testing.T) {
	inputs := []interface{}{nil, "string", float64(1), []interface{}{}, map[string]interface{}{}}
	paths := []string{"", "a", "a.b[0]", "[9]", "a[", "a[x]"}

	for _, in := range inputs {
		for _, p := range paths {
			Resolve(in, p) // must not panic on any combination
		}
	}
}
