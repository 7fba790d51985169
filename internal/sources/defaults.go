package sources

// Defaults returns the seed set of analytics sources the registry ships
// with. Domains are stored as written here and normalized on registry load.
func Defaults() []Source {
	return []Source{
		{
			ID:            "google-analytics",
			Name:          "Google Analytics",
			Enabled:       true,
			Domain:        "google-analytics.com",
			URLPattern:    "/*/collect*",
			EventNamePath: "en",
		},
		{
			ID:            "google-analytics-mp",
			Name:          "Google Analytics (MP)",
			Enabled:       true,
			Domain:        "google-analytics.com",
			URLPattern:    "/mp/collect*",
			EventNamePath: "events[0].name",
			BatchPath:     "events",
		},
		{
			ID:         "segment",
			Name:       "Segment",
			Enabled:    true,
			Domain:     "api.segment.io",
			URLPattern: "/v1/*",
			BatchPath:  "batch",
		},
		{
			ID:        "amplitude",
			Name:      "Amplitude",
			Enabled:   true,
			Domain:    "api.amplitude.com",
			BatchPath: "events",
		},
		{
			ID:            "mixpanel",
			Name:          "Mixpanel",
			Enabled:       true,
			Domain:        "api.mixpanel.com",
			EventNamePath: "event",
		},
		{
			ID:            "reddit-pixel",
			Name:          "Reddit Pixel",
			Enabled:       true,
			Domain:        "alb.reddit.com",
			URLPattern:    "/rp.gif*",
			EventNamePath: "event",
		},
		{
			ID:            "heap",
			Name:          "Heap Analytics",
			Enabled:       true,
			Domain:        "heapanalytics.com",
			EventNamePath: "a",
			BatchPath:     "b",
		},
		{
			ID:        "posthog",
			Name:      "PostHog",
			Enabled:   true,
			Domain:    "app.posthog.com",
			BatchPath: "batch",
		},
		{
			ID:        "rudderstack",
			Name:      "RudderStack",
			Enabled:   true,
			Domain:    "rudderstack.com",
			BatchPath: "batch",
		},
	}
}
