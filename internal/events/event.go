package events

// CapturedEvent is the normalized record produced from one analytics
// payload. Field names are the wire contract with the browser extension:
// extension-internal fields carry an underscore prefix.
type CapturedEvent struct {
	ID          string                 `json:"id"`
	Timestamp   string                 `json:"timestamp"`
	Event       string                 `json:"event"`
	Properties  map[string]interface{} `json:"properties"`
	Context     map[string]interface{} `json:"context,omitempty"`
	UserID      string                 `json:"userId,omitempty"`
	AnonymousID string                 `json:"anonymousId,omitempty"`
	Type        string                 `json:"type"`
	SourceID    string                 `json:"_source"`
	SourceName  string                 `json:"_sourceName"`
	SourceIcon  string                 `json:"_sourceIcon,omitempty"`
	SourceColor string                 `json:"_sourceColor,omitempty"`
	RawPayload  interface{}            `json:"_rawPayload,omitempty"`
	Metadata    Metadata               `json:"_metadata"`
}

// Metadata records where and when the event was captured.
type Metadata struct {
	URL        string `json:"url"`
	CapturedAt string `json:"capturedAt"`
}
