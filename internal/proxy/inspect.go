package proxy

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/pterm/pterm"

	"github.com/jnakagawa/loggy/internal/database/repositories"
	"github.com/jnakagawa/loggy/internal/events"
	"github.com/jnakagawa/loggy/internal/extract"
	"github.com/jnakagawa/loggy/internal/sources"
)

// Inspector tees analytics-candidate request bodies into the extractor.
// It sits on the proxy's hot path and must never alter what goes upstream:
// the body is buffered and restored before any forwarding happens, and
// every failure degrades to "no inspection".
type Inspector struct {
	registry  *sources.Registry
	extractor *extract.Extractor
	buffer    *events.Buffer
	stats     repositories.StatsRepository
	maxBody   int64
	logger    *pterm.Logger
}

// NewInspector wires the inspection side path. stats may be nil when the
// stats database is unavailable.
func NewInspector(
	registry *sources.Registry,
	extractor *extract.Extractor,
	buffer *events.Buffer,
	stats repositories.StatsRepository,
	maxBody int64,
	logger *pterm.Logger,
) *Inspector {
	return &Inspector{
		registry:  registry,
		extractor: extractor,
		buffer:    buffer,
		stats:     stats,
		maxBody:   maxBody,
		logger:    logger,
	}
}

// InspectRequest examines one request about to be forwarded. Only POST and
// PUT bodies are considered. The request leaves this method with a fresh,
// fully readable body regardless of what inspection did.
func (i *Inspector) InspectRequest(req *http.Request) {
	if req.Method != http.MethodPost && req.Method != http.MethodPut {
		return
	}
	if req.Body == nil || req.Body == http.NoBody {
		return
	}

	// Bounded tee: read at most maxBody+1 so oversize bodies are detected
	// without buffering them whole.
	limited := io.LimitReader(req.Body, i.maxBody+1)
	buf, err := io.ReadAll(limited)
	if err != nil {
		// The body is now partially consumed and cannot be restored;
		// surface what we have so the upstream write fails loudly rather
		// than silently truncating.
		i.logger.Warn("Body read failed during inspection", i.logger.Args("url", req.URL.String(), "error", err))
		req.Body = io.NopCloser(bytes.NewReader(buf))
		return
	}

	if int64(len(buf)) > i.maxBody {
		// Too large to inspect: stitch the consumed prefix back in front
		// of the unread remainder and forward untouched.
		req.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(buf), req.Body), req.Body}
		i.logger.Debug("Body too large to inspect",
			i.logger.Args("url", req.URL.String(), "cap", i.maxBody))
		return
	}

	rest := req.Body
	req.Body = io.NopCloser(bytes.NewReader(buf))
	rest.Close()

	if len(buf) == 0 {
		return
	}

	fullURL := requestURL(req)
	decoded := extract.Decompress(buf, req.Header.Get("Content-Encoding"))

	source := i.registry.Match(fullURL)
	if source == nil {
		i.registry.TrackUnmatched(fullURL, decoded)
		return
	}

	evts := i.extractor.Extract(decoded, source, fullURL, req.Header.Get("User-Agent"))
	if len(evts) == 0 {
		i.logger.Debug("No events extracted",
			i.logger.Args("source", source.ID, "url", fullURL))
		return
	}

	i.buffer.Append(evts...)

	if i.stats != nil {
		if err := i.stats.RecordCaptures(source.ID, int64(len(evts)), time.Now().UTC()); err != nil {
			i.logger.Debug("Failed to record capture stats",
				i.logger.Args("source", source.ID, "error", err))
		}
	}

	i.logger.Info("Captured analytics events",
		i.logger.Args("source", source.ID, "count", len(evts), "url", fullURL))
}

// requestURL reconstructs the full URL of a proxied request, including the
// query string.
func requestURL(req *http.Request) string {
	if req.URL.IsAbs() {
		return req.URL.String()
	}
	scheme := "https"
	if req.TLS == nil && req.URL.Scheme != "" {
		scheme = req.URL.Scheme
	}
	u := scheme + "://" + req.Host + req.URL.Path
	if req.URL.RawQuery != "" {
		u += "?" + req.URL.RawQuery
	}
	return u
}
