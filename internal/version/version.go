package version

// Version is the loggy-proxy release version, overridable at build time via
// -ldflags "-X github.com/jnakagawa/loggy/internal/version.Version=...".
var Version = "0.3.0"
