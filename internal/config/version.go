package config

// Version is the application version, overridable at build time via
// -ldflags "-X github.com/quantdesk/quantdesk/internal/config.Version=..."
var Version = "0.1.0"
