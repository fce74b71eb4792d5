// Package tracing wires optional Langfuse tracing into the eino chains used
// for answer generation and the echo endpoint.
package tracing

import (
	"log/slog"
	"os"
	"sync"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// DefaultHost is used when LANGFUSE_HOST is unset.
const DefaultHost = "http://localhost:3000"

// Settings holds the Langfuse connection parameters.
type Settings struct {
	// Host is the Langfuse API base URL.
	Host string
	// PublicKey and SecretKey authenticate the ingestion API.
	PublicKey string
	SecretKey string
}

// SettingsFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func SettingsFromEnv() Settings {
	s := Settings{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if s.Host == "" {
		s.Host = DefaultHost
	}
	return s
}

// Enabled reports whether both keys are present.
func (s Settings) Enabled() bool {
	return s.PublicKey != "" && s.SecretKey != ""
}

// Handler builds the Langfuse callback handler and its flush function.
// It returns ok=false when the settings are not enabled.
func (s Settings) Handler() (callbacks.Handler, func(), bool) {
	if !s.Enabled() {
		return nil, nil, false
	}
	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      s.Host,
		PublicKey: s.PublicKey,
		SecretKey: s.SecretKey,
	})
	return handler, flusher, true
}

// installOnce guards the process-wide callback registration.
var installOnce sync.Once

// Install registers the Langfuse handler globally when configured and
// returns a flush function that must run before process exit. The returned
// function is never nil. Only the first call registers a handler.
func Install(s Settings, log *slog.Logger) func() {
	flush := func() {}
	installOnce.Do(func() {
		handler, flusher, ok := s.Handler()
		if !ok {
			log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
			return
		}
		callbacks.AppendGlobalHandlers(handler)
		flush = flusher
		log.Info("langfuse tracing enabled", slog.String("host", s.Host))
	})
	return flush
}
