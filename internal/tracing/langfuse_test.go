package tracing

import (
	"testing"
)

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	s := SettingsFromEnv()
	if s.Host != DefaultHost {
		t.Errorf("Host = %q, want default %q", s.Host, DefaultHost)
	}
	if s.Enabled() {
		t.Error("expected tracing disabled without a secret key")
	}
	if h, flush, ok := s.Handler(); ok || h != nil || flush != nil {
		t.Error("expected no handler when disabled")
	}
}

func TestSettings_Enabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    Settings
		want bool
	}{
		{"both keys", Settings{PublicKey: "pk", SecretKey: "sk"}, true},
		{"public only", Settings{PublicKey: "pk"}, false},
		{"secret only", Settings{SecretKey: "sk"}, false},
		{"none", Settings{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.s.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
