package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	if got := String(); !strings.HasPrefix(got, "pdfrag dev (commit ") {
		t.Errorf("String() = %q", got)
	}
}

func TestFromBuildInfo(t *testing.T) {
	info := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
	}}

	commit, date := fromBuildInfo(info, "unknown", "unknown")
	if commit != "0123456" || date != "2026-10-01T12:00:00Z" {
		t.Errorf("unstamped: got %q, %q", commit, date)
	}
	commit, date = fromBuildInfo(info, "abc1234", "2026-01-01")
	if commit != "abc1234" || date != "2026-01-01" {
		t.Errorf("stamped values must win: got %q, %q", commit, date)
	}
}
