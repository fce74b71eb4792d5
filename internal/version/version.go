// Package version reports what build of pdfrag is running.
//
// Release builds stamp the values with -ldflags:
//
//	-X github.com/54b3r/pdfrag/internal/version.Version=v1.2.3
//	-X github.com/54b3r/pdfrag/internal/version.Commit=abc1234
//	-X github.com/54b3r/pdfrag/internal/version.BuildDate=2026-01-01
//
// Unstamped builds fall back to the VCS data the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the line printed by `pdfrag version`.
func String() string {
	commit, date := Commit, BuildDate
	if info, ok := debug.ReadBuildInfo(); ok {
		commit, date = fromBuildInfo(info, commit, date)
	}
	return fmt.Sprintf("pdfrag %s (commit %s, built %s)", Version, commit, date)
}

// fromBuildInfo fills commit and date from vcs settings when unstamped.
func fromBuildInfo(info *debug.BuildInfo, commit, date string) (string, string) {
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && commit == "unknown":
			commit = s.Value[:min(len(s.Value), 7)]
		case s.Key == "vcs.time" && date == "unknown":
			date = s.Value
		}
	}
	return commit, date
}
