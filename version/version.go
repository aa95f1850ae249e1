// Package version exposes the service version and the build metadata
// embedded in the binary.
package version

import "runtime/debug"

// Version is the service version reported by the health endpoint and the
// version command. Overridable at build time via -ldflags.
var Version = "0.1.0"

// BuildInfo is the subset of the embedded build metadata the service
// reports.
type BuildInfo struct {
	GoVersion   string `json:"goVersion"`
	MainModule  string `json:"mainModule"`
	MainVersion string `json:"mainVersion"`
}

// GetBuildInfo extracts module information embedded at build time.
func GetBuildInfo() BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return BuildInfo{GoVersion: "unknown", MainModule: "unknown", MainVersion: "unknown"}
	}
	return BuildInfo{
		GoVersion:   info.GoVersion,
		MainModule:  info.Path,
		MainVersion: info.Main.Version,
	}
}
