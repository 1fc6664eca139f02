package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	defaultModule  = "github.com/progcompcl/ide"
	unknownVersion = "v0.0.0-unknown"
	userAgentName  = "progcomp-ide"
)

// buildVersion is set via -ldflags "-X github.com/progcompcl/ide/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running build.
type Info struct {
	Module    string `json:"module"`
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go"`
}

// vcs holds the version-control stamps embedded by the go tool.
type vcs struct {
	revision string
	time     time.Time
	modified bool
}

// Read collects build information once per call.
func Read() Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info, buildVersion)
}

// Current returns the release version without a dirty marker.
func Current() string {
	return Read().Version
}

// UserAgent identifies this build in HTTP responses and gRPC metadata.
func UserAgent() string {
	return userAgentName + "/" + Current()
}

func fromBuildInfo(info *debug.BuildInfo, stamped string) Info {
	out := Info{Module: defaultModule, Version: unknownVersion, GoVersion: runtime.Version()}
	var stamps vcs
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		stamps = readVCS(info.Settings)
		out.Revision = stamps.revision
		out.Modified = stamps.modified
	}
	switch {
	case strings.TrimSpace(stamped) != "":
		out.Version = stamped
	case info != nil && info.Main.Version != "" && info.Main.Version != "(devel)":
		out.Version = info.Main.Version
	default:
		if v := stamps.pseudoVersion(); v != "" {
			out.Version = v
		}
	}
	out.Version = strings.TrimSuffix(strings.TrimSpace(out.Version), "+dirty")
	return out
}

func readVCS(settings []debug.BuildSetting) vcs {
	var out vcs
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			out.revision = setting.Value
		case "vcs.time":
			if ts, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				out.time = ts.UTC()
			}
		case "vcs.modified":
			out.modified = setting.Value == "true"
		}
	}
	return out
}

// pseudoVersion mirrors the go tool's v0.0.0-<time>-<rev12> form.
func (v vcs) pseudoVersion() string {
	if v.revision == "" || v.time.IsZero() {
		return ""
	}
	rev := v.revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return "v0.0.0-" + v.time.Format("20060102150405") + "-" + rev
}
