// Package version reports the build version of judgerelay binaries.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/judgerelay"

// buildVersion is set via -ldflags "-X pkt.systems/judgerelay/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Module    string `json:"module"`
	Revision  string `json:"revision,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	GoVersion string `json:"goVersion"`
}

// Current returns the best available version string (without dirty suffix).
func Current() string {
	return Read().Version
}

// Read collects version details from the linker flag and the embedded build info.
func Read() Info {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		info = nil
	}
	return fromBuildInfo(info, buildVersion)
}

func fromBuildInfo(info *debug.BuildInfo, linked string) Info {
	out := Info{Module: defaultModule, GoVersion: runtime.Version(), Version: "v0.0.0-unknown"}
	var vcsTime string
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				out.Revision = setting.Value
			case "vcs.time":
				vcsTime = setting.Value
			case "vcs.modified":
				out.Dirty = setting.Value == "true"
			}
		}
	}
	switch {
	case strings.TrimSpace(linked) != "":
		out.Version = strings.TrimSuffix(strings.TrimSpace(linked), "+dirty")
	case info != nil && info.Main.Version != "" && info.Main.Version != "(devel)":
		out.Version = strings.TrimSuffix(strings.TrimSpace(info.Main.Version), "+dirty")
	default:
		if pseudo := pseudoVersion(out.Revision, vcsTime); pseudo != "" {
			out.Version = pseudo
		}
	}
	return out
}

// String renders the version with a +dirty marker for modified trees.
func (i Info) String() string {
	if i.Dirty {
		return i.Version + "+dirty"
	}
	return i.Version
}

func pseudoVersion(revision, vcsTime string) string {
	if revision == "" || vcsTime == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, vcsTime)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	return "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + revision
}
