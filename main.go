package main

import (
	"runtime/debug"

	"github.com/ambre-sync/reconcile-core/cmd"
)

// Version may be set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

// effectiveVersion prefers an injected build version, then falls back to
// the module version or VCS revision Go embeds automatically for `go
// install module@vX.Y.Z` and CI-built binaries alike.
func effectiveVersion(v string) string {
	if v != "" && v != "dev" {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return v
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	if rev, dirty := vcsRevision(info); rev != "" {
		if dirty {
			return "devel+" + rev + "+dirty"
		}
		return "devel+" + rev
	}
	return v
}

func vcsRevision(info *debug.BuildInfo) (rev string, dirty bool) {
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
			if len(rev) > 12 {
				rev = rev[:12]
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return rev, dirty
}

func main() {
	cmd.SetVersion(effectiveVersion(Version))
	cmd.Execute()
}
