package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Version information for themescan
const (
	// Version is the current semantic version
	Version = "0.3.0"

	// BuildDate is set during build time (use -ldflags)
	BuildDate = "development"

	// GitCommit is set during build time (use -ldflags)
	GitCommit = "unknown"
)

// Info returns version information as a string
func Info() string {
	return Version
}

// FullInfo returns detailed version information
func FullInfo() string {
	return "themescan " + Version + " (commit: " + GitCommit + ", built: " + BuildDate + ")"
}

// UserAgent is sent with every Shopify API request
func UserAgent() string {
	return "themescan/" + Version
}

// BuildID identifies the binary a scan server runs from. Clients compare it
// against their own to spot a server left over from an older install.
var BuildID = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version + "-" + GitCommit
	}
	return buildFingerprint(info)
})

// buildFingerprint hashes the toolchain, module and VCS stamp of a build
func buildFingerprint(info *debug.BuildInfo) string {
	d := xxhash.New()
	_, _ = d.WriteString(info.GoVersion)
	_, _ = d.WriteString(info.Main.Path)
	_, _ = d.WriteString(info.Main.Version)
	for _, setting := range info.Settings {
		if strings.HasPrefix(setting.Key, "vcs.") {
			_, _ = d.WriteString(setting.Key + "=" + setting.Value)
		}
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
