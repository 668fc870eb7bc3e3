package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullInfo(t *testing.T) {
	info := FullInfo()
	assert.True(t, strings.HasPrefix(info, "themescan "+Version))
	assert.Contains(t, info, GitCommit)
	assert.Equal(t, Version, Info())
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "themescan/"+Version, UserAgent())
}

func TestBuildIDIsStable(t *testing.T) {
	first := BuildID()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, BuildID())
}

func TestBuildFingerprintTracksRevision(t *testing.T) {
	build := func(revision string) *debug.BuildInfo {
		return &debug.BuildInfo{
			GoVersion: "go1.24.2",
			Main:      debug.Module{Path: "github.com/standardbeagle/themescan", Version: "(devel)"},
			Settings: []debug.BuildSetting{
				{Key: "-compiler", Value: "gc"},
				{Key: "vcs.revision", Value: revision},
			},
		}
	}

	a := buildFingerprint(build("abc123"))
	assert.Len(t, a, 16)
	assert.Equal(t, a, buildFingerprint(build("abc123")))
	assert.NotEqual(t, a, buildFingerprint(build("def456")))

	// Non-VCS settings do not change the id
	other := build("abc123")
	other.Settings[0].Value = "gccgo"
	assert.Equal(t, a, buildFingerprint(other))
}
