package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/standardbeagle/themescan/internal/config"
	"github.com/standardbeagle/themescan/internal/server"
	"github.com/standardbeagle/themescan/internal/shopify"
	"github.com/standardbeagle/themescan/internal/types"
	"github.com/standardbeagle/themescan/testhelpers"
)

const testConfig = `
store {
    domain "shop"
    access_token "shpat_test"
}
scan {
    delay_ms 0
    sections {
        batch_size 4
    }
}
exclude {
    "assets/**"
}
`

// syncBuffer is written by the command goroutine while the test reads it
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeConfig writes cfg to a fresh directory and returns its path
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvStore, "")
	t.Setenv(config.EnvThemeID, "")
	t.Setenv(config.EnvAccessToken, "")
	t.Setenv("THEMESCAN_ENV", "")
}

func useBackend(t *testing.T, backend server.Backend) {
	t.Helper()
	prev := newBackend
	newBackend = func(*config.Config) (server.Backend, error) { return backend, nil }
	t.Cleanup(func() { newBackend = prev })
}

func runApp(ctx context.Context, stdout, stderr *syncBuffer, args ...string) error {
	app := newApp()
	app.Writer = stdout
	app.ErrWriter = stderr
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app.RunContext(ctx, append([]string{"themescan"}, args...))
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr syncBuffer
	err := runApp(context.Background(), &stdout, &stderr, args...)
	return stdout.String(), stderr.String(), err
}

func standardBackend(t *testing.T) *testhelpers.FakeSource {
	source := testhelpers.StandardTheme()
	source.MainThemeID = 42
	useBackend(t, source)
	return source
}

func TestScanCommandText(t *testing.T) {
	isolateEnv(t)
	standardBackend(t)
	cfgPath := writeConfig(t, testConfig)

	out, progress, err := run(t, "--config", cfgPath, "scan", "--type", "metafields")
	require.NoError(t, err)
	assert.Contains(t, out, "metafields referenced by theme 42")
	assert.Contains(t, out, "  custom.featured\n")
	assert.NotContains(t, out, "custom.color\n")
	assert.Contains(t, progress, "%]", "progress goes to stderr")
}

func TestScanCommandPositionalType(t *testing.T) {
	isolateEnv(t)
	standardBackend(t)
	cfgPath := writeConfig(t, testConfig)

	out, _, err := run(t, "--config", cfgPath, "scan", "templates")
	require.NoError(t, err)
	assert.Contains(t, out, "  alternate\n")
}

func TestScanCommandSectionsJSON(t *testing.T) {
	isolateEnv(t)
	standardBackend(t)
	cfgPath := writeConfig(t, testConfig)

	out, _, err := run(t, "--config", cfgPath, "scan", "-t", "sections", "--format", "json", "--theme-id", "7")
	require.NoError(t, err)

	var result struct {
		Type    types.ScanType            `json:"type"`
		ThemeID int64                     `json:"theme_id"`
		Status  types.ScanStatus          `json:"status"`
		Results []types.SectionDescriptor `json:"results"`
		Summary types.ScanSummary         `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, types.ScanSections, result.Type)
	assert.Equal(t, int64(7), result.ThemeID)
	assert.Equal(t, types.StatusDone, result.Status)
	assert.Len(t, result.Results, 4)
	assert.Equal(t, 3, result.Summary.Found)
}

func TestScanCommandYAML(t *testing.T) {
	isolateEnv(t)
	standardBackend(t)
	cfgPath := writeConfig(t, testConfig)

	out, _, err := run(t, "--config", cfgPath, "scan", "--type", "menus", "--format", "yaml")
	require.NoError(t, err)

	var doc struct {
		Type    string   `yaml:"type"`
		Status  string   `yaml:"status"`
		Results []string `yaml:"results"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "menus", doc.Type)
	assert.Equal(t, "done", doc.Status)
	assert.ElementsMatch(t, []string{"main-menu", "footer"}, doc.Results)
}

func TestScanCommandNDJSON(t *testing.T) {
	isolateEnv(t)
	standardBackend(t)
	cfgPath := writeConfig(t, testConfig)

	out, _, err := run(t, "--config", cfgPath, "scan", "--type", "templates", "--format", "ndjson", "--batch-size", "3", "--delay-ms", "0")
	require.NoError(t, err)

	var frames []types.ScanProgress
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var p types.ScanProgress
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &p), "every line is one frame")
		frames = append(frames, p)
	}
	require.NotEmpty(t, frames)

	last := frames[len(frames)-1]
	assert.Equal(t, types.StatusDone, last.Status)
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, []interface{}{"alternate"}, last.Results)
	for _, f := range frames[:len(frames)-1] {
		assert.False(t, f.IsTerminal())
	}
}

func TestScanCommandFailures(t *testing.T) {
	isolateEnv(t)
	cfgPath := writeConfig(t, testConfig)

	tests := []struct {
		name    string
		config  string
		setup   func(*testhelpers.FakeSource)
		args    []string
		message string
	}{
		{"typo", cfgPath, nil, []string{"scan", "--type", "sectoins"}, `did you mean "sections"`},
		{"missing type", cfgPath, nil, []string{"scan"}, "scan type is required"},
		{"bad format", cfgPath, nil, []string{"scan", "-t", "menus", "--format", "xml"}, "unsupported format"},
		{"bad batch size", cfgPath, nil, []string{"scan", "-t", "menus", "--batch-size", "0"}, "invalid --batch-size"},
		{"missing store", writeConfig(t, "scan { delay_ms 0; }"), nil, []string{"scan", "-t", "menus"}, "store"},
		{"no active theme", cfgPath, func(f *testhelpers.FakeSource) { f.ThemeErr = shopify.ErrNoActiveTheme },
			[]string{"scan", "-t", "menus"}, "no active theme found"},
		{"listing fails", cfgPath, func(f *testhelpers.FakeSource) { f.ListErr = assert.AnError },
			[]string{"scan", "-t", "menus"}, "scan failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := standardBackend(t)
			if tt.setup != nil {
				tt.setup(source)
			}
			_, _, err := run(t, append([]string{"--config", tt.config}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestScanCommandRemote(t *testing.T) {
	isolateEnv(t)
	source := testhelpers.StandardTheme()
	source.MainThemeID = 42
	srv, err := server.NewScanServer(testhelpers.NewTestConfigBuilder("shop.myshopify.com").Build(), source)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
	})

	// The remote server needs no local store settings
	cfgPath := writeConfig(t, "")
	out, _, err := run(t, "--config", cfgPath, "scan", "--remote", ts.URL, "--type", "metafields", "--format", "json")
	require.NoError(t, err)

	var result struct {
		ID      string   `json:"id"`
		Status  string   `json:"status"`
		Results []string `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "done", result.Status)
	assert.Equal(t, []string{"custom.featured"}, result.Results)
	require.Len(t, srv.Summaries(), 1)
	assert.Equal(t, result.ID, srv.Summaries()[0].ID)
}

func TestServeAndStatusCommands(t *testing.T) {
	isolateEnv(t)
	standardBackend(t)
	cfgPath := writeConfig(t, testConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- runApp(ctx, &stdout, &stderr, "--config", cfgPath, "serve", "--addr", "127.0.0.1:0")
	}()

	addrPattern := regexp.MustCompile(`listening on http://(\S+)`)
	var addr string
	require.Eventually(t, func() bool {
		if m := addrPattern.FindStringSubmatch(stdout.String()); m != nil {
			addr = m[1]
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	client := server.NewClient(addr)
	_, final, err := client.Scan(context.Background(), server.ScanParams{Type: types.ScanMenus, BatchSize: -1, DelayMs: -1}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, final.Status)

	out, _, err := run(t, "--config", cfgPath, "status", "--remote", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "store shop.myshopify.com")
	assert.Contains(t, out, "menus")
	assert.Contains(t, out, "done")

	out, _, err = run(t, "--config", cfgPath, "status", "--remote", addr, "--json")
	require.NoError(t, err)
	var status server.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Len(t, status.Scans, 1)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Contains(t, stdout.String(), "Scan server stopped")
}

func TestStatusCommandWithoutServer(t *testing.T) {
	isolateEnv(t)
	cfgPath := writeConfig(t, "")
	_, _, err := run(t, "--config", cfgPath, "status", "--remote", "127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scan server")
}

func TestConfigShowRoundTrip(t *testing.T) {
	isolateEnv(t)
	cfgPath := writeConfig(t, testConfig)

	out, _, err := run(t, "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `access_token "shpat_****"`)
	assert.NotContains(t, out, "shpat_test")

	shown := writeConfig(t, out)
	cfg, err := config.LoadFile(shown)
	require.NoError(t, err)
	assert.Equal(t, "shop.myshopify.com", cfg.Store.Domain)
	assert.Equal(t, 0, cfg.Scan.DelayMs)
	assert.Equal(t, 4, cfg.Scan.Overrides[types.ScanSections].BatchSize)
	assert.Equal(t, []string{"assets/**"}, cfg.Exclude)
}

func TestConfigShowFormats(t *testing.T) {
	isolateEnv(t)
	cfgPath := writeConfig(t, testConfig)

	out, _, err := run(t, "--config", cfgPath, "config", "show", "--format", "yaml")
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	store := doc["store"].(map[string]interface{})
	assert.Equal(t, "shop.myshopify.com", store["domain"])
	assert.Equal(t, "shpat_****", store["access_token"])

	out, _, err = run(t, "--config", cfgPath, "config", "show", "--format", "table")
	require.NoError(t, err)
	assert.Regexp(t, `Domain:\s+shop\.myshopify\.com`, out)
	assert.Contains(t, out, "sections:")

	_, _, err = run(t, "--config", cfgPath, "config", "show", "--format", "xml")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), config.FileName)

	out, _, err := run(t, "config", "init", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration file created")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "my-shop.myshopify.com", cfg.Store.Domain)
	assert.Equal(t, types.DefaultBatchSize, cfg.Scan.BatchSize)
	assert.Equal(t, config.DefaultServerAddr, cfg.Server.Addr)

	_, _, err = run(t, "config", "init", "--output", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = run(t, "config", "init", "--output", path, "--force")
	require.NoError(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "themescan ")
	assert.Contains(t, out, "build id: ")
}
