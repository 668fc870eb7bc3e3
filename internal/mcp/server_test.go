package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/themescan/internal/shopify"
	"github.com/standardbeagle/themescan/internal/types"
	"github.com/standardbeagle/themescan/testhelpers"
)

func newTestServer(t *testing.T, source *testhelpers.FakeSource) *Server {
	t.Helper()
	cfg := testhelpers.NewTestConfigBuilder("shop.myshopify.com").Build()
	s, err := NewServer(cfg, source)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// callTool invokes a tool handler directly, bypassing the stdio transport
func callTool(t *testing.T, s *Server, tool string, args map[string]interface{}) (*mcp.CallToolResult, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)

	result, err := s.GetHandlerForTesting(tool)(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: tool, Arguments: raw},
	})
	require.NoError(t, err, "tool failures are results, not protocol errors")
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &body))
	return result, body
}

func decodeScan(t *testing.T, result *mcp.CallToolResult) ScanResponse {
	t.Helper()
	var resp ScanResponse
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].(*mcp.TextContent).Text), &resp))
	return resp
}

func stringsOf(t *testing.T, v interface{}) []string {
	t.Helper()
	items, ok := v.([]interface{})
	require.True(t, ok, "expected a JSON array, got %T", v)
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.(string)
	}
	return out
}

func TestNewServerValidation(t *testing.T) {
	cfg := testhelpers.NewTestConfigBuilder("shop.myshopify.com").Build()

	_, err := NewServer(nil, testhelpers.StandardTheme())
	assert.Error(t, err)

	_, err = NewServer(cfg, nil)
	assert.Error(t, err)

	s, err := NewServer(cfg, testhelpers.StandardTheme())
	require.NoError(t, err)
	assert.NotNil(t, s.server)
	assert.NotNil(t, s.Engine())
}

func TestScanReferencesTool(t *testing.T) {
	tests := []struct {
		scanType string
		expected []string
	}{
		{"metafields", []string{"custom.featured"}},
		{"metaobjects", []string{}},
		{"menus", []string{"main-menu", "footer"}},
		{"templates", []string{"alternate"}},
	}

	for _, tt := range tests {
		t.Run(tt.scanType, func(t *testing.T) {
			source := testhelpers.StandardTheme()
			source.MainThemeID = 42
			s := newTestServer(t, source)

			result, body := callTool(t, s, toolScanReferences, map[string]interface{}{"type": tt.scanType})
			require.False(t, result.IsError, "unexpected error: %v", body["error"])

			resp := decodeScan(t, result)
			assert.NotEmpty(t, resp.ScanID)
			assert.Equal(t, types.ScanType(tt.scanType), resp.Type)
			assert.Equal(t, int64(42), resp.ThemeID)
			assert.Equal(t, types.StatusDone, resp.Status)
			assert.ElementsMatch(t, tt.expected, stringsOf(t, body["results"]))
			assert.Equal(t, len(tt.expected), resp.Summary.Found)
			assert.Equal(t, resp.ScanID, resp.Summary.ID)
			assert.NotEmpty(t, resp.Summary.Fingerprint)
		})
	}
}

func TestScanReferencesExplicitTheme(t *testing.T) {
	source := testhelpers.StandardTheme()
	source.MainThemeID = 42
	s := newTestServer(t, source)

	result, _ := callTool(t, s, toolScanReferences, map[string]interface{}{"type": "menus", "theme_id": 7})
	require.False(t, result.IsError)
	assert.Equal(t, int64(7), decodeScan(t, result).ThemeID)
}

func TestScanReferencesInvalidArguments(t *testing.T) {
	s := newTestServer(t, testhelpers.StandardTheme())

	tests := []struct {
		name    string
		args    map[string]interface{}
		message string
	}{
		{"missing type", map[string]interface{}{}, "scan type is required"},
		{"typo", map[string]interface{}{"type": "metafeilds"}, `did you mean "metafields"`},
		{"sections", map[string]interface{}{"type": "sections"}, "use scan_sections"},
		{"negative batch", map[string]interface{}{"type": "menus", "batch_size": -1}, "invalid batch_size"},
		{"negative delay", map[string]interface{}{"type": "menus", "delay_ms": -5}, "invalid delay_ms"},
		{"wrong json type", map[string]interface{}{"type": 12}, "invalid parameters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, body := callTool(t, s, toolScanReferences, tt.args)
			assert.True(t, result.IsError)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, toolScanReferences, body["operation"])
			assert.Contains(t, body["error"], tt.message)
		})
	}
}

func TestScanReferencesUnknownArgumentsWarn(t *testing.T) {
	s := newTestServer(t, testhelpers.StandardTheme())

	result, body := callTool(t, s, toolScanReferences, map[string]interface{}{"type": "templates", "verbose": true})
	require.False(t, result.IsError)
	assert.Equal(t, []string{`unknown parameter "verbose" ignored`}, stringsOf(t, body["warnings"]))
	assert.Equal(t, []string{"alternate"}, stringsOf(t, body["results"]))
}

func TestScanSectionsTool(t *testing.T) {
	s := newTestServer(t, testhelpers.StandardTheme())

	result, body := callTool(t, s, toolScanSections, map[string]interface{}{"batch_size": 4, "delay_ms": 0})
	require.False(t, result.IsError, "unexpected error: %v", body["error"])

	var resp struct {
		Type    types.ScanType            `json:"type"`
		Results []types.SectionDescriptor `json:"results"`
		Summary types.ScanSummary         `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].(*mcp.TextContent).Text), &resp))
	assert.Equal(t, types.ScanSections, resp.Type)
	require.Len(t, resp.Results, 4)

	byName := map[string]types.SectionDescriptor{}
	for _, d := range resp.Results {
		byName[d.FileName] = d
	}
	assert.Equal(t, "Header", byName["header"].SchemaName)
	assert.Positive(t, byName["header"].AssignmentCount)
	assert.Equal(t, 0, byName["unused"].AssignmentCount)
	assert.Equal(t, 3, resp.Summary.Found, "header, footer and hero are assigned")
}

func TestScanThemeResolutionFailure(t *testing.T) {
	source := testhelpers.StandardTheme()
	source.ThemeErr = shopify.ErrNoActiveTheme
	s := newTestServer(t, source)

	result, body := callTool(t, s, toolScanSections, nil)
	assert.True(t, result.IsError)
	assert.Contains(t, body["error"], "no active theme found")
	assert.Empty(t, source.FetchedKeys(), "the scan never starts")
}

func TestScanListingFailureKeepsScanID(t *testing.T) {
	source := testhelpers.StandardTheme()
	source.ListErr = errors.New("403 forbidden")
	s := newTestServer(t, source)

	result, body := callTool(t, s, toolScanReferences, map[string]interface{}{"type": "menus"})
	assert.True(t, result.IsError)
	assert.Contains(t, body["error"], "403 forbidden")
	assert.NotEmpty(t, body["scan_id"])
	summary, ok := body["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(types.StatusError), summary["status"])
}

func (s *Server) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func TestScanSupersedesSameType(t *testing.T) {
	source := testhelpers.StandardTheme()
	source.Gate = make(chan struct{})
	s := newTestServer(t, source)

	first := make(chan *mcp.CallToolResult, 1)
	go func() {
		result, _ := callTool(t, s, toolScanReferences, map[string]interface{}{"type": "menus"})
		first <- result
	}()
	require.Eventually(t, func() bool { return s.activeCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	second := make(chan *mcp.CallToolResult, 1)
	go func() {
		result, _ := callTool(t, s, toolScanReferences, map[string]interface{}{"type": "menus"})
		second <- result
	}()

	select {
	case result := <-first:
		assert.True(t, result.IsError, "the superseded scan ends with an error")
	case <-time.After(5 * time.Second):
		t.Fatal("first scan was not superseded")
	}

	close(source.Gate)
	select {
	case result := <-second:
		assert.False(t, result.IsError)
	case <-time.After(5 * time.Second):
		t.Fatal("second scan did not finish")
	}
	assert.Equal(t, 0, s.activeCount())
}

func TestCloseCancelsRunningScans(t *testing.T) {
	source := testhelpers.StandardTheme()
	source.Gate = make(chan struct{})
	defer close(source.Gate)
	s := newTestServer(t, source)

	done := make(chan *mcp.CallToolResult, 1)
	go func() {
		result, _ := callTool(t, s, toolScanSections, nil)
		done <- result
	}()
	require.Eventually(t, func() bool { return s.activeCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())
	select {
	case result := <-done:
		assert.True(t, result.IsError)
	case <-time.After(5 * time.Second):
		t.Fatal("scan was not canceled")
	}
}

func TestInfoTool(t *testing.T) {
	s := newTestServer(t, testhelpers.StandardTheme())

	result, body := callTool(t, s, toolInfo, nil)
	require.False(t, result.IsError)
	assert.Equal(t, "shop.myshopify.com", body["store"])
	assert.ElementsMatch(t, []string{"info", "scan_references", "scan_sections"}, stringsOf(t, body["tools"]))
	assert.Contains(t, stringsOf(t, body["scan_types"]), "sections")

	result, body = callTool(t, s, toolInfo, map[string]interface{}{"tool": "Scan_References"})
	require.False(t, result.IsError)
	assert.Equal(t, toolScanReferences, body["name"])

	result, body = callTool(t, s, toolInfo, map[string]interface{}{"tool": "version"})
	require.False(t, result.IsError)
	assert.NotEmpty(t, body["build_id"])

	result, body = callTool(t, s, toolInfo, map[string]interface{}{"tool": "search"})
	assert.True(t, result.IsError)
	assert.Contains(t, body["error"], "available: info")
}

func TestUnknownToolHandler(t *testing.T) {
	s := newTestServer(t, testhelpers.StandardTheme())
	result, body := callTool(t, s, "nope", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, body["error"], "unknown tool: nope")
}
