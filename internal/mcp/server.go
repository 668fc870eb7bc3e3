package mcp

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/standardbeagle/themescan/internal/config"
	"github.com/standardbeagle/themescan/internal/debug"
	scanerrors "github.com/standardbeagle/themescan/internal/errors"
	"github.com/standardbeagle/themescan/internal/scan"
	scanserver "github.com/standardbeagle/themescan/internal/server"
	"github.com/standardbeagle/themescan/internal/types"
	"github.com/standardbeagle/themescan/internal/version"
)

const (
	toolScanReferences = "scan_references"
	toolScanSections   = "scan_sections"
	toolInfo           = "info"
)

// Server exposes theme scans as MCP tools over stdio
type Server struct {
	cfg     *config.Config
	backend scanserver.Backend
	engine  *scan.Engine
	server  *mcp.Server
	logger  *zap.Logger

	mu     sync.Mutex
	active map[types.ScanType]*activeScan
}

type activeScan struct {
	id     string
	cancel context.CancelFunc
}

// ScanResponse is the result of a scan tool call
type ScanResponse struct {
	ScanID  string            `json:"scan_id"`
	Type    types.ScanType    `json:"type"`
	ThemeID int64             `json:"theme_id"`
	Status  types.ScanStatus  `json:"status"`
	Results interface{}       `json:"results"`
	Summary types.ScanSummary `json:"summary"`
}

// NewServer creates an MCP server scanning backend with cfg
func NewServer(cfg *config.Config, backend scanserver.Backend) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}

	s := &Server{
		cfg:     cfg,
		backend: backend,
		engine:  scan.NewEngine(backend, scanserver.EngineOptions(cfg), nil),
		logger:  debug.Component("mcp"),
		active:  make(map[types.ScanType]*activeScan),
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "themescan",
		Version: version.Version,
	}, nil)
	s.registerTools()

	s.logger.Info("MCP server initialized", zap.String("store", cfg.Store.Domain))
	return s, nil
}

// Engine returns the engine the tools scan with
func (s *Server) Engine() *scan.Engine {
	return s.engine
}

func throughputSchema() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"theme_id": {
			Type:        "integer",
			Description: "Theme to scan. Defaults to the configured theme, then the store's published (main) theme.",
		},
		"batch_size": {
			Type:        "integer",
			Description: "Assets fetched concurrently per batch (default from config)",
		},
		"delay_ms": {
			Type:        "integer",
			Description: "Pause between batches in milliseconds (default from config)",
		},
	}
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        toolInfo,
		Description: "Describe the themescan tools, scan types and the store being scanned. Use 'info' for an overview or pass a tool name for details.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"tool": {
					Type:        "string",
					Description: "Tool name to get information about (scan_references, scan_sections, version)",
				},
			},
		},
	}, s.handleInfo)

	refProps := throughputSchema()
	refProps["type"] = &jsonschema.Schema{
		Type:        "string",
		Enum:        []any{"metafields", "metaobjects", "menus", "templates"},
		Description: "What to look for in the theme's files",
	}
	s.server.AddTool(&mcp.Tool{
		Name:        toolScanReferences,
		Description: "Scan a Shopify theme for the metafield definitions, metaobject types, menus or alternate templates it references. Returns the referenced keys; anything defined in the store but missing from the result is unused by the theme.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: refProps,
			Required:   []string{"type"},
		},
	}, s.handleScanReferences)

	s.server.AddTool(&mcp.Tool{
		Name:        toolScanSections,
		Description: "List every section file of a Shopify theme with its schema name and the templates and section groups that use it. Sections with assignmentCount 0 are unused.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: throughputSchema(),
		},
	}, s.handleScanSections)
}

func (s *Server) handleScanReferences(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ScanReferencesParams
	if err := decodeArguments(req.Params.Arguments, &params); err != nil {
		return createErrorResponse(toolScanReferences, fmt.Errorf("invalid parameters: %w", err))
	}

	scanType, err := types.ParseScanType(params.Type)
	if err != nil {
		return createErrorResponse(toolScanReferences, err)
	}
	if scanType == types.ScanSections {
		return createErrorResponse(toolScanReferences, fmt.Errorf("use %s for section scans", toolScanSections))
	}

	return s.runScan(ctx, toolScanReferences, scanType, params.ThemeID, params.BatchSize, params.DelayMs, params.Warnings)
}

func (s *Server) handleScanSections(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ScanSectionsParams
	if err := decodeArguments(req.Params.Arguments, &params); err != nil {
		return createErrorResponse(toolScanSections, fmt.Errorf("invalid parameters: %w", err))
	}
	return s.runScan(ctx, toolScanSections, types.ScanSections, params.ThemeID, params.BatchSize, params.DelayMs, params.Warnings)
}

// runScan resolves the theme and runs one scan to completion. A newer call of
// the same scan type cancels an older one still running.
func (s *Server) runScan(ctx context.Context, operation string, scanType types.ScanType, themeID int64, batchSize int, delayMs *int, unknown []UnknownField) (*mcp.CallToolResult, error) {
	if batchSize < 0 {
		return createErrorResponse(operation, fmt.Errorf("invalid batch_size %d", batchSize))
	}
	if delayMs != nil && *delayMs < 0 {
		return createErrorResponse(operation, fmt.Errorf("invalid delay_ms %d", *delayMs))
	}

	configured := themeID
	if configured == 0 {
		configured = s.cfg.Store.ThemeID
	}
	resolved, err := s.backend.ResolveThemeID(ctx, configured)
	if err != nil {
		err = scanerrors.NewScanError(scanerrors.ErrorTypeTheme, scanType, types.StatusInit, err)
		s.logger.Error("theme resolution failed", zap.Error(err))
		return createErrorResponse(operation, err)
	}

	id := uuid.NewString()
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	entry := &activeScan{id: id, cancel: cancel}
	s.register(scanType, entry)
	defer s.deregister(scanType, entry)

	scanReq := scan.Request{ID: id, Type: scanType, ThemeID: resolved}
	if batchSize > 0 || delayMs != nil {
		tp := scan.Throughput{BatchSize: batchSize, Delay: -1}
		if delayMs != nil {
			tp.Delay = time.Duration(*delayMs) * time.Millisecond
		}
		scanReq.Throughput = &tp
	}

	res := s.engine.Run(scanCtx, scanReq, func(p types.ScanProgress) {
		s.logger.Debug("scan progress",
			zap.String("scan_id", id),
			zap.Int("progress", p.Progress),
			zap.String("status", string(p.Status)),
			zap.String("message", p.Message))
	})

	summary := res.Summary()
	if res.Err != nil {
		return createErrorResponseWithData(operation, res.Err, map[string]interface{}{
			"scan_id":         id,
			"type":            scanType,
			"partial_results": res.Payload(),
			"summary":         summary,
		})
	}

	return createResponseWithWarnings(ScanResponse{
		ScanID:  id,
		Type:    scanType,
		ThemeID: resolved,
		Status:  types.StatusDone,
		Results: res.Payload(),
		Summary: summary,
	}, warningStrings(unknown))
}

func (s *Server) register(t types.ScanType, entry *activeScan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.active[t]; ok {
		s.logger.Info("superseding running scan",
			zap.String("scan_type", t.String()),
			zap.String("superseded", prev.id),
			zap.String("scan_id", entry.id))
		prev.cancel()
	}
	s.active[t] = entry
}

func (s *Server) deregister(t types.ScanType, entry *activeScan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[t] == entry {
		delete(s.active, t)
	}
}

func (s *Server) handleInfo(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params InfoParams
	if err := decodeArguments(req.Params.Arguments, &params); err != nil {
		return createErrorResponse(toolInfo, fmt.Errorf("invalid parameters: %w", err))
	}
	warnings := warningStrings(params.Warnings)

	switch tool := strings.ToLower(strings.TrimSpace(params.Tool)); tool {
	case "":
		return createResponseWithWarnings(s.overview(), warnings)
	case "version":
		return createResponseWithWarnings(map[string]interface{}{
			"server_name":    "themescan",
			"server_version": version.FullInfo(),
			"build_id":       version.BuildID(),
			"go_version":     runtime.Version(),
			"platform":       runtime.GOOS + "/" + runtime.GOARCH,
		}, warnings)
	case toolScanReferences, toolScanSections:
		return createResponseWithWarnings(toolHelp[tool], warnings)
	default:
		names := []string{toolInfo, "version"}
		for name := range toolHelp {
			names = append(names, name)
		}
		sort.Strings(names)
		return createErrorResponse(toolInfo, fmt.Errorf("unknown tool %q (available: %s)", params.Tool, strings.Join(names, ", ")))
	}
}

func (s *Server) overview() map[string]interface{} {
	scanTypes := make([]string, len(types.AllScanTypes))
	for i, t := range types.AllScanTypes {
		scanTypes[i] = t.String()
	}
	opts := s.engine.Options()
	return map[string]interface{}{
		"server":     "themescan",
		"version":    version.Version,
		"store":      s.cfg.Store.Domain,
		"theme_id":   s.cfg.Store.ThemeID,
		"scan_types": scanTypes,
		"tools":      []string{toolInfo, toolScanReferences, toolScanSections},
		"throughput": map[string]interface{}{
			"batch_size": opts.Throughput.BatchSize,
			"delay_ms":   opts.Throughput.Delay.Milliseconds(),
			"timeout":    opts.Timeout.String(),
		},
	}
}

var toolHelp = map[string]map[string]interface{}{
	toolScanReferences: {
		"name":        toolScanReferences,
		"description": "Find which store definitions a theme references",
		"parameters": map[string]string{
			"type":       "metafields | metaobjects | menus | templates (required)",
			"theme_id":   "theme to scan, defaults to the configured or published theme",
			"batch_size": "concurrent fetches per batch",
			"delay_ms":   "pause between batches",
		},
		"results": "keys of the definitions the theme uses: namespace.key for metafields, type for metaobjects, handle for menus, suffix for templates",
		"example": map[string]interface{}{"type": "metafields"},
	},
	toolScanSections: {
		"name":        toolScanSections,
		"description": "Map every section file to the templates and section groups that use it",
		"parameters": map[string]string{
			"theme_id":   "theme to scan, defaults to the configured or published theme",
			"batch_size": "concurrent fetches per batch",
			"delay_ms":   "pause between batches",
		},
		"results": "section descriptors {id, fileName, key, schemaName, assignmentCount, assignments}",
		"example": map[string]interface{}{},
	},
}

// Start serves the tools over stdio until ctx is done or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting MCP server with stdio transport")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close cancels scans still running
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, entry := range s.active {
		entry.cancel()
		delete(s.active, t)
	}
	return nil
}

// GetHandlerForTesting returns a handler function for testing purposes
func (s *Server) GetHandlerForTesting(toolName string) func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch toolName {
	case toolScanReferences:
		return s.handleScanReferences
	case toolScanSections:
		return s.handleScanSections
	case toolInfo:
		return s.handleInfo
	default:
		return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			result, _ := createErrorResponse("GetHandlerForTesting", fmt.Errorf("unknown tool: %s", toolName))
			return result, nil
		}
	}
}
