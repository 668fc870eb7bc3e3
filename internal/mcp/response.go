package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse creates a standardized error response for MCP tools
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	return createErrorResponseWithData(operation, err, nil)
}

// createErrorResponseWithData is createErrorResponse plus extra fields, such as
// the partial results of a scan that hit its ceiling
func createErrorResponseWithData(operation string, err error, extra map[string]interface{}) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}
	for k, v := range extra {
		errorData[k] = v
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}

	// Tool failures are results with IsError set, not protocol errors, so the
	// model sees them and can correct its call.
	response.IsError = true
	return response, nil
}

// addWarningsToResponse adds a "warnings" field to a JSON response, or appends
// the warnings as text when the content is not a JSON object
func addWarningsToResponse(result *mcp.CallToolResult, warnings []string) {
	if result == nil || len(warnings) == 0 || len(result.Content) == 0 {
		return
	}
	textContent, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return
	}

	var responseData map[string]interface{}
	if err := json.Unmarshal([]byte(textContent.Text), &responseData); err == nil {
		responseData["warnings"] = warnings
		if updatedJSON, err := json.Marshal(responseData); err == nil {
			result.Content[0] = &mcp.TextContent{Text: string(updatedJSON)}
			return
		}
	}

	warningText := "\n\nWarnings:\n"
	for _, warning := range warnings {
		warningText += fmt.Sprintf("- %s\n", warning)
	}
	textContent.Text += warningText
}

// createResponseWithWarnings creates an MCP response with warnings included
func createResponseWithWarnings(data interface{}, warnings []string) (*mcp.CallToolResult, error) {
	response, err := createJSONResponse(data)
	if err != nil {
		return nil, err
	}
	addWarningsToResponse(response, warnings)
	return response, nil
}
