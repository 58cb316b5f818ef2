package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/evodash/internal/apperr"
	"github.com/kalambet/evodash/internal/discovery"
	"github.com/kalambet/evodash/internal/specstore"
	"github.com/kalambet/evodash/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Spec      *specstore.Store
	Registry  *discovery.Registry
	Submitter Submitter
	Version   string
}

// NewMCPServer creates an MCP server with the evodash tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := server.NewMCPServer(
		"evodash",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("evodash: request new dashboard features in plain language and inspect what has been generated."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("submit_feature_request",
			mcp.WithDescription("Describe a dashboard feature in natural language. The generator builds it synchronously; this can take minutes."),
			mcp.WithString("description", mcp.Description("What the new feature should do (1-2000 characters)"), mcp.Required()),
		),
		mcpSubmitFeatureRequest(deps),
	)

	s.AddTool(
		mcp.NewTool("list_feature_requests",
			mcp.WithDescription("List past feature requests, newest first."),
			mcp.WithString("status", mcp.Description("Optional filter: pending, processing, completed or failed")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListFeatureRequests(deps),
	)

	s.AddTool(
		mcp.NewTool("list_features",
			mcp.WithDescription("List generated dashboard components, newest first."),
			mcp.WithBoolean("refresh", mcp.Description("Rescan the components directory first")),
		),
		mcpListFeatures(deps),
	)

	s.AddTool(
		mcp.NewTool("read_spec",
			mcp.WithDescription("Return the current spec document (features and workflows) as JSON."),
		),
		mcpReadSpec(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"evodash://spec",
			"Spec Document",
			mcp.WithResourceDescription("Current spec document as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSpec(deps),
	)

	return s
}

func mcpSubmitFeatureRequest(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		description, err := req.RequireString("description")
		if err != nil {
			return mcpError("description is required"), nil
		}

		res, err := deps.Submitter.Submit(ctx, description)
		if err != nil {
			if apperr.Is(err, apperr.CodeValidation) {
				return mcpError(err.Error()), nil
			}
			return mcpError(fmt.Sprintf("submission failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpListFeatureRequests(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := storage.RequestStatus(req.GetString("status", ""))
		if status != "" && !status.Valid() {
			return mcpError(fmt.Sprintf("unknown status %q", status)), nil
		}

		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}

		requests, err := deps.Store.ListFeatureRequests(status, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list feature requests: %v", err)), nil
		}
		return mcpJSON(requests)
	}
}

func mcpListFeatures(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if req.GetBool("refresh", false) || deps.Registry.RefreshedAt().IsZero() {
			features, err := deps.Registry.Refresh(ctx)
			if err != nil {
				return mcpError(fmt.Sprintf("scan failed: %v", err)), nil
			}
			return mcpJSON(features)
		}
		return mcpJSON(deps.Registry.List())
	}
}

func mcpReadSpec(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		doc, err := deps.Spec.Read()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read spec: %v", err)), nil
		}
		return mcpJSON(doc)
	}
}

func mcpResourceSpec(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		doc, err := deps.Spec.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read spec: %w", err)
		}

		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal spec: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
