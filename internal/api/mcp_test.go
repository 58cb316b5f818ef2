package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/evodash/internal/discovery"
	"github.com/kalambet/evodash/internal/orchestrator"
	"github.com/kalambet/evodash/internal/specstore"
	"github.com/kalambet/evodash/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return MCPDeps{
		Store:     env.deps.Store,
		Spec:      env.deps.Spec,
		Registry:  env.deps.Registry,
		Submitter: env.deps.Submitter,
		Version:   "test",
	}, env
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- submit_feature_request ---

func TestMCPSubmitFeatureRequest(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	env.gen.files = []string{"TodoList.tsx"}
	handler := mcpSubmitFeatureRequest(deps)

	req := makeCallToolRequest("submit_feature_request", map[string]interface{}{
		"description": "Add a todo list with checkboxes",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var res orchestrator.SubmitResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if res.FeatureRequest.Status != storage.StatusCompleted {
		t.Errorf("status = %q, want completed", res.FeatureRequest.Status)
	}

	stored, err := deps.Store.GetFeatureRequest(res.FeatureRequest.ID)
	if err != nil {
		t.Fatalf("request not persisted: %v", err)
	}
	if stored.Description != "Add a todo list with checkboxes" {
		t.Errorf("description = %q", stored.Description)
	}
}

func TestMCPSubmitFeatureRequest_Validation(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSubmitFeatureRequest(deps)

	for _, args := range []map[string]interface{}{
		{},
		{"description": "   "},
		{"description": strings.Repeat("x", 2001)},
	} {
		result, err := handler(context.Background(), makeCallToolRequest("submit_feature_request", args))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
}

func TestMCPSubmitFeatureRequest_GeneratorFailure(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	env.gen.fail = "generator timed out after 5m0s"

	result, err := mcpSubmitFeatureRequest(deps)(context.Background(),
		makeCallToolRequest("submit_feature_request", map[string]interface{}{"description": "slow thing"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A failed generation is still a recorded outcome, not a tool error.
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	var res orchestrator.SubmitResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &res); err != nil {
		t.Fatal(err)
	}
	if res.Processing.Success || !strings.Contains(res.Processing.Message, "timed out") {
		t.Errorf("processing = %+v", res.Processing)
	}
}

// --- list_feature_requests ---

func TestMCPListFeatureRequests(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	for _, d := range []string{"one", "two", "three"} {
		if _, err := deps.Store.CreateFeatureRequest(d); err != nil {
			t.Fatal(err)
		}
	}
	handler := mcpListFeatureRequests(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_feature_requests", map[string]interface{}{
		"limit": 2,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list []storage.FeatureRequest
	if err := json.Unmarshal([]byte(toolText(t, result)), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Description != "three" {
		t.Errorf("list = %+v", list)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("list_feature_requests", map[string]interface{}{
		"status": "completed",
	}))
	if text := toolText(t, result); text != "[]" {
		t.Errorf("completed filter = %s, want []", text)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("list_feature_requests", map[string]interface{}{
		"status": "bogus",
	}))
	if !result.IsError {
		t.Error("expected error for unknown status")
	}
}

// --- list_features ---

func TestMCPListFeatures(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	handler := mcpListFeatures(deps)

	// First call scans even without refresh.
	result, err := handler(context.Background(), makeCallToolRequest("list_features", nil))
	if err != nil {
		t.Fatal(err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("features = %s, want []", text)
	}

	env.gen.files = []string{"WeatherCard.tsx"}
	if _, err := env.gen.Generate(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("list_features", nil))
	if text := toolText(t, result); text != "[]" {
		t.Errorf("cached features = %s, want []", text)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("list_features", map[string]interface{}{
		"refresh": true,
	}))
	var features []discovery.Feature
	if err := json.Unmarshal([]byte(toolText(t, result)), &features); err != nil {
		t.Fatal(err)
	}
	if len(features) != 1 || features[0].Name != "WeatherCard" {
		t.Errorf("features = %+v", features)
	}
}

// --- read_spec / evodash://spec ---

func TestMCPReadSpec(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpReadSpec(deps)(context.Background(), makeCallToolRequest("read_spec", nil))
	if err != nil {
		t.Fatal(err)
	}
	var doc specstore.Document
	if err := json.Unmarshal([]byte(toolText(t, result)), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Version != specstore.InitialVersion {
		t.Errorf("version = %q", doc.Version)
	}
}

func TestMCPResourceSpec(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	contents, err := mcpResourceSpec(deps)(context.Background(), makeReadResourceRequest("evodash://spec"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "evodash://spec" || tc.MIMEType != "application/json" {
		t.Errorf("contents = %+v", tc)
	}
	if !strings.Contains(tc.Text, `"version":"1.0.0"`) {
		t.Errorf("text = %s", tc.Text)
	}
}

func TestNewMCPServer_RegistersTools(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	s := NewMCPServer(deps)

	msg := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp := s.HandleMessage(context.Background(), msg)
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"submit_feature_request", "list_feature_requests", "list_features", "read_spec"} {
		if !strings.Contains(string(b), `"name":"`+name+`"`) {
			t.Errorf("tool %q not listed in %s", name, b)
		}
	}
}
