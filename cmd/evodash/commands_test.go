package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/evodash/internal/config"
	"github.com/kalambet/evodash/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"feature request not found","type":"not_found","code":"NOT_FOUND"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useServer points every command at ts for the duration of the test.
func (ts *testServer) use(t *testing.T) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

// runCLI executes the root command and returns what it printed to stdout.
// Flags are reset afterwards because cobra commands are package globals.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	oldStdout := os.Stdout
	os.Stdout = w

	rootCmd.SetArgs(args)
	execErr := rootCmd.Execute()

	w.Close()
	os.Stdout = oldStdout
	out, _ := io.ReadAll(r)

	rootCmd.SetArgs(nil)
	resetFlags(rootCmd)
	return string(out), execErr
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

var ctx = context.Background()

func TestRequestSubmit(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/features/request": `{"featureRequest":{"id":"req-1","status":"completed"},"processing":{"success":true,"message":"ok","generatedFiles":["src/components/generated/TodoList.tsx"]}}`,
	})
	ts.use(t)

	out, err := runCLI(t, "request", "submit", "Add", "a", "todo", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "TodoList.tsx") {
		t.Errorf("output = %q, want generated file listed", out)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q", r.Auth)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["description"] != "Add a todo list" {
		t.Errorf("description = %q", body["description"])
	}
}

func TestRequestSubmit_FromFile(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/features/request": `{"featureRequest":{"id":"req-2","status":"completed"},"processing":{"success":true,"message":"ok"}}`,
	})
	ts.use(t)

	path := filepath.Join(t.TempDir(), "idea.txt")
	if err := os.WriteFile(path, []byte("Weather widget\nwith a 5 day forecast"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "request", "submit", "--file", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(ts.requests[0].Body, `5 day forecast`) {
		t.Errorf("body = %q", ts.requests[0].Body)
	}
}

func TestRequestSubmit_GenerationFailed(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/features/request": `{"featureRequest":{"id":"req-3","status":"failed"},"processing":{"success":false,"message":"generator timed out after 5m0s"}}`,
	})
	ts.use(t)

	_, err := runCLI(t, "request", "submit", "slow")
	if err == nil || !strings.Contains(err.Error(), "generation failed") {
		t.Fatalf("err = %v, want generation failed", err)
	}
}

func TestRequestSubmit_MissingDescription(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.use(t)

	_, err := runCLI(t, "request", "submit")
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("err = %v, want it to mention 'required'", err)
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(ts.requests))
	}
}

func TestRequestList_Query(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/features/requests": `[{"id":"0123456789","description":"Add a clock","status":"failed","timestamp":"2026-01-02T03:04:05Z"}]`,
	})
	ts.use(t)

	out, err := runCLI(t, "--no-color", "request", "list", "--status", "failed", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.requests[0].Path; got != "/api/features/requests?limit=5&status=failed" {
		t.Errorf("path = %q", got)
	}
	if !strings.Contains(out, "01234567") || !strings.Contains(out, "Add a clock") {
		t.Errorf("output = %q", out)
	}
}

func TestRequestShow_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.use(t)

	_, err := runCLI(t, "request", "show", "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "feature request not found") {
		t.Errorf("err = %q", err.Error())
	}
}

func TestFeaturesRefresh(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/features/refresh": `[{"id":"todolist","name":"TodoList","componentPath":"TodoList.tsx","status":"active"}]`,
	})
	ts.use(t)

	out, err := runCLI(t, "--no-color", "features", "refresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Method != http.MethodPost {
		t.Errorf("method = %q, want POST", ts.requests[0].Method)
	}
	if !strings.Contains(out, "TodoList") {
		t.Errorf("output = %q", out)
	}
}

func TestSpecShow_Formats(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/spec": `{"version":"1.0.3","features":{"TodoList":{"description":"todo","component":"TodoList.tsx","status":"active"}},"workflows":[]}`,
	})
	ts.use(t)

	out, err := runCLI(t, "spec", "show")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "version: 1.0.3") {
		t.Errorf("yaml output = %q", out)
	}

	out, err = runCLI(t, "spec", "show", "--format", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"version": "1.0.3"`) {
		t.Errorf("json output = %q", out)
	}

	if _, err := runCLI(t, "spec", "show", "--format", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestStatus_Degraded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded","services":{"database":"ok","generator":"error: not found"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	health, err := fetchHealth(ctx, client)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if health.Status != "degraded" || health.Services["generator"] != "error: not found" {
		t.Errorf("health = %+v", health)
	}
}

func TestStatus_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := fetchHealth(ctx, ts.client())
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"
	if _, err := client.get(ctx, "/api/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client.token = ""
	if _, err := client.get(ctx, "/api/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
	if ts.requests[1].Auth != "" {
		t.Errorf("auth without token = %q, want empty", ts.requests[1].Auth)
	}
}

func TestDecodeJSON_PlainErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(502)
		w.Write([]byte(`bad gateway`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	resp, err := client.get(ctx, "/api/spec")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	var result any
	err = decodeJSON(resp, &result)
	if err == nil || !strings.Contains(err.Error(), "502: bad gateway") {
		t.Errorf("err = %v", err)
	}
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"127.0.0.1", "http://127.0.0.1:4010"},
		{"", "http://127.0.0.1:4010"},
		{"0.0.0.0", "http://127.0.0.1:4010"},
		{"::1", "http://[::1]:4010"},
	}
	for _, tt := range tests {
		cfg := config.Config{}
		cfg.Server.Host = tt.host
		cfg.Server.Port = 4010
		if got := serverURL(cfg); got != tt.want {
			t.Errorf("serverURL(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestFormatRequestLine(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	fr := storage.FeatureRequest{
		ID:          "abcdef0123456789",
		Description: strings.Repeat("long ", 30),
		Status:      storage.StatusCompleted,
		Timestamp:   time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}
	line := formatRequestLine(fr)
	if !strings.HasPrefix(line, "abcdef01  2026-03-01 12:30  completed") {
		t.Errorf("line = %q", line)
	}
	if !strings.HasSuffix(line, "...") {
		t.Errorf("long description not truncated: %q", line)
	}
}

func TestPIDFile_RoundTrip(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestComponentsClose_ReverseOrder(t *testing.T) {
	var order []string
	c := &components{}
	c.closers = append(c.closers,
		func() error { order = append(order, "log"); return nil },
		func() error { order = append(order, "store"); return errors.New("busy") },
		func() error { order = append(order, "spec"); return nil },
	)
	c.close()
	if strings.Join(order, ",") != "spec,store,log" {
		t.Errorf("close order = %v", order)
	}
}
