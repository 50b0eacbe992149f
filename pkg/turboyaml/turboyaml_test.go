package turboyaml_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/LiboWorks/turboyaml/internal/config"
	"github.com/LiboWorks/turboyaml/pkg/turboyaml"
)

// fakeOpenAI answers /chat/completions. Each request is answered by reply,
// which gets the decoded request body and the 1-based call number.
type fakeOpenAI struct {
	mu    sync.Mutex
	calls int
	reply func(req map[string]any, call int) (int, string)
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	_ = json.NewDecoder(r.Body).Decode(&payload)

	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	status, body := f.reply(payload, call)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func (f *fakeOpenAI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeOpenAI) start(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv.URL + "/v1"
}

func completion(content string) (int, string) {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return http.StatusOK, string(b)
}

func apiError(status int) (int, string) {
	return status, `{"error": {"message": "try later", "type": "server_error"}}`
}

// systemPrompt returns the system message of a decoded chat request.
func systemPrompt(req map[string]any) string {
	msgs, _ := req["messages"].([]any)
	if len(msgs) == 0 {
		return ""
	}
	m, _ := msgs[0].(map[string]any)
	s, _ := m["content"].(string)
	return s
}

func modelFromPrompt(req map[string]any) string {
	const marker = "MODEL NAME: "
	sys := systemPrompt(req)
	i := strings.Index(sys, marker)
	if i < 0 {
		return ""
	}
	rest := sys[i+len(marker):]
	return rest[:strings.Index(rest, "\n")]
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestConvert(t *testing.T) {
	cleanEnv(t)
	fake := &fakeOpenAI{reply: func(req map[string]any, _ int) (int, string) {
		return completion("```yaml\n- name: " + modelFromPrompt(req) + "\n  description: documented\n```")
	}}
	url := fake.start(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "customers.sql"), "SELECT * FROM raw.customers")
	writeFile(t, filepath.Join(dir, "orders.sql"), "SELECT * FROM raw.orders")
	writeFile(t, filepath.Join(dir, "README.md"), "not a model")

	var out bytes.Buffer
	result, err := turboyaml.Convert(context.Background(), []string{dir},
		turboyaml.WithAPIKey("sk-test"),
		turboyaml.WithBaseURL(url),
		turboyaml.WithOutput(&out),
	)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if err := result.Err(); err != nil {
		t.Fatalf("ConvertResult.Err() = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "schema.yml"))
	if err != nil {
		t.Fatal(err)
	}
	want := "version: 2\n\nmodels:\n" +
		"  - name: customers\n    description: documented\n\n" +
		"\n  - name: orders\n    description: documented\n\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("schema.yml mismatch (-want +got):\n%s", diff)
	}

	if fake.count() != 2 {
		t.Errorf("requests = %d, want 2", fake.count())
	}
	if diff := cmp.Diff([]string{"orders"}, result.Files[1].Models); diff != "" {
		t.Errorf("Models mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(out.String(), "YAML saved at") {
		t.Errorf("progress output = %q", out.String())
	}
}

func TestConvertZeroTemperature(t *testing.T) {
	cleanEnv(t)
	var temps []any
	var mu sync.Mutex
	fake := &fakeOpenAI{reply: func(req map[string]any, _ int) (int, string) {
		mu.Lock()
		temps = append(temps, req["temperature"])
		mu.Unlock()
		return completion("- name: orders")
	}}
	url := fake.start(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "orders.sql"), "SELECT 1")

	_, err := turboyaml.Convert(context.Background(), []string{dir},
		turboyaml.WithAPIKey("sk-test"),
		turboyaml.WithBaseURL(url),
		turboyaml.WithTemperature(0),
	)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if len(temps) != 1 {
		t.Fatalf("requests = %d, want 1", len(temps))
	}
	if temp, ok := temps[0].(float64); !ok || temp > 0.001 {
		t.Errorf("temperature = %v, want close to 0", temps[0])
	}
}

func TestConvertCredential(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		env     string
		wantErr error
	}{
		{name: "missing", wantErr: config.ErrMissingAPIKey},
		{name: "malformed flag", flag: "abc", wantErr: config.ErrInvalidAPIKey},
		{name: "malformed flag and env", flag: "abc", env: "key-123", wantErr: config.ErrInvalidAPIKey},
		{name: "malformed env", env: "key-123", wantErr: config.ErrInvalidAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			t.Setenv("OPENAI_API_KEY", tt.env)
			config.Reset()

			fake := &fakeOpenAI{reply: func(map[string]any, int) (int, string) { return completion("- name: x") }}
			url := fake.start(t)

			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "orders.sql"), "SELECT 1")

			_, err := turboyaml.Convert(context.Background(), []string{dir},
				turboyaml.WithAPIKey(tt.flag),
				turboyaml.WithBaseURL(url),
			)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Convert() error = %v, want %v", err, tt.wantErr)
			}
			if fake.count() != 0 {
				t.Errorf("no request should be sent, got %d", fake.count())
			}
			if _, err := os.Stat(filepath.Join(dir, "schema.yml")); !os.IsNotExist(err) {
				t.Error("schema.yml should not be created")
			}
		})
	}
}

func TestConvertKeyFromEnvironment(t *testing.T) {
	cleanEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	config.Reset()

	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, body := completion("- name: orders")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "orders.sql"), "SELECT 1")

	if _, err := turboyaml.Convert(context.Background(), []string{dir}, turboyaml.WithBaseURL(srv.URL+"/v1")); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if auth != "Bearer sk-env" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestConvertServiceFailure(t *testing.T) {
	cleanEnv(t)
	fake := &fakeOpenAI{reply: func(req map[string]any, _ int) (int, string) {
		if modelFromPrompt(req) == "broken" {
			return apiError(http.StatusInternalServerError)
		}
		return completion("- name: " + modelFromPrompt(req))
	}}
	url := fake.start(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.sql"), "SELECT 1")
	writeFile(t, filepath.Join(dir, "orders.sql"), "SELECT 2")

	var out bytes.Buffer
	result, err := turboyaml.Convert(context.Background(), []string{dir},
		turboyaml.WithAPIKey("sk-test"),
		turboyaml.WithBaseURL(url),
		turboyaml.WithOutput(&out),
	)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	failed := result.Failed()
	if len(failed) != 1 || !strings.HasSuffix(failed[0].Input, "broken.sql") {
		t.Fatalf("Failed() = %+v", failed)
	}
	if result.Err() == nil {
		t.Error("Err() should report the failed file")
	}
	if !strings.Contains(out.String(), "Oops! An unexpected error occurred") {
		t.Errorf("expected the generic failure message, got %q", out.String())
	}

	data, _ := os.ReadFile(filepath.Join(dir, "schema.yml"))
	if !strings.Contains(string(data), "- name: orders") || strings.Contains(string(data), "broken") {
		t.Errorf("schema.yml = %q", data)
	}
}

const dbtLog = `============================== 2024-01-02 10:00:00.000000 | aaa-111 ==============================
10:00:00.100000 [info ] [MainThread]: Completed successfully
============================== 2024-01-03 09:30:00.000000 | bbb-222 ==============================
09:30:02.000000 [error] [Thread-1  ]: Database Error in model orders (models/orders.sql)
`

func TestAnalyzeLogs(t *testing.T) {
	cleanEnv(t)
	var gotJSONMode bool
	fake := &fakeOpenAI{reply: func(req map[string]any, call int) (int, string) {
		if call == 1 {
			return apiError(http.StatusServiceUnavailable)
		}
		rf, _ := req["response_format"].(map[string]any)
		gotJSONMode = rf["type"] == "json_object"
		return completion(`{"errors": ["Database Error in model orders"], "keywords": ["Database Error"], "models": ["orders"], "corrections": ["Check the orders query"]}`)
	}}
	url := fake.start(t)

	path := filepath.Join(t.TempDir(), "dbt.log")
	writeFile(t, path, dbtLog)

	report, err := turboyaml.AnalyzeLogs(context.Background(), path, turboyaml.SectionByKey("2"),
		turboyaml.WithAPIKey("sk-test"),
		turboyaml.WithBaseURL(url),
		turboyaml.WithRetry(3, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("AnalyzeLogs() error = %v", err)
	}

	if report.SectionID != "bbb-222" {
		t.Errorf("SectionID = %q", report.SectionID)
	}
	if diff := cmp.Diff([]string{"orders"}, report.Models); diff != "" {
		t.Errorf("Models mismatch (-want +got):\n%s", diff)
	}
	if fake.count() != 2 {
		t.Errorf("requests = %d, want 2 (one retry)", fake.count())
	}
	if !gotJSONMode {
		t.Error("analysis should request a JSON object response")
	}

	var buf bytes.Buffer
	if err := report.Render(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Check the orders query") {
		t.Errorf("Render() = %q", buf.String())
	}
}

func TestAnalyzeLogsSelectionErrors(t *testing.T) {
	cleanEnv(t)
	fake := &fakeOpenAI{reply: func(map[string]any, int) (int, string) { return completion(`{}`) }}
	url := fake.start(t)

	path := filepath.Join(t.TempDir(), "dbt.log")
	writeFile(t, path, dbtLog)

	_, err := turboyaml.AnalyzeLogs(context.Background(), path, turboyaml.SectionByKey("zzz"),
		turboyaml.WithAPIKey("sk-test"), turboyaml.WithBaseURL(url))
	if err == nil {
		t.Error("expected an error for an unknown section")
	}

	_, err = turboyaml.AnalyzeLogs(context.Background(), filepath.Join(t.TempDir(), "missing.log"), nil,
		turboyaml.WithAPIKey("sk-test"), turboyaml.WithBaseURL(url))
	if err == nil {
		t.Error("expected an error for a missing log")
	}

	if fake.count() != 0 {
		t.Errorf("no request should be sent, got %d", fake.count())
	}
}

func TestAnalyzeLogsPrompt(t *testing.T) {
	cleanEnv(t)
	fake := &fakeOpenAI{reply: func(map[string]any, int) (int, string) { return completion(`{"errors": []}`) }}
	url := fake.start(t)

	path := filepath.Join(t.TempDir(), "dbt.log")
	writeFile(t, path, dbtLog)

	var menu bytes.Buffer
	report, err := turboyaml.AnalyzeLogs(context.Background(), path,
		turboyaml.PromptSection(strings.NewReader("aaa-111\n"), &menu),
		turboyaml.WithAPIKey("sk-test"), turboyaml.WithBaseURL(url))
	if err != nil {
		t.Fatalf("AnalyzeLogs() error = %v", err)
	}
	if report.SectionID != "aaa-111" {
		t.Errorf("SectionID = %q", report.SectionID)
	}
	if !strings.Contains(menu.String(), "[2]") {
		t.Errorf("menu = %q", menu.String())
	}
}
