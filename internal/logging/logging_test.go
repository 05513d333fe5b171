package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

// capture points the global logger at a buffer for the test and restores
// the stderr logger afterwards.
func capture(t *testing.T, level Level, format Format) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	InitLoggerWriter(&buf, level, format)
	t.Cleanup(func() { InitLoggerWriter(os.Stderr, LevelInfo, FormatJSON) })
	return &buf
}

// records decodes JSON log lines.
func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestParseLevelAndFormat(t *testing.T) {
	levels := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"", LevelInfo, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range levels {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}

	formats := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"xml", FormatText, true},
	}
	for _, tt := range formats {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestInitLoggerWriterLevels(t *testing.T) {
	tests := []struct {
		name  string
		level Level
		want  []string
	}{
		{"debug", LevelDebug, []string{"d", "i", "w"}},
		{"info", LevelInfo, []string{"i", "w"}},
		{"warn", LevelWarn, []string{"w"}},
		{"error", LevelError, nil},
		{"unknown falls back to info", Level(99), []string{"i", "w"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t, tt.level, FormatJSON)
			ctx := context.Background()
			DebugContext(ctx, "d")
			Info("i")
			Warn("w")

			var got []string
			for _, rec := range records(t, buf) {
				got = append(got, rec["msg"].(string))
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("messages = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimestampFormat(t *testing.T) {
	buf := capture(t, LevelInfo, FormatJSON)
	Info("stamp")
	recs := records(t, buf)
	if len(recs) != 1 {
		t.Fatalf("records = %v", recs)
	}
	ts, _ := recs[0]["time"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("time %q is not RFC3339: %v", ts, err)
	}
}

func TestTextFormat(t *testing.T) {
	buf := capture(t, LevelInfo, FormatText)
	Error("save failed", "path", "world.otbm")
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "path=world.otbm") {
		t.Errorf("text output = %q", out)
	}
}

func TestRequestIDContext(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("GetRequestID(empty) = %q", id)
	}
	//nolint:staticcheck // nil context is accepted
	if id := GetRequestID(nil); id != "" {
		t.Errorf("GetRequestID(nil) = %q", id)
	}
	ctx := WithRequestID(context.Background(), "abc")
	if id := GetRequestID(ctx); id != "abc" {
		t.Errorf("GetRequestID() = %q", id)
	}
	if id := GetRequestID(context.WithValue(context.Background(), RequestIDKey, 42)); id != "" {
		t.Errorf("GetRequestID(non-string) = %q", id)
	}

	buf := capture(t, LevelInfo, FormatJSON)
	InfoContext(ctx, "with id")
	LoggerFromContext(context.Background()).Info("without id")
	recs := records(t, buf)
	if len(recs) != 2 {
		t.Fatalf("records = %v", recs)
	}
	if recs[0]["request_id"] != "abc" {
		t.Errorf("first record = %v", recs[0])
	}
	if _, ok := recs[1]["request_id"]; ok {
		t.Errorf("second record = %v", recs[1])
	}
}

func TestEventHelpers(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	tests := []struct {
		name  string
		log   func()
		msg   string
		level string
		want  map[string]any
	}{
		{
			name: "map loaded",
			log: func() {
				MapLoaded(ctx, "a.otbm", "otbm", "v3/8.60", 10, 25, 1, 1500*time.Millisecond, "digest", "d1")
			},
			msg: "map_loaded", level: "INFO",
			want: map[string]any{"path": "a.otbm", "version": "v3/8.60", "tiles": 10.0, "items": 25.0, "duration_ms": 1500.0, "digest": "d1"},
		},
		{
			name:  "map saved",
			log:   func() { MapSaved(ctx, "b.otmm", "otmm", "v2/10.98", 4, 0, time.Second) },
			msg:   "map_saved",
			level: "INFO",
			want:  map[string]any{"format": "otmm", "tiles": 4.0, "warnings": 0.0},
		},
		{
			name:  "conversion step",
			log:   func() { ConversionStep(ctx, "v3/8.60", "v3/12.00", 3, 7, "kind", "client") },
			msg:   "conversion_step",
			level: "INFO",
			want:  map[string]any{"from": "v3/8.60", "items_converted": 3.0, "items_unchanged": 7.0, "kind": "client"},
		},
		{
			name:  "operation error",
			log:   func() { OperationError(ctx, "load", "c.otbm", errors.New("truncated node")) },
			msg:   "operation_error",
			level: "ERROR",
			want:  map[string]any{"operation": "load", "error": "truncated node"},
		},
		{
			name:  "job event",
			log:   func() { JobEvent(ctx, "job-1", "started", "input", "a.otbm") },
			msg:   "job_event",
			level: "INFO",
			want:  map[string]any{"job_id": "job-1", "event": "started", "input": "a.otbm"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t, LevelInfo, FormatJSON)
			tt.log()
			recs := records(t, buf)
			if len(recs) != 1 {
				t.Fatalf("records = %v", recs)
			}
			rec := recs[0]
			if rec["msg"] != tt.msg || rec["level"] != tt.level || rec["request_id"] != "req-1" {
				t.Errorf("record = %v", rec)
			}
			for k, v := range tt.want {
				if rec[k] != v {
					t.Errorf("%s = %v, want %v", k, rec[k], v)
				}
			}
		})
	}
}

func TestServerEvents(t *testing.T) {
	buf := capture(t, LevelInfo, FormatJSON)
	ServerStartup("rest_api", "http", 8080, "base_dir", "/maps")
	WebSocketEvent("client_connected", 2)
	SecurityEvent("unauthorized_request", "auth", "path", "/api/jobs")

	recs := records(t, buf)
	if len(recs) != 3 {
		t.Fatalf("records = %v", recs)
	}
	if recs[0]["msg"] != "server_startup" || recs[0]["port"] != 8080.0 || recs[0]["base_dir"] != "/maps" {
		t.Errorf("startup = %v", recs[0])
	}
	if recs[1]["msg"] != "websocket_event" || recs[1]["client_count"] != 2.0 {
		t.Errorf("websocket = %v", recs[1])
	}
	if recs[2]["msg"] != "security_event" || recs[2]["level"] != "WARN" {
		t.Errorf("security = %v", recs[2])
	}
}

func TestCombinedMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name:       "generated id, implicit 200",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) },
			wantStatus: http.StatusOK,
		},
		{
			name:   "client id, explicit status",
			header: "client-7",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t, LevelInfo, FormatJSON)
			var seen string
			h := CombinedMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
				tt.handler(w, r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/info?path=a.otbm", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			id := rec.Header().Get("X-Request-ID")
			if id == "" || id != seen {
				t.Errorf("response id %q, handler saw %q", id, seen)
			}
			if tt.header != "" && id != tt.header {
				t.Errorf("id = %q, want %q", id, tt.header)
			}
			if tt.header == "" && len(id) != 16 {
				t.Errorf("generated id %q", id)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			recs := records(t, buf)
			if len(recs) != 1 {
				t.Fatalf("records = %v", recs)
			}
			r := recs[0]
			if r["msg"] != "http_request" || r["path"] != "/api/info" || r["request_id"] != id ||
				r["status_code"] != float64(tt.wantStatus) {
				t.Errorf("request log = %v", r)
			}
		})
	}
}

func TestResponseWriterHijack(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("Hijack() on a recorder succeeded")
	}
	if rw.Unwrap() == nil {
		t.Error("Unwrap() = nil")
	}
}
