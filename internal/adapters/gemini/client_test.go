package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/reelscript/internal/task"
)

func sse(events ...string) string {
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "data: %s\r\n\r\n", e)
	}
	return b.String()
}

func textEvent(text, finish string) string {
	payload := map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": text}}},
			"finishReason": finish,
		}},
	}
	if finish == "" {
		delete(payload["candidates"].([]map[string]any)[0], "finishReason")
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func TestStreamContentYieldsChunksInOrder(t *testing.T) {
	var captured generateRequest
	var path, alt, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		alt = r.URL.Query().Get("alt")
		key = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sse(textEvent("Hello ", ""), textEvent("world.", "STOP")))
	}))
	defer srv.Close()

	client := New("g-key", Config{BaseURL: srv.URL})
	stream, err := client.StreamContent(context.Background(), "https://www.youtube.com/watch?v=B", "")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer stream.Close()

	var chunks []string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		chunks = append(chunks, chunk)
	}
	if strings.Join(chunks, "|") != "Hello |world." {
		t.Fatalf("chunks = %q", chunks)
	}
	if stream.FinishReason() != "STOP" {
		t.Fatalf("finish reason = %q", stream.FinishReason())
	}
	if path != "/models/gemini-2.0-flash-001:streamGenerateContent" || alt != "sse" || key != "g-key" {
		t.Fatalf("unexpected request %s alt=%s key=%s", path, alt, key)
	}
	parts := captured.Contents[0].Parts
	if parts[0].FileData == nil || parts[0].FileData.MimeType != "video/*" || parts[0].FileData.FileURI != "https://www.youtube.com/watch?v=B" {
		t.Fatalf("unexpected file part %+v", parts[0])
	}
	if parts[1].Text != ExtractInstruction {
		t.Fatalf("unexpected instruction %q", parts[1].Text)
	}
	cfg := captured.GenerationConfig
	if cfg.Temperature == nil || *cfg.Temperature != 1 || cfg.TopP == nil || *cfg.TopP != 0.95 || cfg.MaxOutputTokens != 8192 {
		t.Fatalf("unexpected generation config %+v", cfg)
	}
	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != "TEXT" {
		t.Fatalf("unexpected modalities %v", cfg.ResponseModalities)
	}
}

func TestStreamWithoutFinishReasonIsIncomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sse(textEvent("Hello ", "")))
	}))
	defer srv.Close()

	stream, err := New("k", Config{BaseURL: srv.URL}).StreamContent(context.Background(), "u", "")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer stream.Close()
	_, err = Collect(stream)
	if !errors.Is(err, task.ErrExtractionIncomplete) {
		t.Fatalf("expected ErrExtractionIncomplete, got %v", err)
	}
}

func TestStreamErrorEventIsIncomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sse(textEvent("Hello ", ""), `{"error": {"code": 500, "message": "internal"}}`))
	}))
	defer srv.Close()

	stream, err := New("k", Config{BaseURL: srv.URL}).StreamContent(context.Background(), "u", "")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer stream.Close()
	first, err := stream.Recv()
	if err != nil || first != "Hello " {
		t.Fatalf("first chunk = %q %v", first, err)
	}
	if _, err := stream.Recv(); !errors.Is(err, task.ErrExtractionIncomplete) {
		t.Fatalf("expected ErrExtractionIncomplete, got %v", err)
	}
}

func TestStreamDeadlineMidStreamIsIncomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sse(textEvent("Hello ", "")))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	stream, err := New("k", Config{BaseURL: srv.URL}).StreamContent(ctx, "u", "")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer stream.Close()
	_, err = Collect(stream)
	if !errors.Is(err, task.ErrExtractionIncomplete) {
		t.Fatalf("expected ErrExtractionIncomplete, got %v", err)
	}
}

func TestStreamContentRejectsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error": {"code": 503, "message": "overloaded"}}`)
	}))
	defer srv.Close()
	_, err := New("k", Config{BaseURL: srv.URL}).StreamContent(context.Background(), "u", "")
	if !errors.Is(err, task.ErrSourceUnavailable) || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestMissingKeyIsCredentialsMissing(t *testing.T) {
	client := New("", Config{})
	if _, err := client.StreamContent(context.Background(), "u", ""); !errors.Is(err, task.ErrCredentialsMissing) {
		t.Fatalf("expected ErrCredentialsMissing, got %v", err)
	}
	if _, err := client.Generate(context.Background(), GenerateRequest{Content: "x"}); !errors.Is(err, task.ErrConfigurationMissing) {
		t.Fatalf("credentials missing should also be configuration missing, got %v", err)
	}
}

func TestGenerateSendsInstructionAndContent(t *testing.T) {
	var captured generateRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = io.WriteString(w, textEvent("  SCRIPT: hi  ", "STOP"))
	}))
	defer srv.Close()

	client := New("k", Config{BaseURL: srv.URL, GenerationModel: "gen-model"})
	out, err := client.Generate(context.Background(), GenerateRequest{Instruction: "be brief", Content: "Hello world."})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "SCRIPT: hi" {
		t.Fatalf("output = %q", out)
	}
	if path != "/models/gen-model:generateContent" {
		t.Fatalf("path = %s", path)
	}
	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("instruction missing: %+v", captured.SystemInstruction)
	}
	if captured.Contents[0].Parts[0].Text != "Hello world." {
		t.Fatalf("content altered: %+v", captured.Contents)
	}
}

func TestExplicitZeroTemperatureIsSent(t *testing.T) {
	var captured generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = io.WriteString(w, textEvent("SCRIPT: hi", "STOP"))
	}))
	defer srv.Close()

	client := New("k", Config{BaseURL: srv.URL, Temperature: Float(0)})
	if _, err := client.Generate(context.Background(), GenerateRequest{Content: "Hello world."}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	cfg := captured.GenerationConfig
	if cfg.Temperature == nil || *cfg.Temperature != 0 {
		t.Fatalf("temperature = %v, want explicit 0", cfg.Temperature)
	}
	if cfg.TopP == nil || *cfg.TopP != 0.95 {
		t.Fatalf("top_p = %v, want default", cfg.TopP)
	}
}

func TestGenerateFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"blocked": {http.StatusOK, `{"promptFeedback": {"blockReason": "SAFETY"}}`},
		"empty":   {http.StatusOK, `{"candidates": [{"content": {"parts": []}, "finishReason": "MAX_TOKENS"}]}`},
		"status":  {http.StatusBadRequest, `{"error": {"code": 400, "message": "bad"}}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()
			_, err := New("k", Config{BaseURL: srv.URL}).Generate(context.Background(), GenerateRequest{Content: "x"})
			if !errors.Is(err, task.ErrGenerationFailure) {
				t.Fatalf("expected ErrGenerationFailure, got %v", err)
			}
		})
	}
}
