package openai

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/lexivox/pkg/provider/tts"
)

// TestNew_EmptyAPIKey verifies that an empty API key is rejected.
func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// TestNew_EmptyText verifies that an empty input text is rejected before any
// API call is made.
func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()
	c, err := New("test-key")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Synthesize(t.Context(), tts.Request{}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

// TestSynthesize_RequestsPCM verifies the request shape and that the raw
// response bytes come back as a PCM16 clip at the API's fixed sample rate.
func TestSynthesize_RequestsPCM(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		for _, want := range []string{`"input":"hello"`, `"response_format":"pcm"`, `"voice":"alloy"`} {
			if !strings.Contains(string(body), want) {
				t.Errorf("body %s missing %s", body, want)
			}
		}
		w.Write([]byte("raw-pcm"))
	}))
	defer srv.Close()

	c, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	clip, err := c.Synthesize(t.Context(), tts.Request{Text: "hello", Language: "en"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Format != tts.FormatPCM16 {
		t.Errorf("Format = %q, want pcm16", clip.Format)
	}
	if clip.SampleRate != 24000 || clip.Channels != 1 {
		t.Errorf("stream = %d Hz %d ch, want 24000 Hz mono", clip.SampleRate, clip.Channels)
	}
	if string(clip.Data) != "raw-pcm" {
		t.Errorf("Data = %q", clip.Data)
	}
}
