package googlesync

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/lexivox/pkg/provider/stt"
)

func TestSupportsMIME(t *testing.T) {
	t.Parallel()
	c := &Client{}
	if !c.SupportsMIME("audio/ogg") {
		t.Error("ogg is recognizer-native")
	}
	if c.SupportsMIME("audio/x-m4a") {
		t.Error("m4a needs transcoding first")
	}
}

func TestEncodingFor(t *testing.T) {
	t.Parallel()
	cases := []struct {
		mime     string
		encoding string
		rate     int
		ok       bool
	}{
		{"audio/webm", "WEBM_OPUS", 48000, true},
		{"audio/ogg", "OGG_OPUS", 48000, true},
		{"audio/ogg; codecs=opus", "OGG_OPUS", 48000, true},
		{"audio/wav", "LINEAR16", 16000, true},
		{"audio/mpeg", "MP3", 0, true},
		{"audio/flac", "FLAC", 0, true},
		{"video/mp4", "", 0, false},
		{"text/plain", "", 0, false},
	}
	for _, tc := range cases {
		enc, rate, ok := encodingFor(tc.mime)
		if enc != tc.encoding || rate != tc.rate || ok != tc.ok {
			t.Errorf("encodingFor(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tc.mime, enc, rate, ok, tc.encoding, tc.rate, tc.ok)
		}
	}
}

func TestTranscribe_SendsEncodedRequest(t *testing.T) {
	t.Parallel()
	var got recognizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech:recognize" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q, want test-key", r.URL.Query().Get("key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"hello world","confidence":0.94}]}]}`))
	}))
	defer srv.Close()

	c, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	res, err := c.Transcribe(t.Context(), stt.Request{
		Audio:    []byte("opus-bytes"),
		MIMEType: "audio/ogg",
		Language: "th",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.Text != "hello world" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Confidence != 0.94 {
		t.Errorf("Confidence = %v", res.Confidence)
	}
	if got.Config.Encoding != "OGG_OPUS" || got.Config.SampleRateHertz != 48000 {
		t.Errorf("config = %+v, want OGG_OPUS at 48000", got.Config)
	}
	if got.Config.LanguageCode != "th" {
		t.Errorf("language = %q, want th", got.Config.LanguageCode)
	}
	wantContent := base64.StdEncoding.EncodeToString([]byte("opus-bytes"))
	if got.Audio.Content != wantContent {
		t.Error("audio content was not base64 of the input bytes")
	}
}

func TestTranscribe_EmptyResultIsNoSpeech(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c, _ := New("k", WithBaseURL(srv.URL))
	_, err := c.Transcribe(t.Context(), stt.Request{Audio: []byte("x"), MIMEType: "audio/wav"})
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Errorf("err = %v, want ErrNoSpeech", err)
	}
}

func TestTranscribe_LowConfidenceIsNoSpeech(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"mumble","confidence":0.05}]}]}`))
	}))
	defer srv.Close()

	c, _ := New("k", WithBaseURL(srv.URL))
	_, err := c.Transcribe(t.Context(), stt.Request{Audio: []byte("x"), MIMEType: "audio/wav"})
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Errorf("err = %v, want ErrNoSpeech", err)
	}
}

func TestTranscribe_HTTPErrorIsBackendFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"key invalid"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := New("k", WithBaseURL(srv.URL))
	_, err := c.Transcribe(t.Context(), stt.Request{Audio: []byte("x"), MIMEType: "audio/wav"})
	if err == nil {
		t.Fatal("expected error for HTTP 403")
	}
	if errors.Is(err, stt.ErrNoSpeech) {
		t.Error("transport failures must be distinguishable from no-speech")
	}
}

func TestTranscribe_UnsupportedMIME(t *testing.T) {
	t.Parallel()
	c, _ := New("k")
	_, err := c.Transcribe(t.Context(), stt.Request{Audio: []byte("x"), MIMEType: "video/mp4"})
	if err == nil {
		t.Fatal("expected error for unmapped MIME type")
	}
}
