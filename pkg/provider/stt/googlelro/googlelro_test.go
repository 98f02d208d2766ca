package googlelro

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	storagemock "github.com/MrWong99/lexivox/pkg/provider/storage/mock"
	"github.com/MrWong99/lexivox/pkg/provider/stt"
)

func staticTokens() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
}

// newTestClient wires a Client against srv with fast polling.
func newTestClient(t *testing.T, srv *httptest.Server, store *storagemock.Store) *Client {
	t.Helper()
	c, err := New(staticTokens(), store,
		WithBaseURL(srv.URL),
		WithPollInterval(time.Millisecond, 5*time.Millisecond),
		WithPollTimeout(2*time.Second),
	)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestTranscribe_StagesPollsAndCleansUp(t *testing.T) {
	t.Parallel()
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/speech:longrunningrecognize":
			var req lroRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode submit: %v", err)
			}
			if !strings.HasPrefix(req.Audio.URI, "mem://discord_uploads/") {
				t.Errorf("audio URI = %q, want staged object", req.Audio.URI)
			}
			if req.Config.Encoding != "LINEAR16" || req.Config.SampleRateHertz != 16000 {
				t.Errorf("config = %+v, want LINEAR16 at 16000", req.Config)
			}
			if req.Config.LanguageCode != "th" {
				t.Errorf("language = %q, want th", req.Config.LanguageCode)
			}
			fmt.Fprint(w, `{"name":"operations/op-1"}`)

		case r.Method == http.MethodGet && r.URL.Path == "/v1/operations/op-1":
			if polls.Add(1) < 3 {
				fmt.Fprint(w, `{"name":"op-1","done":false}`)
				return
			}
			fmt.Fprint(w, `{"name":"op-1","done":true,"response":{"results":[{"alternatives":[{"transcript":"long transcript","confidence":0.9}]}]}}`)

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := &storagemock.Store{}
	c := newTestClient(t, srv, store)

	res, err := c.Transcribe(t.Context(), stt.Request{
		Audio:    []byte("wav-bytes"),
		MIMEType: "audio/wav",
		Language: "th",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "long transcript" {
		t.Errorf("Text = %q", res.Text)
	}
	if got := polls.Load(); got != 3 {
		t.Errorf("polled %d times, want 3", got)
	}

	// Staged object must be gone and the name must carry prefix + extension.
	if store.Len() != 0 {
		t.Errorf("staged objects remaining = %d, want 0", store.Len())
	}
	deleted := store.Deleted()
	if len(deleted) != 1 {
		t.Fatalf("deleted %d objects, want 1", len(deleted))
	}
	if !strings.HasPrefix(deleted[0], "discord_uploads/") || !strings.HasSuffix(deleted[0], ".wav") {
		t.Errorf("staged name = %q, want discord_uploads/<uuid>.wav", deleted[0])
	}
}

func TestTranscribe_CleansUpOnOperationError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"name":"operations/op-2"}`)
			return
		}
		fmt.Fprint(w, `{"name":"op-2","done":true,"error":{"code":3,"message":"bad audio"}}`)
	}))
	defer srv.Close()

	store := &storagemock.Store{}
	c := newTestClient(t, srv, store)

	_, err := c.Transcribe(t.Context(), stt.Request{Audio: []byte("x"), MIMEType: "audio/wav"})
	if err == nil || !strings.Contains(err.Error(), "bad audio") {
		t.Fatalf("err = %v, want operation failure", err)
	}
	if store.Len() != 0 {
		t.Errorf("staged object leaked on failure path")
	}
}

func TestTranscribe_PollTimeoutAbandonsAndCleansUp(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"name":"operations/op-3"}`)
			return
		}
		fmt.Fprint(w, `{"name":"op-3","done":false}`)
	}))
	defer srv.Close()

	store := &storagemock.Store{}
	c, err := New(staticTokens(), store,
		WithBaseURL(srv.URL),
		WithPollInterval(time.Millisecond, 2*time.Millisecond),
		WithPollTimeout(50*time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Transcribe(t.Context(), stt.Request{Audio: []byte("x"), MIMEType: "audio/wav"})
	if err == nil || !strings.Contains(err.Error(), "abandoned") {
		t.Fatalf("err = %v, want abandoned operation", err)
	}
	if store.Len() != 0 {
		t.Errorf("staged object leaked on timeout path")
	}
}

func TestTranscribe_NoSpeechFromEmptyResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"name":"operations/op-4"}`)
			return
		}
		fmt.Fprint(w, `{"name":"op-4","done":true,"response":{"results":[]}}`)
	}))
	defer srv.Close()

	store := &storagemock.Store{}
	c := newTestClient(t, srv, store)

	_, err := c.Transcribe(t.Context(), stt.Request{Audio: []byte("x"), MIMEType: "audio/wav"})
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Errorf("err = %v, want ErrNoSpeech", err)
	}
}

func TestTranscribe_UsesProvidedObjectURI(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var req lroRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Audio.URI != "gs://elsewhere/already-staged.wav" {
				t.Errorf("audio URI = %q, want caller-provided URI", req.Audio.URI)
			}
			fmt.Fprint(w, `{"name":"operations/op-5"}`)
			return
		}
		fmt.Fprint(w, `{"name":"op-5","done":true,"response":{"results":[{"alternatives":[{"transcript":"ok"}]}]}}`)
	}))
	defer srv.Close()

	store := &storagemock.Store{}
	c := newTestClient(t, srv, store)

	_, err := c.Transcribe(t.Context(), stt.Request{ObjectURI: "gs://elsewhere/already-staged.wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(store.Deleted()) != 0 {
		t.Error("caller-provided objects must not be deleted by the client")
	}
}

func TestStageAndUnstage(t *testing.T) {
	t.Parallel()
	store := &storagemock.Store{URIPrefix: "gs://stt-bucket/"}
	c, err := New(staticTokens(), store)
	if err != nil {
		t.Fatal(err)
	}

	uri, err := c.Stage(t.Context(), []byte("wav-bytes"), "audio/wav")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if !strings.HasPrefix(uri, "gs://stt-bucket/discord_uploads/") || !strings.HasSuffix(uri, ".wav") {
		t.Errorf("uri = %q", uri)
	}
	if store.Len() != 1 {
		t.Errorf("objects = %d, want 1", store.Len())
	}

	if err := c.Unstage(t.Context(), uri); err != nil {
		t.Fatalf("Unstage: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("objects = %d, want the staged object removed", store.Len())
	}
	if err := c.Unstage(t.Context(), uri); err == nil {
		t.Error("second Unstage of the same uri must fail")
	}
}
