package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/lexivox/internal/config"
	"github.com/MrWong99/lexivox/internal/panel"
	"github.com/MrWong99/lexivox/internal/playback"
	"github.com/MrWong99/lexivox/internal/quota"
	"github.com/MrWong99/lexivox/internal/transcribe"
	"github.com/MrWong99/lexivox/internal/translate"
	"github.com/MrWong99/lexivox/pkg/provider/stt"
	sttmock "github.com/MrWong99/lexivox/pkg/provider/stt/mock"
)

type sentMessage struct {
	channelID  string
	originID   string
	content    string
	components []discordgo.MessageComponent
}

// fakeMessenger records every outgoing message. componentsErr, when set,
// fails every ReplyComponents call.
type fakeMessenger struct {
	mu            sync.Mutex
	sent          []sentMessage
	deleted       [][2]string
	ephemerals    []string
	acks          int
	nextID        int
	componentsErr error
}

func (f *fakeMessenger) Reply(channelID, messageID, content string) (string, error) {
	return f.record(sentMessage{channelID: channelID, originID: messageID, content: content}), nil
}

func (f *fakeMessenger) ReplyComponents(channelID, messageID, content string, components []discordgo.MessageComponent) (string, error) {
	f.mu.Lock()
	failure := f.componentsErr
	f.mu.Unlock()
	if failure != nil {
		return "", failure
	}
	return f.record(sentMessage{channelID: channelID, originID: messageID, content: content, components: components}), nil
}

func (f *fakeMessenger) record(m sentMessage) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, m)
	return fmt.Sprintf("msg-%d", f.nextID)
}

func (f *fakeMessenger) Delete(channelID, messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, [2]string{channelID, messageID})
}

func (f *fakeMessenger) Ephemeral(_ *discordgo.InteractionCreate, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ephemerals = append(f.ephemerals, content)
}

func (f *fakeMessenger) Ack(_ *discordgo.InteractionCreate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
}

func (f *fakeMessenger) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeMessenger) lastMessage(t *testing.T) sentMessage {
	t.Helper()
	msgs := f.messages()
	if len(msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return msgs[len(msgs)-1]
}

// fakePlayer records enqueued playback requests.
type fakePlayer struct {
	mu       sync.Mutex
	requests []playback.Request
	err      error
}

func (f *fakePlayer) Enqueue(req playback.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakePlayer) CurrentlyPlaying(string) (playback.Request, bool) {
	return playback.Request{}, false
}

func (f *fakePlayer) QueueLen(channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeDetector returns scripted OCR text.
type fakeDetector struct {
	text string
	err  error
}

func (f *fakeDetector) Detect(context.Context, []byte) (string, error) {
	return f.text, f.err
}

// fakeEngine echoes its input tagged with the target code.
type fakeEngine struct{}

func (fakeEngine) Translate(_ context.Context, text, target string) (string, error) {
	return "T:" + text + ":" + target, nil
}

var _ translate.Engine = fakeEngine{}

type testEnv struct {
	orch  *Orchestrator
	msgr  *fakeMessenger
	sync  *sttmock.Transcriber
	play  *fakePlayer
	det   *fakeDetector
	store *quota.MemoryStore
}

type identityNormalizer struct{}

func (identityNormalizer) Normalize(_ context.Context, src []byte, _ string) ([]byte, error) {
	return src, nil
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Panel.Timeout = 5 * time.Second
	cfg.Playback.Engine = "gtranslate"
	cfg.Playback.Fallbacks = []string{"edge"}
	cfg.Translate.Engine = "google"
	cfg.Rooms = map[string]config.RoomMode{"room-tts": config.RoomModeTTS}
	if mutate != nil {
		mutate(cfg)
	}

	msgr := &fakeMessenger{}
	syncMock := &sttmock.Transcriber{Outcomes: []sttmock.Outcome{
		{Result: stt.Result{Text: "hello from audio", Confidence: 0.9}},
	}}
	play := &fakePlayer{}
	det := &fakeDetector{text: "printed words"}
	store := quota.NewMemoryStore(map[string]int64{
		resourceOCR:            2,
		resourceTranslateChars: 200,
	})

	orch := New(Deps{
		Messenger: msgr,
		Fetch: func(context.Context, string) ([]byte, error) {
			return []byte("audio-bytes"), nil
		},
		Selector:    transcribe.NewSelector(5*time.Minute, 1800*1024, 9*1024*1024),
		Runner:      transcribe.NewRunner(syncMock, &sttmock.Transcriber{}, identityNormalizer{}),
		Player:      play,
		Quotas:      store,
		Detector:    det,
		Translators: map[string]translate.Engine{"google": fakeEngine{}},
		VoiceChannelOf: func(guildID, userID string) (string, bool) {
			return "vc-1", true
		},
	}, cfg)
	t.Cleanup(orch.Close)

	return &testEnv{orch: orch, msgr: msgr, sync: syncMock, play: play, det: det, store: store}
}

func audioUpload() *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "origin-1",
		ChannelID: "chan-1",
		GuildID:   "guild-1",
		Author:    &discordgo.User{ID: "user-1"},
		Attachments: []*discordgo.MessageAttachment{{
			URL:         "https://cdn.example/note.ogg",
			Filename:    "note.ogg",
			ContentType: "audio/ogg",
			Size:        100 << 10,
		}},
	}}
}

func imageUpload(id string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        id,
		ChannelID: "chan-1",
		GuildID:   "guild-1",
		Author:    &discordgo.User{ID: "user-1"},
		Attachments: []*discordgo.MessageAttachment{{
			URL:         "https://cdn.example/photo.png",
			Filename:    "photo.png",
			ContentType: "image/png",
			Size:        50 << 10,
		}},
	}}
}

func selectInteraction(customID, userID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "guild-1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: userID}},
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}

func TestAudioUpload_PostsPanel(t *testing.T) {
	env := newTestEnv(t, nil)

	env.orch.HandleMessage(nil, audioUpload())

	msg := env.msgr.lastMessage(t)
	if msg.originID != "origin-1" || len(msg.components) != 2 {
		t.Fatalf("panel message = %+v", msg)
	}
	p, ok := env.orch.Panels().Get("origin-1")
	if !ok || p.State != panel.StateAwaitingSelection {
		t.Fatalf("panel state = %+v, ok = %v", p, ok)
	}

	row, ok := msg.components[0].(discordgo.ActionsRow)
	if !ok || len(row.Components) == 0 {
		t.Fatalf("first component row = %+v", msg.components[0])
	}
	button, ok := row.Components[0].(discordgo.Button)
	if !ok || !strings.HasPrefix(button.CustomID, "stt_lang:origin-1:") {
		t.Errorf("first button = %+v", row.Components[0])
	}
}

func TestSelection_RunsTranscription(t *testing.T) {
	env := newTestEnv(t, nil)
	env.orch.HandleMessage(nil, audioUpload())

	env.orch.HandleComponent(nil, selectInteraction(panel.SelectID("origin-1", "th"), "user-1"))

	if env.msgr.acks != 1 {
		t.Errorf("acks = %d, want 1", env.msgr.acks)
	}
	if len(env.msgr.deleted) != 1 {
		t.Errorf("deleted = %v, want panel message removed", env.msgr.deleted)
	}
	if got := env.sync.Calls[0].Language; got != "th" {
		t.Errorf("first hint = %q, want the chosen language", got)
	}
	if string(env.sync.Calls[0].Audio) != "audio-bytes" {
		t.Errorf("backend audio = %q", env.sync.Calls[0].Audio)
	}

	msg := env.msgr.lastMessage(t)
	if msg.content != "hello from audio" || msg.originID != "origin-1" {
		t.Errorf("transcript reply = %+v", msg)
	}
	if len(msg.components) != 1 {
		t.Errorf("transcript should carry a play button, got %+v", msg.components)
	}
}

func TestSelection_MenuValue(t *testing.T) {
	env := newTestEnv(t, nil)
	env.orch.HandleMessage(nil, audioUpload())

	i := selectInteraction(panel.MenuID("origin-1"), "user-1")
	i.Data = discordgo.MessageComponentInteractionData{
		CustomID: panel.MenuID("origin-1"),
		Values:   []string{"vi"},
	}
	env.orch.HandleComponent(nil, i)

	if got := env.sync.Calls[0].Language; got != "vi" {
		t.Errorf("first hint = %q, want menu value", got)
	}
}

func TestSelection_OnlyUploader(t *testing.T) {
	env := newTestEnv(t, nil)
	env.orch.HandleMessage(nil, audioUpload())

	env.orch.HandleComponent(nil, selectInteraction(panel.SelectID("origin-1", "en"), "someone-else"))

	if env.msgr.acks != 0 || env.sync.CallCount() != 0 {
		t.Error("selection by another user must not run the job")
	}
	if p, ok := env.orch.Panels().Get("origin-1"); !ok || p.State != panel.StateAwaitingSelection {
		t.Error("panel should still be awaiting selection")
	}
}

func TestSelection_SecondPressIsNoOp(t *testing.T) {
	env := newTestEnv(t, nil)
	env.orch.HandleMessage(nil, audioUpload())

	id := panel.SelectID("origin-1", "en")
	env.orch.HandleComponent(nil, selectInteraction(id, "user-1"))
	calls := env.sync.CallCount()

	env.orch.HandleComponent(nil, selectInteraction(id, "user-1"))
	if env.sync.CallCount() != calls {
		t.Error("second press re-ran the transcription")
	}
	last := env.msgr.ephemerals[len(env.msgr.ephemerals)-1]
	if !strings.Contains(last, "already handled") {
		t.Errorf("ephemeral = %q", last)
	}
}

func TestSelection_ExhaustedHints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sync.Outcomes = []sttmock.Outcome{{Err: stt.ErrNoSpeech}}
	env.orch.HandleMessage(nil, audioUpload())

	env.orch.HandleComponent(nil, selectInteraction(panel.SelectID("origin-1", "en"), "user-1"))

	msg := env.msgr.lastMessage(t)
	if !strings.Contains(msg.content, "couldn't recognize any speech") {
		t.Errorf("reply = %q, want exhaustion notice", msg.content)
	}
}

func TestPanelExpiry_CleansUp(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Panel.Timeout = 30 * time.Millisecond
	})
	env.orch.HandleMessage(nil, audioUpload())

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := env.orch.Panels().Get("origin-1"); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("panel did not expire")
		case <-time.After(5 * time.Millisecond):
		}
	}

	waitUntil(t, func() bool {
		msgs := env.msgr.messages()
		return strings.Contains(msgs[len(msgs)-1].content, "timed out")
	})
	if len(env.msgr.deleted) != 1 {
		t.Errorf("deleted = %v, want panel UI removed", env.msgr.deleted)
	}

	// The pending asset is gone; a late selection gets the handled notice.
	env.orch.HandleComponent(nil, selectInteraction(panel.SelectID("origin-1", "en"), "user-1"))
	if env.sync.CallCount() != 0 {
		t.Error("late selection ran a job after expiry")
	}
}

func TestAudioUpload_PanelPostFailureIsTerminal(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Panel.Timeout = 30 * time.Millisecond
	})
	env.msgr.componentsErr = errors.New("missing permissions")

	env.orch.HandleMessage(nil, audioUpload())

	if env.orch.Panels().Len() != 0 {
		t.Error("failed panel post must not leave an active panel")
	}
	msg := env.msgr.lastMessage(t)
	if !strings.Contains(msg.content, "language selection") {
		t.Errorf("reply = %q, want a terminal notice", msg.content)
	}

	// No selection window ever opened, so no timeout notice may follow.
	time.Sleep(100 * time.Millisecond)
	for _, m := range env.msgr.messages() {
		if strings.Contains(m.content, "timed out") {
			t.Errorf("spurious expiry notice: %q", m.content)
		}
	}

	// The pending asset is gone too; a stray selection runs nothing.
	env.orch.HandleComponent(nil, selectInteraction(panel.SelectID("origin-1", "en"), "user-1"))
	if env.sync.CallCount() != 0 {
		t.Error("selection after a failed panel post ran a job")
	}
}

func TestSelection_LongBackendUnavailable(t *testing.T) {
	cfg := &config.Config{}
	cfg.Panel.Timeout = 5 * time.Second
	cfg.Playback.Engine = "gtranslate"
	cfg.Translate.Engine = "google"

	msgr := &fakeMessenger{}
	syncMock := &sttmock.Transcriber{}
	orch := New(Deps{
		Messenger: msgr,
		Fetch: func(context.Context, string) ([]byte, error) {
			return []byte("audio-bytes"), nil
		},
		// Size thresholds below the upload plan it long-running, but no
		// object storage means no long backend.
		Selector:    transcribe.NewSelector(5*time.Minute, 1024, 1024),
		Runner:      transcribe.NewRunner(syncMock, nil, identityNormalizer{}),
		Player:      &fakePlayer{},
		Quotas:      quota.NewMemoryStore(nil),
		Detector:    &fakeDetector{},
		Translators: map[string]translate.Engine{"google": fakeEngine{}},
		VoiceChannelOf: func(string, string) (string, bool) {
			return "", false
		},
	}, cfg)
	t.Cleanup(orch.Close)

	orch.HandleMessage(nil, audioUpload())
	orch.HandleComponent(nil, selectInteraction(panel.SelectID("origin-1", "en"), "user-1"))

	msg := msgr.lastMessage(t)
	if !strings.Contains(msg.content, "too large for the current configuration") {
		t.Errorf("reply = %q, want a size rejection", msg.content)
	}
	if syncMock.CallCount() != 0 {
		t.Error("an oversized asset must never reach the sync endpoint")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not reached")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestImageUpload_OCRThenTranslate(t *testing.T) {
	env := newTestEnv(t, nil)

	env.orch.HandleMessage(nil, imageUpload("img-1"))

	msg := env.msgr.lastMessage(t)
	want := "printed words\n\nT:printed words:en"
	if msg.content != want {
		t.Errorf("reply = %q, want %q", msg.content, want)
	}
}

func TestImageUpload_QuotaDenied(t *testing.T) {
	env := newTestEnv(t, nil)

	env.orch.HandleMessage(nil, imageUpload("img-1"))
	env.orch.HandleMessage(nil, imageUpload("img-2"))
	env.orch.HandleMessage(nil, imageUpload("img-3"))

	msg := env.msgr.lastMessage(t)
	if !strings.Contains(msg.content, "limit reached") {
		t.Errorf("reply = %q, want quota denial", msg.content)
	}
}

func TestTTSRoom_EnqueuesText(t *testing.T) {
	env := newTestEnv(t, nil)

	env.orch.HandleMessage(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m-1",
		ChannelID: "room-tts",
		GuildID:   "guild-1",
		Content:   "read this aloud",
		Author:    &discordgo.User{ID: "user-1"},
	}})

	if len(env.play.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(env.play.requests))
	}
	req := env.play.requests[0]
	if req.Text != "read this aloud" || req.ChannelID != "vc-1" {
		t.Errorf("request = %+v", req)
	}
}

func TestTTSRoom_OtherChannelsIgnored(t *testing.T) {
	env := newTestEnv(t, nil)

	env.orch.HandleMessage(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m-1",
		ChannelID: "chan-other",
		GuildID:   "guild-1",
		Content:   "just chatting",
		Author:    &discordgo.User{ID: "user-1"},
	}})

	if len(env.play.requests) != 0 {
		t.Errorf("requests = %d, want none outside tts rooms", len(env.play.requests))
	}
}

func TestTranslateCommand(t *testing.T) {
	env := newTestEnv(t, nil)
	m := imageUpload("cmd-1")
	m.Attachments = nil

	env.orch.TranslateCommand(nil, m, []string{"th", "hello", "world"})

	msg := env.msgr.lastMessage(t)
	if msg.content != "T:hello world:th" {
		t.Errorf("reply = %q", msg.content)
	}
}

func TestTranslateCommand_QuotaDenied(t *testing.T) {
	env := newTestEnv(t, nil)
	m := imageUpload("cmd-1")
	m.Attachments = nil

	long := strings.Repeat("x", 300)
	env.orch.TranslateCommand(nil, m, []string{"th", long})

	msg := env.msgr.lastMessage(t)
	if !strings.Contains(msg.content, "budget is used up") {
		t.Errorf("reply = %q, want quota denial", msg.content)
	}
}

func TestStatusCommand(t *testing.T) {
	env := newTestEnv(t, nil)
	m := imageUpload("cmd-1")
	m.Attachments = nil

	env.orch.StatusCommand(nil, m, nil)

	msg := env.msgr.lastMessage(t)
	if !strings.Contains(msg.content, "TTS engines: gtranslate, edge") {
		t.Errorf("status missing engine order: %q", msg.content)
	}
	if !strings.Contains(msg.content, "Translation engine: google") {
		t.Errorf("status missing translate engine: %q", msg.content)
	}
}

func TestApplyConfigChange(t *testing.T) {
	env := newTestEnv(t, nil)

	env.orch.ApplyConfigChange(config.ConfigDiff{
		PlaybackEngineChanged: true,
		NewPlaybackEngine:     "edge",
		RoomsChanged:          true,
		NewRooms:              map[string]config.RoomMode{"room-2": config.RoomModeTTS},
	})

	order := env.orch.EngineOrder()
	if order[0] != "edge" {
		t.Errorf("engine order = %v, want edge first", order)
	}
	if env.orch.roomMode("room-2") != config.RoomModeTTS {
		t.Error("new room mapping not applied")
	}
	if env.orch.roomMode("room-tts") != config.RoomModeTranscribe {
		t.Error("old room mapping should be replaced")
	}
}

func TestApplyConfigChange_UnknownTranslateEngineKept(t *testing.T) {
	env := newTestEnv(t, nil)

	env.orch.ApplyConfigChange(config.ConfigDiff{
		TranslateEngineChanged: true,
		NewTranslateEngine:     "does-not-exist",
	})

	if _, name, ok := env.orch.translator(); !ok || name != "google" {
		t.Errorf("translator = %q, %v; want google kept", name, ok)
	}
}
