package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/lexivox/internal/config"
	"github.com/MrWong99/lexivox/internal/observe"
	"github.com/MrWong99/lexivox/internal/panel"
	"github.com/MrWong99/lexivox/internal/playback"
	"github.com/MrWong99/lexivox/internal/transcribe"
)

// playButtonPrefix marks the "Play in voice" button under a transcript. The
// language code rides in the suffix; the text to speak is the message the
// button is attached to.
const playButtonPrefix = "tts_play"

// Flow deadlines. Long-running jobs poll a remote operation and need room.
const (
	syncFlowTimeout = 3 * time.Minute
	longFlowTimeout = 20 * time.Minute
	imageTimeout    = 1 * time.Minute
)

// discordMessageLimit is Discord's hard cap on message content length.
const discordMessageLimit = 2000

// languageLabels maps candidate codes to button labels. Codes outside the
// map render as-is.
var languageLabels = map[string]string{
	"en": "English", "ja": "Japanese", "th": "Thai", "zh": "Chinese",
	"ko": "Korean", "vi": "Vietnamese", "de": "German", "fr": "French",
	"es": "Spanish", "pt": "Portuguese", "ru": "Russian", "id": "Indonesian",
}

// menuLanguages is the fixed order of the full select menu.
var menuLanguages = []string{"en", "ja", "th", "zh", "ko", "vi", "de", "fr", "es", "pt", "ru", "id"}

func languageLabel(code string) string {
	if label, ok := languageLabels[code]; ok {
		return label
	}
	return code
}

// HandleMessage routes a plain message: media attachments open language
// panels, image attachments run OCR, and bare text in a TTS room is queued
// for playback.
func (o *Orchestrator) HandleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	handled := false
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		asset := transcribe.MediaAsset{
			URL:       a.URL,
			Filename:  a.Filename,
			MIMEType:  a.ContentType,
			SizeBytes: int64(a.Size),
			Duration:  time.Duration(a.DurationSecs * float64(time.Second)),
		}
		switch {
		case asset.IsMedia():
			o.startPanel(m, asset)
			handled = true
		case strings.HasPrefix(a.ContentType, "image/"):
			o.handleImage(m, a.URL)
			handled = true
		}
	}

	if !handled && m.Content != "" && o.roomMode(m.ChannelID) == config.RoomModeTTS {
		o.speakRoomMessage(m)
	}
}

// startPanel plans the transcription and posts the language panel under the
// upload.
func (o *Orchestrator) startPanel(m *discordgo.MessageCreate, asset transcribe.MediaAsset) {
	plan, err := o.selector.Select(asset)
	if err != nil {
		if errors.Is(err, transcribe.ErrUnsupportedFormat) {
			o.reply(m.ChannelID, m.ID, "Sorry, I can't transcribe this file format.")
			return
		}
		slog.Warn("transcription planning failed", "filename", asset.Filename, "err", err)
		return
	}

	candidates := panel.Candidates(panel.Hints{
		Filename:   asset.Filename,
		RecentText: m.Content,
	})

	if _, err := o.panels.Create(m.ID, m.ChannelID, m.Author.ID, candidates); err != nil {
		slog.Debug("panel not created", "origin", m.ID, "err", err)
		return
	}

	o.pendingMu.Lock()
	o.pending[m.ID] = pendingAsset{asset: asset, plan: plan}
	o.pendingMu.Unlock()

	panelMsgID, err := o.msgr.ReplyComponents(m.ChannelID, m.ID,
		"Which language is spoken in this recording?",
		panelComponents(m.ID, candidates))
	if err != nil {
		// Nobody saw a panel, so there is nothing to expire later.
		slog.Warn("failed to post language panel", "origin", m.ID, "err", err)
		o.panels.Discard(m.ID)
		o.dropPending(m.ID)
		o.reply(m.ChannelID, m.ID, "Sorry, I couldn't offer language selection for this recording.")
		return
	}
	if err := o.panels.Activate(m.ID, panelMsgID); err != nil {
		slog.Warn("failed to activate panel", "origin", m.ID, "err", err)
	}
}

// panelComponents builds one button row for the top candidates plus a select
// menu covering the full language list.
func panelComponents(originID string, candidates []string) []discordgo.MessageComponent {
	buttons := make([]discordgo.MessageComponent, 0, len(candidates))
	for n, code := range candidates {
		style := discordgo.SecondaryButton
		if n == 0 {
			style = discordgo.PrimaryButton
		}
		buttons = append(buttons, discordgo.Button{
			Label:    languageLabel(code),
			Style:    style,
			CustomID: panel.SelectID(originID, code),
		})
	}

	options := make([]discordgo.SelectMenuOption, 0, len(menuLanguages))
	for _, code := range menuLanguages {
		options = append(options, discordgo.SelectMenuOption{
			Label: languageLabel(code),
			Value: code,
		})
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: buttons},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    panel.MenuID(originID),
				Placeholder: "Another language...",
				Options:     options,
			},
		}},
	}
}

// HandleComponent resolves a language selection: consume the panel, drop the
// panel UI, and run the transcription job with the chosen language first.
func (o *Orchestrator) HandleComponent(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID

	originID, code, ok := panel.ParseSelectID(customID)
	if !ok {
		if originID, ok = panel.ParseMenuID(customID); !ok {
			return
		}
		values := i.MessageComponentData().Values
		if len(values) == 0 {
			return
		}
		code = values[0]
	}

	p, found := o.panels.Get(originID)
	if found && p.UserID != interactionUserID(i) {
		o.msgr.Ephemeral(i, "Only the uploader can pick the language.")
		return
	}

	p, ok = o.panels.Consume(originID)
	if !ok {
		o.msgr.Ephemeral(i, "This recording was already handled.")
		return
	}

	o.msgr.Ack(i)
	if p.PanelMessageID != "" {
		o.msgr.Delete(p.ChannelID, p.PanelMessageID)
	}
	o.metrics.RecordPanelOutcome(context.Background(), "selected")

	o.runTranscription(p, code)
}

// runTranscription downloads the asset and walks the hint list, replying to
// the origin message with the transcript or a terminal failure notice.
func (o *Orchestrator) runTranscription(p panel.Panel, code string) {
	pend, ok := o.takePending(p.OriginID)
	if !ok {
		o.reply(p.ChannelID, p.OriginID, "Sorry, this upload is no longer available.")
		return
	}

	timeout := syncFlowTimeout
	if pend.plan.Backend == transcribe.BackendLongRunning {
		timeout = longFlowTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	hints := dedupe(append([]string{code}, p.Candidates...))
	job, err := transcribe.NewJob(pend.asset, pend.plan, hints)
	if err != nil {
		slog.Error("building transcription job", "origin", p.OriginID, "err", err)
		return
	}

	data, err := o.fetch(ctx, pend.asset.URL)
	if err != nil {
		slog.Warn("fetching audio attachment", "origin", p.OriginID, "err", err)
		o.reply(p.ChannelID, p.OriginID, "Sorry, I couldn't download the recording.")
		return
	}

	start := time.Now()
	text, err := o.runner.Run(ctx, job, data)
	o.metrics.STTDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("backend", string(pend.plan.Backend))))
	if err != nil {
		if errors.Is(err, transcribe.ErrExhausted) {
			o.reply(p.ChannelID, p.OriginID,
				"I couldn't recognize any speech in the candidate languages.")
			return
		}
		if errors.Is(err, transcribe.ErrBackendUnavailable) {
			o.reply(p.ChannelID, p.OriginID,
				"This recording is too large for the current configuration.")
			return
		}
		slog.Warn("transcription failed", "origin", p.OriginID, "err", err)
		o.reply(p.ChannelID, p.OriginID, "Sorry, the transcription failed.")
		return
	}

	replyID, err := o.msgr.ReplyComponents(p.ChannelID, p.OriginID, truncate(text),
		[]discordgo.MessageComponent{discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{discordgo.Button{
				Label:    "Play in voice",
				Style:    discordgo.SecondaryButton,
				CustomID: playButtonPrefix + ":" + code,
			}},
		}})
	if err != nil {
		slog.Warn("posting transcript", "origin", p.OriginID, "err", err)
		return
	}
	slog.Info("transcript posted", "origin", p.OriginID, "reply", replyID, "language", code)
}

// HandlePlayButton queues the transcript the button hangs off for voice
// playback in the presser's current voice channel.
func (o *Orchestrator) HandlePlayButton(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	code := strings.TrimPrefix(customID, playButtonPrefix+":")
	if i.Message == nil || i.Message.Content == "" {
		return
	}

	userID := interactionUserID(i)
	voiceChannel, ok := o.voiceOf(i.GuildID, userID)
	if !ok {
		o.msgr.Ephemeral(i, "Join a voice channel first, then press play.")
		return
	}

	err := o.player.Enqueue(playback.Request{
		GuildID:     i.GuildID,
		ChannelID:   voiceChannel,
		Text:        i.Message.Content,
		Language:    code,
		RequesterID: userID,
	})
	if err != nil {
		o.msgr.Ephemeral(i, "Playback queue is full right now, try again shortly.")
		return
	}
	o.msgr.Ephemeral(i, "Queued for playback.")
}

// speakRoomMessage queues plain text from an auto-TTS room.
func (o *Orchestrator) speakRoomMessage(m *discordgo.MessageCreate) {
	voiceChannel, ok := o.voiceOf(m.GuildID, m.Author.ID)
	if !ok {
		slog.Debug("tts room message from user outside voice", "user", m.Author.ID)
		return
	}
	err := o.player.Enqueue(playback.Request{
		GuildID:     m.GuildID,
		ChannelID:   voiceChannel,
		Text:        m.Content,
		RequesterID: m.Author.ID,
	})
	if err != nil {
		slog.Warn("tts room enqueue failed", "channel", m.ChannelID, "err", err)
	}
}

// panelExpired is the panel store's expiry callback: drop the UI, drop the
// pending asset, and leave a terminal notice on the origin. Expiry consumes
// no quota.
func (o *Orchestrator) panelExpired(p panel.Panel) {
	if p.PanelMessageID != "" {
		o.msgr.Delete(p.ChannelID, p.PanelMessageID)
	}
	o.dropPending(p.OriginID)
	o.metrics.RecordPanelOutcome(context.Background(), "expired")
	o.reply(p.ChannelID, p.OriginID, "Language selection timed out.")
}

func (o *Orchestrator) takePending(originID string) (pendingAsset, bool) {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	pend, ok := o.pending[originID]
	delete(o.pending, originID)
	return pend, ok
}

func (o *Orchestrator) dropPending(originID string) {
	o.pendingMu.Lock()
	delete(o.pending, originID)
	o.pendingMu.Unlock()
}

// reply posts and logs instead of failing; there is no caller to bubble to
// from an event handler.
func (o *Orchestrator) reply(channelID, messageID, content string) {
	if _, err := o.msgr.Reply(channelID, messageID, content); err != nil {
		slog.Warn("failed to send reply", "channel", channelID, "err", err)
	}
}

// truncate clips content to Discord's message limit on a rune boundary.
func truncate(content string) string {
	if len(content) <= discordMessageLimit {
		return content
	}
	cut := discordMessageLimit - 4
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + " ..."
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
