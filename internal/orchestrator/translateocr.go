package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/lexivox/internal/observe"
	"github.com/MrWong99/lexivox/internal/ocr"
)

// defaultOCRTarget is the language extracted image text is translated into.
const defaultOCRTarget = "en"

// errTranslateQuota marks a denial of the shared daily character budget.
var errTranslateQuota = errors.New("orchestrator: daily translation quota reached")

// guildScope builds the quota scope for per-guild resources.
func guildScope(guildID string) string {
	if guildID == "" {
		return scopeGlobal
	}
	return "guild:" + guildID
}

// handleImage runs the OCR flow for an image attachment: quota, text
// detection, then a translated reply.
func (o *Orchestrator) handleImage(m *discordgo.MessageCreate, url string) {
	if o.detector == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), imageTimeout)
	defer cancel()

	dec, err := o.quotas.CheckAndIncrement(ctx, guildScope(m.GuildID), resourceOCR, 1)
	if err != nil {
		slog.Warn("ocr quota check failed", "guild", m.GuildID, "err", err)
		o.reply(m.ChannelID, m.ID, "Sorry, I can't read images right now.")
		return
	}
	if !dec.Allowed {
		o.metrics.RecordQuotaDenial(ctx, resourceOCR)
		o.reply(m.ChannelID, m.ID,
			fmt.Sprintf("Daily image-reading limit reached (%d of %d).", dec.Count, dec.Limit))
		return
	}

	data, err := o.fetch(ctx, url)
	if err != nil {
		slog.Warn("fetching image attachment", "origin", m.ID, "err", err)
		o.reply(m.ChannelID, m.ID, "Sorry, I couldn't download the image.")
		return
	}

	start := time.Now()
	text, err := o.detector.Detect(ctx, data)
	o.metrics.OCRDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ocr.ErrNoText) {
			o.reply(m.ChannelID, m.ID, "I couldn't find any text in this image.")
			return
		}
		slog.Warn("ocr failed", "origin", m.ID, "err", err)
		o.reply(m.ChannelID, m.ID, "Sorry, reading the image failed.")
		return
	}

	content := text
	if translated, err := o.translateText(ctx, text, defaultOCRTarget); err == nil {
		content = text + "\n\n" + translated
	} else if !errors.Is(err, errTranslateQuota) {
		slog.Debug("image text not translated", "origin", m.ID, "err", err)
	}
	o.reply(m.ChannelID, m.ID, truncate(content))
}

// translateText runs the current engine behind the shared daily character
// budget.
func (o *Orchestrator) translateText(ctx context.Context, text, target string) (string, error) {
	eng, name, ok := o.translator()
	if !ok {
		return "", errors.New("orchestrator: no translation engine configured")
	}

	chars := int64(utf8.RuneCountInString(text))
	dec, err := o.quotas.CheckAndIncrement(ctx, scopeGlobal, resourceTranslateChars, chars)
	if err != nil {
		return "", fmt.Errorf("orchestrator: translation quota check: %w", err)
	}
	if !dec.Allowed {
		o.metrics.RecordQuotaDenial(ctx, resourceTranslateChars)
		return "", errTranslateQuota
	}

	start := time.Now()
	out, err := eng.Translate(ctx, text, target)
	o.metrics.TranslateDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("engine", name)))
	if err != nil {
		o.metrics.RecordProviderError(ctx, name, "translate")
		return "", err
	}
	o.metrics.RecordProviderRequest(ctx, name, "translate", "ok")
	return out, nil
}

// TranslateCommand implements the "!translate <language> <text>" prefix
// command.
func (o *Orchestrator) TranslateCommand(_ *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) < 2 {
		o.reply(m.ChannelID, m.ID, "Usage: translate <language> <text>")
		return
	}
	target := args[0]
	text := strings.Join(args[1:], " ")

	ctx, cancel := context.WithTimeout(context.Background(), imageTimeout)
	defer cancel()

	out, err := o.translateText(ctx, text, target)
	switch {
	case errors.Is(err, errTranslateQuota):
		o.reply(m.ChannelID, m.ID, "Daily translation budget is used up, try again tomorrow.")
	case err != nil:
		slog.Warn("translate command failed", "target", target, "err", err)
		o.reply(m.ChannelID, m.ID, "Sorry, the translation failed.")
	default:
		o.reply(m.ChannelID, m.ID, truncate(out))
	}
}
