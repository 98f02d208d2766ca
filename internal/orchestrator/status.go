package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/lexivox/internal/quota"
)

// StatusCommand implements the read-only "!status" prefix command: current
// engines, quota usage, and the caller's playback queue.
func (o *Orchestrator) StatusCommand(_ *discordgo.Session, m *discordgo.MessageCreate, _ []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var b strings.Builder
	fmt.Fprintf(&b, "TTS engines: %s\n", strings.Join(o.EngineOrder(), ", "))

	if _, name, ok := o.translator(); ok {
		fmt.Fprintf(&b, "Translation engine: %s\n", name)
	} else {
		b.WriteString("Translation engine: none\n")
	}

	if dec, err := o.quotas.Usage(ctx, guildScope(m.GuildID), resourceOCR); err == nil {
		fmt.Fprintf(&b, "Image reads today: %s\n", formatUsage(dec))
	} else {
		slog.Debug("status: ocr usage unavailable", "err", err)
	}
	if dec, err := o.quotas.Usage(ctx, scopeGlobal, resourceTranslateChars); err == nil {
		fmt.Fprintf(&b, "Translated characters today: %s\n", formatUsage(dec))
	} else {
		slog.Debug("status: translate usage unavailable", "err", err)
	}

	fmt.Fprintf(&b, "Active language panels: %d\n", o.panels.Len())

	if voiceChannel, ok := o.voiceOf(m.GuildID, m.Author.ID); ok {
		fmt.Fprintf(&b, "Your voice channel queue: %d waiting", o.player.QueueLen(voiceChannel))
		if req, playing := o.player.CurrentlyPlaying(voiceChannel); playing {
			fmt.Fprintf(&b, ", now playing for <@%s>", req.RequesterID)
		}
		b.WriteString("\n")
	}

	o.reply(m.ChannelID, m.ID, strings.TrimRight(b.String(), "\n"))
}

func formatUsage(dec quota.Decision) string {
	if dec.Limit <= 0 {
		return fmt.Sprintf("%d (unlimited)", dec.Count)
	}
	return fmt.Sprintf("%d of %d", dec.Count, dec.Limit)
}
