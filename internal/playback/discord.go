package playback

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/lexivox/pkg/audio"
	"github.com/MrWong99/lexivox/pkg/audio/voice"
	"github.com/MrWong99/lexivox/pkg/provider/tts"
)

// ClipDecoder turns encoded clips into PCM. Satisfied by *audio.Normalizer.
type ClipDecoder interface {
	Normalize(ctx context.Context, src []byte, mimeType string) ([]byte, error)
}

// discordConn adapts a live discordgo voice connection to Conn.
type discordConn struct {
	vc      *discordgo.VoiceConnection
	sender  *voice.Sender
	decoder ClipDecoder
}

// Compile-time interface check.
var _ Conn = (*discordConn)(nil)

// NewDiscordDialer returns a Dialer that joins voice channels over session.
// decoder handles clips in container formats (MP3 from the gtranslate and
// edge engines); raw PCM clips bypass it.
func NewDiscordDialer(session *discordgo.Session, decoder ClipDecoder) Dialer {
	return func(_ context.Context, guildID, channelID string) (Conn, error) {
		vc, err := session.ChannelVoiceJoin(guildID, channelID, false, true)
		if err != nil {
			return nil, fmt.Errorf("playback: join %s/%s: %w", guildID, channelID, err)
		}
		sender, err := voice.NewSender(vc)
		if err != nil {
			vc.Disconnect()
			return nil, err
		}
		return &discordConn{vc: vc, sender: sender, decoder: decoder}, nil
	}
}

// Play decodes the clip to PCM and streams it into the channel.
func (c *discordConn) Play(ctx context.Context, clip tts.Clip) error {
	pcm, sampleRate, channels, err := c.decode(ctx, clip)
	if err != nil {
		return err
	}
	return c.sender.Play(ctx, pcm, sampleRate, channels)
}

// decode returns PCM16 bytes plus their stream parameters.
func (c *discordConn) decode(ctx context.Context, clip tts.Clip) (pcm []byte, sampleRate, channels int, err error) {
	switch clip.Format {
	case tts.FormatPCM16:
		if clip.SampleRate <= 0 || clip.Channels <= 0 {
			return nil, 0, 0, fmt.Errorf("playback: pcm16 clip missing stream parameters")
		}
		return clip.Data, clip.SampleRate, clip.Channels, nil

	case tts.FormatWAV:
		data, info, err := audio.ParseWAV(clip.Data)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("playback: parse wav clip: %w", err)
		}
		return data, info.SampleRate, info.Channels, nil

	case tts.FormatMP3:
		wav, err := c.decoder.Normalize(ctx, clip.Data, "audio/mpeg")
		if err != nil {
			return nil, 0, 0, fmt.Errorf("playback: decode mp3 clip: %w", err)
		}
		data, info, err := audio.ParseWAV(wav)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("playback: parse decoded clip: %w", err)
		}
		return data, info.SampleRate, info.Channels, nil

	default:
		return nil, 0, 0, fmt.Errorf("playback: unsupported clip format %q", clip.Format)
	}
}

// Close leaves the voice channel.
func (c *discordConn) Close() error {
	return c.vc.Disconnect()
}
