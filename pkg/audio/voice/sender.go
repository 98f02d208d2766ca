// Package voice streams synthesized PCM audio into a Discord voice channel.
// Discord voice expects 48 kHz stereo Opus at 20 ms frame size; Sender takes
// arbitrary-rate 16-bit PCM, converts it, and paces encoded frames onto the
// connection's send channel.
package voice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/MrWong99/lexivox/pkg/audio"
)

const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
	// opusFrameBytes is the exact PCM input size for one Opus frame:
	// 960 samples/channel × 2 channels × 2 bytes/sample.
	opusFrameBytes = opusFrameSize * opusChannels * 2
)

// Sender encodes PCM to Opus for one voice connection. It is not safe for
// concurrent use; the playback queue guarantees one Play at a time per channel.
type Sender struct {
	vc  *discordgo.VoiceConnection
	enc *gopus.Encoder
}

// NewSender creates a Sender for an already-joined voice connection.
func NewSender(vc *discordgo.VoiceConnection) (*Sender, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("voice: create opus encoder: %w", err)
	}
	return &Sender{vc: vc, enc: enc}, nil
}

// Play streams one utterance of little-endian 16-bit PCM to the channel and
// returns when the last frame has been handed to the connection or ctx is
// cancelled. The final partial frame is zero-padded to a full 20 ms.
func (s *Sender) Play(ctx context.Context, pcm []byte, sampleRate, channels int) error {
	pcm = toDiscordFormat(pcm, sampleRate, channels)

	s.setSpeaking(true)
	defer s.setSpeaking(false)

	for off := 0; off < len(pcm); off += opusFrameBytes {
		end := off + opusFrameBytes
		frame := pcm[off:min(end, len(pcm))]
		if len(frame) < opusFrameBytes {
			padded := make([]byte, opusFrameBytes)
			copy(padded, frame)
			frame = padded
		}

		encoded, err := s.enc.Encode(bytesToInt16s(frame), opusFrameSize, opusFrameBytes)
		if err != nil {
			return fmt.Errorf("voice: opus encode: %w", err)
		}

		select {
		case s.vc.OpusSend <- encoded:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// toDiscordFormat converts arbitrary 16-bit PCM to 48 kHz stereo.
// Resample first so stereo conversion happens at the target rate.
func toDiscordFormat(pcm []byte, sampleRate, channels int) []byte {
	if sampleRate != opusSampleRate {
		if channels == 1 {
			pcm = audio.ResampleMono16(pcm, sampleRate, opusSampleRate)
		} else {
			pcm = audio.ResampleStereo16(pcm, sampleRate, opusSampleRate)
		}
	}
	if channels == 1 {
		pcm = audio.MonoToStereo(pcm)
	}
	return pcm
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (s *Sender) setSpeaking(b bool) {
	if err := s.vc.Speaking(b); err != nil {
		slog.Warn("voice: speaking notification error", "speaking", b, "error", err)
	}
}

// bytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
