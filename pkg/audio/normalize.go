package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Canonical format produced by [Normalizer.Normalize]: mono 16 kHz 16-bit PCM.
const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
)

// ErrTranscode is returned when the source stream is unreadable or the
// external transcoder exits non-zero. A transcode failure is terminal for the
// asset; callers must not retry the backend afterwards.
var ErrTranscode = errors.New("audio: transcode failed")

// syncNativeMIMEs lists declared MIME types the synchronous recognizer accepts
// without transcoding.
var syncNativeMIMEs = map[string]bool{
	"audio/webm":   true,
	"audio/ogg":    true,
	"audio/opus":   true,
	"audio/wav":    true,
	"audio/x-wav":  true,
	"audio/wave":   true,
	"audio/mpeg":   true,
	"audio/mp3":    true,
	"audio/flac":   true,
	"audio/x-flac": true,
}

// NeedsNormalize reports whether an asset with the declared MIME type must be
// transcoded to the canonical WAV format before transcription. Video
// containers and codecs outside the recognizer's native set always need it.
func NeedsNormalize(mimeType string) bool {
	return !syncNativeMIMEs[normalizeMIME(mimeType)]
}

// normalizeMIME strips parameters and case from a declared content type.
func normalizeMIME(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// Normalizer shells out to ffmpeg/ffprobe to produce canonical WAV audio and
// to estimate asset durations. The zero value uses the binaries from PATH.
type Normalizer struct {
	// FFmpegPath overrides the ffmpeg binary location. Empty means "ffmpeg".
	FFmpegPath string

	// FFprobePath overrides the ffprobe binary location. Empty means "ffprobe".
	FFprobePath string
}

func (n *Normalizer) ffmpeg() string {
	if n.FFmpegPath != "" {
		return n.FFmpegPath
	}
	return "ffmpeg"
}

func (n *Normalizer) ffprobe() string {
	if n.FFprobePath != "" {
		return n.FFprobePath
	}
	return "ffprobe"
}

// pipeDemuxers maps declared MIME types to the ffmpeg demuxer forced on the
// stdin attempt. Containers outside the map rely on content sniffing.
var pipeDemuxers = map[string]string{
	"audio/mpeg": "mp3",
	"audio/mp3":  "mp3",
	"audio/ogg":  "ogg",
	"audio/opus": "ogg",
	"audio/wav":  "wav",
	"audio/flac": "flac",
	"audio/webm": "webm",
	"video/webm": "webm",
}

// Normalize transcodes src (any audio or video container) to mono 16 kHz
// 16-bit PCM WAV. It first feeds ffmpeg through stdin, forcing the demuxer
// matching the declared mimeType when one is known; some containers (notably
// fragmented mp4) cannot be demuxed from a pipe, so on failure it retries
// once from a temporary file. Output is deterministic for identical input
// bytes.
func (n *Normalizer) Normalize(ctx context.Context, src []byte, mimeType string) ([]byte, error) {
	out, pipeErr := n.runFFmpeg(ctx, src, pipeDemuxers[normalizeMIME(mimeType)], "pipe:0")
	if pipeErr == nil {
		return out, nil
	}

	tmp, err := os.CreateTemp("", "lexivox-*.media")
	if err != nil {
		return nil, fmt.Errorf("%w: temp file: %v", ErrTranscode, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(src); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: temp write: %v", ErrTranscode, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: temp close: %v", ErrTranscode, err)
	}

	out, fileErr := n.runFFmpeg(ctx, nil, "", tmp.Name())
	if fileErr != nil {
		return nil, fmt.Errorf("%w: pipe: %v; file: %v", ErrTranscode, pipeErr, fileErr)
	}
	return out, nil
}

// runFFmpeg executes one transcode attempt reading from input (a file path or
// "pipe:0") and returns the WAV bytes from stdout. A non-empty format forces
// the input demuxer.
func (n *Normalizer) runFFmpeg(ctx context.Context, stdin []byte, format, input string) ([]byte, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args,
		"-i", input,
		"-vn",
		"-ac", strconv.Itoa(CanonicalChannels),
		"-ar", strconv.Itoa(CanonicalSampleRate),
		"-sample_fmt", "s16",
		"-f", "wav",
		"pipe:1",
	)
	cmd := exec.CommandContext(ctx, n.ffmpeg(), args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %v: %s", err, firstLine(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, errors.New("ffmpeg: empty output")
	}
	return stdout.Bytes(), nil
}

// ProbeDuration estimates the duration of src with ffprobe. A zero duration
// with a nil error means the container carries no duration metadata; callers
// should fall back to size-based heuristics.
func (n *Normalizer) ProbeDuration(ctx context.Context, src []byte) (time.Duration, error) {
	tmp, err := os.CreateTemp("", "lexivox-*.media")
	if err != nil {
		return 0, fmt.Errorf("audio: probe temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(src); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("audio: probe temp write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("audio: probe temp close: %w", err)
	}

	cmd := exec.CommandContext(ctx, n.ffprobe(),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		tmp.Name(),
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("audio: ffprobe: %w", err)
	}
	return parseProbeDuration(string(out))
}

// parseProbeDuration converts ffprobe's duration output (seconds as a decimal
// string, or "N/A") into a time.Duration.
func parseProbeDuration(out string) (time.Duration, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("audio: parse ffprobe duration %q: %w", s, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// firstLine trims s to its first non-empty line for compact error messages.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return s
}
