// Package edge implements tts.Synthesizer against the Microsoft Edge
// read-aloud WebSocket service.
//
// The service speaks a small framed protocol over a single WebSocket: the
// client sends a speech.config text frame and an SSML text frame, then reads
// binary frames whose payload (after a length-prefixed header block) carries
// MP3 audio, until a text frame with Path:turn.end arrives. No API key is
// required; the endpoint authenticates with a fixed trusted client token.
package edge

import (
	"context"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/lexivox/pkg/provider/tts"
)

// Compile-time assertion that Client satisfies tts.Synthesizer.
var _ tts.Synthesizer = (*Client)(nil)

const (
	defaultEndpoint = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"

	// trustedClientToken is the fixed token the Edge browser uses.
	trustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"

	outputFormat = "audio-24khz-48kbitrate-mono-mp3"

	defaultVoice = "en-US-AriaNeural"
)

// voiceByLanguage maps base language codes to a neural voice.
var voiceByLanguage = map[string]string{
	"en": "en-US-AriaNeural",
	"ja": "ja-JP-NanamiNeural",
	"th": "th-TH-PremwadeeNeural",
	"zh": "zh-CN-XiaoxiaoNeural",
	"ko": "ko-KR-SunHiNeural",
	"vi": "vi-VN-HoaiMyNeural",
	"de": "de-DE-KatjaNeural",
	"fr": "fr-FR-DeniseNeural",
	"es": "es-ES-ElviraNeural",
	"pt": "pt-BR-FranciscaNeural",
	"ru": "ru-RU-SvetlanaNeural",
	"id": "id-ID-GadisNeural",
}

// Client synthesizes speech through the Edge read-aloud service.
type Client struct {
	endpoint string
	timeout  time.Duration
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithEndpoint overrides the WebSocket endpoint. Used in tests.
func WithEndpoint(u string) Option {
	return func(c *Client) { c.endpoint = u }
}

// WithTimeout bounds a full synthesis round trip. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates an Edge TTS client.
func New(opts ...Option) *Client {
	c := &Client{
		endpoint: defaultEndpoint,
		timeout:  30 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Synthesize dials the service, sends the configuration and SSML frames, and
// collects binary audio until the turn ends.
func (c *Client) Synthesize(ctx context.Context, req tts.Request) (tts.Clip, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return tts.Clip{}, fmt.Errorf("edge: text must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	connID := strings.ReplaceAll(uuid.NewString(), "-", "")
	wsURL := c.endpoint + "?TrustedClientToken=" + trustedClientToken + "&ConnectionId=" + connID
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("edge: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(1 << 22)

	if err := conn.Write(ctx, websocket.MessageText, buildSpeechConfig()); err != nil {
		return tts.Clip{}, fmt.Errorf("edge: send speech.config: %w", err)
	}
	ssml := buildSSML(voiceFor(req.Language), text)
	if err := conn.Write(ctx, websocket.MessageText, buildSSMLMessage(connID, ssml)); err != nil {
		return tts.Clip{}, fmt.Errorf("edge: send ssml: %w", err)
	}

	var audio []byte
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			return tts.Clip{}, fmt.Errorf("edge: read frame: %w", err)
		}
		switch typ {
		case websocket.MessageText:
			if headerValue(string(msg), "Path") == "turn.end" {
				if len(audio) == 0 {
					return tts.Clip{}, fmt.Errorf("edge: turn ended with no audio")
				}
				return tts.Clip{Data: audio, Format: tts.FormatMP3}, nil
			}
		case websocket.MessageBinary:
			headers, payload, err := parseBinaryFrame(msg)
			if err != nil {
				return tts.Clip{}, fmt.Errorf("edge: %w", err)
			}
			if headerValue(headers, "Path") == "audio" {
				audio = append(audio, payload...)
			}
		}
	}
}

// voiceFor picks a neural voice for a BCP-47 language tag.
func voiceFor(lang string) string {
	if lang == "" {
		return defaultVoice
	}
	base := lang
	if i := strings.IndexByte(base, '-'); i > 0 {
		base = base[:i]
	}
	if v, ok := voiceByLanguage[strings.ToLower(base)]; ok {
		return v
	}
	return defaultVoice
}

// buildSpeechConfig renders the speech.config frame selecting the MP3 output.
func buildSpeechConfig() []byte {
	var b strings.Builder
	b.WriteString("X-Timestamp:" + timestamp() + "\r\n")
	b.WriteString("Content-Type:application/json; charset=utf-8\r\n")
	b.WriteString("Path:speech.config\r\n\r\n")
	b.WriteString(`{"context":{"synthesis":{"audio":{"metadataoptions":` +
		`{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},` +
		`"outputFormat":"` + outputFormat + `"}}}}`)
	return []byte(b.String())
}

// buildSSMLMessage wraps rendered SSML in the framed text message.
func buildSSMLMessage(requestID, ssml string) []byte {
	var b strings.Builder
	b.WriteString("X-RequestId:" + requestID + "\r\n")
	b.WriteString("X-Timestamp:" + timestamp() + "\r\n")
	b.WriteString("Content-Type:application/ssml+xml\r\n")
	b.WriteString("Path:ssml\r\n\r\n")
	b.WriteString(ssml)
	return []byte(b.String())
}

// buildSSML renders the utterance for the given voice, escaping the text.
func buildSSML(voice, text string) string {
	var escaped strings.Builder
	xml.EscapeText(&escaped, []byte(text))
	return `<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>` +
		`<voice name='` + voice + `'>` + escaped.String() + `</voice></speak>`
}

// parseBinaryFrame splits a binary frame into its header block and payload.
// The first two bytes are the big-endian header length.
func parseBinaryFrame(msg []byte) (headers string, payload []byte, err error) {
	if len(msg) < 2 {
		return "", nil, fmt.Errorf("binary frame too short (%d bytes)", len(msg))
	}
	headerLen := int(binary.BigEndian.Uint16(msg))
	if 2+headerLen > len(msg) {
		return "", nil, fmt.Errorf("binary frame header length %d exceeds frame", headerLen)
	}
	return string(msg[2 : 2+headerLen]), msg[2+headerLen:], nil
}

// headerValue extracts a header value from a CRLF-delimited header block.
func headerValue(headers, name string) string {
	for _, line := range strings.Split(headers, "\r\n") {
		if v, ok := strings.CutPrefix(line, name+":"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func timestamp() string {
	return time.Now().UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}
