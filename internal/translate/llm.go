package translate

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// Compile-time interface check.
var _ Engine = (*LLMEngine)(nil)

const llmSystemPrompt = "You are a translation engine. Translate the text " +
	"between the <T> and </T> tags into the requested language. Reply with " +
	"only the translation wrapped in <T></T> tags. Preserve line breaks, " +
	"mentions, emoji and formatting. Never add commentary."

// LLMEngine translates through a chat model via any-llm-go. Compared to the
// Google engine it handles slang and mixed-language messages better at the
// cost of latency.
type LLMEngine struct {
	backend anyllmlib.Provider
	model   string
}

// NewLLMEngine creates an engine over the named any-llm provider
// ("openai", "anthropic", "gemini", "ollama").
func NewLLMEngine(providerName, model string, opts ...anyllmlib.Option) (*LLMEngine, error) {
	if model == "" {
		return nil, fmt.Errorf("translate: llm model must not be empty")
	}

	var (
		backend anyllmlib.Provider
		err     error
	)
	switch strings.ToLower(providerName) {
	case "openai":
		backend, err = anyllmoai.New(opts...)
	case "anthropic":
		backend, err = anthropic.New(opts...)
	case "gemini":
		backend, err = gemini.New(opts...)
	case "ollama":
		backend, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("translate: unsupported llm provider %q; supported: openai, anthropic, gemini, ollama", providerName)
	}
	if err != nil {
		return nil, fmt.Errorf("translate: create %q backend: %w", providerName, err)
	}
	return &LLMEngine{backend: backend, model: model}, nil
}

// Translate implements Engine.
func (e *LLMEngine) Translate(ctx context.Context, text, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("translate: text must not be empty")
	}

	resp, err := e.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model: e.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: llmSystemPrompt},
			{Role: anyllmlib.RoleUser, Content: buildPrompt(text, target)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("translate: llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("translate: llm returned no choices")
	}

	out, ok := extractTagged(resp.Choices[0].Message.ContentString())
	if !ok {
		return "", fmt.Errorf("translate: llm reply carried no <T> tags")
	}
	return out, nil
}

// buildPrompt renders the per-request instruction.
func buildPrompt(text, target string) string {
	return fmt.Sprintf("Target language code: %s\n<T>%s</T>", NormalizeCode(target), text)
}

// extractTagged pulls the translation out of the model's tagged reply.
// Models occasionally echo prose around the tags; everything outside the
// first <T>…</T> pair is discarded.
func extractTagged(reply string) (string, bool) {
	start := strings.Index(reply, "<T>")
	if start < 0 {
		return "", false
	}
	rest := reply[start+len("<T>"):]
	end := strings.Index(rest, "</T>")
	if end < 0 {
		// Some models drop the closing tag on long outputs.
		return strings.TrimSpace(rest), rest != ""
	}
	return strings.TrimSpace(rest[:end]), true
}
