// Package translate provides text translation behind a single Engine
// interface, backed either by the Google Translate v2 endpoint or by an LLM
// through any-llm-go.
package translate

import (
	"context"
	"strings"
)

// Engine translates text into a target language.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// Translate returns text rendered in the target language. target is a
	// user-supplied code; use NormalizeCode before passing it on.
	Translate(ctx context.Context, text, target string) (string, error)
}

// codeAliases maps common user shorthand to the codes the backends expect.
var codeAliases = map[string]string{
	"zh":     "zh-CN",
	"cn":     "zh-CN",
	"zh-tw":  "zh-TW",
	"tw":     "zh-TW",
	"jp":     "ja",
	"kr":     "ko",
	"gr":     "el",
	"br":     "pt",
	"ua":     "uk",
	"se":     "sv",
	"dk":     "da",
	"cz":     "cs",
	"vn":     "vi",
	"eng":    "en",
	"thai":   "th",
	"hebrew": "iw",
}

// NormalizeCode converts user-supplied language shorthand ("jp", "kr", "cn")
// into the canonical code. Unknown codes pass through lowercased.
func NormalizeCode(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if mapped, ok := codeAliases[c]; ok {
		return mapped
	}
	return c
}
