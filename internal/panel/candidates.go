package panel

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

// maxCandidates caps the panel button count; Discord rows hold five buttons.
const maxCandidates = 5

// DefaultCandidates is the fallback hint order when no signal points anywhere.
var DefaultCandidates = []string{"en", "ja", "th", "zh", "ko"}

// Hints carries the signals available before any audio is inspected.
type Hints struct {
	// Filename is the uploaded attachment name (e.g. "voice_thai_memo.ogg").
	Filename string

	// UserLocale is the uploader's declared client locale, if known.
	UserLocale string

	// ChannelLocale is the locale configured or inferred for the channel.
	ChannelLocale string

	// RecentText is a sample of recent message text from the channel, used
	// for script detection.
	RecentText string
}

// Script detectors. A single match is enough; these scripts are unambiguous
// about the language within this bot's audience.
var scriptLanguages = []struct {
	code string
	re   *regexp.Regexp
}{
	{"th", regexp.MustCompile(`\p{Thai}`)},
	{"ja", regexp.MustCompile(`[\p{Hiragana}\p{Katakana}]`)},
	{"ko", regexp.MustCompile(`\p{Hangul}`)},
	{"zh", regexp.MustCompile(`\p{Han}`)},
	{"ru", regexp.MustCompile(`\p{Cyrillic}`)},
	{"vi", regexp.MustCompile(`[ăâđêôơưĂÂĐÊÔƠƯạảấầẩẫậắằẳẵặẹẻẽếềểễệỉịọỏốồổỗộớờởỡợụủứừửữựỳỵỷỹ]`)},
}

// languageNames maps spelled-out language words found in filenames to codes.
var languageNames = map[string]string{
	"english":    "en",
	"japanese":   "ja",
	"thai":       "th",
	"chinese":    "zh",
	"mandarin":   "zh",
	"korean":     "ko",
	"vietnamese": "vi",
	"russian":    "ru",
	"german":     "de",
	"french":     "fr",
	"spanish":    "es",
	"indonesian": "id",
}

// jaroWinklerFloor is the similarity needed to accept a fuzzy filename match.
// High enough that "thia" matches "thai" but "the" does not.
const jaroWinklerFloor = 0.92

// Candidates computes the ordered language hint list for a panel. Stronger
// signals come first: the uploader's own locale, then the channel locale,
// then script detection over the filename and recent channel text, then
// fuzzy language names in the filename. The list is topped up from
// DefaultCandidates and capped at five entries.
func Candidates(h Hints) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(code string) {
		if code == "" || seen[code] || len(out) >= maxCandidates {
			return
		}
		seen[code] = true
		out = append(out, code)
	}

	add(baseLocale(h.UserLocale))
	add(baseLocale(h.ChannelLocale))

	for _, sl := range scriptLanguages {
		if sl.re.MatchString(h.Filename) || sl.re.MatchString(h.RecentText) {
			add(sl.code)
		}
	}

	for _, code := range filenameLanguages(h.Filename) {
		add(code)
	}

	for _, code := range DefaultCandidates {
		add(code)
	}
	return out
}

// filenameLanguages finds language names (including slight misspellings)
// among the filename tokens.
func filenameLanguages(filename string) []string {
	if filename == "" {
		return nil
	}
	name := strings.ToLower(filename)
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}

	var codes []string
	for _, token := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.' || r == '(' || r == ')'
	}) {
		if len(token) < 4 {
			continue
		}
		for word, code := range languageNames {
			if token == word || matchr.JaroWinkler(token, word, false) >= jaroWinklerFloor {
				codes = append(codes, code)
				break
			}
		}
	}
	return codes
}

// baseLocale strips a region suffix from a locale tag ("en-US" → "en").
func baseLocale(locale string) string {
	if locale == "" {
		return ""
	}
	locale = strings.ToLower(locale)
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return locale
}
