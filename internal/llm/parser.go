// Package llm parses the vision/language model's raw text response into a
// show.LLMResponse (spec §6). The models themselves are an external
// collaborator (spec §1); this package only concerns itself with turning
// their freeform output into a validated, bounded structure.
package llm

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/RavennaNMA/defensor/internal/show"
)

var (
	headerTC      = regexp.MustCompile(`(?i)caption_tc\s*:\s*`)
	headerEN      = regexp.MustCompile(`(?i)caption_en\s*:\s*`)
	headerWeapons = regexp.MustCompile(`(?i)weapons\s*:\s*`)
	idPattern     = regexp.MustCompile(`\d{2}`)
)

// scriptRatioThreshold is the minimum fraction of script-relevant
// characters a caption must carry in its declared script (spec §6).
const scriptRatioThreshold = 0.70

// maxToolIDs caps the Weapons list (spec §3: 1 ≤ len(tool_ids) ≤ 3).
const maxToolIDs = 3

// Parse extracts Caption_TC/Caption_EN/Weapons from raw model output. It is
// liberal: headers may appear in any order, trailing "Weapons:" leakage is
// stripped from caption text, and malformed output falls back to
// show.DefaultLLMResponse() (spec §7: "Malformed output falls back to a
// static default").
func Parse(raw string, knownToolIDs map[string]bool) show.LLMResponse {
	tc := extractField(raw, headerTC, []*regexp.Regexp{headerEN, headerWeapons})
	en := extractField(raw, headerEN, []*regexp.Regexp{headerTC, headerWeapons})
	weaponsField := extractField(raw, headerWeapons, []*regexp.Regexp{headerTC, headerEN})

	tc = stripLeakage(tc)
	en = stripLeakage(en)

	if tc == "" || en == "" {
		return show.DefaultLLMResponse()
	}
	if !isPredominantlyScript(tc, isCJKRune, scriptRatioThreshold) {
		return show.DefaultLLMResponse()
	}
	if !isPredominantlyScript(en, isLatinRune, scriptRatioThreshold) {
		return show.DefaultLLMResponse()
	}

	ids := extractToolIDs(weaponsField, raw, knownToolIDs)
	if len(ids) == 0 {
		ids = []string{"01", "02"}
	}

	return show.LLMResponse{CaptionTC: tc, CaptionEN: en, ToolIDs: ids}
}

// extractField finds header's match in raw and returns the text up to
// whichever of stopAt's matches comes next (or end of string).
func extractField(raw string, header *regexp.Regexp, stopAt []*regexp.Regexp) string {
	loc := header.FindStringIndex(raw)
	if loc == nil {
		return ""
	}
	rest := raw[loc[1]:]

	end := len(rest)
	for _, stop := range stopAt {
		if m := stop.FindStringIndex(rest); m != nil && m[0] < end {
			end = m[0]
		}
	}
	return strings.TrimSpace(rest[:end])
}

// stripLeakage removes a trailing "Weapons: [...]" fragment that sometimes
// bleeds into a caption field when the model omits the expected newline.
func stripLeakage(field string) string {
	if loc := headerWeapons.FindStringIndex(field); loc != nil {
		field = field[:loc[0]]
	}
	return strings.TrimSpace(field)
}

func extractToolIDs(weaponsField, raw string, knownToolIDs map[string]bool) []string {
	source := weaponsField
	if source == "" {
		source = raw
	}
	var ids []string
	seen := make(map[string]bool)
	for _, m := range idPattern.FindAllString(source, -1) {
		if seen[m] {
			continue
		}
		if knownToolIDs != nil && !knownToolIDs[m] {
			continue // unknown tool id dropped silently (spec §3)
		}
		seen[m] = true
		ids = append(ids, m)
		if len(ids) >= maxToolIDs {
			break
		}
	}
	return ids
}

func isPredominantlyScript(s string, in func(rune) bool, threshold float64) bool {
	var relevant, matched int
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsNumber(r) {
			continue
		}
		relevant++
		if in(r) {
			matched++
		}
	}
	if relevant == 0 {
		return false
	}
	return float64(matched)/float64(relevant) > threshold
}

func isCJKRune(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

func isLatinRune(r rune) bool {
	return unicode.Is(unicode.Latin, r)
}
