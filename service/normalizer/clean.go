package normalizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

var symbols = "1234567890!@#$%^&*()-=_+[]{};\"|;'\\<>?/.,~`"

var guffParenWords = []string{
	"acoustic", "bonus", "censored", "clean", "demo", "edit", "explicit",
	"extended", "instrumental", "karaoke", "live", "lyric", "lyrics", "mix",
	"mono", "official", "original", "radio", "remastered", "remaster",
	"remix", "remixed", "rmx", "session", "single", "stereo", "studio",
	"uncensored", "version", "ver", "video", "visualizer", "vocal",
}

// MetadataCleaner strips the bracketed and "feat." noise player
// notifications append to track titles, leaving real subtitles alone.
type MetadataCleaner struct {
	trackExpressions []*regexp2.Regexp
	parenGuffExpr    *regexp2.Regexp
}

func NewMetadataCleaner() *MetadataCleaner {
	trackPatterns := []string{
		`(?<title>.+?)\s+(?<enclosed>\(.+\)|\[.+\]|\{.+\}|\<.+\>)$`,
		`(?<title>.+?)\s+?(?<feat>[\[\(]?(?:feat(?:uring)?|ft)\b\.?)\s*?(?<artists>.+)\s*`,
	}

	compiled := make([]*regexp2.Regexp, 0, len(trackPatterns))
	for _, pattern := range trackPatterns {
		compiled = append(compiled, regexp2.MustCompile(`(?i)`+pattern, 0))
	}

	return &MetadataCleaner{
		trackExpressions: compiled,
		parenGuffExpr:    regexp2.MustCompile(`(20[0-9]{2}|19[0-9]{2})`, 0),
	}
}

// IsParenTextLikelyGuff reports whether bracketed text is marketing noise
// rather than part of the title.
func (mc *MetadataCleaner) IsParenTextLikelyGuff(parenText string) bool {
	pt := strings.ToLower(parenText)
	beforeLen := utf8.RuneCountInString(pt)

	for _, guff := range guffParenWords {
		pt = strings.ReplaceAll(pt, guff, "")
	}

	pt, _ = mc.parenGuffExpr.Replace(pt, "", -1, -1)
	afterLen := utf8.RuneCountInString(pt)
	replaced := beforeLen - afterLen

	chars := 0
	guffChars := replaced
	for _, ch := range pt {
		if strings.ContainsRune(symbols, ch) {
			guffChars++
		}
		if unicode.IsLetter(ch) {
			chars++
		}
	}

	return guffChars > chars
}

func (mc *MetadataCleaner) parensBalanced(text string) bool {
	brackets := []struct {
		open, close rune
	}{
		{'(', ')'}, {'[', ']'}, {'{', '}'}, {'<', '>'},
	}
	for _, pair := range brackets {
		if strings.Count(text, string(pair.open)) != strings.Count(text, string(pair.close)) {
			return false
		}
	}
	return true
}

// CleanTrack returns the title with trailing guff removed and whether
// anything changed.
func (mc *MetadataCleaner) CleanTrack(text string) (string, bool) {
	text = strings.TrimSpace(text)

	if !mc.parensBalanced(text) {
		return text, false
	}

	var changed bool

	for _, expr := range mc.trackExpressions {
		match, _ := expr.FindStringMatch(text)
		if match == nil {
			continue
		}

		groups := make(map[string]string)
		for _, name := range expr.GetGroupNames() {
			groups[name] = strings.TrimSpace(match.GroupByName(name).String())
		}

		if guffy := groups["enclosed"]; guffy != "" && mc.IsParenTextLikelyGuff(guffy) {
			text = groups["title"]
			changed = true
			break
		}

		if feat := groups["feat"]; feat != "" {
			text = groups["title"]
			changed = true
			break
		}
	}

	return strings.TrimSpace(text), changed
}
