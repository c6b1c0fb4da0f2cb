// Package whatlang implements language detection using whatlanggo.
package whatlang

import (
	"strings"
	"unicode/utf8"

	"github.com/RadhiFadlillah/whatlanggo"
	"github.com/usefocal/focal"
)

// sampleRunes caps how much text is fed to the detector. Detection
// quality plateaus quickly and long documents dominate trigram stats
// with boilerplate.
const sampleRunes = 1000

// Detector detects the natural language of extracted text.
type Detector struct{}

var _ focal.LanguageDetector = (*Detector)(nil)

// New returns a language detector.
func New() *Detector {
	return &Detector{}
}

// Detect returns the ISO 639-1 code of the dominant language of text,
// or "unknown" when the text is empty or detection is unreliable.
func (d *Detector) Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return focal.LangUnknown
	}
	if utf8.RuneCountInString(text) > sampleRunes {
		runes := []rune(text)
		text = string(runes[:sampleRunes])
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return focal.LangUnknown
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return focal.LangUnknown
	}
	return code
}
