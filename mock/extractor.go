package mock

import "github.com/usefocal/focal"

var _ focal.Extractor = (*Extractor)(nil)

// Extractor is a mock implementation of focal.Extractor.
type Extractor struct {
	ExtractFn func(html string) (*focal.ExtractResult, error)
}

func (e *Extractor) Extract(html string) (*focal.ExtractResult, error) {
	return e.ExtractFn(html)
}

var _ focal.LanguageDetector = (*LanguageDetector)(nil)

// LanguageDetector is a mock implementation of focal.LanguageDetector.
type LanguageDetector struct {
	DetectFn func(text string) string
}

func (d *LanguageDetector) Detect(text string) string {
	return d.DetectFn(text)
}
