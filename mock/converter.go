package mock

import "github.com/usefocal/focal"

var _ focal.Converter = (*Converter)(nil)

// Converter is a mock implementation of focal.Converter.
type Converter struct {
	ConvertFn func(html string) (string, error)
}

func (c *Converter) Convert(html string) (string, error) {
	return c.ConvertFn(html)
}
