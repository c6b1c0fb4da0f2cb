package fs

import (
	"os"
	"strconv"
	"strings"

	"github.com/usefocal/focal"
)

// Ensure LastIndexFile implements focal.LastIndexStore at compile time.
var _ focal.LastIndexStore = (*LastIndexFile)(nil)

// LastIndexFile stores the epoch seconds of the last index commit as a
// single line.
type LastIndexFile struct {
	path string
}

// NewLastIndexFile creates a stamp file at path.
func NewLastIndexFile(path string) *LastIndexFile {
	return &LastIndexFile{path: path}
}

func (f *LastIndexFile) Write(epochSeconds int64) error {
	return writeFileAtomic(f.path, []byte(strconv.FormatInt(epochSeconds, 10)+"\n"))
}

// Read returns the stored stamp, or zero when the file is absent or does
// not parse.
func (f *LastIndexFile) Read() (int64, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}
