package fs

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/usefocal/focal"
)

// Ensure JobLogDir implements focal.JobLogStore at compile time.
var _ focal.JobLogStore = (*JobLogDir)(nil)

// JobLogDir appends progress lines to <dir>/<job_id>.log.
type JobLogDir struct {
	mu  sync.Mutex
	dir string
}

// NewJobLogDir creates a job log store rooted at dir.
func NewJobLogDir(dir string) *JobLogDir {
	return &JobLogDir{dir: dir}
}

func (s *JobLogDir) Append(jobID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(jobID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return err
	}
	return nil
}

func (s *JobLogDir) Open(jobID string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, focal.Errorf(focal.ENOTFOUND, "no log for job %q", jobID)
		}
		return nil, err
	}
	return f, nil
}

func (s *JobLogDir) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".log")
}
