package stowr

import (
	"bufio"
	"os"
	"strings"
)

// PathSource supplies the paths a batch operation iterates over. The
// core only needs something it can drain; how paths were discovered
// (glob expansion, a directory walk, a file list) is a thin collaborator
// outside this package's scope (spec §1).
type PathSource interface {
	// Next returns the next path and true, or ("", false) once exhausted.
	Next() (string, bool)
}

// LineListPathSource reads newline-delimited paths from a file, one per
// line. Blank lines and lines starting with "#" are skipped, so a list
// file can carry comments without extra tooling.
type LineListPathSource struct {
	paths []string
	pos   int
}

// NewLineListPathSource reads and parses listPath eagerly, so a
// malformed or unreadable list surfaces its error immediately rather
// than mid-batch.
func NewLineListPathSource(listPath string) (*LineListPathSource, error) {
	f, err := os.Open(listPath)
	if err != nil {
		return nil, newErr(KindNotFound, "path_source", listPath, err)
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, newErr(KindNotFound, "path_source", listPath, err)
	}
	return &LineListPathSource{paths: paths}, nil
}

// Next implements PathSource.
func (s *LineListPathSource) Next() (string, bool) {
	if s.pos >= len(s.paths) {
		return "", false
	}
	p := s.paths[s.pos]
	s.pos++
	return p, true
}

// ProgressOutcome reports what happened to one item in a batch.
type ProgressOutcome int

const (
	ProgressSucceeded ProgressOutcome = iota
	ProgressFailed
)

// ProgressSink receives one Report per item of a batch operation. Reports
// are made in item order once every job of the batch has returned, not
// while jobs are still running. It may be nil; callers should use
// DiscardProgressSink when they have nothing to report to.
type ProgressSink interface {
	Report(completed, total int, path string, outcome ProgressOutcome)
}

// DiscardProgressSink implements ProgressSink as a no-op, for hosts that
// don't care about per-item progress.
type DiscardProgressSink struct{}

// Report implements ProgressSink.
func (DiscardProgressSink) Report(completed, total int, path string, outcome ProgressOutcome) {}

// CancelSignal is polled between batch items; a host sets it to abandon
// the remaining items and get back a partial summary (spec §5).
type CancelSignal interface {
	Cancelled() bool
}

// neverCancel is the default CancelSignal when a caller passes nil.
type neverCancel struct{}

func (neverCancel) Cancelled() bool { return false }
