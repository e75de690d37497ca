package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/codex-usage/codex-usage/internal/apperr"
)

// JSONLSink appends records as JSON lines to a single file.
type JSONLSink struct {
	path string
}

// NewJSONLSink returns a sink writing to path.
func NewJSONLSink(path string) *JSONLSink {
	return &JSONLSink{path: path}
}

// Path returns the log file location.
func (s *JSONLSink) Path() string {
	return s.path
}

// Append writes r as one line at the end of the log.
func (s *JSONLSink) Append(_ context.Context, r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return apperr.ConfigIO("open", s.path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return apperr.ConfigIO("append to", s.path, err)
	}
	if err := f.Close(); err != nil {
		return apperr.ConfigIO("close", s.path, err)
	}
	return nil
}

// Recent returns up to n records, newest first. Lines that do not parse are
// skipped. A missing log or n <= 0 yields no records.
func (s *JSONLSink) Recent(n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, apperr.ConfigIO("open", s.path, err)
	}
	defer f.Close()

	var all []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		all = append(all, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.ConfigIO("read", s.path, err)
	}

	out := make([]Record, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
