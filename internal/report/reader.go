// Package report reads engine task reports and evaluates them into a job verdict.
package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/timmy/transformer/internal/domain"
)

const maxLineSize = 16 * 1024 * 1024

// Read decodes a reports sink: one JSON task report per line, blank lines ignored.
func Read(r io.Reader) ([]domain.TaskReport, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var reports []domain.TaskReport
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rep domain.TaskReport
		if err := json.Unmarshal(raw, &rep); err != nil {
			return nil, fmt.Errorf("malformed report on line %d: %w", line, err)
		}
		reports = append(reports, rep)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}
	return reports, nil
}

// ReadFile reads the reports sink at path.
func ReadFile(path string) ([]domain.TaskReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reports sink: %w", err)
	}
	defer f.Close()

	return Read(f)
}
