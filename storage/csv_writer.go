package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"outcode-retriever/models"
)

// CSVWriter appends classification issues to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	now    func() time.Time
}

var issueHeader = []string{"url", "outcode", "code", "kind", "failed", "reason", "detail", "seen_at"}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	if err := w.Write(issueHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w, now: time.Now}, nil
}

// WriteIssues writes one row per rejected URL, sorted by URL.
func (c *CSVWriter) WriteIssues(outcode models.Outcode, kind models.ListingKind, issues map[string]models.Issue) error {
	if len(issues) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	urls := make([]string, 0, len(issues))
	for u := range issues {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	seenAt := c.now().Format(time.RFC3339)
	for _, u := range urls {
		issue := issues[u]
		row := []string{
			u,
			fmt.Sprint(outcode.ID),
			outcode.Code,
			kind.Collection(),
			fmt.Sprint(issue.Failed()),
			issue[models.IssueReason],
			issueDetail(issue),
			seenAt,
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// issueDetail joins the keys other than the failed flag and reason as
// key=value pairs.
func issueDetail(issue models.Issue) string {
	keys := make([]string, 0, len(issue))
	for k := range issue {
		if k == models.IssueFailed || k == models.IssueReason {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+issue[k])
	}
	return strings.Join(parts, "; ")
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}
