package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fivarsson/triage/internal/domain"
)

const triageLogHeading = "## Triage Log"

// AppendDailyLog adds the record's line to the day's log file. Reprocessing
// the same record is a no-op: the exact line is only appended once.
func (w *Writer) AppendDailyLog(rec *domain.Record, notePath string) error {
	day := rec.ProcessedAt.Format("2006-01-02")
	dailyDir := filepath.Join(w.root, "Daily")
	dailyPath := filepath.Join(dailyDir, day+".md")

	lock := w.fileLock(dailyPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(dailyDir, 0755); err != nil {
		return fmt.Errorf("create daily folder: %w", err)
	}

	var content string
	if data, err := os.ReadFile(dailyPath); err == nil {
		content = string(data)
	} else {
		content = fmt.Sprintf("---\ndate: %s\ntags: [daily-note]\n---\n\n# %s\n\n%s\n\n", day, day, triageLogHeading)
	}

	entry := fmt.Sprintf("- %s - [[%s|%s]] #%s #%s\n",
		rec.ProcessedAt.Format("15:04"),
		strings.TrimSuffix(notePath, ".md"),
		rec.Title,
		rec.Type,
		rec.Priority,
	)

	if strings.Contains(content, entry) {
		return nil
	}

	if !strings.Contains(content, triageLogHeading) {
		content += "\n" + triageLogHeading + "\n\n"
	}
	content += entry

	if err := os.WriteFile(dailyPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write daily log: %w", err)
	}

	return nil
}
