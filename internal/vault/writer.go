package vault

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fivarsson/triage/internal/domain"
	"gopkg.in/yaml.v3"
)

// Writer persists classification records into the vault: the primary note,
// its attachments, the daily log line and the person entries.
type Writer struct {
	root string

	// Daily logs and person entries are shared between concurrently
	// processed records; read-modify-write on those files is serialized
	// with a per-path mutex.
	mu        sync.Mutex
	fileLocks map[string]*sync.Mutex
}

// NewWriter creates a Writer rooted at the vault directory.
func NewWriter(root string) *Writer {
	return &Writer{
		root:      root,
		fileLocks: make(map[string]*sync.Mutex),
	}
}

// Root returns the vault root directory.
func (w *Writer) Root() string {
	return w.root
}

func (w *Writer) fileLock(path string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()

	lock, ok := w.fileLocks[path]
	if !ok {
		lock = &sync.Mutex{}
		w.fileLocks[path] = lock
	}
	return lock
}

// frontmatter is the note's metadata header. Field order here is the order
// rendered in the file.
type frontmatter struct {
	ID              string   `yaml:"id"`
	Type            string   `yaml:"type"`
	Category        string   `yaml:"category"`
	Priority        string   `yaml:"priority"`
	Title           string   `yaml:"title"`
	Created         string   `yaml:"created"`
	Source          string   `yaml:"source"`
	Tags            []string `yaml:"tags"`
	Status          string   `yaml:"status"`
	Energy          string   `yaml:"energy,omitempty"`
	Duration        string   `yaml:"duration,omitempty"`
	Dates           []string `yaml:"dates,omitempty"`
	People          []string `yaml:"people,omitempty"`
	Deadline        string   `yaml:"deadline,omitempty"`
	HasImages       bool     `yaml:"has_images"`
	ImageCount      int      `yaml:"image_count"`
	HasAttachments  bool     `yaml:"has_attachments"`
	AttachmentCount int      `yaml:"attachment_count"`
	TotalAmount     *float64 `yaml:"total_amount,omitempty"`
	Currency        string   `yaml:"currency,omitempty"`
}

// CreateNote writes the record's markdown note and returns its path relative
// to the vault root. It also saves attachments, appends the daily log line
// and merges person entries for everyone the record mentions.
func (w *Writer) CreateNote(rec *domain.Record) (string, error) {
	folder := ResolveFolder(rec)
	folderPath := filepath.Join(w.root, folder)

	if err := os.MkdirAll(folderPath, 0755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}

	filename := NoteFilename(rec)
	notePath := filepath.Join(folderPath, filename)
	relPath := filepath.Join(folder, filename)

	content, err := w.renderNote(rec)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(notePath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write note: %w", err)
	}

	if err := w.AppendDailyLog(rec, relPath); err != nil {
		return "", err
	}

	if rec.ExtractedData != nil {
		for _, person := range rec.ExtractedData.People {
			if err := w.MergePerson(person, rec, relPath); err != nil {
				return "", err
			}
		}
	}

	return relPath, nil
}

func (w *Writer) renderNote(rec *domain.Record) (string, error) {
	fm := frontmatter{
		ID:       rec.ID,
		Type:     rec.Type,
		Category: rec.Category,
		Priority: rec.Priority,
		Title:    rec.Title,
		Created:  rec.ProcessedAt.Format("2006-01-02T15:04:05Z07:00"),
		Source:   rec.Source.Type,
		Tags:     rec.Tags,
		Status:   noteStatus(rec.Type),
		Energy:   rec.EnergyLevel,
		Duration: rec.EstimatedDuration,
	}
	if fm.Tags == nil {
		fm.Tags = []string{}
	}

	if ed := rec.ExtractedData; ed != nil {
		fm.Dates = ed.Dates
		fm.People = ed.People
		if len(ed.Deadlines) > 0 {
			fm.Deadline = ed.Deadlines[0]
		}
		if len(ed.Amounts) > 0 {
			var total float64
			for _, amt := range ed.Amounts {
				total += amt.Value
			}
			// total_amount and currency render as a pair, even when the
			// amounts sum to zero.
			fm.TotalAmount = &total
			fm.Currency = ed.Amounts[0].Currency
		}
	}

	fm.HasImages = len(rec.Images) > 0
	fm.ImageCount = len(rec.Images)
	fm.HasAttachments = len(rec.Attachments) > 0
	fm.AttachmentCount = len(rec.Attachments)

	fmBytes, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(fmBytes)
	sb.WriteString("---\n\n")

	sb.WriteString("# " + rec.Title + "\n\n")

	if rec.Summary != "" {
		sb.WriteString("## Summary\n\n" + rec.Summary + "\n\n")
	}

	w.renderExtracted(&sb, rec.ExtractedData)

	if strings.TrimSpace(rec.OriginalContent) != "" {
		sb.WriteString("## Original Content\n\n")
		sb.WriteString(strings.TrimSpace(rec.OriginalContent) + "\n\n")
	}

	if len(rec.Images) > 0 {
		sb.WriteString("## Images\n\n")
		for _, img := range rec.Images {
			saved, err := w.SaveAttachment(img.Data, img.Filename, "images", rec.ProcessedAt)
			if err != nil {
				return "", err
			}
			sb.WriteString("### " + img.Filename + "\n\n")
			sb.WriteString("![[" + filepath.Base(saved) + "]]\n\n")
		}
	}

	if len(rec.Attachments) > 0 {
		sb.WriteString("## Attachments\n\n")
		for _, att := range rec.Attachments {
			saved, err := w.SaveAttachment(att.Data, att.Filename, "files", rec.ProcessedAt)
			if err != nil {
				return "", err
			}
			sb.WriteString(fmt.Sprintf("- [[%s]] (%s)\n", filepath.Base(saved), formatBytes(att.Size)))
		}
		sb.WriteString("\n")
	}

	if rec.Context != "" {
		sb.WriteString("## Context\n\n" + rec.Context + "\n\n")
	}

	sb.WriteString("## Metadata\n\n")
	sb.WriteString("- **Source:** " + rec.Source.Type + "\n")
	if rec.Source.From != "" {
		sb.WriteString("- **From:** " + rec.Source.From + "\n")
	}
	if rec.Source.Subject != "" {
		sb.WriteString("- **Subject:** " + rec.Source.Subject + "\n")
	}
	sb.WriteString("- **Processed:** " + rec.ProcessedAt.Format("2006-01-02T15:04:05Z07:00") + "\n")
	sb.WriteString("- **ID:** `" + rec.ID + "`\n")

	return sb.String(), nil
}

func (w *Writer) renderExtracted(sb *strings.Builder, ed *domain.ExtractedData) {
	if ed.IsEmpty() {
		return
	}

	sb.WriteString("## Extracted Information\n\n")

	if len(ed.Dates) > 0 {
		sb.WriteString("**Dates:** " + strings.Join(ed.Dates, ", ") + "\n\n")
	}

	if len(ed.People) > 0 {
		links := make([]string, len(ed.People))
		for i, p := range ed.People {
			links[i] = "[[" + p + "]]"
		}
		sb.WriteString("**People:** " + strings.Join(links, ", ") + "\n\n")
	}

	if len(ed.Locations) > 0 {
		sb.WriteString("**Locations:** " + strings.Join(ed.Locations, ", ") + "\n\n")
	}

	if len(ed.Amounts) > 0 {
		sb.WriteString("**Amounts:**\n")
		for _, amt := range ed.Amounts {
			sb.WriteString(fmt.Sprintf("- %g %s\n", amt.Value, amt.Currency))
		}
		sb.WriteString("\n")
	}

	if len(ed.Deadlines) > 0 {
		sb.WriteString("**Deadlines:** " + strings.Join(ed.Deadlines, ", ") + "\n\n")
	}

	if len(ed.ActionItems) > 0 {
		sb.WriteString("**Action Items:**\n")
		for _, item := range ed.ActionItems {
			sb.WriteString("- [ ] " + item + "\n")
		}
		sb.WriteString("\n")
	}
}

func noteStatus(recType string) string {
	if recType == "task" {
		return "todo"
	}
	return "active"
}

// SaveAttachment persists a binary payload under Attachments/<subfolder> with
// a timestamp-prefixed sanitized name. The extension is kept so linked files
// still render in the vault.
func (w *Writer) SaveAttachment(data []byte, filename, subfolder string, ts time.Time) (string, error) {
	dir := filepath.Join(w.root, "Attachments", subfolder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create attachments folder: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	name := fmt.Sprintf("%s-%s%s", ts.Format("2006-01-02-150405"), SanitizeName(base), ext)

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}

	return path, nil
}

func formatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	const k = 1024
	sizes := []string{"Bytes", "KB", "MB", "GB"}
	i := 0
	v := float64(bytes)
	for v >= k && i < len(sizes)-1 {
		v /= k
		i++
	}
	return fmt.Sprintf("%g %s", math.Round(v*100)/100, sizes[i])
}
