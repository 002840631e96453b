package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fivarsson/triage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *domain.Record {
	return &domain.Record{
		ID:       "triage-test-1",
		Type:     "task",
		Category: "finance",
		Priority: "high",
		Title:    "Pay invoice",
		Summary:  "An invoice needs paying.",
		ExtractedData: &domain.ExtractedData{
			People:  []string{"Anna"},
			Amounts: []domain.Amount{{Value: 50000, Currency: "SEK"}},
		},
		Tags:            []string{"invoice"},
		SuggestedFolder: "Inbox",
		Source:          domain.Source{Type: "email", From: "anna@example.com", Subject: "Invoice"},
		OriginalContent: "Please pay 50000 SEK.",
		ProcessedAt:     time.Date(2026, 8, 28, 14, 3, 0, 0, time.UTC),
	}
}

func TestCreateNoteComputedFields(t *testing.T) {
	w := NewWriter(t.TempDir())

	relPath, err := w.CreateNote(testRecord())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("Inbox", "2026-08-28-140300-pay-invoice.md"), relPath)

	data, err := os.ReadFile(filepath.Join(w.Root(), relPath))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "total_amount: 50000")
	assert.Contains(t, content, "currency: SEK")
	assert.Contains(t, content, "status: todo")
	assert.Contains(t, content, "## Summary")
	assert.Contains(t, content, "## Extracted Information")
	assert.Contains(t, content, "[[Anna]]")
	assert.Contains(t, content, "## Original Content")
	assert.Contains(t, content, "## Metadata")
	assert.Contains(t, content, "- **From:** anna@example.com")

	// Sections without backing data stay out.
	assert.NotContains(t, content, "## Images")
	assert.NotContains(t, content, "## Attachments")
	assert.NotContains(t, content, "## Context")
}

func TestCreateNoteCountFieldsAlwaysRendered(t *testing.T) {
	w := NewWriter(t.TempDir())

	rec := testRecord()
	rec.ExtractedData = nil

	relPath, err := w.CreateNote(rec)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.Root(), relPath))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "has_images: false")
	assert.Contains(t, content, "image_count: 0")
	assert.Contains(t, content, "has_attachments: false")
	assert.Contains(t, content, "attachment_count: 0")
	assert.NotContains(t, content, "total_amount:")
	assert.NotContains(t, content, "currency:")
}

func TestCreateNoteZeroSumAmounts(t *testing.T) {
	w := NewWriter(t.TempDir())

	rec := testRecord()
	rec.ExtractedData.Amounts = []domain.Amount{
		{Value: 500, Currency: "SEK"},
		{Value: -500, Currency: "SEK"},
	}

	relPath, err := w.CreateNote(rec)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.Root(), relPath))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "total_amount: 0")
	assert.Contains(t, content, "currency: SEK")
}

func TestCreateNoteWithAttachments(t *testing.T) {
	w := NewWriter(t.TempDir())

	rec := testRecord()
	rec.Images = []domain.Image{{Filename: "receipt.png", MimeType: "image/png", Data: []byte("fakepng")}}
	rec.Attachments = []domain.Attachment{{Filename: "contract.pdf", ContentType: "application/pdf", Size: 2048, Data: []byte("fakepdf")}}

	relPath, err := w.CreateNote(rec)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.Root(), relPath))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "has_images: true")
	assert.Contains(t, content, "image_count: 1")
	assert.Contains(t, content, "attachment_count: 1")
	assert.Contains(t, content, "## Images")
	assert.Contains(t, content, "![[2026-08-28-140300-receipt.png]]")
	assert.Contains(t, content, "## Attachments")
	assert.Contains(t, content, "(2 KB)")

	saved, err := os.ReadFile(filepath.Join(w.Root(), "Attachments", "images", "2026-08-28-140300-receipt.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fakepng"), saved)

	_, err = os.Stat(filepath.Join(w.Root(), "Attachments", "files", "2026-08-28-140300-contract.pdf"))
	require.NoError(t, err)
}

func TestDailyLogIdempotent(t *testing.T) {
	w := NewWriter(t.TempDir())
	rec := testRecord()

	_, err := w.CreateNote(rec)
	require.NoError(t, err)
	_, err = w.CreateNote(rec)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.Root(), "Daily", "2026-08-28.md"))
	require.NoError(t, err)

	count := strings.Count(string(data), "[[Inbox/2026-08-28-140300-pay-invoice|Pay invoice]]")
	assert.Equal(t, 1, count, "reprocessing must not duplicate the daily log line")
}

func TestDailyLogTwoRecordsSameDay(t *testing.T) {
	w := NewWriter(t.TempDir())

	first := testRecord()
	second := testRecord()
	second.ID = "triage-test-2"
	second.Title = "Call Anna"
	second.ProcessedAt = first.ProcessedAt.Add(5 * time.Minute)

	_, err := w.CreateNote(first)
	require.NoError(t, err)
	_, err = w.CreateNote(second)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.Root(), "Daily", "2026-08-28.md"))
	require.NoError(t, err)
	content := string(data)

	firstIdx := strings.Index(content, "Pay invoice")
	secondIdx := strings.Index(content, "Call Anna")
	require.GreaterOrEqual(t, firstIdx, 0)
	require.GreaterOrEqual(t, secondIdx, 0)
	assert.Less(t, firstIdx, secondIdx, "entries appear in submission order")
}

func TestPersonEntryCreated(t *testing.T) {
	w := NewWriter(t.TempDir())

	relPath, err := w.CreateNote(testRecord())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.Root(), "People", "Anna.md"))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "name: Anna")
	assert.Contains(t, content, "last_contact:")
	assert.Contains(t, content, "2026-08-28T14:03:00Z")
	assert.Contains(t, content, "## About")
	assert.Contains(t, content, "## Interactions")
	assert.Contains(t, content, "[["+strings.TrimSuffix(relPath, ".md")+"|Pay invoice]] #task")
}

func TestPersonMergeIdempotent(t *testing.T) {
	w := NewWriter(t.TempDir())
	rec := testRecord()

	_, err := w.CreateNote(rec)
	require.NoError(t, err)
	_, err = w.CreateNote(rec)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.Root(), "People", "Anna.md"))
	require.NoError(t, err)

	count := strings.Count(string(data), "|Pay invoice]] #task")
	assert.Equal(t, 1, count, "reprocessing must not duplicate the interaction line")
}

func TestPersonMergePreservesAbout(t *testing.T) {
	w := NewWriter(t.TempDir())

	existing := `---
name: Anna
tags: [person]
created: 2026-01-01T09:00:00Z
last_contact: 2026-01-01T09:00:00Z
---

# Anna

## About

Met at the Stockholm meetup. Works in accounting.

## Interactions

- 2026-01-01 09:00 - [[Inbox/old-note|Old note]] #note
`
	require.NoError(t, os.MkdirAll(filepath.Join(w.Root(), "People"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(w.Root(), "People", "Anna.md"), []byte(existing), 0644))

	_, err := w.CreateNote(testRecord())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.Root(), "People", "Anna.md"))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "Met at the Stockholm meetup. Works in accounting.")
	assert.Contains(t, content, "2026-01-01T09:00:00Z", "created is set once and kept")
	assert.Contains(t, content, "2026-08-28T14:03:00Z", "last_contact refreshes")
	assert.Contains(t, content, "[[Inbox/old-note|Old note]] #note")
	assert.Contains(t, content, "|Pay invoice]] #task")
}

func TestPersonMergeCorruptEntryTreatedAsNew(t *testing.T) {
	w := NewWriter(t.TempDir())

	require.NoError(t, os.MkdirAll(filepath.Join(w.Root(), "People"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(w.Root(), "People", "Anna.md"), []byte("not a person entry"), 0644))

	_, err := w.CreateNote(testRecord())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.Root(), "People", "Anna.md"))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "name: Anna")
	assert.Contains(t, content, "|Pay invoice]] #task")
}

func TestConcurrentDailyLogWrites(t *testing.T) {
	w := NewWriter(t.TempDir())

	base := testRecord()
	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		rec := *base
		rec.ID = "triage-concurrent-" + string(rune('a'+i))
		rec.Title = "Note " + string(rune('a'+i))
		rec.ExtractedData = &domain.ExtractedData{People: []string{"Anna"}}
		rec.ProcessedAt = base.ProcessedAt.Add(time.Duration(i) * time.Second)
		go func(r domain.Record) {
			_, err := w.CreateNote(&r)
			done <- err
		}(rec)
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	data, err := os.ReadFile(filepath.Join(w.Root(), "Daily", "2026-08-28.md"))
	require.NoError(t, err)
	assert.Equal(t, 8, strings.Count(string(data), "\n- "), "no daily line lost under interleaving")

	people, err := os.ReadFile(filepath.Join(w.Root(), "People", "Anna.md"))
	require.NoError(t, err)
	assert.Equal(t, 8, strings.Count(string(people), "\n- "), "no interaction lost under interleaving")
}
