// Package engine is the ingestion front door: it normalizes incoming
// content, classifies it, writes the note and canvas, indexes the record
// and hands the result to the sync queue.
package engine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fivarsson/triage/internal/canvas"
	"github.com/fivarsson/triage/internal/classifier"
	"github.com/fivarsson/triage/internal/domain"
	"github.com/fivarsson/triage/internal/gitsync"
	"github.com/fivarsson/triage/internal/store"
	"github.com/fivarsson/triage/internal/vault"
	"github.com/google/uuid"
)

// Classifier is the classification gateway contract. A failed call never
// halts the pipeline; the engine substitutes the fallback record.
type Classifier interface {
	Analyze(content domain.Content) (*classifier.Analysis, error)
}

// Engine runs the triage pipeline. Records are processed independently of
// each other; the sync queue is the only shared downstream stage.
type Engine struct {
	clf    Classifier
	writer *vault.Writer
	index  *store.Store
	syncer *gitsync.Syncer // nil disables remote sync

	mu         sync.Mutex
	processed  int
	byType     map[string]int
	byCategory map[string]int
}

// Stats are the in-process triage counters.
type Stats struct {
	Processed  int            `json:"processed"`
	ByType     map[string]int `json:"byType"`
	ByCategory map[string]int `json:"byCategory"`
}

// Result is what a caller gets back for one submission.
type Result struct {
	Record   *domain.Record `json:"record"`
	NotePath string         `json:"notePath"`
}

// New creates an Engine. syncer may be nil to run without remote sync.
func New(clf Classifier, writer *vault.Writer, index *store.Store, syncer *gitsync.Syncer) *Engine {
	return &Engine{
		clf:        clf,
		writer:     writer,
		index:      index,
		syncer:     syncer,
		byType:     make(map[string]int),
		byCategory: make(map[string]int),
	}
}

// Process classifies normalized content and persists the result. A
// classification failure degrades to the fallback record; a storage failure
// fails this record only.
func (e *Engine) Process(content domain.Content, src domain.Source) (*Result, error) {
	var analysis *classifier.Analysis
	if e.clf == nil {
		analysis = classifier.Fallback(content.Text)
	} else {
		var err error
		analysis, err = e.clf.Analyze(content)
		if err != nil {
			log.Printf("engine: classification failed, using fallback: %v", err)
			analysis = classifier.Fallback(content.Text)
		}
	}

	rec := e.buildRecord(analysis, content, src)

	notePath, err := e.writer.CreateNote(rec)
	if err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}

	if err := e.index.IndexRecord(rec, notePath); err != nil {
		return nil, fmt.Errorf("index record: %w", err)
	}

	if err := e.writeCanvas(rec, notePath); err != nil {
		return nil, err
	}

	if e.syncer != nil {
		e.syncer.Enqueue(gitsync.Item{Path: notePath, Record: rec})
	}

	e.updateStats(rec)

	return &Result{Record: rec, NotePath: notePath}, nil
}

// Email is an inbound message as delivered by the mail webhook.
type Email struct {
	From        string              `json:"from"`
	To          string              `json:"to,omitempty"`
	Subject     string              `json:"subject"`
	Date        string              `json:"date,omitempty"`
	Text        string              `json:"text,omitempty"`
	HTML        string              `json:"html,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

// ProcessEmail folds the message headers into the classified text, splits
// image attachments from the rest and runs the pipeline.
func (e *Engine) ProcessEmail(email Email) (*Result, error) {
	body := email.Text
	if strings.TrimSpace(body) == "" && email.HTML != "" {
		body = extractText(email.HTML)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Subject: %s\n", email.Subject)
	fmt.Fprintf(&sb, "From: %s\n", email.From)
	fmt.Fprintf(&sb, "Date: %s\n\n", email.Date)
	sb.WriteString(body)

	content := domain.Content{Text: sb.String()}
	for _, att := range email.Attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			content.Images = append(content.Images, domain.Image{
				Filename: att.Filename,
				MimeType: att.ContentType,
				Data:     att.Data,
			})
		} else {
			content.Attachments = append(content.Attachments, att)
		}
	}

	src := domain.Source{
		Type:    "email",
		From:    email.From,
		Subject: email.Subject,
		Date:    email.Date,
	}

	return e.Process(content, src)
}

func (e *Engine) buildRecord(a *classifier.Analysis, content domain.Content, src domain.Source) *domain.Record {
	return &domain.Record{
		ID:                "triage-" + uuid.New().String(),
		Type:              a.Type,
		Category:          a.Category,
		Priority:          a.Priority,
		Title:             a.Title,
		Summary:           a.Summary,
		ExtractedData:     a.ExtractedData,
		Tags:              a.Tags,
		SuggestedFolder:   a.SuggestedFolder,
		EnergyLevel:       a.EnergyLevel,
		EstimatedDuration: a.EstimatedDuration,
		Context:           a.Context,
		Source:            src,
		OriginalContent:   content.Text,
		Images:            content.Images,
		Attachments:       content.Attachments,
		ProcessedAt:       time.Now(),
	}
}

// writeCanvas renders the record's relationship canvas next to its note.
// The canvas is regenerated in full on every run (idempotent overwrite).
func (e *Engine) writeCanvas(rec *domain.Record, notePath string) error {
	stored, err := e.index.FindRelated(rec, 8)
	if err != nil {
		return fmt.Errorf("find related: %w", err)
	}

	related := make([]canvas.Related, len(stored))
	for i, r := range stored {
		related[i] = canvas.Related{
			Title:        r.Title,
			Path:         r.Path,
			Type:         r.Type,
			Relationship: r.Relationship,
		}
	}

	cv := canvas.NoteCanvas(rec, notePath, related)
	data, err := cv.JSON()
	if err != nil {
		return err
	}

	canvasPath := filepath.Join(e.writer.Root(), strings.TrimSuffix(notePath, ".md")+".canvas")
	if err := os.WriteFile(canvasPath, data, 0644); err != nil {
		return fmt.Errorf("write canvas: %w", err)
	}

	return nil
}

func (e *Engine) updateStats(rec *domain.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processed++
	e.byType[rec.Type]++
	e.byCategory[rec.Category]++
}

// Stats returns a copy of the in-process counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	byType := make(map[string]int, len(e.byType))
	for k, v := range e.byType {
		byType[k] = v
	}
	byCategory := make(map[string]int, len(e.byCategory))
	for k, v := range e.byCategory {
		byCategory[k] = v
	}

	return Stats{Processed: e.processed, ByType: byType, ByCategory: byCategory}
}
