package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/fivarsson/triage/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	aboutHeading        = "## About"
	interactionsHeading = "## Interactions"
)

// personFrontmatter is the metadata header of a person entry.
type personFrontmatter struct {
	Name        string   `yaml:"name"`
	Tags        []string `yaml:"tags"`
	Created     string   `yaml:"created"`
	LastContact string   `yaml:"last_contact"`
}

// MergePerson creates or updates the person entry for name with an
// interaction line referencing the record. The free-text About section and
// existing interactions are preserved; the new interaction is only appended
// if this exact line is not already present; last_contact always refreshes.
func (w *Writer) MergePerson(name string, rec *domain.Record, notePath string) error {
	personDir := filepath.Join(w.root, "People")
	personPath := filepath.Join(personDir, sanitizePersonName(name)+".md")

	lock := w.fileLock(personPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(personDir, 0755); err != nil {
		return fmt.Errorf("create people folder: %w", err)
	}

	now := rec.ProcessedAt.Format("2006-01-02T15:04:05Z07:00")

	fm := personFrontmatter{
		Name:    name,
		Tags:    []string{"person"},
		Created: now,
	}
	about := fmt.Sprintf("_Add notes about %s here._", name)
	var interactions []string

	if data, err := os.ReadFile(personPath); err == nil {
		// A corrupt entry is treated as new rather than failing the
		// whole record.
		if existing, existingAbout, existingInteractions, perr := parsePerson(string(data)); perr == nil {
			fm = *existing
			if existingAbout != "" {
				about = existingAbout
			}
			interactions = existingInteractions
		}
	}

	fm.LastContact = now
	if fm.Name == "" {
		fm.Name = name
	}
	if fm.Created == "" {
		fm.Created = now
	}
	if len(fm.Tags) == 0 {
		fm.Tags = []string{"person"}
	}

	line := fmt.Sprintf("- %s - [[%s|%s]] #%s",
		rec.ProcessedAt.Format("2006-01-02 15:04"),
		strings.TrimSuffix(notePath, ".md"),
		rec.Title,
		rec.Type,
	)

	present := false
	for _, existing := range interactions {
		if existing == line {
			present = true
			break
		}
	}
	if !present {
		interactions = append(interactions, line)
	}

	fmBytes, err := yaml.Marshal(fm)
	if err != nil {
		return fmt.Errorf("marshal person frontmatter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(fmBytes)
	sb.WriteString("---\n\n")
	sb.WriteString("# " + fm.Name + "\n\n")
	sb.WriteString(aboutHeading + "\n\n")
	sb.WriteString(about + "\n\n")
	sb.WriteString(interactionsHeading + "\n\n")
	for _, entry := range interactions {
		sb.WriteString(entry + "\n")
	}

	if err := os.WriteFile(personPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write person entry: %w", err)
	}

	return nil
}

// parsePerson splits an existing person entry into frontmatter, the About
// free text and the interaction lines.
func parsePerson(content string) (*personFrontmatter, string, []string, error) {
	fmRaw, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, "", nil, err
	}

	var fm personFrontmatter
	if err := yaml.Unmarshal([]byte(fmRaw), &fm); err != nil {
		return nil, "", nil, fmt.Errorf("parse person frontmatter: %w", err)
	}

	about := ""
	if idx := strings.Index(body, aboutHeading); idx >= 0 {
		rest := body[idx+len(aboutHeading):]
		if end := strings.Index(rest, "\n## "); end >= 0 {
			rest = rest[:end]
		}
		about = strings.TrimSpace(rest)
	}

	var interactions []string
	if idx := strings.Index(body, interactionsHeading); idx >= 0 {
		for _, line := range strings.Split(body[idx+len(interactionsHeading):], "\n") {
			line = strings.TrimRight(line, " \t")
			if strings.HasPrefix(line, "- ") {
				interactions = append(interactions, line)
			}
		}
	}

	return &fm, about, interactions, nil
}

// splitFrontmatter splits a document into its YAML frontmatter and body.
func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", fmt.Errorf("no frontmatter delimiter")
	}

	rest := strings.TrimPrefix(trimmed, "---")
	rest = strings.TrimPrefix(rest, "\n")

	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", fmt.Errorf("no closing frontmatter delimiter")
	}

	return rest[:idx], strings.TrimSpace(rest[idx+4:]), nil
}

// sanitizePersonName keeps the person's name readable for wiki links while
// stripping characters unsafe in filenames.
func sanitizePersonName(name string) string {
	var kept []rune
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			kept = append(kept, r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			kept = append(kept, r)
		}
	}
	return strings.Join(strings.Fields(string(kept)), " ")
}
