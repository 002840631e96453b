package vault

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/fivarsson/triage/internal/domain"
)

// fixedFolders are the top-level vault folders a classification may target
// directly via its suggested folder.
var fixedFolders = map[string]bool{
	"Inbox":     true,
	"Daily":     true,
	"Projects":  true,
	"Areas":     true,
	"Resources": true,
	"Archive":   true,
}

// ResolveFolder maps a record to its target folder. Pure and deterministic:
// suggested folder wins if it names a fixed root, then type, then category,
// then Inbox.
func ResolveFolder(rec *domain.Record) string {
	if fixedFolders[rec.SuggestedFolder] {
		return rec.SuggestedFolder
	}

	if rec.Type == "task" {
		return "Inbox"
	}
	if rec.Type == "journal" {
		return "Daily"
	}

	switch rec.Category {
	case "work":
		return "Areas/Work"
	case "personal":
		return "Areas/Personal"
	case "finance":
		return "Areas/Finance"
	case "health":
		return "Areas/Health"
	}

	return "Inbox"
}

// NoteFilename builds the timestamp-prefixed filename for a record's note.
// The timestamp prefix keeps names collision-resistant.
func NoteFilename(rec *domain.Record) string {
	timestamp := rec.ProcessedAt.Format("2006-01-02-150405")
	return fmt.Sprintf("%s-%s.md", timestamp, SanitizeName(rec.Title))
}

// SanitizeName makes a string filesystem-safe: keeps letters (accented
// included), digits, hyphens and underscores, collapses whitespace runs to a
// single hyphen, truncates to 50 runes and lowercases.
func SanitizeName(name string) string {
	var kept []rune
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			kept = append(kept, r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			kept = append(kept, r)
		}
	}

	collapsed := strings.Join(strings.Fields(string(kept)), "-")

	runes := []rune(collapsed)
	if len(runes) > 50 {
		runes = runes[:50]
	}

	return strings.ToLower(string(runes))
}
