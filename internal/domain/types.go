package domain

import "time"

// Record is the structured result of classifying a piece of captured content.
// It is the unit every downstream stage (vault writer, canvas generator,
// git sync) consumes.
type Record struct {
	ID                string         `json:"id"`
	Type              string         `json:"type"`
	Category          string         `json:"category"`
	Priority          string         `json:"priority"`
	Title             string         `json:"title"`
	Summary           string         `json:"summary,omitempty"`
	ExtractedData     *ExtractedData `json:"extractedData,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	SuggestedFolder   string         `json:"suggestedFolder,omitempty"`
	EnergyLevel       string         `json:"energyLevel,omitempty"`
	EstimatedDuration string         `json:"estimatedDuration,omitempty"`
	Context           string         `json:"context,omitempty"`
	Source            Source         `json:"source"`
	OriginalContent   string         `json:"originalContent,omitempty"`
	Images            []Image        `json:"images,omitempty"`
	Attachments       []Attachment   `json:"attachments,omitempty"`
	ProcessedAt       time.Time      `json:"processedAt"`
}

// ExtractedData holds the entities the classifier pulled out of the content.
// Every field may be empty.
type ExtractedData struct {
	Dates       []string `json:"dates,omitempty"`
	People      []string `json:"people,omitempty"`
	Locations   []string `json:"locations,omitempty"`
	Amounts     []Amount `json:"amounts,omitempty"`
	Deadlines   []string `json:"deadlines,omitempty"`
	ActionItems []string `json:"actionItems,omitempty"`
}

// Amount is a monetary value with its currency code.
type Amount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// Source describes where a piece of content came from.
// Type is "email" for inbound mail, "api" for direct submissions.
type Source struct {
	Type    string            `json:"type"`
	From    string            `json:"from,omitempty"`
	Subject string            `json:"subject,omitempty"`
	Date    string            `json:"date,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Content is the normalized input handed to the classifier.
type Content struct {
	Text        string
	Images      []Image
	Attachments []Attachment
}

// Image is an inline image payload.
type Image struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

// Attachment is a non-image binary payload.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
}

// IsEmpty reports whether no entity of any kind was extracted.
func (e *ExtractedData) IsEmpty() bool {
	if e == nil {
		return true
	}
	return len(e.Dates) == 0 && len(e.People) == 0 && len(e.Locations) == 0 &&
		len(e.Amounts) == 0 && len(e.Deadlines) == 0 && len(e.ActionItems) == 0
}
