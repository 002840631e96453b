package classifier

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fivarsson/triage/internal/domain"
)

const geminiAPI = "https://generativelanguage.googleapis.com/v1beta/models"

// Analysis is the validated classification the gateway returns.
type Analysis struct {
	Type              string                `json:"type"`
	Category          string                `json:"category"`
	Priority          string                `json:"priority"`
	Title             string                `json:"title"`
	Summary           string                `json:"summary"`
	ExtractedData     *domain.ExtractedData `json:"extractedData,omitempty"`
	Tags              []string              `json:"tags,omitempty"`
	SuggestedFolder   string                `json:"suggestedFolder,omitempty"`
	EnergyLevel       string                `json:"energyLevel,omitempty"`
	EstimatedDuration string                `json:"estimatedDuration,omitempty"`
	Context           string                `json:"context,omitempty"`
}

// ParseError means the model's response could not be turned into a valid
// Analysis. Callers substitute the fallback record on this error.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse classification: %s", e.Reason)
}

var validTypes = map[string]bool{
	"task": true, "note": true, "idea": true, "meeting": true, "decision": true,
	"journal": true, "invoice": true, "receipt": true, "other": true,
}

var validCategories = map[string]bool{
	"work": true, "personal": true, "health": true, "finance": true,
	"relationships": true, "learning": true, "home": true, "other": true,
}

var validPriorities = map[string]bool{
	"urgent": true, "high": true, "medium": true, "low": true,
}

// Classifier analyzes captured content via the Gemini API.
type Classifier struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// New creates a new Classifier
func New() (*Classifier, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	return &Classifier{
		apiKey:  apiKey,
		model:   "gemini-2.5-flash",
		baseURL: geminiAPI,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Analyze classifies content and returns a validated Analysis.
func (c *Classifier) Analyze(content domain.Content) (*Analysis, error) {
	resp, err := c.callAPI(content)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}

	return parseAnalysis(resp)
}

// Fallback builds the deterministic degraded analysis used when the gateway
// is unreachable or returns garbage. The pipeline never stalls on a
// classification failure.
func Fallback(text string) *Analysis {
	return &Analysis{
		Type:            "note",
		Category:        "other",
		Priority:        "medium",
		Title:           truncateRunes(text, 60),
		Summary:         truncateRunes(text, 200),
		ExtractedData:   &domain.ExtractedData{},
		Tags:            []string{"unprocessed"},
		SuggestedFolder: "Inbox",
		Context:         "Failed to process with AI, manual review needed",
	}
}

func buildPrompt(text string) string {
	var sb strings.Builder

	sb.WriteString("You are an assistant that triages content in my life. Analyze the following content and extract relevant information.\n\n")
	sb.WriteString("CONTENT:\n")
	sb.WriteString(text)
	sb.WriteString("\n\n")

	sb.WriteString(`Analyze and return a JSON object with this structure:
{
  "type": "task|note|idea|meeting|decision|journal|invoice|receipt|other",
  "category": "work|personal|health|finance|relationships|learning|home|other",
  "priority": "urgent|high|medium|low",
  "title": "A short summarizing title (max 60 characters)",
  "summary": "A short summary of the content",
  "extractedData": {
    "dates": ["YYYY-MM-DD"],
    "people": ["names"],
    "locations": ["places"],
    "amounts": [{"value": 1000, "currency": "SEK"}],
    "deadlines": ["YYYY-MM-DD"],
    "actionItems": ["concrete action items"]
  },
  "tags": ["relevant", "tags"],
  "suggestedFolder": "Inbox|Daily|Projects|Areas|Resources|Archive",
  "energyLevel": "low|medium|high",
  "estimatedDuration": "15min|30min|1h|2h|4h|1d|1w",
  "context": "Additional context or notes"
}

If it is a screenshot of a calendar event, extract date and time. If it is an
invoice, extract amount and due date. energyLevel and estimatedDuration apply
to tasks only.

Return ONLY the JSON, no other text.`)

	return sb.String()
}

type apiRequest struct {
	Contents []apiContent `json:"contents"`
}

type apiContent struct {
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *apiInlineData `json:"inlineData,omitempty"`
}

type apiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type apiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Classifier) callAPI(content domain.Content) (string, error) {
	parts := []apiPart{{Text: buildPrompt(content.Text)}}

	for _, img := range content.Images {
		mime := img.MimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, apiPart{InlineData: &apiInlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}

	reqBody := apiRequest{Contents: []apiContent{{Parts: parts}}}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequest("POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response")
	}

	return apiResp.Candidates[0].Content.Parts[0].Text, nil
}

// parseAnalysis turns the model's raw text into a validated Analysis.
// Anything that fails here is a *ParseError and triggers the fallback path;
// a partially-typed value never leaves this package.
func parseAnalysis(resp string) (*Analysis, error) {
	// Clean up response - remove markdown code blocks if present
	cleaned := strings.TrimSpace(resp)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	// Models sometimes wrap the JSON in prose; keep the outermost object.
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, &ParseError{Reason: "no JSON object in response", Raw: resp}
	}
	cleaned = cleaned[start : end+1]

	var a Analysis
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return nil, &ParseError{Reason: err.Error(), Raw: resp}
	}

	if !validTypes[a.Type] {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid type %q", a.Type), Raw: resp}
	}
	if !validCategories[a.Category] {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid category %q", a.Category), Raw: resp}
	}
	if !validPriorities[a.Priority] {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid priority %q", a.Priority), Raw: resp}
	}
	if strings.TrimSpace(a.Title) == "" {
		return nil, &ParseError{Reason: "missing title", Raw: resp}
	}
	a.Title = truncateRunes(a.Title, 60)

	return &a, nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
