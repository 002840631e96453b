package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fivarsson/triage/internal/domain"
	"github.com/fivarsson/triage/internal/engine"
	"github.com/fivarsson/triage/internal/store"
)

// Server handles HTTP requests for the triage pipeline
type Server struct {
	engine *engine.Engine
	index  *store.Store
	addr   string
}

// New creates a new API server
func New(e *engine.Engine, index *store.Store, addr string) *Server {
	return &Server{engine: e, index: index, addr: addr}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	fmt.Printf("Starting server on %s\n", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Ingestion
	mux.HandleFunc("POST /api/triage", s.triage)
	mux.HandleFunc("POST /api/email", s.email)

	// Stats
	mux.HandleFunc("GET /api/stats", s.stats)

	// Health check
	mux.HandleFunc("GET /health", s.health)

	return withCORS(mux)
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "Life Triage System",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// TriageRequest is the request body for a direct submission.
type TriageRequest struct {
	Text        string            `json:"text"`
	Images      []ImagePayload    `json:"images,omitempty"`
	Attachments []BinaryPayload   `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ImagePayload carries an inline image; Data is base64 in transit.
type ImagePayload struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// BinaryPayload carries a non-image attachment; Data is base64 in transit.
type BinaryPayload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size,omitempty"`
	Data        []byte `json:"data"`
}

// TriageResponse is the result of a submission.
type TriageResponse struct {
	Success  bool           `json:"success"`
	Triage   *domain.Record `json:"triage,omitempty"`
	NotePath string         `json:"notePath,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func (s *Server) triage(w http.ResponseWriter, r *http.Request) {
	var req TriageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Text) == "" && len(req.Images) == 0 {
		writeError(w, http.StatusBadRequest, "text or images required")
		return
	}

	content := domain.Content{Text: req.Text}
	for _, img := range req.Images {
		content.Images = append(content.Images, domain.Image{
			Filename: img.Filename,
			MimeType: img.MimeType,
			Data:     img.Data,
		})
	}
	for _, att := range req.Attachments {
		size := att.Size
		if size == 0 {
			size = int64(len(att.Data))
		}
		content.Attachments = append(content.Attachments, domain.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        size,
			Data:        att.Data,
		})
	}

	src := domain.Source{Type: "api", Meta: req.Metadata}
	if t, ok := req.Metadata["source"]; ok && t != "" {
		src.Type = t
	}

	result, err := s.engine.Process(content, src)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, TriageResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, TriageResponse{
		Success:  true,
		Triage:   result.Record,
		NotePath: result.NotePath,
	})
}

// EmailRequest is an inbound message delivered by the mail webhook.
type EmailRequest struct {
	From        string          `json:"from"`
	To          string          `json:"to,omitempty"`
	Subject     string          `json:"subject"`
	Date        string          `json:"date,omitempty"`
	Text        string          `json:"text,omitempty"`
	HTML        string          `json:"html,omitempty"`
	Attachments []BinaryPayload `json:"attachments,omitempty"`
}

func (s *Server) email(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Subject) == "" && strings.TrimSpace(req.Text) == "" && req.HTML == "" {
		writeError(w, http.StatusBadRequest, "empty message")
		return
	}

	email := engine.Email{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Date:    req.Date,
		Text:    req.Text,
		HTML:    req.HTML,
	}
	for _, att := range req.Attachments {
		size := att.Size
		if size == 0 {
			size = int64(len(att.Data))
		}
		email.Attachments = append(email.Attachments, domain.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        size,
			Data:        att.Data,
		})
	}

	result, err := s.engine.ProcessEmail(email)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, TriageResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, TriageResponse{
		Success:  true,
		Triage:   result.Record,
		NotePath: result.NotePath,
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()

	total, err := s.index.Total()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byType, err := s.index.CountByType()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byCategory, err := s.index.CountByCategory()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"processed":  stats.Processed,
		"byType":     stats.ByType,
		"byCategory": stats.ByCategory,
		"indexed": map[string]interface{}{
			"total":      total,
			"byType":     byType,
			"byCategory": byCategory,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
