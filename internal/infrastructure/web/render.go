package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"ContractDesk/internal/domain"
	"ContractDesk/internal/riskschema"
	"ContractDesk/internal/usecase"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type documentResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	UploadDate   string `json:"uploadDate,omitempty"`
	FileType     string `json:"fileType,omitempty"`
	FileSize     string `json:"fileSize,omitempty"`
	ContractType string `json:"contractType,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

type homeResponse struct {
	User      string             `json:"user"`
	Notice    string             `json:"notice,omitempty"`
	Documents []documentResponse `json:"documents"`
}

type documentSummaryResponse struct {
	DocumentID string            `json:"documentId"`
	Summary    string            `json:"summary"`
	KeyClauses map[string]string `json:"keyClauses"`
}

type documentInfoResponse struct {
	Title    string `json:"title"`
	Type     string `json:"type"`
	FileSize string `json:"fileSize"`
}

type summaryResponse struct {
	DocumentID string               `json:"documentId"`
	Document   documentInfoResponse `json:"document"`
	Summary    string               `json:"summary"`
	KeyClauses map[string]string    `json:"keyClauses"`
	Stale      bool                 `json:"stale,omitempty"`
}

type artifactResponse struct {
	Handle   string `json:"handle"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize string `json:"fileSize"`
}

type categoryResponse struct {
	Name     string   `json:"name"`
	Score    *float64 `json:"score,omitempty"`
	Evidence []string `json:"evidence"`
}

type riskResponse struct {
	OverallScore float64            `json:"overallScore"`
	Category     string             `json:"category"`
	DocumentType string             `json:"documentType,omitempty"`
	Categories   []categoryResponse `json:"categories"`
	Stale        bool               `json:"stale,omitempty"`
}

type snapshotResponse struct {
	DocumentState string            `json:"documentState"`
	RiskState     string            `json:"riskState"`
	SelectedFile  *artifactResponse `json:"selectedFile,omitempty"`
	Summary       *summaryResponse  `json:"summary,omitempty"`
	Risk          *riskResponse     `json:"risk,omitempty"`
}

func toDocumentResponse(doc domain.DocumentRecord) documentResponse {
	return documentResponse{
		ID:           doc.ID,
		Title:        doc.Title,
		UploadDate:   formatDate(doc.UploadDate),
		FileType:     doc.FileType,
		FileSize:     doc.FileSizeLabel,
		ContractType: doc.ContractType,
		Summary:      doc.Summary,
	}
}

func toSummaryResponse(view usecase.SummaryView, stale bool) summaryResponse {
	clauses := view.Summary.KeyClauses
	if clauses == nil {
		clauses = map[string]string{}
	}
	return summaryResponse{
		DocumentID: view.DocumentID,
		Document: documentInfoResponse{
			Title:    view.Document.Title,
			Type:     view.Document.Type,
			FileSize: view.Document.FileSize,
		},
		Summary:    view.Summary.Text,
		KeyClauses: clauses,
		Stale:      stale,
	}
}

func toArtifactResponse(artifact *domain.UploadedArtifact) *artifactResponse {
	if artifact == nil {
		return nil
	}
	return &artifactResponse{
		Handle:   artifact.Handle,
		FileName: artifact.FileName,
		FileType: artifact.FileType(),
		FileSize: artifact.SizeLabel(),
	}
}

func toRiskResponse(assessment domain.RiskAssessment) riskResponse {
	resp := riskResponse{
		OverallScore: assessment.OverallScore,
		Category:     assessment.Category,
		DocumentType: assessment.DocumentType,
		Categories:   make([]categoryResponse, 0, len(assessment.PerCategory)),
	}
	for _, name := range riskschema.Categories(assessment) {
		risk := assessment.PerCategory[name]
		item := categoryResponse{Name: name, Evidence: risk.Evidence}
		if item.Evidence == nil {
			item.Evidence = []string{}
		}
		if risk.Scored {
			score := risk.Score
			item.Score = &score
		}
		resp.Categories = append(resp.Categories, item)
	}
	return resp
}

// statusFor maps an error kind to the HTTP status of the response.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMissingArtifact), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBackend):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNetwork):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.warn("request failed", "status", status, "error", err)
	} else {
		s.debug("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error: domain.UserMessage(err),
		Kind:  string(domain.KindOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
