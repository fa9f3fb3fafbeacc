package web

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"ContractDesk/internal/domain"
	"ContractDesk/internal/usecase"
)

// maxUploadBytes bounds the multipart body of a file selection.
const maxUploadBytes = 32 << 20

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	if identity == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	http.Redirect(w, r, usecase.HomePath(identity.DisplayName), http.StatusFound)
}

func (s *Server) handleNotice(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": message})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.warn("session store unreachable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.resolve(w, r)
	user := chi.URLParam(r, "username")

	docs, err := sess.workflow.RecentDocuments(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := homeResponse{
		User:      user,
		Notice:    r.URL.Query().Get("notice"),
		Documents: make([]documentResponse, 0, len(docs)),
	}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, toDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDocumentSummary(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.resolve(w, r)
	docID := chi.URLParam(r, "docID")

	summary, err := sess.workflow.DocumentSummary(r.Context(), chi.URLParam(r, "username"), docID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentSummaryResponse{
		DocumentID: docID,
		Summary:    summary.Text,
		KeyClauses: summary.KeyClauses,
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.resolve(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	var artifact *domain.UploadedArtifact
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			s.writeError(w, &domain.Error{Kind: domain.KindValidation, Op: domain.OpSelect, Message: "cannot read file", Err: err})
			return
		}
		artifact = &domain.UploadedArtifact{
			FileName: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Content:  content,
		}
	case errors.Is(err, http.ErrMissingFile):
		// Select reports the missing file.
	default:
		s.writeError(w, &domain.Error{Kind: domain.KindValidation, Op: domain.OpSelect, Message: "malformed upload", Err: err})
		return
	}

	if err := sess.workflow.Select(r.Context(), artifact); err != nil {
		s.writeError(w, err)
		return
	}

	session, err := sess.reader.Get(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArtifactResponse(session.UploadedArtifact))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.resolve(w, r)

	nav, err := sess.workflow.Upload(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.sessions.carry(sess, nav.State)
	http.Redirect(w, r, nav.Path, http.StatusSeeOther)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.resolve(w, r)
	user := chi.URLParam(r, "username")
	docID := chi.URLParam(r, "docID")

	nav, err := sess.workflow.EnterSummaryView(r.Context(), user, docID, s.sessions.takeCarried(sess, docID))
	if err != nil {
		if nav.Path == "" {
			s.writeError(w, err)
			return
		}
		target := nav.Path
		if nav.Notice != "" {
			target += "?notice=" + url.QueryEscape(nav.Notice)
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(*nav.State, false))
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.resolve(w, r)

	view, err := sess.workflow.Regenerate(r.Context(), chi.URLParam(r, "docID"))
	switch {
	case errors.Is(err, usecase.ErrStaleResponse):
		writeJSON(w, http.StatusOK, toSummaryResponse(view, true))
	case err != nil:
		s.writeError(w, err)
	default:
		writeJSON(w, http.StatusOK, toSummaryResponse(view, false))
	}
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.resolve(w, r)

	assessment, err := sess.workflow.AnalyzeRisk(r.Context())
	switch {
	case errors.Is(err, usecase.ErrStaleResponse):
		resp := toRiskResponse(assessment)
		resp.Stale = true
		writeJSON(w, http.StatusOK, resp)
	case err != nil:
		s.writeError(w, err)
	default:
		writeJSON(w, http.StatusOK, toRiskResponse(assessment))
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.resolve(w, r)

	session, err := sess.reader.Get(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap := sess.workflow.Snapshot()

	resp := snapshotResponse{
		DocumentState: string(snap.DocumentState),
		RiskState:     string(snap.RiskState),
		SelectedFile:  toArtifactResponse(session.UploadedArtifact),
	}
	if snap.View != nil {
		view := toSummaryResponse(*snap.View, false)
		resp.Summary = &view
	}
	if snap.Risk != nil {
		risk := toRiskResponse(*snap.Risk)
		resp.Risk = &risk
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.resolve(w, r)

	if err := sess.workflow.Reset(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
