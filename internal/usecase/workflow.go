package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"ContractDesk/internal/domain"
	"ContractDesk/internal/ports"
	"ContractDesk/internal/riskschema"
)

// State is a position on one of the two workflow tracks.
type State string

const (
	StateIdle          State = "idle"
	StateUploading     State = "uploading"
	StateSummarized    State = "summarized"
	StateRegenerating  State = "regenerating"
	StateAnalyzingRisk State = "analyzing_risk"
	StateRiskReady     State = "risk_ready"
)

// ArtifactPolicy decides what happens to the selected file after a risk analysis.
type ArtifactPolicy int

const (
	// KeepArtifact leaves the file selected so it can be analyzed again.
	KeepArtifact ArtifactPolicy = iota
	// ClearAfterRisk drops the file from the session once risk analysis succeeds.
	ClearAfterRisk
)

// HydrationFailedNotice is shown on the home view when a summary cannot be fetched.
const HydrationFailedNotice = "Failed to fetch summary. Please re-upload."

// ErrStaleResponse is returned when a response arrived after a newer one was applied
// or after the session moved on. The caller still receives the current state.
var ErrStaleResponse = errors.New("stale response discarded")

// DocumentInfo is the file metadata shown above a summary.
type DocumentInfo struct {
	Title    string
	Type     string
	FileSize string
}

// SummaryView is the hydrated summary view. Both hydration paths produce it.
type SummaryView struct {
	DocumentID string
	Document   DocumentInfo
	Summary    domain.Summary
}

func (v *SummaryView) clone() *SummaryView {
	if v == nil {
		return nil
	}
	c := *v
	c.Summary = v.Summary.Clone()
	return &c
}

// Navigation is the outcome of a transition that moves the user to another view.
type Navigation struct {
	Path   string
	State  *SummaryView
	Notice string
}

// Snapshot is what the views render from.
type Snapshot struct {
	DocumentState State
	RiskState     State
	View          *SummaryView
	Risk          *domain.RiskAssessment
}

// SummaryPath is the route of the summary view for a document.
func SummaryPath(userName, docID string) string {
	return "/summary/" + url.PathEscape(userName) + "/" + url.PathEscape(docID)
}

// HomePath is the route of the user's home view.
func HomePath(userName string) string {
	return "/home/" + url.PathEscape(userName)
}

// WorkflowDeps wires the driven adapters into one browser session's workflow.
type WorkflowDeps struct {
	Gateway ports.BackendGateway
	Store   ports.SessionStore
	Risk    *riskschema.Registry
	Policy  ArtifactPolicy
	Logger  *slog.Logger
}

// Workflow drives the upload, summary and risk lifecycle of a single document.
// It is the only writer of its SessionStore and the only caller of the gateway.
//
// The mutex is never held across a gateway call.
type Workflow struct {
	gateway ports.BackendGateway
	store   ports.SessionStore
	risk    *riskschema.Registry
	policy  ArtifactPolicy
	logger  *slog.Logger
	now     func() time.Time

	hydrations singleflight.Group

	mu           sync.Mutex
	docState     State
	riskState    State
	riskBase     State
	view         *SummaryView
	assessment   *domain.RiskAssessment
	epoch        uint64
	regenIssued  uint64
	regenSeen    uint64
	riskIssued   uint64
}

// NewWorkflow constructs the controller for one session.
func NewWorkflow(deps WorkflowDeps) *Workflow {
	risk := deps.Risk
	if risk == nil {
		risk = riskschema.Default()
	}
	return &Workflow{
		gateway:   deps.Gateway,
		store:     deps.Store,
		risk:      risk,
		policy:    deps.Policy,
		logger:    deps.Logger,
		now:       time.Now,
		docState:  StateIdle,
		riskState: StateIdle,
		riskBase:  StateIdle,
	}
}

// Select validates a chosen file and makes it the session's artifact.
// A rejected file leaves the session untouched.
func (w *Workflow) Select(ctx context.Context, artifact *domain.UploadedArtifact) error {
	if err := artifact.Validate(); err != nil {
		return err
	}
	stored := artifact.Clone()
	if stored.Handle == "" {
		stored.Handle = uuid.NewString()
	}
	stored.SizeBytes = int64(len(stored.Content))

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.store.SetUploadedArtifact(ctx, stored); err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}
	w.resetRiskLocked()
	w.debug("artifact selected", "handle", stored.Handle, "file", stored.FileName, "size", stored.SizeBytes)
	return nil
}

// Upload sends the selected file for extraction and summarization and returns the
// navigation to its summary view with the fast-path state attached.
func (w *Workflow) Upload(ctx context.Context, userName string) (Navigation, error) {
	w.mu.Lock()
	if w.docState == StateUploading || w.docState == StateRegenerating {
		w.mu.Unlock()
		return Navigation{}, domain.NewError(domain.KindInvalidState, domain.OpUpload, fmt.Sprintf("cannot upload while %s", w.docState))
	}
	session, err := w.store.Get(ctx)
	if err != nil {
		w.mu.Unlock()
		return Navigation{}, fmt.Errorf("load session: %w", err)
	}
	artifact := session.UploadedArtifact
	if artifact == nil {
		w.mu.Unlock()
		return Navigation{}, domain.NewError(domain.KindMissingArtifact, domain.OpUpload, "no file selected")
	}
	previous := w.docState
	epoch := w.epoch
	w.docState = StateUploading
	w.mu.Unlock()

	w.debug("uploading document", "handle", artifact.Handle, "user", userName)
	result, err := w.gateway.ExtractAndSummarize(ctx, artifact, userName)

	w.mu.Lock()
	defer w.mu.Unlock()

	if epoch != w.epoch {
		w.debug("upload finished after session reset", "handle", artifact.Handle)
		return Navigation{}, ErrStaleResponse
	}
	if err != nil {
		w.docState = previous
		w.warn("upload failed", "handle", artifact.Handle, "error", err)
		return Navigation{}, err
	}

	record := &domain.DocumentRecord{
		ID:            result.DocumentID,
		Title:         artifact.FileName,
		FileType:      artifact.FileType(),
		FileSizeLabel: artifact.SizeLabel(),
		UploadDate:    w.now(),
		ContractType:  result.ContractType,
	}
	if err := w.store.SetActiveDocument(ctx, record); err != nil {
		w.docState = previous
		return Navigation{}, fmt.Errorf("store active document: %w", err)
	}

	w.view = &SummaryView{
		DocumentID: record.ID,
		Document: DocumentInfo{
			Title:    record.Title,
			Type:     record.FileType,
			FileSize: record.FileSizeLabel,
		},
		Summary: result.Summary.Clone(),
	}
	w.docState = StateSummarized
	w.debug("document summarized", "document_id", record.ID)

	return Navigation{Path: SummaryPath(userName, record.ID), State: w.view.clone()}, nil
}

// EnterSummaryView hydrates the summary view for docID. A carried state for the same
// document is used as is; otherwise the summary is fetched by route id.
func (w *Workflow) EnterSummaryView(ctx context.Context, userName, docID string, carried *SummaryView) (Navigation, error) {
	if carried != nil && carried.DocumentID == docID {
		return w.applyHydration(ctx, userName, carried.clone())
	}

	w.debug("durable hydration", "document_id", docID)
	// Shared by every collapsed caller; bounded by the gateway timeout.
	shared := context.WithoutCancel(ctx)
	res, err, collapsed := w.hydrations.Do(docID, func() (any, error) {
		return w.gateway.FetchSummaryByRouteID(shared, docID)
	})
	if err != nil {
		w.warn("summary fetch failed", "document_id", docID, "error", err)
		return Navigation{Path: HomePath(userName), Notice: HydrationFailedNotice}, err
	}
	if collapsed {
		w.debug("durable hydration shared", "document_id", docID)
	}

	stored := res.(domain.StoredSummary)
	view := &SummaryView{
		DocumentID: docID,
		Document: DocumentInfo{
			Title:    stored.FileName,
			Type:     valueOr(stored.FileType, "pdf"),
			FileSize: valueOr(stored.FileSize, "Unknown"),
		},
		Summary: stored.Summary.Clone(),
	}
	return w.applyHydration(ctx, userName, view)
}

func (w *Workflow) applyHydration(ctx context.Context, userName string, view *SummaryView) (Navigation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	session, err := w.store.Get(ctx)
	if err != nil {
		return Navigation{}, fmt.Errorf("load session: %w", err)
	}

	active := session.ActiveDocument
	if active == nil || active.ID != view.DocumentID {
		if session.UploadedArtifact != nil {
			if err := w.store.SetUploadedArtifact(ctx, nil); err != nil {
				return Navigation{}, fmt.Errorf("detach artifact: %w", err)
			}
			w.resetRiskLocked()
			w.debug("artifact detached", "document_id", view.DocumentID)
		}
		record := &domain.DocumentRecord{
			ID:            view.DocumentID,
			Title:         view.Document.Title,
			FileType:      view.Document.Type,
			FileSizeLabel: view.Document.FileSize,
		}
		if err := w.store.SetActiveDocument(ctx, record); err != nil {
			return Navigation{}, fmt.Errorf("store active document: %w", err)
		}
	}

	w.view = view
	if w.docState != StateUploading && w.docState != StateRegenerating {
		w.docState = StateSummarized
	}
	return Navigation{Path: SummaryPath(userName, view.DocumentID), State: view.clone()}, nil
}

// Regenerate asks the backend for a new summary of docID, which must be the active
// document. Every completed request, failed or not, raises the watermark; a response
// at or below it is discarded and the current view is returned with ErrStaleResponse.
func (w *Workflow) Regenerate(ctx context.Context, docID string) (SummaryView, error) {
	if docID == "" {
		return SummaryView{}, domain.NewError(domain.KindInvalidState, domain.OpRegenerate, "document id is missing")
	}

	w.mu.Lock()
	if w.docState == StateUploading {
		w.mu.Unlock()
		return SummaryView{}, domain.NewError(domain.KindInvalidState, domain.OpRegenerate, domain.MsgBusy)
	}
	session, err := w.store.Get(ctx)
	if err != nil {
		w.mu.Unlock()
		return SummaryView{}, fmt.Errorf("load session: %w", err)
	}
	record := session.ActiveDocument
	if record == nil || record.ID != docID {
		w.mu.Unlock()
		return SummaryView{}, domain.NewError(domain.KindInvalidState, domain.OpRegenerate, domain.MsgNotActiveDocument)
	}
	w.regenIssued++
	seq := w.regenIssued
	w.docState = StateRegenerating
	w.mu.Unlock()

	w.debug("regenerating summary", "document_id", docID, "seq", seq)
	summary, err := w.gateway.RegenerateSummary(ctx, docID)

	w.mu.Lock()
	defer w.mu.Unlock()

	if seq == w.regenIssued && w.docState == StateRegenerating {
		w.docState = StateSummarized
	}
	if seq <= w.regenSeen {
		w.debug("stale regenerate response discarded", "document_id", docID, "seq", seq, "seen", w.regenSeen, "error", err)
		return w.currentViewLocked(), ErrStaleResponse
	}
	w.regenSeen = seq
	if err != nil {
		w.warn("regenerate failed", "document_id", docID, "seq", seq, "error", err)
		return w.currentViewLocked(), err
	}
	if w.view != nil && w.view.DocumentID != docID {
		w.debug("regenerate response for inactive document discarded", "document_id", docID, "seq", seq)
		return w.currentViewLocked(), ErrStaleResponse
	}

	if w.view == nil {
		w.view = &SummaryView{
			DocumentID: record.ID,
			Document: DocumentInfo{
				Title:    record.Title,
				Type:     valueOr(record.FileType, "pdf"),
				FileSize: valueOr(record.FileSizeLabel, "Unknown"),
			},
		}
	}
	w.view.Summary = summary.Clone()
	return *w.view.clone(), nil
}

// AnalyzeRisk runs risk analysis on the session's artifact and normalizes the result.
func (w *Workflow) AnalyzeRisk(ctx context.Context) (domain.RiskAssessment, error) {
	w.mu.Lock()
	session, err := w.store.Get(ctx)
	if err != nil {
		w.mu.Unlock()
		return domain.RiskAssessment{}, fmt.Errorf("load session: %w", err)
	}
	artifact := session.UploadedArtifact
	if artifact == nil {
		w.mu.Unlock()
		return domain.RiskAssessment{}, domain.NewError(domain.KindMissingArtifact, domain.OpAnalyzeRisk, "no artifact in session")
	}
	if w.riskState != StateAnalyzingRisk {
		w.riskBase = w.riskState
	}
	w.riskIssued++
	seq := w.riskIssued
	w.riskState = StateAnalyzingRisk
	w.mu.Unlock()

	w.debug("analyzing risk", "handle", artifact.Handle, "seq", seq)
	raw, err := w.gateway.AnalyzeRisk(ctx, artifact)
	var assessment domain.RiskAssessment
	if err == nil {
		assessment, err = w.risk.Normalize(raw)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if seq != w.riskIssued {
		w.debug("stale risk response discarded", "handle", artifact.Handle, "seq", seq)
		if w.assessment != nil {
			return *w.assessment, ErrStaleResponse
		}
		return domain.RiskAssessment{}, ErrStaleResponse
	}
	if err != nil {
		w.riskState = w.riskBase
		w.warn("risk analysis failed", "handle", artifact.Handle, "error", err)
		return domain.RiskAssessment{}, err
	}

	w.assessment = &assessment
	w.riskState = StateRiskReady
	if w.policy == ClearAfterRisk {
		if err := w.store.SetUploadedArtifact(ctx, nil); err != nil {
			w.warn("clear artifact after risk failed", "error", err)
		}
	}
	return assessment, nil
}

// RecentDocuments lists the user's recent documents for the home view.
func (w *Workflow) RecentDocuments(ctx context.Context, userName string) ([]domain.DocumentRecord, error) {
	docs, err := w.gateway.ListRecentDocuments(ctx, userName)
	if err != nil {
		w.warn("recent documents failed", "user", userName, "error", err)
		return nil, err
	}
	return docs, nil
}

// DocumentSummary fetches the summary shown in the home view's document modal.
func (w *Workflow) DocumentSummary(ctx context.Context, userName, docID string) (domain.Summary, error) {
	summary, err := w.gateway.FetchSummaryByDocumentID(ctx, docID, userName)
	if err != nil {
		w.warn("document summary failed", "document_id", docID, "error", err)
		return domain.Summary{}, err
	}
	return summary, nil
}

// Snapshot returns a copy of the current workflow state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		DocumentState: w.docState,
		RiskState:     w.riskState,
		View:          w.view.clone(),
	}
	if w.assessment != nil {
		a := *w.assessment
		snap.Risk = &a
	}
	return snap
}

// Reset clears the session and returns both tracks to idle. Responses still in
// flight are discarded when they arrive.
func (w *Workflow) Reset(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	w.epoch++
	w.regenSeen = w.regenIssued
	w.docState = StateIdle
	w.view = nil
	w.resetRiskLocked()
	return nil
}

func (w *Workflow) resetRiskLocked() {
	w.riskIssued++
	w.riskState = StateIdle
	w.riskBase = StateIdle
	w.assessment = nil
}

func (w *Workflow) currentViewLocked() SummaryView {
	if w.view == nil {
		return SummaryView{}
	}
	return *w.view.clone()
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (w *Workflow) debug(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Debug(msg, args...)
	}
}

func (w *Workflow) warn(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, args...)
	}
}
