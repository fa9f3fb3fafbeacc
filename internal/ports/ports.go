package ports

import (
	"context"
	"time"

	"ContractDesk/internal/domain"
)

// BackendGateway is the typed contract of the analysis backend.
type BackendGateway interface {
	ExtractAndSummarize(ctx context.Context, artifact *domain.UploadedArtifact, userName string) (domain.UploadResult, error)
	ListRecentDocuments(ctx context.Context, userName string) ([]domain.DocumentRecord, error)
	FetchSummaryByDocumentID(ctx context.Context, documentID, userName string) (domain.Summary, error)
	FetchSummaryByRouteID(ctx context.Context, docID string) (domain.StoredSummary, error)
	RegenerateSummary(ctx context.Context, docID string) (domain.Summary, error)
	AnalyzeRisk(ctx context.Context, artifact *domain.UploadedArtifact) (domain.RawRisk, error)
}

// SessionReader is the read-only view of a session handed to views.
type SessionReader interface {
	Get(ctx context.Context) (domain.Session, error)
}

// SessionStore holds the document currently being worked on. Only the workflow
// controller writes to it.
type SessionStore interface {
	SessionReader
	SetUploadedArtifact(ctx context.Context, artifact *domain.UploadedArtifact) error
	SetActiveDocument(ctx context.Context, record *domain.DocumentRecord) error
	Clear(ctx context.Context) error
}

// SessionStoreFactory opens the store backing one browser session.
type SessionStoreFactory interface {
	Open(sessionID string) SessionStore
}

// Scheduler runs a recurring background job.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
