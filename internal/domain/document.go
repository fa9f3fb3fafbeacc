package domain

import (
	"fmt"
	"mime"
	"strings"
	"time"
)

// PDFMimeType is the only media type accepted into the workflow.
const PDFMimeType = "application/pdf"

// UploadedArtifact is the raw file selected by the user before the backend has seen it.
type UploadedArtifact struct {
	Handle    string
	FileName  string
	MimeType  string
	SizeBytes int64
	Content   []byte
}

// Validate rejects anything that is not a non-empty PDF.
func (a *UploadedArtifact) Validate() error {
	if a == nil || strings.TrimSpace(a.FileName) == "" || len(a.Content) == 0 {
		return NewError(KindValidation, OpSelect, "no file selected")
	}
	mediaType, _, err := mime.ParseMediaType(a.MimeType)
	if err != nil || !strings.EqualFold(mediaType, PDFMimeType) {
		return NewError(KindValidation, OpSelect, fmt.Sprintf("unsupported file type %q", a.MimeType))
	}
	return nil
}

// FileType is the media subtype shown next to the title ("pdf").
func (a *UploadedArtifact) FileType() string {
	mediaType, _, err := mime.ParseMediaType(a.MimeType)
	if err != nil {
		mediaType = a.MimeType
	}
	if _, sub, ok := strings.Cut(mediaType, "/"); ok {
		return strings.ToLower(sub)
	}
	return strings.ToLower(mediaType)
}

// SizeLabel renders the size in kilobytes with two decimals, e.g. "12.50 KB".
func (a *UploadedArtifact) SizeLabel() string {
	return FormatKilobytes(a.SizeBytes)
}

// Clone returns a deep copy so stored artifacts cannot be mutated through callers.
func (a *UploadedArtifact) Clone() *UploadedArtifact {
	if a == nil {
		return nil
	}
	c := *a
	c.Content = append([]byte(nil), a.Content...)
	return &c
}

// FormatKilobytes renders a byte count as "%.2f KB".
func FormatKilobytes(size int64) string {
	return fmt.Sprintf("%.2f KB", float64(size)/1024)
}

// DocumentRecord identifies one analyzed file. ID is always backend-assigned.
type DocumentRecord struct {
	ID            string
	Title         string
	FileType      string
	FileSizeLabel string
	UploadDate    time.Time
	ContractType  string
	Summary       string
}

// Clone returns a copy of the record.
func (r *DocumentRecord) Clone() *DocumentRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Summary is the generated prose plus named key clauses for a document.
type Summary struct {
	Text       string
	KeyClauses map[string]string
}

// Clone copies the clause map so replacements never alias.
func (s Summary) Clone() Summary {
	clauses := make(map[string]string, len(s.KeyClauses))
	for k, v := range s.KeyClauses {
		clauses[k] = v
	}
	return Summary{Text: s.Text, KeyClauses: clauses}
}

// UploadResult is what the backend returns after extracting and summarizing a file.
type UploadResult struct {
	DocumentID   string
	Summary      Summary
	ContractType string
}

// StoredSummary is the durable summary record fetched by route id.
type StoredSummary struct {
	Summary  Summary
	FileName string
	FileType string
	FileSize string
}

// Session is the single-document working state of one browser.
type Session struct {
	UploadedArtifact *UploadedArtifact
	ActiveDocument   *DocumentRecord
}

// Clone deep-copies the session.
func (s Session) Clone() Session {
	return Session{
		UploadedArtifact: s.UploadedArtifact.Clone(),
		ActiveDocument:   s.ActiveDocument.Clone(),
	}
}
