package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"ContractDesk/internal/config"
	"ContractDesk/internal/domain"
	"ContractDesk/internal/ports"
)

const maxResponseBytes = 4 << 20

// Client talks to the document-analysis backend over its HTTP contract.
type Client struct {
	baseURL       string
	timeout       time.Duration
	uploadTimeout time.Duration
	http          *http.Client
	logger        *slog.Logger
}

var _ ports.BackendGateway = (*Client)(nil)

// NewClient creates a reusable gateway. A nil httpClient gets a default one.
func NewClient(cfg config.BackendConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 2 * time.Minute
	}
	return &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:       timeout,
		uploadTimeout: uploadTimeout,
		http:          httpClient,
		logger:        logger,
	}
}

// ExtractAndSummarize uploads the file and returns the backend-assigned document id with its summary.
func (c *Client) ExtractAndSummarize(ctx context.Context, artifact *domain.UploadedArtifact, userName string) (domain.UploadResult, error) {
	body, contentType, err := multipartBody(artifact, map[string]string{"user_name": userName})
	if err != nil {
		return domain.UploadResult{}, &domain.Error{Kind: domain.KindValidation, Op: domain.OpUpload, Message: "encode upload", Err: err}
	}

	var resp struct {
		DocumentID   flexID  `json:"document_id"`
		Summary      string  `json:"summary"`
		KeyClauses   clauses `json:"keyClauses"`
		ContractType string  `json:"contract_type"`
	}
	if err := c.send(ctx, domain.OpUpload, c.uploadTimeout, http.MethodPost, "/summary/extract-text/", nil, body, contentType, &resp); err != nil {
		return domain.UploadResult{}, err
	}
	if resp.DocumentID == "" {
		return domain.UploadResult{}, domain.BackendError(domain.OpUpload, http.StatusOK, "response carried no document id")
	}

	c.debug("document summarized", "document_id", string(resp.DocumentID), "file", artifact.FileName)
	return domain.UploadResult{
		DocumentID:   string(resp.DocumentID),
		Summary:      domain.Summary{Text: resp.Summary, KeyClauses: resp.KeyClauses.toMap()},
		ContractType: resp.ContractType,
	}, nil
}

// ListRecentDocuments returns the user's latest documents; never nil.
func (c *Client) ListRecentDocuments(ctx context.Context, userName string) ([]domain.DocumentRecord, error) {
	var resp struct {
		RecentDocuments []struct {
			ID           flexID `json:"id"`
			Title        string `json:"title"`
			ContractType string `json:"contractType"`
			UploadDate   string `json:"uploadDate"`
			Summary      string `json:"summary"`
		} `json:"recent_documents"`
	}
	query := url.Values{"user_name": {userName}}
	if err := c.send(ctx, domain.OpRecentDocuments, c.timeout, http.MethodGet, "/summary/recent-document/", query, nil, "", &resp); err != nil {
		return nil, err
	}

	records := make([]domain.DocumentRecord, 0, len(resp.RecentDocuments))
	for _, doc := range resp.RecentDocuments {
		if doc.ID == "" {
			continue
		}
		records = append(records, domain.DocumentRecord{
			ID:           string(doc.ID),
			Title:        doc.Title,
			FileType:     fileTypeFromName(doc.Title),
			UploadDate:   parseUploadDate(doc.UploadDate),
			ContractType: doc.ContractType,
			Summary:      doc.Summary,
		})
	}
	return records, nil
}

// FetchSummaryByDocumentID loads a stored summary for the home view.
func (c *Client) FetchSummaryByDocumentID(ctx context.Context, documentID, userName string) (domain.Summary, error) {
	var resp summaryPayload
	query := url.Values{"document_id": {documentID}, "user_name": {userName}}
	if err := c.send(ctx, domain.OpDocumentSummary, c.timeout, http.MethodGet, "/summary/document-summary/", query, nil, "", &resp); err != nil {
		return domain.Summary{}, err
	}
	return resp.toSummary(), nil
}

// FetchSummaryByRouteID loads a summary and its file metadata for durable hydration.
func (c *Client) FetchSummaryByRouteID(ctx context.Context, docID string) (domain.StoredSummary, error) {
	var resp struct {
		summaryPayload
		FileName string   `json:"file_name"`
		FileType string   `json:"file_type"`
		FileSize flexSize `json:"file_size"`
	}
	path := "/summary/get-summary/" + url.PathEscape(docID) + "/"
	if err := c.send(ctx, domain.OpHydrate, c.timeout, http.MethodGet, path, nil, nil, "", &resp); err != nil {
		return domain.StoredSummary{}, err
	}
	return domain.StoredSummary{
		Summary:  resp.toSummary(),
		FileName: resp.FileName,
		FileType: resp.FileType,
		FileSize: string(resp.FileSize),
	}, nil
}

// RegenerateSummary asks the backend for a fresh summary of an existing document.
func (c *Client) RegenerateSummary(ctx context.Context, docID string) (domain.Summary, error) {
	var resp summaryPayload
	path := "/summary/regenerate-summary/" + url.PathEscape(docID) + "/"
	if err := c.send(ctx, domain.OpRegenerate, c.uploadTimeout, http.MethodPost, path, nil, nil, "", &resp); err != nil {
		return domain.Summary{}, err
	}
	return resp.toSummary(), nil
}

// AnalyzeRisk uploads the raw file for risk scoring and returns the undecoded payload.
func (c *Client) AnalyzeRisk(ctx context.Context, artifact *domain.UploadedArtifact) (domain.RawRisk, error) {
	body, contentType, err := multipartBody(artifact, nil)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindValidation, Op: domain.OpAnalyzeRisk, Message: "encode upload", Err: err}
	}

	var raw json.RawMessage
	if err := c.send(ctx, domain.OpAnalyzeRisk, c.uploadTimeout, http.MethodPost, "/risk/analyze/", nil, body, contentType, &raw); err != nil {
		return nil, err
	}
	return domain.RawRisk(raw), nil
}

func (c *Client) send(ctx context.Context, op string, timeout time.Duration, method, path string, query url.Values, body []byte, contentType string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &domain.Error{Kind: domain.KindNetwork, Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.warn("backend unreachable", "op", op, "path", path, "error", err)
		return domain.NetworkError(op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.NetworkError(op, fmt.Errorf("read response: %w", err))
	}
	c.debug("backend call", "op", op, "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(started))

	if resp.StatusCode == http.StatusNotFound {
		return &domain.Error{Kind: domain.KindNotFound, Op: op, Status: resp.StatusCode, Message: errorMessage(resp, payload)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.BackendError(op, resp.StatusCode, errorMessage(resp, payload))
	}

	if msg := jsonErrorField(payload); msg != "" {
		return domain.BackendError(op, resp.StatusCode, msg)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &domain.Error{Kind: domain.KindBackend, Op: op, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func multipartBody(artifact *domain.UploadedArtifact, fields map[string]string) ([]byte, string, error) {
	if artifact == nil {
		return nil, "", fmt.Errorf("no artifact")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(artifact.FileName)))
	header.Set("Content-Type", artifact.MimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(artifact.Content); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
