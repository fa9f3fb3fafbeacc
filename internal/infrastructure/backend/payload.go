package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ContractDesk/internal/domain"
)

const maxMessageLen = 200

type summaryPayload struct {
	Summary    string  `json:"summary"`
	KeyClauses clauses `json:"keyClauses"`
}

func (p summaryPayload) toSummary() domain.Summary {
	return domain.Summary{Text: p.Summary, KeyClauses: p.KeyClauses.toMap()}
}

// clauses decodes keyClauses: an object whose values are strings or lists of strings.
// An empty list or null is treated as no clauses.
type clauses map[string]string

func (c *clauses) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.HasPrefix(trimmed, []byte("[")) {
		*c = clauses{}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("keyClauses: %w", err)
	}
	out := make(clauses, len(raw))
	for name, value := range raw {
		var text string
		if err := json.Unmarshal(value, &text); err == nil {
			out[name] = text
			continue
		}
		var lines []string
		if err := json.Unmarshal(value, &lines); err == nil {
			out[name] = strings.Join(lines, "\n")
			continue
		}
		out[name] = strings.TrimSpace(string(value))
	}
	*c = out
	return nil
}

func (c clauses) toMap() map[string]string {
	out := make(map[string]string, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// flexID accepts the backend's integer primary keys as well as string ids.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("document id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// flexSize accepts a preformatted size label or a byte count.
type flexSize string

func (f *flexSize) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexSize(s)
		return nil
	}
	bytesCount, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fmt.Errorf("file size: %w", err)
	}
	*f = flexSize(domain.FormatKilobytes(int64(bytesCount)))
	return nil
}

func jsonErrorField(payload []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}
	var msg string
	if err := json.Unmarshal(envelope.Error, &msg); err != nil {
		return ""
	}
	return strings.TrimSpace(msg)
}

// errorMessage extracts a human-readable reason from a failed response. The backend
// answers with {"error": "..."} when it handles the failure and with an HTML debug
// page when it does not.
func errorMessage(resp *http.Response, payload []byte) string {
	if msg := jsonErrorField(payload); msg != "" {
		return truncate(msg)
	}

	trimmed := bytes.TrimSpace(payload)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") || bytes.HasPrefix(trimmed, []byte("<")) {
		if msg := htmlMessage(trimmed); msg != "" {
			return truncate(msg)
		}
	} else if len(trimmed) > 0 && !bytes.HasPrefix(trimmed, []byte("{")) {
		return truncate(string(trimmed))
	}

	return resp.Status
}

func htmlMessage(payload []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return ""
	}
	for _, selector := range []string{"title", "h1", "pre.exception_value", "p"} {
		if text := collapse(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxMessageLen {
		return s
	}
	return string(runes[:maxMessageLen]) + "..."
}

func parseUploadDate(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func fileTypeFromName(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
}
