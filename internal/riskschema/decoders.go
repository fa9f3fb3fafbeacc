package riskschema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ContractDesk/internal/domain"
)

// NestedDecoder handles {"risk_analysis": {...}} responses.
type NestedDecoder struct{}

// Name identifies the decoder inside the registry.
func (NestedDecoder) Name() string { return "nested" }

// Probe reports whether the risk_analysis object is present.
func (NestedDecoder) Probe(fields Fields) bool {
	raw, ok := fields["risk_analysis"]
	return ok && !isNull(raw)
}

type nestedPayload struct {
	OverallRiskScore  *number              `json:"overallRiskScore"`
	RiskPercentage    *number              `json:"risk_percentage"`
	RiskCategory      string               `json:"risk_category"`
	RiskScores        map[string]number    `json:"risk_scores"`
	RelevantSentences map[string]sentences `json:"relevant_sentences"`
}

// Decode maps the nested shape onto a RiskAssessment.
func (NestedDecoder) Decode(fields Fields) (domain.RiskAssessment, error) {
	var payload nestedPayload
	if err := json.Unmarshal(fields["risk_analysis"], &payload); err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("unmarshal risk_analysis: %w", err)
	}

	overall := 0.0
	switch {
	case payload.OverallRiskScore != nil && *payload.OverallRiskScore != 0:
		overall = float64(*payload.OverallRiskScore)
	case payload.RiskPercentage != nil:
		overall = float64(*payload.RiskPercentage)
	}

	perCategory := make(map[string]domain.CategoryRisk, len(payload.RiskScores))
	for name, score := range payload.RiskScores {
		perCategory[name] = domain.CategoryRisk{Score: float64(score), Scored: true, Evidence: []string{}}
	}
	for name, evidence := range payload.RelevantSentences {
		entry := perCategory[name]
		if entry.Evidence == nil {
			entry.Evidence = []string{}
		}
		entry.Evidence = append(entry.Evidence, evidence...)
		perCategory[name] = entry
	}

	return domain.RiskAssessment{
		OverallScore: clampScore(overall),
		Category:     strings.TrimSpace(payload.RiskCategory),
		PerCategory:  perCategory,
		DocumentType: documentType(fields),
	}, nil
}

// FlatDecoder handles {"risk_level", "risk_percentage", "risk_details"} responses.
type FlatDecoder struct{}

// Name identifies the decoder inside the registry.
func (FlatDecoder) Name() string { return "flat" }

// Probe accepts any object carrying one of the flat keys.
func (FlatDecoder) Probe(fields Fields) bool {
	for _, key := range []string{"risk_level", "risk_percentage", "risk_details"} {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

type flatDetail struct {
	Category string    `json:"category"`
	Score    *number   `json:"score"`
	Evidence sentences `json:"evidence"`
}

// Decode maps the flat shape onto a RiskAssessment.
func (FlatDecoder) Decode(fields Fields) (domain.RiskAssessment, error) {
	var (
		level   string
		percent number
		details []flatDetail
	)
	if raw, ok := fields["risk_level"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &level); err != nil {
			return domain.RiskAssessment{}, fmt.Errorf("unmarshal risk_level: %w", err)
		}
	}
	if raw, ok := fields["risk_percentage"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &percent); err != nil {
			return domain.RiskAssessment{}, fmt.Errorf("unmarshal risk_percentage: %w", err)
		}
	}
	if raw, ok := fields["risk_details"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &details); err != nil {
			return domain.RiskAssessment{}, fmt.Errorf("unmarshal risk_details: %w", err)
		}
	}

	perCategory := make(map[string]domain.CategoryRisk, len(details))
	for _, detail := range details {
		if detail.Category == "" {
			continue
		}
		entry := perCategory[detail.Category]
		if entry.Evidence == nil {
			entry.Evidence = []string{}
		}
		if detail.Score != nil {
			entry.Score = float64(*detail.Score)
			entry.Scored = true
		}
		entry.Evidence = append(entry.Evidence, detail.Evidence...)
		perCategory[detail.Category] = entry
	}

	return domain.RiskAssessment{
		OverallScore: clampScore(float64(percent)),
		Category:     strings.TrimSpace(level),
		PerCategory:  perCategory,
		DocumentType: documentType(fields),
	}, nil
}

// Categories lists category names in a stable order for rendering.
func Categories(assessment domain.RiskAssessment) []string {
	names := make([]string, 0, len(assessment.PerCategory))
	for name := range assessment.PerCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func documentType(fields Fields) string {
	var value string
	if raw, ok := fields["document_type"]; ok {
		_ = json.Unmarshal(raw, &value)
	}
	return value
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// number accepts JSON numbers and numeric strings.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "" || text == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("parse number %s: %w", text, err)
	}
	*n = number(v)
	return nil
}

// sentences accepts either a list of strings or a single string.
type sentences []string

func (s *sentences) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*s = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("evidence is neither a list nor a string: %w", err)
	}
	if strings.TrimSpace(single) == "" {
		*s = nil
		return nil
	}
	*s = []string{single}
	return nil
}
