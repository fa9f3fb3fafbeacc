package domain

import "encoding/json"

// RawRisk is the undecoded risk-analysis response body.
type RawRisk json.RawMessage

// CategoryRisk is the per-category part of an assessment.
// Scored is false when the backend reported no score for the category.
type CategoryRisk struct {
	Score    float64
	Scored   bool
	Evidence []string
}

// RiskAssessment is the normalized risk output, whatever shape the backend used.
type RiskAssessment struct {
	OverallScore float64
	Category     string
	PerCategory  map[string]CategoryRisk
	DocumentType string
}

// Equal compares two assessments. Per-category scores are compared only when
// both sides carry one.
func (r RiskAssessment) Equal(other RiskAssessment) bool {
	if r.OverallScore != other.OverallScore || r.Category != other.Category || r.DocumentType != other.DocumentType {
		return false
	}
	if len(r.PerCategory) != len(other.PerCategory) {
		return false
	}
	for name, mine := range r.PerCategory {
		theirs, ok := other.PerCategory[name]
		if !ok {
			return false
		}
		if mine.Scored && theirs.Scored && mine.Score != theirs.Score {
			return false
		}
		if len(mine.Evidence) != len(theirs.Evidence) {
			return false
		}
		for i := range mine.Evidence {
			if mine.Evidence[i] != theirs.Evidence[i] {
				return false
			}
		}
	}
	return true
}
