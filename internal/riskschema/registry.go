// Package riskschema normalizes the risk-analysis payloads the backend may return.
package riskschema

import (
	"encoding/json"
	"fmt"

	"ContractDesk/internal/domain"
)

// Fields is a decoded top-level JSON object.
type Fields map[string]json.RawMessage

// Decoder recognizes and decodes one response shape.
type Decoder interface {
	Name() string
	Probe(fields Fields) bool
	Decode(fields Fields) (domain.RiskAssessment, error)
}

// Registry keeps decoders in probe order.
type Registry struct {
	order    []string
	decoders map[string]Decoder
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: map[string]Decoder{}}
}

// Default returns the registry used by the workflow: nested shape first, flat shape second.
func Default() *Registry {
	reg := NewRegistry()
	reg.Register(NestedDecoder{})
	reg.Register(FlatDecoder{})
	return reg
}

// Register adds a decoder at the end of the probe order, or replaces one with the same
// name in place.
func (r *Registry) Register(decoder Decoder) {
	if r.decoders == nil {
		r.decoders = map[string]Decoder{}
	}
	name := decoder.Name()
	if _, ok := r.decoders[name]; !ok {
		r.order = append(r.order, name)
	}
	r.decoders[name] = decoder
}

// Resolve returns a decoder by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Decoder, error) {
	if decoder, ok := r.decoders[name]; ok {
		return decoder, nil
	}
	return nil, fmt.Errorf("risk decoder %s is not registered", name)
}

// Normalize probes each decoder in order and decodes with the first match.
func (r *Registry) Normalize(raw domain.RawRisk) (domain.RiskAssessment, error) {
	var fields Fields
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return domain.RiskAssessment{}, domain.BackendError(domain.OpAnalyzeRisk, 0, "risk analysis payload is not a JSON object")
	}

	for _, name := range r.order {
		decoder := r.decoders[name]
		if !decoder.Probe(fields) {
			continue
		}
		assessment, err := decoder.Decode(fields)
		if err != nil {
			return domain.RiskAssessment{}, &domain.Error{
				Kind:    domain.KindBackend,
				Op:      domain.OpAnalyzeRisk,
				Message: fmt.Sprintf("decode %s risk payload", name),
				Err:     err,
			}
		}
		return assessment, nil
	}

	return domain.RiskAssessment{}, domain.BackendError(domain.OpAnalyzeRisk, 0, "unrecognized risk analysis payload")
}
