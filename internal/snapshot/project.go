package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
)

// Project is the persisted shape of a discovery session.
type Project struct {
	InModelColumnNames []string           `json:"inModelColumnNames"`
	Constraints        causal.Constraints `json:"constraints"`
	Results            Results            `json:"results"`
}

// Results holds the last published discovery output.
type Results struct {
	Graph *causal.CausalGraph       `json:"graph,omitempty"`
	Model *discovery.InferenceModel `json:"causalInferenceModel,omitempty"`
}

// MarshalProject encodes p as indented JSON.
func MarshalProject(p *Project) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal project: %w", err)
	}
	return data, nil
}

// UnmarshalProject decodes a project. Unknown relationship reasons are
// rejected.
func UnmarshalProject(data []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal project: %w", err)
	}
	return &p, nil
}
