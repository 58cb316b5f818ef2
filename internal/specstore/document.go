package specstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/evodash/internal/apperr"
)

// Feature statuses stored in the spec document.
const (
	FeatureActive   = "active"
	FeatureInactive = "inactive"
)

// InitialVersion is the version of a freshly initialised document.
const InitialVersion = "1.0.0"

// Document is the declarative description of the dashboard: the features it
// has acquired and the workflows that drive it.
type Document struct {
	Version   string                 `yaml:"version" json:"version"`
	Features  map[string]FeatureSpec `yaml:"features" json:"features"`
	Workflows []WorkflowSpec         `yaml:"workflows" json:"workflows"`
}

type FeatureSpec struct {
	Description string    `yaml:"description" json:"description"`
	Component   string    `yaml:"component" json:"component"`
	Status      string    `yaml:"status" json:"status"`
	RequestID   string    `yaml:"requestId,omitempty" json:"requestId,omitempty"`
	CreatedAt   time.Time `yaml:"createdAt,omitempty" json:"createdAt,omitzero"`
}

type WorkflowSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Trigger     string   `yaml:"trigger,omitempty" json:"trigger,omitempty"`
	Steps       []string `yaml:"steps,omitempty" json:"steps,omitempty"`
}

// Default returns the document written by Init.
func Default() Document {
	return Document{
		Version:   InitialVersion,
		Features:  map[string]FeatureSpec{},
		Workflows: []WorkflowSpec{},
	}
}

func (d *Document) normalize() {
	if d.Features == nil {
		d.Features = map[string]FeatureSpec{}
	}
	if d.Workflows == nil {
		d.Workflows = []WorkflowSpec{}
	}
}

// FeatureNames returns the feature names in lexical order.
func (d Document) FeatureNames() []string {
	names := make([]string, 0, len(d.Features))
	for name := range d.Features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PutFeature records a feature. An existing entry keeps its original
// createdAt so the timestamp stays durable across regenerations.
func (d *Document) PutFeature(name string, f FeatureSpec) {
	d.normalize()
	if prev, ok := d.Features[name]; ok && !prev.CreatedAt.IsZero() {
		f.CreatedAt = prev.CreatedAt
	}
	if f.Status == "" {
		f.Status = FeatureActive
	}
	d.Features[name] = f
}

// FeaturePatch is a partial update to a feature. Nil fields are left alone.
type FeaturePatch struct {
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// PatchFeature applies p to the named feature.
func (d *Document) PatchFeature(name string, p FeaturePatch) error {
	f, ok := d.Features[name]
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "feature %q not found", name)
	}
	if p.Status != nil {
		if *p.Status != FeatureActive && *p.Status != FeatureInactive {
			return apperr.Validation("status must be %q or %q", FeatureActive, FeatureInactive)
		}
		f.Status = *p.Status
	}
	if p.Description != nil {
		f.Description = strings.TrimSpace(*p.Description)
	}
	d.Features[name] = f
	return nil
}

// AddWorkflow appends w. Workflow names are unique.
func (d *Document) AddWorkflow(w WorkflowSpec) error {
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return apperr.Validation("workflow name is required")
	}
	for _, existing := range d.Workflows {
		if existing.Name == w.Name {
			return apperr.Validation("workflow %q already exists", w.Name)
		}
	}
	d.normalize()
	d.Workflows = append(d.Workflows, w)
	return nil
}

func (d Document) String() string {
	return fmt.Sprintf("spec v%s (%d features, %d workflows)", d.Version, len(d.Features), len(d.Workflows))
}
