package template

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/skyhangar/flightline/model"
)

// snapshot is an immutable collection of templates indexed by ID.
type snapshot struct {
	templates map[string]model.WorkflowTemplate
	checksum  string
}

// Registry is a read-optimized, thread-safe store of loaded templates. It
// uses atomic pointer swap for lock-free concurrent reads; Replace installs
// a whole new snapshot so readers never observe a partial reload.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given templates.
func NewRegistry(templates []model.WorkflowTemplate) *Registry {
	r := &Registry{}
	r.Replace(templates)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given templates.
func (r *Registry) Replace(templates []model.WorkflowTemplate) {
	s := &snapshot{
		templates: make(map[string]model.WorkflowTemplate, len(templates)),
	}

	var checksumParts []string
	for _, tmpl := range templates {
		s.templates[tmpl.ID] = tmpl
		checksumParts = append(checksumParts, tmpl.Checksum)
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Resolve returns the template with the given ID. It satisfies the engine's
// template resolver.
func (r *Registry) Resolve(templateID string) (model.WorkflowTemplate, error) {
	tmpl, ok := r.current().templates[templateID]
	if !ok {
		return model.WorkflowTemplate{}, model.NewNotFoundError(fmt.Sprintf("template %q not found", templateID))
	}
	return tmpl, nil
}

// Get returns the template with the given ID.
func (r *Registry) Get(templateID string) (model.WorkflowTemplate, bool) {
	tmpl, ok := r.current().templates[templateID]
	return tmpl, ok
}

// All returns all templates sorted by ID.
func (r *Registry) All() []model.WorkflowTemplate {
	s := r.current()
	templates := make([]model.WorkflowTemplate, 0, len(s.templates))
	for _, tmpl := range s.templates {
		templates = append(templates, tmpl)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates
}

// Checksum returns the combined checksum of all loaded templates.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
