// Package template loads workflow templates from YAML files, validates
// them, and serves them from a registry with atomic pointer swap so a
// reload never blocks readers.
package template

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skyhangar/flightline/model"
)

// Loader scans directories for YAML template files, parses them, and
// computes SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new template Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and
// parses each into a WorkflowTemplate.
func (l *Loader) LoadAll(directories []string) ([]model.WorkflowTemplate, error) {
	var templates []model.WorkflowTemplate

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			tmpl, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			templates = append(templates, tmpl)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return templates, nil
}

// LoadFile loads and parses a single YAML template file. It computes the
// SHA-256 checksum, records the source file path, and normalizes
// min_approvals.
func (l *Loader) LoadFile(path string) (model.WorkflowTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WorkflowTemplate{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var tmpl model.WorkflowTemplate
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return model.WorkflowTemplate{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	if tmpl.MinApprovals < 1 {
		tmpl.MinApprovals = 1
	}

	tmpl.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	tmpl.SourceFile = path

	return tmpl, nil
}
