package template

import (
	"testing"
)

func TestLoader_LoadFile(t *testing.T) {
	l := NewLoader()
	tmpl, err := l.LoadFile("testdata/library/standard.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if tmpl.ID != "maintenance.standard" {
		t.Errorf("ID = %q, want maintenance.standard", tmpl.ID)
	}
	if tmpl.Version != "1.0.0" {
		t.Errorf("Version = %q, want 1.0.0", tmpl.Version)
	}
	if len(tmpl.StageSequence) != 3 {
		t.Fatalf("StageSequence = %d stages, want 3", len(tmpl.StageSequence))
	}
	if tmpl.StageSequence[0] != "engineering" || tmpl.StageSequence[2] != "operations" {
		t.Errorf("StageSequence = %v", tmpl.StageSequence)
	}
	if tmpl.MinApprovals != 1 {
		t.Errorf("MinApprovals = %d, want 1", tmpl.MinApprovals)
	}
	if d, ok := tmpl.EscalationAfter(); !ok || d.Hours() != 72 {
		t.Errorf("EscalationAfter() = %v, %v, want 72h", d, ok)
	}
	if tmpl.Checksum == "" {
		t.Error("Checksum should not be empty")
	}
	if tmpl.SourceFile != "testdata/library/standard.yaml" {
		t.Errorf("SourceFile = %q", tmpl.SourceFile)
	}
}

func TestLoader_LoadFile_normalizesMinApprovals(t *testing.T) {
	l := NewLoader()

	// Absent min_approvals defaults to a single approver.
	tmpl, err := l.LoadFile("testdata/minimal.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if tmpl.MinApprovals != 1 {
		t.Errorf("MinApprovals = %d, want 1", tmpl.MinApprovals)
	}
	if _, ok := tmpl.EscalationAfter(); ok {
		t.Error("EscalationAfter() should report disabled when unset")
	}

	tmpl, err = l.LoadFile("testdata/library/expedited.yml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if tmpl.MinApprovals != 2 {
		t.Errorf("MinApprovals = %d, want 2", tmpl.MinApprovals)
	}
}

func TestLoader_LoadFile_not_found(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFile("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("LoadFile() with missing file should return error")
	}
}

func TestLoader_LoadFile_invalid_yaml(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFile("testdata/invalid/bad.yaml")
	if err == nil {
		t.Fatal("LoadFile() with malformed YAML should return error")
	}
}

func TestLoader_LoadAll(t *testing.T) {
	l := NewLoader()
	templates, err := l.LoadAll([]string{"testdata/library"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("LoadAll() = %d templates, want 2", len(templates))
	}

	ids := make(map[string]bool)
	for _, tmpl := range templates {
		ids[tmpl.ID] = true
	}
	if !ids["maintenance.standard"] || !ids["maintenance.expedited"] {
		t.Errorf("loaded IDs = %v", ids)
	}
}

func TestLoader_LoadAll_missing_directory(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadAll([]string{"testdata/no-such-dir"})
	if err == nil {
		t.Fatal("LoadAll() with missing directory should return error")
	}
}
