package triage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRoster(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roster.yaml")
	data := `responders:
  - name: Gina Park
    skills: [kubernetes, deploy]
  - name: "  Hugo Silva  "
    skills:
      - mobile
      - ios
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	got := r.Responders()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "Gina Park" || got[1].Name != "Hugo Silva" {
		t.Errorf("names = %q, %q", got[0].Name, got[1].Name)
	}
	if strings.Join(got[1].Skills, ",") != "mobile,ios" {
		t.Errorf("skills = %v", got[1].Skills)
	}
}

func TestLoadRoster_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"empty", "responders: []\n", "no responders"},
		{"missing name", "responders:\n  - skills: [a]\n", "has no name"},
		{"duplicate", "responders:\n  - {name: A, skills: [x]}\n  - {name: A, skills: [y]}\n", "duplicate responder"},
		{"no skills", "responders:\n  - name: A\n", "has no skills"},
		{"bad yaml", "responders: [\n", "parse roster"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "roster.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadRoster(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want substring %q", err, tt.wantErr)
			}
		})
	}

	if _, err := LoadRoster(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRoster_ResponderCopiesAreIsolated(t *testing.T) {
	t.Parallel()

	r := DefaultRoster()
	got := r.Responders()
	got[0].Name = "Mallory"
	got[0].Skills[0] = "hacking"

	again := r.Responders()
	if again[0].Name != "Alice Chen" || again[0].Skills[0] != "authentication" {
		t.Errorf("roster mutated through a returned copy: %+v", again[0])
	}
}
