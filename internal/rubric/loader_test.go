package rubric

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/provara/provara/internal/crypto"
)

func TestLoadRubric(t *testing.T) {
	loaded, err := LoadRubric("../../rubrics/code-review.yaml")
	if err != nil {
		t.Fatalf("load rubric: %v", err)
	}

	if loaded.Rubric.RubricID != "code-review" {
		t.Fatalf("unexpected rubric id: %q", loaded.Rubric.RubricID)
	}
	if len(loaded.Rubric.Criteria) != 3 {
		t.Fatalf("expected three criteria, got %d", len(loaded.Rubric.Criteria))
	}

	data, err := os.ReadFile("../../rubrics/code-review.yaml")
	if err != nil {
		t.Fatalf("read rubric: %v", err)
	}
	if loaded.Hash != crypto.DigestWithPrefix(data) {
		t.Fatalf("rubric hash mismatch")
	}
}

func TestLoadRubricRejectsMissingIDs(t *testing.T) {
	dir := t.TempDir()

	noID := filepath.Join(dir, "no-id.yaml")
	if err := os.WriteFile(noID, []byte("min_score_to_pass: 3\n"), 0o600); err != nil {
		t.Fatalf("write rubric: %v", err)
	}
	if _, err := LoadRubric(noID); err == nil {
		t.Fatalf("expected error for missing rubric_id")
	}

	badCriterion := filepath.Join(dir, "bad-criterion.yaml")
	content := []byte("rubric_id: r1\ncriteria:\n  - weight: 1\n")
	if err := os.WriteFile(badCriterion, content, 0o600); err != nil {
		t.Fatalf("write rubric: %v", err)
	}
	if _, err := LoadRubric(badCriterion); err == nil {
		t.Fatalf("expected error for missing criterion_id")
	}
}
