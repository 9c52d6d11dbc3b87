package rubric

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/provara/provara/internal/crypto"
	"github.com/provara/provara/pkg/types"
)

type LoadedRubric struct {
	Rubric types.Rubric
	Hash   string
	Bytes  []byte
}

// LoadRubric loads a YAML rubric and computes its hash from raw bytes.
func LoadRubric(path string) (LoadedRubric, error) {
	// #nosec G304 -- path comes from operator-provided rubric path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedRubric{}, err
	}

	var r types.Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return LoadedRubric{}, err
	}
	if r.RubricID == "" {
		return LoadedRubric{}, fmt.Errorf("rubric without rubric_id")
	}
	for _, c := range r.Criteria {
		if c.CriterionID == "" {
			return LoadedRubric{}, fmt.Errorf("criterion without criterion_id in rubric %s", r.RubricID)
		}
		if c.Weight < 0 {
			return LoadedRubric{}, fmt.Errorf("criterion %s has negative weight", c.CriterionID)
		}
	}

	return LoadedRubric{
		Rubric: r,
		Hash:   crypto.DigestWithPrefix(data),
		Bytes:  data,
	}, nil
}
