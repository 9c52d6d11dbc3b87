package gate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/provara/provara/internal/crypto"
	"github.com/provara/provara/pkg/types"
)

type LoadedGates struct {
	Gates []types.Gate
	Hash  string
	Bytes []byte
}

type gatesFile struct {
	Gates []types.Gate `yaml:"gates"`
}

// LoadGates loads a YAML gate set and computes its hash from raw bytes.
// Validator names are not resolved here: an unknown validator is an
// evaluation-time error, not a load-time one.
func LoadGates(path string) (LoadedGates, error) {
	// #nosec G304 -- path comes from operator-configured gates path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedGates{}, err
	}

	var f gatesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return LoadedGates{}, err
	}

	seen := map[string]struct{}{}
	for _, g := range f.Gates {
		if g.GateID == "" {
			return LoadedGates{}, fmt.Errorf("gate without gate_id")
		}
		if _, ok := seen[g.GateID]; ok {
			return LoadedGates{}, fmt.Errorf("duplicate gate_id: %s", g.GateID)
		}
		seen[g.GateID] = struct{}{}
	}

	return LoadedGates{
		Gates: f.Gates,
		Hash:  crypto.DigestWithPrefix(data),
		Bytes: data,
	}, nil
}
