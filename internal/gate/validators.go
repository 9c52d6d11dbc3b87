package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/provara/provara/pkg/types"
)

// Outcome is a validator verdict over one evidence item.
type Outcome struct {
	Status  types.CheckStatus
	Message string
}

// ValidatorFunc applies a deterministic pass/fail rule to evidence
// content. Validators never mutate the evidence.
type ValidatorFunc func(ev types.SignedEvidence, params map[string]any) Outcome

// Registry maps validator names to functions. It is an explicitly
// constructed value passed to evaluation (no ambient global), populated
// at startup and append-only afterwards, so concurrent reads need no
// coordination beyond the lock.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]ValidatorFunc
}

func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]ValidatorFunc)}
}

func (r *Registry) Register(name string, fn ValidatorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[name] = fn
}

func (r *Registry) Lookup(name string) (ValidatorFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

// Builtins returns a registry with the standard validators registered.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register("tests_passed", testsPassed)
	r.Register("no_critical_high_findings", severityValidator("findings", "finding"))
	r.Register("no_critical_high_vulns", severityValidator("vulnerabilities", "vulnerability"))
	r.Register("no_secrets_found", noSecretsFound)
	r.Register("file_exists", fileExists)
	r.Register("review_passed", reviewPassed)
	return r
}

// testsPassed passes iff the report's failed count is zero.
func testsPassed(ev types.SignedEvidence, _ map[string]any) Outcome {
	failed, ok := contentInt(ev.Content["failed"])
	if !ok {
		return Outcome{Status: types.CheckError, Message: "test report has no numeric 'failed' count"}
	}
	if failed > 0 {
		return Outcome{Status: types.CheckFailed, Message: fmt.Sprintf("%d tests failed", failed)}
	}
	passed, _ := contentInt(ev.Content["passed"])
	return Outcome{Status: types.CheckPassed, Message: fmt.Sprintf("%d tests passed", passed)}
}

// severityValidator fails when any entry under key carries a critical
// or high severity.
func severityValidator(key, noun string) ValidatorFunc {
	return func(ev types.SignedEvidence, _ map[string]any) Outcome {
		entries, ok := ev.Content[key].([]any)
		if !ok {
			if ev.Content[key] == nil {
				return Outcome{Status: types.CheckPassed, Message: fmt.Sprintf("no %s entries reported", key)}
			}
			return Outcome{Status: types.CheckError, Message: fmt.Sprintf("'%s' is not a list", key)}
		}

		bad := 0
		for _, entry := range entries {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			switch m["severity"] {
			case "critical", "high":
				bad++
			}
		}
		if bad > 0 {
			return Outcome{Status: types.CheckFailed, Message: fmt.Sprintf("%d critical/high %s(s) found", bad, noun)}
		}
		return Outcome{Status: types.CheckPassed, Message: fmt.Sprintf("no critical/high %s found", noun)}
	}
}

// noSecretsFound passes iff the scan reported zero secrets.
func noSecretsFound(ev types.SignedEvidence, _ map[string]any) Outcome {
	if secrets, ok := ev.Content["secrets"].([]any); ok {
		if len(secrets) > 0 {
			return Outcome{Status: types.CheckFailed, Message: fmt.Sprintf("%d secret(s) detected", len(secrets))}
		}
		return Outcome{Status: types.CheckPassed, Message: "no secrets detected"}
	}
	if count, ok := contentInt(ev.Content["count"]); ok {
		if count > 0 {
			return Outcome{Status: types.CheckFailed, Message: fmt.Sprintf("%d secret(s) detected", count)}
		}
		return Outcome{Status: types.CheckPassed, Message: "no secrets detected"}
	}
	return Outcome{Status: types.CheckError, Message: "secret scan report has neither 'secrets' nor 'count'"}
}

// fileExists checks the path named by params["path"], falling back to
// the evidence content's "path".
func fileExists(ev types.SignedEvidence, params map[string]any) Outcome {
	path, _ := params["path"].(string)
	if path == "" {
		path, _ = ev.Content["path"].(string)
	}
	if path == "" {
		return Outcome{Status: types.CheckError, Message: "no path to check"}
	}
	if _, err := os.Stat(path); err != nil {
		return Outcome{Status: types.CheckFailed, Message: fmt.Sprintf("file %s does not exist", path)}
	}
	return Outcome{Status: types.CheckPassed, Message: fmt.Sprintf("file %s exists", path)}
}

// reviewPassed passes iff the recorded review decision carries
// passed=true, as produced by the rubric evaluator.
func reviewPassed(ev types.SignedEvidence, _ map[string]any) Outcome {
	passed, ok := ev.Content["passed"].(bool)
	if !ok {
		return Outcome{Status: types.CheckError, Message: "review decision has no 'passed' verdict"}
	}
	if !passed {
		return Outcome{Status: types.CheckFailed, Message: "review did not pass"}
	}
	return Outcome{Status: types.CheckPassed, Message: "review passed"}
}

// contentInt reads a numeric content field regardless of how the JSON
// layer decoded it.
func contentInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
