package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/provara/provara/internal/config"
	"github.com/provara/provara/internal/gate"
	"github.com/provara/provara/internal/ledger"
	"github.com/provara/provara/internal/ledger/pgstore"
	"github.com/provara/provara/internal/ledger/sqlstore"
	"github.com/provara/provara/internal/phase"
	"github.com/provara/provara/internal/rubric"
	"github.com/provara/provara/internal/signer"
	"github.com/provara/provara/pkg/types"
)

const defaultDSN = "file:provara.db"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "ingest":
		return handleIngest(args[2:], stdout, stderr)
	case "verify":
		return handleVerify(args[2:], stdout, stderr)
	case "export":
		return handleExport(args[2:], stdout, stderr)
	case "gate":
		return handleGate(args[2:], stdout, stderr)
	case "review":
		return handleReview(args[2:], stdout, stderr)
	case "workflow":
		return handleWorkflow(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

// env holds the store, signer and ledger opened for one invocation.
type env struct {
	cfg    config.Config
	store  ledger.Store
	signer *signer.Signer
	ledger *ledger.Ledger
	close  func() error
}

func (e *env) Close() {
	if e.close != nil {
		_ = e.close()
	}
}

type envFlags struct {
	configPath *string
	dsn        *string
	keyPath    *string
}

func addEnvFlags(fs *flag.FlagSet) envFlags {
	return envFlags{
		configPath: fs.String("config", envOrDefault("PROVARA_CONFIG", ""), "config file path"),
		dsn:        fs.String("db", "", "sqlite DSN (overrides config)"),
		keyPath:    fs.String("key", "", "ed25519 private key file (overrides config)"),
	}
}

func openEnv(flags envFlags) (*env, error) {
	var cfg config.Config
	if *flags.configPath != "" {
		loaded, err := config.Load(*flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	driver := cfg.DB.Driver
	dsn := cfg.DB.DSN
	if *flags.dsn != "" {
		driver = "sqlite"
		dsn = *flags.dsn
	}
	if driver == "" {
		driver = "sqlite"
	}
	if dsn == "" {
		dsn = defaultDSN
	}

	var store ledger.Store
	var closeFn func() error
	switch driver {
	case "sqlite":
		s, err := sqlstore.OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		store = s
		closeFn = s.Close
	case "postgres":
		s, err := pgstore.OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		store = s
		closeFn = s.Close
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", driver)
	}

	keyPath := cfg.SigningKey.PrivateKeyPath
	if *flags.keyPath != "" {
		keyPath = *flags.keyPath
	}
	var sgn *signer.Signer
	if keyPath != "" {
		s, err := signer.FromKeyFile(keyPath)
		if err != nil {
			_ = closeFn()
			return nil, err
		}
		sgn = s
	} else {
		sgn = signer.New()
	}

	return &env{
		cfg:    cfg,
		store:  store,
		signer: sgn,
		ledger: ledger.New(store, sgn),
		close:  closeFn,
	}, nil
}

func handleIngest(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := addEnvFlags(fs)
	project := fs.String("project", "", "project id (overrides config)")
	runID := fs.String("run", "", "run id")
	source := fs.String("source", "cli", "evidence source")
	evType := fs.String("type", string(types.EvidenceFile), "evidence type")
	name := fs.String("name", "", "evidence name recorded in metadata")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "ingest requires <content.json>")
		fs.Usage()
		return 2
	}

	// #nosec G304 -- path is an operator-provided evidence file.
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		fmt.Fprintln(stderr, "invalid evidence content:", err)
		return 1
	}

	e, err := openEnv(flags)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer e.Close()

	projectID := *project
	if projectID == "" {
		projectID = e.cfg.ProjectID
	}
	if projectID == "" {
		fmt.Fprintln(stderr, "project id required (--project or config)")
		return 2
	}

	ev := types.Evidence{
		EvidenceID: uuid.NewString(),
		ProjectID:  projectID,
		RunID:      *runID,
		Source:     *source,
		Type:       types.EvidenceType(*evType),
		Content:    content,
	}
	if *name != "" {
		ev.Metadata = map[string]string{"name": *name}
	}

	signed, err := e.signer.SignEvidence(ev, e.cfg.SigningKey.KeyID)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	rec, err := e.ledger.AppendEvidence(signed)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	fmt.Fprintf(stdout, "ingested evidence_id=%s record_id=%s chain_index=%d\n",
		signed.EvidenceID, rec.RecordID, rec.ChainIndex)
	return 0
}

func handleVerify(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := addEnvFlags(fs)
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "verify requires <project_id>")
		fs.Usage()
		return 2
	}
	projectID := fs.Arg(0)

	e, err := openEnv(flags)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer e.Close()

	report := e.ledger.VerifyChain(projectID)
	if report.Valid {
		fmt.Fprintf(stdout, "valid=true project_id=%s records=%d\n", projectID, report.Checked)
		return 0
	}
	fmt.Fprintf(stdout, "valid=false project_id=%s checked=%d error=%s\n",
		projectID, report.Checked, report.Err)
	return 1
}

func handleExport(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := addEnvFlags(fs)
	outPath := fs.String("out", "", "output path (default stdout)")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "export requires <project_id>")
		fs.Usage()
		return 2
	}
	projectID := fs.Arg(0)

	e, err := openEnv(flags)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer e.Close()

	manifest, err := e.ledger.Export(projectID)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	if *outPath == "" {
		fmt.Fprintln(stdout, string(encoded))
		return 0
	}
	if dir := filepath.Dir(*outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			fmt.Fprintln(stderr, "output dir:", err)
			return 1
		}
	}
	if err := os.WriteFile(*outPath, encoded, 0o600); err != nil {
		fmt.Fprintln(stderr, "write output:", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\n", *outPath)
	return 0
}

func handleGate(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "lint":
		return handleGateLint(args[1:], stdout, stderr)
	case "run":
		return handleGateRun(args[1:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleGateLint(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("gate lint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "gate lint requires <gates_path>")
		fs.Usage()
		return 2
	}

	loaded, err := gate.LoadGates(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	fmt.Fprintf(stdout, "ok gates=%d gates_hash=%s\n", len(loaded.Gates), loaded.Hash)
	return 0
}

func handleGateRun(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("gate run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := addEnvFlags(fs)
	gatesPath := fs.String("gates", "", "gates file path (overrides config)")
	project := fs.String("project", "", "project id (overrides config)")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "gate run requires <gate_id>")
		fs.Usage()
		return 2
	}
	gateID := fs.Arg(0)

	e, err := openEnv(flags)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer e.Close()

	path := *gatesPath
	if path == "" {
		path = e.cfg.GatesPath
	}
	if path == "" {
		fmt.Fprintln(stderr, "gates path required (--gates or config)")
		return 2
	}
	loaded, err := gate.LoadGates(path)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	g, err := gate.Find(loaded.Gates, gateID)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	projectID := *project
	if projectID == "" {
		projectID = e.cfg.ProjectID
	}
	if projectID == "" {
		fmt.Fprintln(stderr, "project id required (--project or config)")
		return 2
	}
	evidence, err := e.ledger.Evidence(projectID)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	result, err := gate.Evaluate(g, evidence, gate.Builtins(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	fmt.Fprintf(stdout, "gate=%s status=%s\n", result.GateID, result.Status)
	for _, check := range result.Checks {
		fmt.Fprintf(stdout, "  check=%s status=%s %s\n", check.CheckID, check.Status, check.Message)
	}
	if result.Status != types.GatePassed {
		return 1
	}
	return 0
}

func handleReview(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := addEnvFlags(fs)
	rubricPath := fs.String("rubric", "", "rubric file path")
	reviewer := fs.String("reviewer", "", "reviewer id")
	comments := fs.String("comments", "", "review comments")
	project := fs.String("project", "", "project id (overrides config)")
	runID := fs.String("run", "", "run id")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "review requires <scores.json>")
		fs.Usage()
		return 2
	}
	if *rubricPath == "" || *reviewer == "" {
		fmt.Fprintln(stderr, "review requires --rubric and --reviewer")
		fs.Usage()
		return 2
	}

	// #nosec G304 -- path is an operator-provided scores file.
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	var scores map[string]float64
	if err := json.Unmarshal(raw, &scores); err != nil {
		fmt.Fprintln(stderr, "invalid scores:", err)
		return 1
	}

	loaded, err := rubric.LoadRubric(*rubricPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	e, err := openEnv(flags)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer e.Close()

	projectID := *project
	if projectID == "" {
		projectID = e.cfg.ProjectID
	}
	if projectID == "" {
		fmt.Fprintln(stderr, "project id required (--project or config)")
		return 2
	}

	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	result := rubric.Evaluate(loaded.Rubric, scores, *reviewer, *comments, createdAt)

	encoded, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	var content map[string]any
	if err := json.Unmarshal(encoded, &content); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	signed, err := e.signer.SignEvidence(types.Evidence{
		EvidenceID: uuid.NewString(),
		ProjectID:  projectID,
		RunID:      *runID,
		Source:     *reviewer,
		Type:       types.EvidenceDecision,
		Content:    content,
		Metadata:   map[string]string{"name": loaded.Rubric.RubricID},
	}, e.cfg.SigningKey.KeyID)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	rec, err := e.ledger.AppendEvidence(signed)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	fmt.Fprintf(stdout, "review rubric=%s passed=%t total_score=%.2f evidence_id=%s record_id=%s\n",
		result.RubricID, result.Passed, result.TotalScore, signed.EvidenceID, rec.RecordID)
	if !result.Passed {
		return 1
	}
	return 0
}

func handleWorkflow(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "dispatch":
		return handleWorkflowDispatch(args[1:], stdout, stderr)
	case "status":
		return handleWorkflowStatus(args[1:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func restoreMachine(e *env, gatesPath, workflowPath, project, runID string, stderr io.Writer) (*phase.Machine, int) {
	projectID := project
	if projectID == "" {
		projectID = e.cfg.ProjectID
	}
	if projectID == "" {
		fmt.Fprintln(stderr, "project id required (--project or config)")
		return nil, 2
	}

	workflow := phase.DefaultWorkflow()
	path := workflowPath
	if path == "" {
		path = e.cfg.WorkflowPath
	}
	if path != "" {
		loaded, err := phase.LoadWorkflow(path)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return nil, 1
		}
		workflow = loaded.Workflow
	}

	var gates []types.Gate
	gpath := gatesPath
	if gpath == "" {
		gpath = e.cfg.GatesPath
	}
	if gpath != "" {
		loaded, err := gate.LoadGates(gpath)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return nil, 1
		}
		gates = loaded.Gates
	}

	m, err := phase.Restore(phase.Config{
		ProjectID: projectID,
		RunID:     runID,
		Workflow:  workflow,
		Gates:     gates,
		Ledger:    e.ledger,
	})
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return nil, 1
	}
	return m, 0
}

func handleWorkflowDispatch(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("workflow dispatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := addEnvFlags(fs)
	gatesPath := fs.String("gates", "", "gates file path (overrides config)")
	workflowPath := fs.String("workflow", "", "workflow file path (overrides config)")
	project := fs.String("project", "", "project id (overrides config)")
	runID := fs.String("run", "", "run id")
	actor := fs.String("actor", "cli", "actor recorded in the audit trail")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "workflow dispatch requires <event>")
		fs.Usage()
		return 2
	}
	event := fs.Arg(0)

	e, err := openEnv(flags)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer e.Close()

	m, code := restoreMachine(e, *gatesPath, *workflowPath, *project, *runID, stderr)
	if m == nil {
		return code
	}

	tr, err := m.Dispatch(event, *actor)
	if err != nil {
		var violation *phase.PolicyViolationError
		if errors.As(err, &violation) {
			fmt.Fprintln(stderr, violation.Error())
			return 1
		}
		var invalid *phase.InvalidTransitionError
		if errors.As(err, &invalid) {
			fmt.Fprintln(stderr, invalid.Error())
			return 1
		}
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	fmt.Fprintf(stdout, "transitioned from=%s to=%s event=%s\n", tr.From, tr.To, tr.Event)
	return 0
}

func handleWorkflowStatus(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("workflow status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := addEnvFlags(fs)
	gatesPath := fs.String("gates", "", "gates file path (overrides config)")
	workflowPath := fs.String("workflow", "", "workflow file path (overrides config)")
	project := fs.String("project", "", "project id (overrides config)")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	e, err := openEnv(flags)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer e.Close()

	m, code := restoreMachine(e, *gatesPath, *workflowPath, *project, "", stderr)
	if m == nil {
		return code
	}

	fmt.Fprintf(stdout, "phase=%s\n", m.Current())
	for _, ev := range m.AvailableTransitions() {
		fmt.Fprintf(stdout, "  event=%s\n", ev)
	}
	for _, st := range m.ParallelStates() {
		fmt.Fprintf(stdout, "  monitor=%s status=%s last_check=%s\n", st.Name, st.Status, st.LastCheckAt)
	}
	return 0
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Provara CLI

Usage:
  provara ingest <content.json> --project ID [--run ID] [--source S] [--type T] [--name N]
  provara verify <project_id>
  provara export <project_id> [--out manifest.json]
  provara gate lint <gates_path>
  provara gate run <gate_id> --gates path --project ID
  provara review <scores.json> --rubric path --reviewer ID --project ID
  provara workflow dispatch <event> --project ID [--gates path] [--workflow path] [--actor A]
  provara workflow status --project ID

Common flags: --config path, --db DSN, --key path
`)
}
