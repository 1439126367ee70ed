package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/noderepo/internal/config"
	"github.com/roach88/noderepo/internal/harness"
	"github.com/roach88/noderepo/internal/policy"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (doublestar pattern)
	Parallel  int    // concurrent scenarios
	GoldenDir string // defaults to <scenarios-dir>/golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios   []ScenarioResult `json:"scenarios"`
	Passed      int              `json:"passed"`
	Failed      int              `json:"failed"`
	Total       int              `json:"total"`
	Invocations int              `json:"invocations"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run behaviour scenarios",
		Long: `Run behaviour dispatch scenarios against an in-memory repository.

Each scenario file binds behaviours, applies its steps and checks its
assertions. The behaviour trace is compared against the golden file
<golden-dir>/<name>.golden when one exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  noderepo test ./scenarios
  noderepo test ./scenarios --filter "archive/**"
  noderepo test ./scenarios --update
  noderepo test ./scenarios --parallel 8 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern (** supported)")
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", runtime.GOMAXPROCS(0), "number of scenarios to run concurrently")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory (default <scenarios-dir>/golden)")

	return cmd
}

func runTests(ctx context.Context, opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	if opts.Filter != "" && !doublestar.ValidatePattern(opts.Filter) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid filter pattern: %s", opts.Filter))
	}
	if opts.Parallel < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--parallel must be at least 1, got %d", opts.Parallel))
	}
	defaults, err := harnessDefaults(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(scenariosDir, "golden")
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(files) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	reg := prometheus.NewRegistry()
	metrics := policy.NewMetrics(reg)
	logger := opts.logger()

	results := make([]ScenarioResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)
	for i, file := range files {
		g.Go(func() error {
			results[i] = runScenario(gctx, opts, scenariosDir, file, goldenDir, defaults, metrics)
			logger.Debug("scenario finished", "file", file, "pass", results[i].Pass)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "scenario run interrupted", err)
	}

	result := TestResult{
		Scenarios:   results,
		Total:       len(results),
		Invocations: countInvocations(reg),
	}
	for _, r := range results {
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// harnessDefaults carries the dispatch, archive and locale settings of cfg
// into every scenario. An unset setting leaves the harness default.
func harnessDefaults(cfg config.Config) (harness.Defaults, error) {
	excluded, err := cfg.ExcludedStoreRefs()
	if err != nil {
		return harness.Defaults{}, err
	}
	archives, err := cfg.ArchiveStores()
	if err != nil {
		return harness.Defaults{}, err
	}
	d := harness.Defaults{
		ExcludedStores:    excluded,
		VersionableAspect: cfg.Dispatch.VersionableAspect,
		MaxDepth:          cfg.Dispatch.MaxDepth,
		Archives:          archives,
	}
	if cfg.Locale.Default != "" {
		if d.Locale, err = cfg.DefaultLocale(); err != nil {
			return harness.Defaults{}, err
		}
	}
	return d, nil
}

// findScenarioFiles returns the YAML files under dir, sorted. A non-empty
// filter is matched against the path relative to dir without its
// extension, so "cart-*" and "archive/**" both work.
func findScenarioFiles(dir, filter string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.{yaml,yml}")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, rel := range matches {
		if strings.HasPrefix(rel, "golden/") {
			continue
		}
		if filter != "" {
			name := strings.TrimSuffix(rel, filepath.Ext(rel))
			if !doublestar.MatchUnvalidated(filter, name) {
				continue
			}
		}
		files = append(files, filepath.Join(dir, filepath.FromSlash(rel)))
	}
	slices.Sort(files)
	return files, nil
}

// runScenario loads, runs and checks one scenario. Failures of any kind
// are reported in the result.
func runScenario(ctx context.Context, opts *TestOptions, scenariosDir, file, goldenDir string, defaults harness.Defaults, metrics *policy.Metrics) ScenarioResult {
	rel, err := filepath.Rel(scenariosDir, file)
	if err != nil {
		rel = filepath.Base(file)
	}
	out := ScenarioResult{Name: rel, File: rel}

	s, err := harness.LoadScenario(file)
	if err != nil {
		out.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return out
	}
	out.Name = s.Name

	result, err := harness.Run(ctx, s,
		harness.WithLogger(opts.logger().With("scenario", s.Name)),
		harness.WithDefaults(defaults),
		harness.WithDispatchOptions(policy.WithMetrics(metrics)),
	)
	if err != nil {
		out.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return out
	}
	out.Errors = result.Errors

	status, err := harness.CompareGolden(goldenDir, s.Name, result, opts.Update)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("golden file: %v", err))
		return out
	}
	switch status {
	case harness.GoldenMatch:
		out.Golden = "match"
	case harness.GoldenUpdated:
		out.Golden = "updated"
	case harness.GoldenMissing:
		out.Golden = "missing"
	case harness.GoldenMismatch:
		out.Golden = "mismatch"
		out.Errors = append(out.Errors, "trace does not match golden file (run with --update to regenerate)")
	}

	out.Pass = len(out.Errors) == 0
	return out
}

// countInvocations sums the behaviour invocation counter across label
// sets.
func countInvocations(reg *prometheus.Registry) int {
	families, err := reg.Gather()
	if err != nil {
		return 0
	}
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != "noderepo_policy_behaviours_invoked_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return int(total)
}

// outputTestJSON writes the test result as a CLIResponse. A failed run
// still carries every scenario result.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	if result.Failed == 0 {
		return formatter.Success(result)
	}
	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := formatter.Failure("E_TEST_FAILED", msg, result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	for _, r := range result.Scenarios {
		if !r.Pass {
			fmt.Fprintf(w, "✗ %s\n", r.Name)
			for _, e := range r.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
			continue
		}
		if r.Golden == "updated" {
			fmt.Fprintf(w, "✓ %s (golden updated)\n", r.Name)
			continue
		}
		fmt.Fprintf(w, "✓ %s\n", r.Name)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total (%d behaviour invocations)\n",
		result.Passed, result.Failed, result.Total, result.Invocations)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
