package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/roach88/noderepo/internal/dictionary"
)

// Command error codes. Model validation codes (E2xx) come from the
// dictionary package.
const (
	ErrCodeGeneric  = "E001" // Generic/unknown error
	ErrCodeCompile  = "E002" // CUE compile error
	ErrCodeNoFiles  = "E003" // No CUE files found
	ErrCodeNotFound = "E005" // Path not found
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Watch    bool
	Debounce time.Duration
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                         `json:"valid"`
	Classes  int                          `json:"classes,omitempty"`
	Errors   []dictionary.ValidationError `json:"errors,omitempty"`
	Warnings []dictionary.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [model-dir...]",
		Short: "Validate content models",
		Long: `Validate CUE content models against the bootstrap models.

Each directory is compiled as one model. The models are then resolved
together into a dictionary, reporting unresolved names, duplicate
declarations and lattice errors. Mandatory aspect cycles are reported
as warnings.

With no arguments the model directories from the config are used.

Examples:
  noderepo validate ./models
  noderepo validate ./models ./extra --format json
  noderepo validate ./models --watch`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs := args
			if len(dirs) == 0 {
				dirs = opts.Config.Model.Dirs
			}
			if len(dirs) == 0 {
				return NewExitError(ExitCommandError, "no model directories given")
			}
			if opts.Watch {
				return watchModels(cmd.Context(), opts, dirs, cmd)
			}
			return runValidate(opts, dirs, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "revalidate when model files change")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 200*time.Millisecond, "delay before revalidating after a change")

	return cmd
}

func runValidate(opts *ValidateOptions, dirs []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result, err := ValidateModelDirs(dirs, formatter)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// ValidateModelDirs compiles every directory as a model and builds a
// dictionary from them. A returned error means a directory could not be
// read; model problems are reported in the result.
func ValidateModelDirs(dirs []string, formatter *OutputFormatter) (*ValidationResult, error) {
	if formatter == nil {
		formatter = &OutputFormatter{Format: "text", Writer: io.Discard}
	}

	var models []*dictionary.Model
	result := &ValidationResult{}
	for _, dir := range dirs {
		if err := checkModelDir(dir); err != nil {
			_ = formatter.Error(err.code, err.message, nil)
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", err.code, err.message))
		}
		formatter.VerboseLog("Compiling model %s", dir)

		m, err := dictionary.LoadModelDir(dir)
		if err != nil {
			result.Errors = append(result.Errors, compileValidationError(dir, err))
			continue
		}
		models = append(models, m)
	}
	if len(result.Errors) > 0 {
		return result, nil
	}

	d, err := dictionary.New(models...)
	if err != nil {
		var verrs dictionary.ValidationErrors
		if !errors.As(err, &verrs) {
			result.Errors = append(result.Errors, compileValidationError("bootstrap", err))
			return result, nil
		}
		result.Errors = append(result.Errors, verrs...)
		return result, nil
	}

	result.Valid = true
	result.Classes = len(d.Classes())
	result.Warnings = dictionary.AnalyzeMandatoryAspects(d)
	return result, nil
}

type dirError struct {
	code    string
	message string
}

func checkModelDir(dir string) *dirError {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return &dirError{ErrCodeNotFound, fmt.Sprintf("model directory not found: %s", dir)}
	case err != nil:
		return &dirError{ErrCodeNotFound, fmt.Sprintf("error accessing model directory: %v", err)}
	case !info.IsDir():
		return &dirError{ErrCodeNotFound, fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := doublestar.Glob(os.DirFS(dir), "*.cue")
	if err != nil {
		return &dirError{ErrCodeGeneric, fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return &dirError{ErrCodeNoFiles, fmt.Sprintf("no CUE files found in %s", dir)}
	}
	return nil
}

func compileValidationError(dir string, err error) dictionary.ValidationError {
	var cErr *dictionary.CompileError
	if errors.As(err, &cErr) {
		line := 0
		if cErr.Pos.IsValid() {
			line = cErr.Pos.Line()
		}
		return dictionary.ValidationError{
			Field:   cErr.Field,
			Message: cErr.Message,
			Code:    ErrCodeCompile,
			Line:    line,
		}
	}
	return dictionary.ValidationError{
		Field:   dir,
		Message: err.Error(),
		Code:    ErrCodeCompile,
	}
}

// watchModels validates once and then again after every change to a
// .cue file in dirs, until ctx is cancelled. Validation failures are
// reported and do not stop the watch.
func watchModels(ctx context.Context, opts *ValidateOptions, dirs []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.logger()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "create watcher", err)
	}
	defer w.Close()

	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("watch %s", dir), err)
		}
	}
	logger.Info("watching models", "dirs", dirs, "debounce", opts.Debounce)

	revalidate := func() {
		if err := runValidate(opts, dirs, cmd); err != nil {
			logger.Debug("validation failed", "error", err)
		}
	}
	revalidate()

	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isModelChange(event) {
				continue
			}
			logger.Debug("model changed", "path", event.Name, "op", event.Op.String())
			timer = time.After(opts.Debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)

		case <-timer:
			timer = nil
			revalidate()
		}
	}
}

func isModelChange(event fsnotify.Event) bool {
	if filepath.Ext(event.Name) != ".cue" || strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result *ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All models valid (%d classes)\n", result.Classes)
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", w.Message)
	}
	return nil
}

// outputValidateError outputs a single command error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result *ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		if err := formatter.Failure(errs[0].Code, errs[0].Message, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
