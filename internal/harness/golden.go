package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertGolden compares result's trace against
// testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(result.TraceText()))
}

// GoldenStatus is the outcome of CompareGolden.
type GoldenStatus int

const (
	GoldenMatch GoldenStatus = iota
	GoldenMismatch
	GoldenMissing
	GoldenUpdated
)

// GoldenPath returns the golden file of a scenario under dir.
func GoldenPath(dir, name string) string {
	return filepath.Join(dir, name+".golden")
}

// CompareGolden checks result's trace against the golden file under dir,
// outside of go test. With update set the file is rewritten instead.
func CompareGolden(dir, name string, result *Result, update bool) (GoldenStatus, error) {
	path := GoldenPath(dir, name)
	actual := []byte(result.TraceText())
	if update {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create golden dir: %w", err)
		}
		if err := os.WriteFile(path, actual, 0o644); err != nil {
			return 0, fmt.Errorf("write golden file: %w", err)
		}
		return GoldenUpdated, nil
	}
	expected, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return GoldenMissing, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(expected, actual) {
		return GoldenMismatch, nil
	}
	return GoldenMatch, nil
}
