package dictionary

import (
	"embed"
	"fmt"
	"path"
	"sync"
)

//go:embed models/*.cue
var bootstrapFS embed.FS

// bootstrapFiles is ordered: the content model refers to system classes.
var bootstrapFiles = []string{"models/system.cue", "models/content.cue"}

var (
	bootstrapOnce   sync.Once
	bootstrapModels []*Model
	bootstrapErr    error
)

// BootstrapModels returns the embedded system and content models.
// They are compiled once per process.
func BootstrapModels() ([]*Model, error) {
	bootstrapOnce.Do(func() {
		for _, file := range bootstrapFiles {
			src, err := bootstrapFS.ReadFile(file)
			if err != nil {
				bootstrapErr = fmt.Errorf("read bootstrap model %s: %w", file, err)
				return
			}
			m, err := CompileModelString(path.Base(file), string(src))
			if err != nil {
				bootstrapErr = fmt.Errorf("compile bootstrap model %s: %w", file, err)
				return
			}
			bootstrapModels = append(bootstrapModels, m)
		}
	})
	return bootstrapModels, bootstrapErr
}

// New builds a dictionary from the bootstrap models followed by extra.
func New(extra ...*Model) (*Dictionary, error) {
	models, err := BootstrapModels()
	if err != nil {
		return nil, err
	}
	all := make([]*Model, 0, len(models)+len(extra))
	all = append(all, models...)
	all = append(all, extra...)
	return Build(all...)
}

// NewFromDirs builds a dictionary from the bootstrap models plus one model
// per directory.
func NewFromDirs(dirs ...string) (*Dictionary, error) {
	var extra []*Model
	for _, dir := range dirs {
		m, err := LoadModelDir(dir)
		if err != nil {
			return nil, err
		}
		extra = append(extra, m)
	}
	return New(extra...)
}
