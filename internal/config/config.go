// Package config loads repository configuration from defaults, an
// optional TOML file and NODEREPO_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"github.com/roach88/noderepo/internal/ir"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NODEREPO_"

// Config is the repository configuration.
type Config struct {
	Model    ModelConfig     `toml:"model" envPrefix:"MODEL_"`
	Dispatch DispatchConfig  `toml:"dispatch" envPrefix:"DISPATCH_"`
	Archive  []ArchiveConfig `toml:"archive" validate:"dive"`
	Locale   LocaleConfig    `toml:"locale" envPrefix:"LOCALE_"`
	Log      LogConfig       `toml:"log" envPrefix:"LOG_"`
}

// ModelConfig lists model directories loaded after the bootstrap models.
type ModelConfig struct {
	Dirs []string `toml:"dirs" env:"DIRS" envSeparator:"," validate:"dive,required"`
}

// DispatchConfig configures the policy dispatcher.
type DispatchConfig struct {
	// ExcludedStores never fire behaviours.
	ExcludedStores []string `toml:"excluded_stores" env:"EXCLUDED_STORES" envSeparator:"," validate:"dive,storeref"`
	// VersionableAspect marks nodes of version stores that do fire
	// behaviours. Prefixed or Clark notation.
	VersionableAspect string `toml:"versionable_aspect" env:"VERSIONABLE_ASPECT" validate:"required"`
	MaxDepth          int    `toml:"max_depth" env:"MAX_DEPTH" validate:"min=1"`
}

// ArchiveConfig archives nodes deleted from Store into Archive.
type ArchiveConfig struct {
	Store   string `toml:"store" validate:"required,storeref"`
	Archive string `toml:"archive" validate:"required,storeref,nefield=Store"`
}

// LocaleConfig sets the locale used when a request carries none.
type LocaleConfig struct {
	Default string `toml:"default" env:"DEFAULT" validate:"required,bcp47_language_tag"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `toml:"format" env:"FORMAT" validate:"oneof=text json"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Dispatch: DispatchConfig{
			VersionableAspect: "cm:versionable",
			MaxDepth:          64,
		},
		Locale: LocaleConfig{Default: "en"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the configuration. An empty path skips the file.
func Load(path string) (Config, error) {
	return load(path, env.Options{Prefix: EnvPrefix})
}

func load(path string, opts env.Options) (Config, error) {
	cfg := Default()
	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("storeref", func(fl validator.FieldLevel) bool {
		_, err := ir.ParseStoreRef(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks cfg field by field.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ExcludedStoreRefs parses Dispatch.ExcludedStores.
func (c Config) ExcludedStoreRefs() ([]ir.StoreRef, error) {
	out := make([]ir.StoreRef, 0, len(c.Dispatch.ExcludedStores))
	for _, s := range c.Dispatch.ExcludedStores {
		ref, err := ir.ParseStoreRef(s)
		if err != nil {
			return nil, fmt.Errorf("dispatch.excluded_stores: %w", err)
		}
		out = append(out, ref)
	}
	return out, nil
}

// ArchiveStores parses the archive table into store -> archive store.
func (c Config) ArchiveStores() (map[ir.StoreRef]ir.StoreRef, error) {
	out := make(map[ir.StoreRef]ir.StoreRef, len(c.Archive))
	for _, a := range c.Archive {
		from, err := ir.ParseStoreRef(a.Store)
		if err != nil {
			return nil, fmt.Errorf("archive.store: %w", err)
		}
		to, err := ir.ParseStoreRef(a.Archive)
		if err != nil {
			return nil, fmt.Errorf("archive.archive: %w", err)
		}
		out[from] = to
	}
	return out, nil
}

// DefaultLocale parses Locale.Default.
func (c Config) DefaultLocale() (language.Tag, error) {
	tag, err := language.Parse(c.Locale.Default)
	if err != nil {
		return language.Und, fmt.Errorf("locale.default: %w", err)
	}
	return tag, nil
}
