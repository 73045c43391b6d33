package config

import (
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/wippyai/picklebridge/codec"
	"github.com/wippyai/picklebridge/errors"
)

// FileName is the configuration file pickletool looks for by default.
const FileName = "picklebridge.toml"

// Config is the decoded contents of a picklebridge.toml file.
type Config struct {
	Codec Codec `toml:"codec"`
	Log   Log   `toml:"log"`
	Cache Cache `toml:"cache"`

	// Types maps record names to their fields, each a type expression.
	Types   map[string]map[string]string `toml:"types"`
	Aliases map[string]string            `toml:"aliases"`
	Enums   map[string][]string          `toml:"enums"`
	Flags   map[string][]string          `toml:"flags"`

	// Path is the file the config was loaded from (set at load time).
	Path string `toml:"-"`

	// field order of each record as written in the file
	order map[string][]string
}

// Codec holds codec limits. Zero values keep the codec defaults.
type Codec struct {
	MaxDepth       int  `toml:"max-depth"`
	MaxArrayLength int  `toml:"max-array-length"`
	StackLimit     int  `toml:"stack-limit"`
	SinkCapacity   int  `toml:"sink-capacity"`
	SinkLimit      int  `toml:"sink-limit"`
	Validate       bool `toml:"validate"`
}

type Log struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type Cache struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Codec: Codec{Validate: true},
		Log:   Log{Level: "warn"},
	}
}

// Load reads and decodes the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		kind := errors.KindInvalidInput
		if os.IsNotExist(err) {
			kind = errors.KindNotFound
		}
		return nil, errors.Wrap(errors.PhaseConfig, kind, err, "read "+path)
	}
	c, err := Decode(string(data))
	if err != nil {
		return nil, err
	}
	c.Path = path
	return c, nil
}

// LoadOrDefault loads path, or returns Default if the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Decode parses TOML text. Unknown keys are rejected.
func Decode(data string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(data, c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse error")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.InvalidInput(errors.PhaseConfig, "unknown keys: "+strings.Join(keys, ", "))
	}

	c.order = make(map[string][]string, len(c.Types))
	for _, k := range md.Keys() {
		if len(k) == 3 && k[0] == "types" {
			c.order[k[1]] = append(c.order[k[1]], k[2])
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Codec.MaxDepth < 0 || c.Codec.MaxArrayLength < 0 || c.Codec.StackLimit < 0 ||
		c.Codec.SinkCapacity < 0 || c.Codec.SinkLimit < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "codec limits cannot be negative")
	}
	if _, err := zap.ParseAtomicLevel(c.level()); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}

	seen := make(map[string]string)
	claim := func(section, name string) error {
		if prev, ok := seen[name]; ok {
			return errors.InvalidInput(errors.PhaseConfig,
				"type "+name+" is declared in both ["+prev+"] and ["+section+"]")
		}
		if isBuiltin(name) {
			return errors.InvalidInput(errors.PhaseConfig, "type "+name+" shadows a builtin type")
		}
		seen[name] = section
		return nil
	}
	for _, section := range []struct {
		name  string
		names []string
	}{
		{"types", keys(c.Types)},
		{"aliases", keys(c.Aliases)},
		{"enums", keys(c.Enums)},
		{"flags", keys(c.Flags)},
	} {
		for _, n := range section.names {
			if err := claim(section.name, n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Config) level() string {
	if c.Log.Level == "" {
		return "warn"
	}
	return c.Log.Level
}

// Options translates the codec section into codec options.
func (c *Config) Options() []codec.Option {
	opts := []codec.Option{codec.WithValidation(c.Codec.Validate)}
	if c.Codec.MaxDepth > 0 {
		opts = append(opts, codec.WithMaxDepth(c.Codec.MaxDepth))
	}
	if c.Codec.MaxArrayLength > 0 {
		opts = append(opts, codec.WithMaxArrayLength(c.Codec.MaxArrayLength))
	}
	if c.Codec.StackLimit > 0 {
		opts = append(opts, codec.WithStackLimit(c.Codec.StackLimit))
	}
	if c.Codec.SinkCapacity > 0 {
		opts = append(opts, codec.WithSinkCapacity(c.Codec.SinkCapacity))
	}
	if c.Codec.SinkLimit > 0 {
		opts = append(opts, codec.WithSinkLimit(c.Codec.SinkLimit))
	}
	return opts
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if c.Log.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.level())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "build logger")
	}
	return l, nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
