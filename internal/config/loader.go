package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/magiconair/properties"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"

	"minho/internal/services"
	"minho/pkg/logging"
)

// Sources tells the loaders where to look. File, when set, is used by the
// loader matching its extension; otherwise each loader reads its default
// file name from Dir.
type Sources struct {
	Dir  string
	File string
}

type decodeFunc func(data []byte) (map[string]string, error)

// fileLoader holds the logic shared by the format specific loaders. Each
// loader is its own type so all of them can be registered side by side.
type fileLoader struct {
	services.Base
	format     Format
	extensions []string
	fileName   string
	inlineEnv  string
	sources    Sources
	decode     decodeFunc
}

func newFileLoader(name string, format Format, fileName string, extensions []string, sources Sources, decode decodeFunc) fileLoader {
	return fileLoader{
		Base:       services.NewBase(name, services.PriorityConfigLoader),
		format:     format,
		extensions: extensions,
		fileName:   fileName,
		sources:    sources,
		decode:     decode,
	}
}

// OnRegister reads the loader's source, if any, and merges it into the
// configuration service.
func (l *fileLoader) OnRegister(r *services.Registry) error {
	cfg, err := services.Require[*Service](r)
	if err != nil {
		return err
	}

	props, source, err := l.Load()
	if err != nil {
		return err
	}
	if props == nil {
		logging.Debug("Config", "No %s configuration found", l.format)
		return nil
	}

	cfg.Merge(props)
	logging.Info("Config", "Loaded %d properties from %s", len(props), source)
	return nil
}

// Load returns the decoded properties and a description of where they
// came from. A missing default file yields nil properties; a missing
// explicit file is an error.
func (l *fileLoader) Load() (map[string]string, string, error) {
	if l.inlineEnv != "" {
		if inline := os.Getenv(l.inlineEnv); strings.TrimSpace(inline) != "" {
			props, err := l.decode([]byte(inline))
			if err != nil {
				return nil, "", &ConfigurationError{Source: "$" + l.inlineEnv, Format: l.format, Err: err}
			}
			return props, "$" + l.inlineEnv, nil
		}
	}

	file := l.sources.File
	if file == "" {
		file = os.Getenv(EnvConfigFile)
	}
	if file != "" {
		if !l.accepts(file) {
			return nil, "", nil
		}
		return l.read(file, true)
	}

	return l.read(filepath.Join(l.sources.Dir, l.fileName), false)
}

func (l *fileLoader) accepts(file string) bool {
	ext := strings.ToLower(filepath.Ext(file))
	for _, candidate := range l.extensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

func (l *fileLoader) read(path string, required bool) (map[string]string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil, "", nil
		}
		return nil, "", &ConfigurationError{Source: path, Format: l.format, Err: err}
	}

	props, err := l.decode(data)
	if err != nil {
		return nil, "", &ConfigurationError{Source: path, Format: l.format, Err: err}
	}
	return props, path, nil
}

// PropertiesLoader reads Java style .properties, including inline text
// from $MINHO_CONFIG.
type PropertiesLoader struct{ fileLoader }

// NewPropertiesLoader creates the .properties loader.
func NewPropertiesLoader(sources Sources) *PropertiesLoader {
	l := newFileLoader("config-properties", FormatProperties, "minho.properties", []string{".properties"}, sources, decodeProperties)
	l.inlineEnv = EnvConfig
	return &PropertiesLoader{l}
}

// JSONLoader reads nested JSON objects, flattened to dotted keys.
type JSONLoader struct{ fileLoader }

// NewJSONLoader creates the JSON loader.
func NewJSONLoader(sources Sources) *JSONLoader {
	return &JSONLoader{newFileLoader("config-json", FormatJSON, "minho.json", []string{".json"}, sources, decodeJSON)}
}

// YAMLLoader reads nested YAML mappings, flattened to dotted keys.
type YAMLLoader struct{ fileLoader }

// NewYAMLLoader creates the YAML loader.
func NewYAMLLoader(sources Sources) *YAMLLoader {
	return &YAMLLoader{newFileLoader("config-yaml", FormatYAML, "minho.yaml", []string{".yaml", ".yml"}, sources, decodeYAML)}
}

// TOMLLoader reads TOML tables, flattened to dotted keys.
type TOMLLoader struct{ fileLoader }

// NewTOMLLoader creates the TOML loader.
func NewTOMLLoader(sources Sources) *TOMLLoader {
	return &TOMLLoader{newFileLoader("config-toml", FormatTOML, "minho.toml", []string{".toml"}, sources, decodeTOML)}
}

// Loaders returns one loader per supported format.
func Loaders(sources Sources) []services.Service {
	return []services.Service{
		NewPropertiesLoader(sources),
		NewJSONLoader(sources),
		NewYAMLLoader(sources),
		NewTOMLLoader(sources),
	}
}

func decodeProperties(data []byte) (map[string]string, error) {
	p := properties.NewProperties()
	p.DisableExpansion = true
	if err := p.Load(data, properties.UTF8); err != nil {
		return nil, err
	}

	out := make(map[string]string, p.Len())
	for _, key := range p.Keys() {
		v, _ := p.Get(key)
		out[key] = v
	}
	return out, nil
}

func decodeJSON(data []byte) (map[string]string, error) {
	var raw map[string]interface{}
	if err := k8syaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return Flatten(raw)
}

func decodeYAML(data []byte) (map[string]string, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return Flatten(raw)
}

func decodeTOML(data []byte) (map[string]string, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return Flatten(raw)
}

// Flatten turns nested maps into dotted keys. Lists become comma
// separated values.
func Flatten(raw map[string]interface{}) (map[string]string, error) {
	out := make(map[string]string)
	if err := flatten("", raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, value interface{}, out map[string]string) error {
	join := func(key string) string {
		if prefix == "" {
			return key
		}
		return prefix + "." + key
	}

	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := flatten(join(k), v[k], out); err != nil {
				return err
			}
		}
	case map[interface{}]interface{}:
		m, err := cast.ToStringMapE(v)
		if err != nil {
			return err
		}
		return flatten(prefix, m, out)
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, err := cast.ToStringE(item)
			if err != nil {
				return fmt.Errorf("%s: list entries must be scalars: %w", prefix, err)
			}
			parts = append(parts, s)
		}
		out[prefix] = strings.Join(parts, ",")
	case nil:
		out[prefix] = ""
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		out[prefix] = s
	}
	return nil
}

// Overrides merges a fixed set of properties after the file loaders, so
// command line values win over files. Environment variables still win
// over both.
type Overrides struct {
	services.Base
	props map[string]string
}

// NewOverrides creates the overrides loader.
func NewOverrides(props map[string]string) *Overrides {
	return &Overrides{
		Base:  services.NewBase("overrides", services.PriorityConfigLoader+1),
		props: props,
	}
}

// OnRegister merges the overrides into the configuration service.
func (o *Overrides) OnRegister(r *services.Registry) error {
	if len(o.props) == 0 {
		return nil
	}
	cfg, err := services.Require[*Service](r)
	if err != nil {
		return err
	}
	cfg.Merge(o.props)
	logging.Debug("Config", "Applied %d property overrides", len(o.props))
	return nil
}
