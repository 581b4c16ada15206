package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed instruments.yaml
var builtinInstruments []byte

type registryDocument struct {
	Instruments []*Config `yaml:"instruments" validate:"required,dive,required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		return StrategyKind(fl.Field().String()).Valid()
	})
	return v
}

// Registry holds the scoring configuration of every supported instrument.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	entries []*Config
	byKey   map[string]*Config
}

// DefaultRegistry parses the embedded instrument file.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(builtinInstruments)
}

// LoadRegistry reads the instrument file at path, or the embedded one when
// path is empty.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments file: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes and validates a YAML instrument document. Severity
// bands are sorted highest first.
func ParseRegistry(data []byte) (*Registry, error) {
	var doc registryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode instruments: %w", err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("validate instruments: %w", err)
	}
	return NewRegistry(doc.Instruments...)
}

// NewRegistry builds a registry from configs. Keys must be unique,
// ignoring case.
func NewRegistry(configs ...*Config) (*Registry, error) {
	r := &Registry{byKey: make(map[string]*Config, len(configs))}
	for _, c := range configs {
		if c == nil || strings.TrimSpace(c.Key) == "" {
			return nil, fmt.Errorf("instrument without key")
		}
		k := strings.ToLower(strings.TrimSpace(c.Key))
		if _, dup := r.byKey[k]; dup {
			return nil, fmt.Errorf("duplicate instrument key %q", c.Key)
		}
		e := c.Clone()
		e.SeverityBands = SortBands(e.SeverityBands)
		if e.Education != nil {
			ed := *e.Education
			ed.Standard = SortBands(ed.Standard)
			ed.LowEducation = SortBands(ed.LowEducation)
			e.Education = &ed
		}
		r.entries = append(r.entries, e)
		r.byKey[k] = e
	}
	return r, nil
}

// Get returns a copy of the entry registered under key.
func (r *Registry) Get(key string) (*Config, bool) {
	e, ok := r.byKey[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Entries returns copies of every entry in file order.
func (r *Registry) Entries() []*Config {
	out := make([]*Config, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Clone()
	}
	return out
}

// Derived returns the entries that declare deriveFrom.
func (r *Registry) Derived() []*Config {
	var out []*Config
	for _, e := range r.entries {
		if e.DeriveFrom != nil {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Lookup returns the configuration for a questionnaire reference. Every
// entry is tried strictly (key, url, id, name) before any entry is tried
// with its own match mode. Unknown references get a generic configuration
// with no bands.
func (r *Registry) Lookup(ref string) *Config {
	if r != nil {
		if e, ok := r.Get(NormalizeRef(stripVersion(ref))); ok {
			return e
		}
		for _, e := range r.entries {
			if MatchesIdentifiers(stripVersion(ref), e.QuestionnaireURL, e.QuestionnaireID, e.QuestionnaireName, MatchStrict) {
				return e.Clone()
			}
		}
		for _, e := range r.entries {
			if e.mode() == MatchFuzzy && Matches(ref, e) {
				return e.Clone()
			}
		}
	}
	return DefaultConfig(ref)
}

// DefaultConfig is the generic configuration used for an unregistered
// questionnaire reference.
func DefaultConfig(ref string) *Config {
	ref = strings.TrimSpace(ref)
	c := &Config{Key: ref}
	bare := stripVersion(ref)
	if strings.Contains(bare, "://") {
		c.QuestionnaireURL = bare
		if i := strings.LastIndexByte(strings.TrimRight(bare, "/"), '/'); i >= 0 {
			c.QuestionnaireID = strings.TrimRight(bare, "/")[i+1:]
		}
	} else {
		c.QuestionnaireID = NormalizeRef(bare)
	}
	return c
}
