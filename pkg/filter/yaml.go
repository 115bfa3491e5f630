package filter

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/watchqueue/pkg/notification"
)

// document is the on-disk shape of a Spec. Types are listed by number rather
// than as a raw bitmap.
type document struct {
	All     bool                `yaml:"all"`
	Types   []notification.Type `yaml:"types"`
	Filters []TypeFilter        `yaml:"filters"`
}

// ParseYAML decodes and validates a filter document. Types named by a filter
// entry are accepted implicitly.
func ParseYAML(data []byte, opts ...Option) (Spec, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Spec{}, errors.Join(ErrFailedToParseYAML, err)
	}

	var s Spec
	if doc.All {
		s = AcceptAll()
	}
	for _, t := range doc.Types {
		if t >= notification.NumTypes {
			return Spec{}, fmt.Errorf("%w: %d", ErrTypeOutOfRange, t)
		}
		s.AcceptedTypes |= 1 << t
	}
	for _, tf := range doc.Filters {
		if tf.Type >= notification.NumTypes {
			return Spec{}, fmt.Errorf("%w: %d", ErrTypeOutOfRange, tf.Type)
		}
		s = s.With(tf)
	}

	if err := Validate(s, opts...); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// LoadFile reads and parses a YAML filter document from path.
func LoadFile(path string, opts ...Option) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("filter: read %s: %w", path, err)
	}
	return ParseYAML(data, opts...)
}
