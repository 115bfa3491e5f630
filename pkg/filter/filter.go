package filter

import (
	"fmt"

	"github.com/dmitrymomot/watchqueue/pkg/notification"
)

// DefaultMaxFilters caps the number of per-type entries in one spec.
const DefaultMaxFilters = 16

// TypeFilter narrows delivery of one accepted type.
type TypeFilter struct {
	Type notification.Type `yaml:"type"`
	// Subtypes lists accepted subtypes. Empty means any subtype.
	Subtypes []uint8 `yaml:"subtypes,omitempty"`
	// A record passes when info&InfoMask == InfoFilter.
	InfoFilter uint32 `yaml:"info_filter,omitempty"`
	InfoMask   uint32 `yaml:"info_mask,omitempty"`
}

// Spec is the user-supplied description of a queue filter.
//
// A record is accepted when its type bit is set in AcceptedTypes and, if
// PerType has entries for that type, at least one of them matches.
type Spec struct {
	AcceptedTypes uint64       `yaml:"accepted_types"`
	PerType       []TypeFilter `yaml:"per_type,omitempty"`
}

// AcceptAll returns a spec that accepts every record.
func AcceptAll() Spec {
	return Spec{AcceptedTypes: ^uint64(0)}
}

// Accept returns a spec accepting the given types with no further narrowing.
func Accept(types ...notification.Type) Spec {
	var s Spec
	for _, t := range types {
		if t < notification.NumTypes {
			s.AcceptedTypes |= 1 << t
		}
	}
	return s
}

// With returns a copy of s with tf appended and its type accepted.
func (s Spec) With(tf TypeFilter) Spec {
	out := Spec{
		AcceptedTypes: s.AcceptedTypes,
		PerType:       append(append([]TypeFilter(nil), s.PerType...), tf),
	}
	if tf.Type < notification.NumTypes {
		out.AcceptedTypes |= 1 << tf.Type
	}
	return out
}

// Option configures compilation.
type Option func(*options)

type options struct {
	maxFilters int
}

// WithMaxFilters overrides DefaultMaxFilters. Non-positive values are ignored.
func WithMaxFilters(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFilters = n
		}
	}
}

// Filter is a compiled, immutable Spec. It is safe for concurrent use and is
// replaced wholesale rather than mutated.
type Filter struct {
	types   uint64
	entries []entry
	// byType marks types that have at least one entry.
	byType uint64
}

type entry struct {
	typ        notification.Type
	anySubtype bool
	subtypes   [4]uint64
	infoFilter uint32
	infoMask   uint32
}

// Validate checks s without building a Filter.
func Validate(s Spec, opts ...Option) error {
	o := options{maxFilters: DefaultMaxFilters}
	for _, opt := range opts {
		opt(&o)
	}

	if s.AcceptedTypes == 0 {
		return ErrEmptySpec
	}
	if len(s.PerType) > o.maxFilters {
		return fmt.Errorf("%w: %d entries, max %d", ErrTooManyFilters, len(s.PerType), o.maxFilters)
	}
	for i, tf := range s.PerType {
		if tf.Type >= notification.NumTypes {
			return fmt.Errorf("%w: entry %d type %d", ErrTypeOutOfRange, i, tf.Type)
		}
		if s.AcceptedTypes&(1<<tf.Type) == 0 {
			return fmt.Errorf("%w: entry %d type %d", ErrTypeNotAccepted, i, tf.Type)
		}
		if tf.InfoMask&notification.InfoLengthMask != 0 {
			return fmt.Errorf("%w: entry %d", ErrLengthMasked, i)
		}
		if tf.InfoFilter&^tf.InfoMask != 0 {
			return fmt.Errorf("%w: entry %d filter %#08x mask %#08x", ErrInfoOutsideMask, i, tf.InfoFilter, tf.InfoMask)
		}
	}
	return nil
}

// Compile validates s and builds a Filter.
func Compile(s Spec, opts ...Option) (*Filter, error) {
	if err := Validate(s, opts...); err != nil {
		return nil, err
	}

	f := &Filter{
		types:   s.AcceptedTypes,
		entries: make([]entry, 0, len(s.PerType)),
	}
	for _, tf := range s.PerType {
		e := entry{
			typ:        tf.Type,
			anySubtype: len(tf.Subtypes) == 0,
			infoFilter: tf.InfoFilter,
			infoMask:   tf.InfoMask,
		}
		for _, st := range tf.Subtypes {
			e.subtypes[st>>6] |= 1 << (st & 63)
		}
		f.entries = append(f.entries, e)
		f.byType |= 1 << tf.Type
	}
	return f, nil
}

// Match reports whether a record with the given type, subtype and info passes.
// A nil Filter matches nothing.
func (f *Filter) Match(typ notification.Type, subtype uint8, info uint32) bool {
	if f == nil || typ >= notification.NumTypes {
		return false
	}
	bit := uint64(1) << typ
	if f.types&bit == 0 {
		return false
	}
	if f.byType&bit == 0 {
		return true
	}
	for i := range f.entries {
		e := &f.entries[i]
		if e.typ != typ {
			continue
		}
		if !e.anySubtype && e.subtypes[subtype>>6]&(1<<(subtype&63)) == 0 {
			continue
		}
		if info&e.infoMask != e.infoFilter {
			continue
		}
		return true
	}
	return false
}

// Accepts is Match applied to a record.
func (f *Filter) Accepts(r notification.Record) bool {
	return f.Match(r.Type(), r.Subtype(), r.Info())
}

// AcceptedTypes returns the accepted-type bitmap.
func (f *Filter) AcceptedTypes() uint64 {
	if f == nil {
		return 0
	}
	return f.types
}
