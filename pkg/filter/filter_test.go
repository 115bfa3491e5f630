package filter_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/watchqueue/pkg/filter"
	"github.com/dmitrymomot/watchqueue/pkg/notification"
)

const (
	typeA notification.Type = 1
	typeB notification.Type = 2
	typeC notification.Type = 63
)

func TestCompile_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    filter.Spec
		opts    []filter.Option
		wantErr error
	}{
		{
			name:    "empty spec",
			spec:    filter.Spec{},
			wantErr: filter.ErrEmptySpec,
		},
		{
			name: "entry type out of range",
			spec: filter.Spec{
				AcceptedTypes: 1,
				PerType:       []filter.TypeFilter{{Type: notification.NumTypes}},
			},
			wantErr: filter.ErrTypeOutOfRange,
		},
		{
			name: "entry type not accepted",
			spec: filter.Spec{
				AcceptedTypes: 1 << typeA,
				PerType:       []filter.TypeFilter{{Type: typeB}},
			},
			wantErr: filter.ErrTypeNotAccepted,
		},
		{
			name:    "mask covers length",
			spec:    filter.Accept(typeA).With(filter.TypeFilter{Type: typeA, InfoMask: 0x1}),
			wantErr: filter.ErrLengthMasked,
		},
		{
			name: "info filter outside mask",
			spec: filter.Accept(typeA).With(filter.TypeFilter{
				Type:       typeA,
				InfoFilter: notification.InfoFlag0 | notification.InfoFlag1,
				InfoMask:   notification.InfoFlag0,
			}),
			wantErr: filter.ErrInfoOutsideMask,
		},
		{
			name: "too many entries",
			spec: filter.Accept(typeA).
				With(filter.TypeFilter{Type: typeA}).
				With(filter.TypeFilter{Type: typeA}).
				With(filter.TypeFilter{Type: typeA}),
			opts:    []filter.Option{filter.WithMaxFilters(2)},
			wantErr: filter.ErrTooManyFilters,
		},
		{
			name: "valid",
			spec: filter.Accept(typeA).With(filter.TypeFilter{
				Type:       typeA,
				Subtypes:   []uint8{1, 2},
				InfoFilter: notification.InfoFlag0,
				InfoMask:   notification.InfoFlag0 | notification.InfoIDMask,
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := filter.Compile(tt.spec, tt.opts...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, f)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spec.AcceptedTypes, f.AcceptedTypes())
		})
	}
}

func TestFilter_Match(t *testing.T) {
	t.Parallel()

	subtypeOnly := filter.Accept(typeA).With(filter.TypeFilter{Type: typeA, Subtypes: []uint8{1, 2}})
	highSubtype := filter.Accept(typeA).With(filter.TypeFilter{Type: typeA, Subtypes: []uint8{200}})
	infoFlag := filter.Accept(typeA).With(filter.TypeFilter{
		Type:       typeA,
		InfoFilter: notification.InfoFlag3,
		InfoMask:   notification.InfoFlag3 | notification.InfoFlag4,
	})
	orEntries := filter.Accept(typeA).
		With(filter.TypeFilter{Type: typeA, Subtypes: []uint8{1}}).
		With(filter.TypeFilter{Type: typeA, Subtypes: []uint8{5}})
	mixed := filter.Accept(typeA, typeB).With(filter.TypeFilter{Type: typeA, Subtypes: []uint8{1}})

	tests := []struct {
		name    string
		spec    filter.Spec
		typ     notification.Type
		subtype uint8
		info    uint32
		want    bool
	}{
		{"accept all any type", filter.AcceptAll(), typeC, 255, 0xffffffff, true},
		{"accepted type no entries", filter.Accept(typeA), typeA, 77, 0, true},
		{"type not in bitmap", filter.Accept(typeA), typeB, 0, 0, false},
		{"type out of range", filter.AcceptAll(), notification.NumTypes, 0, 0, false},
		{"subtype in mask", subtypeOnly, typeA, 1, 0, true},
		{"subtype in mask 2", subtypeOnly, typeA, 2, 0, true},
		{"subtype not in mask", subtypeOnly, typeA, 3, 0, false},
		{"subtype zero not in mask", subtypeOnly, typeA, 0, 0, false},
		{"high subtype word", highSubtype, typeA, 200, 0, true},
		{"high subtype miss", highSubtype, typeA, 201, 0, false},
		{"info matches", infoFlag, typeA, 0, notification.InfoFlag3 | notification.InfoFlag0, true},
		{"info extra masked bit", infoFlag, typeA, 0, notification.InfoFlag3 | notification.InfoFlag4, false},
		{"info missing bit", infoFlag, typeA, 0, notification.InfoFlag0, false},
		{"info ignores length and tag", infoFlag, typeA, 0, notification.InfoFlag3 | 0x7f | 0xab00, true},
		{"or entries first", orEntries, typeA, 1, 0, true},
		{"or entries second", orEntries, typeA, 5, 0, true},
		{"or entries none", orEntries, typeA, 2, 0, false},
		{"mixed narrowed type", mixed, typeA, 2, 0, false},
		{"mixed open type", mixed, typeB, 2, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := filter.Compile(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(tt.typ, tt.subtype, tt.info))
		})
	}
}

func TestFilter_NilMatchesNothing(t *testing.T) {
	t.Parallel()

	var f *filter.Filter
	rec := notification.MustNew(typeA, 0, 0, nil)
	assert.False(t, f.Accepts(rec))
	assert.Zero(t, f.AcceptedTypes())
}

func TestFilter_SpecNotAliased(t *testing.T) {
	t.Parallel()

	subtypes := []uint8{1}
	spec := filter.Accept(typeA).With(filter.TypeFilter{Type: typeA, Subtypes: subtypes})
	f, err := filter.Compile(spec)
	require.NoError(t, err)

	subtypes[0] = 9
	spec.PerType[0].Subtypes = append(spec.PerType[0].Subtypes, 7)

	assert.True(t, f.Match(typeA, 1, 0))
	assert.False(t, f.Match(typeA, 7, 0))
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	t.Run("types and filters", func(t *testing.T) {
		t.Parallel()

		doc := []byte(`
types: [2]
filters:
  - type: 1
    subtypes: [1, 2]
    info_filter: 65536
    info_mask: 65536
`)
		spec, err := filter.ParseYAML(doc)
		require.NoError(t, err)
		assert.Equal(t, uint64(1<<1|1<<2), spec.AcceptedTypes)
		require.Len(t, spec.PerType, 1)
		assert.Equal(t, []uint8{1, 2}, spec.PerType[0].Subtypes)

		f, err := filter.Compile(spec)
		require.NoError(t, err)
		assert.True(t, f.Match(typeA, 2, notification.InfoFlag0))
		assert.False(t, f.Match(typeA, 2, 0))
		assert.True(t, f.Match(typeB, 9, 0))
	})

	t.Run("all", func(t *testing.T) {
		t.Parallel()

		spec, err := filter.ParseYAML([]byte("all: true\n"))
		require.NoError(t, err)
		assert.Equal(t, filter.AcceptAll(), spec)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()

		_, err := filter.ParseYAML([]byte("types: [1\n"))
		require.ErrorIs(t, err, filter.ErrFailedToParseYAML)
	})

	t.Run("empty document", func(t *testing.T) {
		t.Parallel()

		_, err := filter.ParseYAML([]byte("types: []\n"))
		require.ErrorIs(t, err, filter.ErrEmptySpec)
	})

	t.Run("type out of range", func(t *testing.T) {
		t.Parallel()

		_, err := filter.ParseYAML([]byte("types: [64]\n"))
		require.ErrorIs(t, err, filter.ErrTypeOutOfRange)
	})
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "filter.yaml")
	require.NoError(t, os.WriteFile(path, []byte("types: [1]\n"), 0o600))

	spec, err := filter.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, filter.Accept(typeA), spec)

	_, err = filter.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
