// Package filter implements the per-queue predicate that decides which
// notification records a queue receives.
//
// A Spec names the accepted types as a bitmap plus optional per-type entries
// that narrow delivery by subtype and by masked info bits:
//
//	spec := filter.Accept(notification.TypeKey).With(filter.TypeFilter{
//		Type:     notification.TypeKey,
//		Subtypes: []uint8{1, 2},
//	})
//	f, err := filter.Compile(spec)
//	if err != nil {
//		// malformed spec
//	}
//	f.Accepts(rec)
//
// Several entries for the same type are OR-ed. Entries may not mask the
// LENGTH sub-field of the info word.
//
// Specs can also be loaded from YAML:
//
//	all: false
//	types: [1]
//	filters:
//	  - type: 1
//	    subtypes: [1, 2]
//	    info_filter: 0x10000
//	    info_mask: 0x10000
//
// A compiled Filter is immutable; queues swap in a new one instead of editing
// the installed filter.
package filter
