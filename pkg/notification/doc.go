// Package notification defines the fixed-layout record that watched resources
// post when their state changes.
//
// A Record is a small, immutable, type-tagged value:
//
//	+--------------------------+----------------+------------------+
//	| type:24 | subtype:8 (u32) | info (u32)     | payload ...      |
//	+--------------------------+----------------+------------------+
//
// The info word packs three sub-fields:
//
//   - bits 0-6: total record length in bytes, header included (LENGTH)
//   - bits 8-15: tag of the watch the record was delivered through (ID)
//   - bits 16-31: type-specific information and flags (TYPE_INFO)
//
// Records never exceed MaxRecordSize bytes so they always fit in one queue slot.
// The length sub-field is computed by New and can not be set by producers; the
// ID sub-field is stamped by the delivery engine with WithTag.
//
// # Usage
//
//	rec, err := notification.New(notification.TypeKey, 2, 0, payload)
//	if err != nil {
//		// payload too large or type out of range
//	}
//	buf := rec.Marshal()
//	decoded, err := notification.Unmarshal(buf)
//
// # Meta records
//
// Type 0 is reserved for records synthesized by the delivery engine itself:
// NewRemoval tells a subscriber that one of its watches ended and NewLoss
// tells it that records were dropped because its queue was full.
package notification
