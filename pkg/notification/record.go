package notification

import (
	"encoding/binary"
	"fmt"
)

// Type identifies the subsystem a record comes from.
type Type uint32

const (
	// TypeMeta is reserved for records synthesized by the delivery engine.
	TypeMeta Type = 0
	// TypeKey carries key lifecycle events.
	TypeKey Type = 1

	// NumTypes bounds the type space so accepted types fit one 64-bit bitmap.
	// Resource subsystems allocate their own types below this value.
	NumTypes = 64
)

// Meta subtypes.
const (
	SubtypeRemoval uint8 = 0
	SubtypeLoss    uint8 = 1
)

// Layout of the info word.
const (
	InfoLengthMask  uint32 = 0x0000007f
	InfoLengthShift        = 0
	InfoIDMask      uint32 = 0x0000ff00
	InfoIDShift            = 8
	InfoTypeMask    uint32 = 0xffff0000
	InfoTypeShift          = 16

	InfoFlag0 uint32 = 0x00010000
	InfoFlag1 uint32 = 0x00020000
	InfoFlag2 uint32 = 0x00040000
	InfoFlag3 uint32 = 0x00080000
	InfoFlag4 uint32 = 0x00100000
	InfoFlag5 uint32 = 0x00200000
	InfoFlag6 uint32 = 0x00400000
	InfoFlag7 uint32 = 0x00800000
)

const (
	// HeaderSize is the encoded size of the type/subtype word plus the info word.
	HeaderSize = 8
	// MaxRecordSize is the largest length the LENGTH sub-field can express.
	MaxRecordSize = int(InfoLengthMask)
	// MaxPayload is the largest payload a record can carry.
	MaxPayload = MaxRecordSize - HeaderSize

	typeMask = 0x00ffffff
)

// Record is an immutable notification. The zero value is not a valid record.
type Record struct {
	typ     Type
	subtype uint8
	info    uint32
	payload []byte
}

// New builds a record. typeInfo lands in the TYPE_INFO sub-field; the LENGTH
// sub-field is derived from the payload and the ID sub-field starts at zero.
// The payload is copied.
func New(typ Type, subtype uint8, typeInfo uint16, payload []byte) (Record, error) {
	if typ >= NumTypes {
		return Record{}, fmt.Errorf("%w: %d", ErrInvalidType, typ)
	}
	if len(payload) > MaxPayload {
		return Record{}, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(payload), MaxPayload)
	}

	r := Record{
		typ:     typ,
		subtype: subtype,
		info:    uint32(HeaderSize+len(payload))<<InfoLengthShift | uint32(typeInfo)<<InfoTypeShift,
	}
	if len(payload) > 0 {
		r.payload = append([]byte(nil), payload...)
	}
	return r, nil
}

// MustNew is like New but panics on error. Intended for fixed records built at init time.
func MustNew(typ Type, subtype uint8, typeInfo uint16, payload []byte) Record {
	r, err := New(typ, subtype, typeInfo, payload)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRemoval builds the meta record sent when a watch is removed. A non-zero id
// is carried as a little-endian 64-bit payload.
func NewRemoval(id uint64) Record {
	if id == 0 {
		return MustNew(TypeMeta, SubtypeRemoval, 0, nil)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	return MustNew(TypeMeta, SubtypeRemoval, 0, buf[:])
}

// NewLoss builds the meta record that reports dropped notifications.
func NewLoss() Record {
	return MustNew(TypeMeta, SubtypeLoss, 0, nil)
}

func (r Record) Type() Type     { return r.typ }
func (r Record) Subtype() uint8 { return r.subtype }
func (r Record) Info() uint32   { return r.info }

// Len returns the encoded length, header included.
func (r Record) Len() int { return int(r.info & InfoLengthMask >> InfoLengthShift) }

// Tag returns the ID sub-field.
func (r Record) Tag() uint8 { return uint8(r.info & InfoIDMask >> InfoIDShift) }

// TypeInfo returns the TYPE_INFO sub-field.
func (r Record) TypeInfo() uint16 { return uint16(r.info & InfoTypeMask >> InfoTypeShift) }

// Payload returns a copy of the payload.
func (r Record) Payload() []byte {
	if len(r.payload) == 0 {
		return nil
	}
	return append([]byte(nil), r.payload...)
}

// IsValid reports whether the record was produced by New or Unmarshal.
func (r Record) IsValid() bool { return r.Len() >= HeaderSize }

// WithTag returns a copy of r with the ID sub-field replaced by tag.
func (r Record) WithTag(tag uint8) Record {
	r.info = r.info&^InfoIDMask | uint32(tag)<<InfoIDShift
	return r
}

// IsRemoval reports whether r is a removal meta record.
func (r Record) IsRemoval() bool { return r.typ == TypeMeta && r.subtype == SubtypeRemoval }

// IsLoss reports whether r is a loss meta record.
func (r Record) IsLoss() bool { return r.typ == TypeMeta && r.subtype == SubtypeLoss }

// RemovalID returns the watch identifier carried by a removal record.
func (r Record) RemovalID() (uint64, bool) {
	if !r.IsRemoval() || len(r.payload) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(r.payload), true
}

// MarshalTo encodes r into dst and returns the number of bytes written.
// dst must hold at least r.Len() bytes.
func (r Record) MarshalTo(dst []byte) int {
	n := r.Len()
	_ = dst[n-1]
	binary.LittleEndian.PutUint32(dst[0:4], uint32(r.typ)&typeMask|uint32(r.subtype)<<24)
	binary.LittleEndian.PutUint32(dst[4:8], r.info)
	copy(dst[HeaderSize:n], r.payload)
	return n
}

// Marshal encodes r into a new buffer.
func (r Record) Marshal() []byte {
	buf := make([]byte, r.Len())
	r.MarshalTo(buf)
	return buf
}

// Unmarshal decodes one record from the start of b. Trailing bytes beyond the
// encoded length are ignored so a whole slot can be passed in.
func Unmarshal(b []byte) (Record, error) {
	if len(b) < HeaderSize {
		return Record{}, ErrShortRecord
	}
	word := binary.LittleEndian.Uint32(b[0:4])
	info := binary.LittleEndian.Uint32(b[4:8])

	n := int(info & InfoLengthMask >> InfoLengthShift)
	if n < HeaderSize || n > len(b) {
		return Record{}, fmt.Errorf("%w: length %d, buffer %d", ErrLengthMismatch, n, len(b))
	}

	typ := Type(word & typeMask)
	if typ >= NumTypes {
		return Record{}, fmt.Errorf("%w: %d", ErrInvalidType, typ)
	}

	r := Record{
		typ:     typ,
		subtype: uint8(word >> 24),
		info:    info,
	}
	if n > HeaderSize {
		r.payload = append([]byte(nil), b[HeaderSize:n]...)
	}
	return r, nil
}

func (r Record) String() string {
	return fmt.Sprintf("type=%d subtype=%d tag=%d len=%d", r.typ, r.subtype, r.Tag(), r.Len())
}
