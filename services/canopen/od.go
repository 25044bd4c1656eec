// Package canopen exposes the IMU vectors as a minimal CANopen slave: an
// object dictionary built from typed entries, timer-driven TPDOs, expedited
// SDO upload and an NMT heartbeat.
package canopen

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
)

// DataType is the CANopen basic type of an entry.
type DataType uint8

const (
	Unsigned8 DataType = iota + 1
	Unsigned16
	Unsigned32
	Signed16
)

// Size is the encoded width in bytes.
func (t DataType) Size() int {
	switch t {
	case Unsigned8:
		return 1
	case Unsigned16, Signed16:
		return 2
	default:
		return 4
	}
}

// Key addresses one object: index and sub-index.
type Key struct {
	Index uint16
	Sub   uint8
}

func (k Key) String() string { return fmt.Sprintf("%04Xh.%d", k.Index, k.Sub) }

var (
	ErrNoObject  = errors.New("canopen: object does not exist")
	ErrReadOnly  = errors.New("canopen: object is read only")
	ErrDuplicate = errors.New("canopen: duplicate object")
	ErrNilSlot   = errors.New("canopen: nil slot or var")
)

// Slot is an int16 owned by the application and read by the dictionary.
type Slot struct{ v atomic.Int32 }

func (s *Slot) Set(v int16) { s.v.Store(int32(v)) }
func (s *Slot) Get() int16  { return int16(s.v.Load()) }

// Var is an unsigned parameter owned by the node, such as a timer that
// configuration may change at runtime. Reads are truncated to the entry type.
type Var struct{ v atomic.Uint32 }

func (v *Var) Set(x uint32) { v.v.Store(x) }
func (v *Var) Get() uint32  { return v.v.Load() }

type entry struct {
	typ   DataType
	value uint32 // constants
	slot  *Slot  // Signed16 slots
	vr    *Var   // unsigned parameters
}

func (e entry) load() uint32 {
	switch {
	case e.slot != nil:
		return uint32(uint16(e.slot.Get()))
	case e.vr != nil:
		return e.vr.Get()
	default:
		return e.value
	}
}

func (e entry) encode(dst []byte) []byte {
	v := e.load()
	switch e.typ.Size() {
	case 1:
		return append(dst, byte(v))
	case 2:
		return binary.LittleEndian.AppendUint16(dst, uint16(v))
	default:
		return binary.LittleEndian.AppendUint32(dst, v)
	}
}

// ODBuilder collects entries; the first error sticks and is reported by Build.
type ODBuilder struct {
	entries map[Key]entry
	err     error
}

func NewODBuilder() *ODBuilder { return &ODBuilder{entries: map[Key]entry{}} }

func (b *ODBuilder) add(k Key, e entry) *ODBuilder {
	if b.err != nil {
		return b
	}
	if _, dup := b.entries[k]; dup {
		b.err = fmt.Errorf("%w: %s", ErrDuplicate, k)
		return b
	}
	b.entries[k] = e
	return b
}

// Const adds a read-only constant.
func (b *ODBuilder) Const(index uint16, sub uint8, t DataType, v uint32) *ODBuilder {
	return b.add(Key{index, sub}, entry{typ: t, value: v})
}

// Int16 adds a signed 16-bit entry backed by s.
func (b *ODBuilder) Int16(index uint16, sub uint8, s *Slot) *ODBuilder {
	if s == nil && b.err == nil {
		b.err = fmt.Errorf("%w: %s", ErrNilSlot, Key{index, sub})
		return b
	}
	return b.add(Key{index, sub}, entry{typ: Signed16, slot: s})
}

// Var adds an unsigned entry of type t backed by v.
func (b *ODBuilder) Var(index uint16, sub uint8, t DataType, v *Var) *ODBuilder {
	if v == nil && b.err == nil {
		b.err = fmt.Errorf("%w: %s", ErrNilSlot, Key{index, sub})
		return b
	}
	return b.add(Key{index, sub}, entry{typ: t, vr: v})
}

// Build freezes the dictionary.
func (b *ODBuilder) Build() (*Dictionary, error) {
	if b.err != nil {
		return nil, b.err
	}
	d := &Dictionary{entries: make(map[Key]entry, len(b.entries))}
	for k, e := range b.entries {
		d.entries[k] = e
		d.keys = append(d.keys, k)
	}
	sort.Slice(d.keys, func(i, j int) bool {
		if d.keys[i].Index != d.keys[j].Index {
			return d.keys[i].Index < d.keys[j].Index
		}
		return d.keys[i].Sub < d.keys[j].Sub
	})
	return d, nil
}

// Dictionary is an immutable set of objects. Slot and Var values change
// underneath it; the layout does not.
type Dictionary struct {
	entries map[Key]entry
	keys    []Key
}

// Read returns the little-endian encoding of the object.
func (d *Dictionary) Read(index uint16, sub uint8) ([]byte, error) {
	e, ok := d.entries[Key{index, sub}]
	if !ok {
		return nil, ErrNoObject
	}
	return e.encode(make([]byte, 0, 4)), nil
}

// Uint32 reads a constant or slot widened to 32 bits.
func (d *Dictionary) Uint32(index uint16, sub uint8) (uint32, error) {
	e, ok := d.entries[Key{index, sub}]
	if !ok {
		return 0, ErrNoObject
	}
	return e.load(), nil
}

// Type reports the entry's data type.
func (d *Dictionary) Type(index uint16, sub uint8) (DataType, bool) {
	e, ok := d.entries[Key{index, sub}]
	return e.typ, ok
}

// Write rejects every download: all objects are produced by the node.
func (d *Dictionary) Write(index uint16, sub uint8, _ []byte) error {
	if _, ok := d.entries[Key{index, sub}]; !ok {
		return ErrNoObject
	}
	return ErrReadOnly
}

// Keys lists the objects in index order.
func (d *Dictionary) Keys() []Key { return append([]Key(nil), d.keys...) }

func (d *Dictionary) Len() int { return len(d.keys) }
