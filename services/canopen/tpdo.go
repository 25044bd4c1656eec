package canopen

import (
	"errors"
	"fmt"
	"time"

	"imunode-go/types"
)

// ErrMapping reports a TPDO mapping that cannot be packed.
var ErrMapping = errors.New("canopen: invalid pdo mapping")

// TPDO is one transmit PDO as described by its communication (0x18xx) and
// mapping (0x1Axx) records.
type TPDO struct {
	COBID      uint32
	EventTimer time.Duration
	Mapping    []Key

	dict *Dictionary
}

// Frame packs the mapped objects little-endian in mapping order.
func (p TPDO) Frame() (types.CANFrame, error) {
	f := types.CANFrame{ID: p.COBID}
	buf := make([]byte, 0, 8)
	for _, k := range p.Mapping {
		b, err := p.dict.Read(k.Index, k.Sub)
		if err != nil {
			return types.CANFrame{}, fmt.Errorf("%w: %s: %v", ErrMapping, k, err)
		}
		buf = append(buf, b...)
	}
	if len(buf) > len(f.Data) {
		return types.CANFrame{}, fmt.Errorf("%w: %d bytes", ErrMapping, len(buf))
	}
	f.Len = uint8(copy(f.Data[:], buf))
	return f, nil
}

// TPDOs decodes every TPDO record in the dictionary.
func (d *Dictionary) TPDOs() ([]TPDO, error) {
	var out []TPDO
	for n := uint16(0); n < 0x200; n++ {
		cob, err := d.Uint32(IndexTPDOComm+n, 1)
		if errors.Is(err, ErrNoObject) {
			continue
		}
		p := TPDO{COBID: cob & 0x7FF, dict: d}
		if ms, err := d.Uint32(IndexTPDOComm+n, 5); err == nil {
			p.EventTimer = time.Duration(ms) * time.Millisecond
		}
		count, err := d.Uint32(IndexTPDOMap+n, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: tpdo %d has no mapping", ErrMapping, n+1)
		}
		bits := 0
		for sub := uint8(1); uint32(sub) <= count; sub++ {
			l, err := d.Uint32(IndexTPDOMap+n, sub)
			if err != nil {
				return nil, fmt.Errorf("%w: tpdo %d entry %d", ErrMapping, n+1, sub)
			}
			k := Key{Index: uint16(l >> 16), Sub: uint8(l >> 8)}
			t, ok := d.Type(k.Index, k.Sub)
			if !ok || t.Size()*8 != int(uint8(l)) {
				return nil, fmt.Errorf("%w: tpdo %d maps %s", ErrMapping, n+1, k)
			}
			bits += int(uint8(l))
			p.Mapping = append(p.Mapping, k)
		}
		if bits > 64 {
			return nil, fmt.Errorf("%w: tpdo %d is %d bits", ErrMapping, n+1, bits)
		}
		out = append(out, p)
	}
	return out, nil
}
