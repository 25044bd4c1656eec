package canopen

import (
	"encoding/binary"
	"errors"
)

// SDO abort codes.
const (
	AbortCommand  uint32 = 0x05040001 // client/server command specifier not valid
	AbortReadOnly uint32 = 0x06010002 // attempt to write a read only object
	AbortNoObject uint32 = 0x06020000 // object does not exist in the dictionary
)

// Client command specifiers (byte 0, bits 7..5).
const (
	ccsDownloadInitiate = 1
	ccsUploadInitiate   = 2
	ccsAbort            = 4
)

// HandleSDO answers one SDO request frame. Only expedited upload is served;
// downloads are refused. ok is false when no response is due (an abort
// from the client).
func (d *Dictionary) HandleSDO(req [8]byte) (resp [8]byte, ok bool) {
	index := binary.LittleEndian.Uint16(req[1:3])
	sub := req[3]

	switch req[0] >> 5 {
	case ccsUploadInitiate:
		data, err := d.Read(index, sub)
		if err != nil {
			return abort(index, sub, AbortNoObject), true
		}
		// scs=2, n = unused bytes, e=1, s=1
		resp[0] = 0x40 | byte(4-len(data))<<2 | 0x03
		copy(resp[1:4], req[1:4])
		copy(resp[4:], data)
		return resp, true
	case ccsDownloadInitiate:
		code := AbortReadOnly
		if err := d.Write(index, sub, req[4:]); errors.Is(err, ErrNoObject) {
			code = AbortNoObject
		}
		return abort(index, sub, code), true
	case ccsAbort:
		return resp, false
	default:
		return abort(index, sub, AbortCommand), true
	}
}

func abort(index uint16, sub uint8, code uint32) (f [8]byte) {
	f[0] = 0x80
	binary.LittleEndian.PutUint16(f[1:3], index)
	f[3] = sub
	binary.LittleEndian.PutUint32(f[4:], code)
	return f
}

// abortCode returns the abort code of an SDO abort frame.
func abortCode(f [8]byte) (uint32, bool) {
	if f[0] != 0x80 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(f[4:]), true
}
