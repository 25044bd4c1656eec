package conv

const hexd = "0123456789ABCDEF"

// U32Hex writes 8-digit uppercase hex without 0x, zero-padded.
func U32Hex(buf []byte, n uint32) []byte {
	if len(buf) < 8 {
		return buf[:0]
	}
	i := len(buf)
	for j := 0; j < 8; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}

// AppendHex8 appends b as two uppercase hex digits.
func AppendHex8(dst []byte, b byte) []byte {
	return append(dst, hexd[b>>4], hexd[b&0x0F])
}

// AppendBits appends the low width bits of v, most significant first.
func AppendBits(dst []byte, v uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, '0'+byte(v>>uint(i)&1))
	}
	return dst
}
