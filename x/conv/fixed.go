package conv

// fracDigits is the smallest decimal width that represents 1/lsb exactly,
// capped at 6 (truncating beyond that).
func fracDigits(lsb uint64) (digits int, scale uint64) {
	scale = 1
	for digits < 6 && scale%lsb != 0 {
		digits++
		scale *= 10
	}
	return digits, scale
}

// AppendFixed appends raw/lsb in decimal, e.g. raw 25, lsb 16 -> "1.5625",
// raw -150, lsb 100 -> "-1.50". lsb <= 1 prints the integer.
func AppendFixed(dst []byte, raw, lsb int64) []byte {
	if lsb <= 1 {
		var b [20]byte
		return append(dst, Itoa(b[:], raw)...)
	}
	var u uint64
	if raw < 0 {
		dst = append(dst, '-')
		u = uint64(-raw)
	} else {
		u = uint64(raw)
	}
	l := uint64(lsb)
	var b [20]byte
	dst = append(dst, Utoa(b[:], u/l)...)

	digits, scale := fracDigits(l)
	if digits == 0 {
		return dst
	}
	frac := Utoa(b[:], (u%l)*scale/l)
	dst = append(dst, '.')
	for i := len(frac); i < digits; i++ {
		dst = append(dst, '0')
	}
	return append(dst, frac...)
}
