package protocol

// putFixedString writes s into dst, NUL-padded. Over-long strings are
// truncated at len(dst)-1 bytes so at least one terminating NUL remains,
// per the wire contract for every fixed-width string field.
func putFixedString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}

	var b = []byte(s)
	if len(b) > len(dst)-1 {
		b = b[:len(dst)-1]
	}

	copy(dst, b)
}

// getFixedString reads up to the first NUL in src, or the whole field if
// no NUL is present.
func getFixedString(src []byte) string {
	var n = len(src)
	for i, c := range src {
		if c == 0 {
			n = i
			break
		}
	}

	return string(src[:n])
}
