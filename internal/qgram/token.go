package qgram

import "github.com/cespare/xxhash/v2"

// Tokens splits normalized text on runs of alphanumerics. Spaces (the only
// non-alphanumeric byte Normalize ever leaves in place) are the separators.
func Tokens(norm []byte) [][]byte {
	var out [][]byte
	start := -1
	for i := 0; i <= len(norm); i++ {
		isAlnum := i < len(norm) && norm[i] != ' '
		if isAlnum {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, norm[start:i])
			start = -1
		}
	}
	return out
}

// base36 maps a normalized byte to 0..35 ('a'-'z' -> 0..25, '0'-'9' -> 26..35),
// and reports whether the byte is in that alphabet at all.
func base36(c byte) (int, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return int(c - 'a'), true
	case c >= '0' && c <= '9':
		return int(c-'0') + 26, true
	default:
		return 0, false
	}
}

// Pref3Index linearizes the first three normalized bytes of a token into
// [0, 36^3), or reports ok=false if any of the three lies outside [a-z0-9].
func Pref3Index(tok []byte) (int, bool) {
	if len(tok) < 3 {
		return 0, false
	}
	x, ok := base36(tok[0])
	if !ok {
		return 0, false
	}
	y, ok := base36(tok[1])
	if !ok {
		return 0, false
	}
	z, ok := base36(tok[2])
	if !ok {
		return 0, false
	}
	return x*36*36 + y*36 + z, true
}

// TokenHash64 hashes a short token for the full6 exact-match postings. This
// is not the signature avalanche mix — it has no bit-exactness requirement
// across versions, so it uses a real, well-tested 64-bit hash instead of a
// bespoke one (see SPEC_FULL.md's Domain Stack).
func TokenHash64(tok []byte) uint64 {
	return xxhash.Sum64(tok)
}
