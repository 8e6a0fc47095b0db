package model

import "unicode/utf16"

// SanitizeSurrogates scans s as UTF-16 code units and drops any unpaired
// surrogate, per spec.md §4.A: a high surrogate (U+D800-U+DBFF) is kept only
// if immediately followed by a low surrogate (U+DC00-U+DFFF); a low
// surrogate is kept only if immediately preceded by a kept high surrogate.
// Valid emoji, including ZWJ sequences and skin-tone modifiers, are
// unaffected since every surrogate pair within them round-trips intact.
//
// This operates at the UTF-16 level (not Go's native UTF-8 rune level)
// because unpaired surrogates arise from \uXXXX escapes decoded independent
// of Go's own JSON decoding — the standard library's unicode/utf16 package
// is the direct, narrow tool for this and no example in the corpus reaches
// for a third-party library to do it.
func SanitizeSurrogates(s string) string {
	units := utf16.Encode([]rune(s))
	out := make([]uint16, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case isHighSurrogate(u):
			if i+1 < len(units) && isLowSurrogate(units[i+1]) {
				out = append(out, u, units[i+1])
				i++
			}
			// else: unpaired high surrogate, drop.
		case isLowSurrogate(u):
			// Reached only if not consumed by the high-surrogate branch above,
			// meaning it has no preceding kept high surrogate: drop.
		default:
			out = append(out, u)
		}
	}
	return string(utf16.Decode(out))
}

func isHighSurrogate(u uint16) bool { return u >= 0xD800 && u <= 0xDBFF }
func isLowSurrogate(u uint16) bool  { return u >= 0xDC00 && u <= 0xDFFF }
