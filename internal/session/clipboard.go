package session

import "unicode/utf8"

// ConvertClipboard translates clipboard bytes between the backend's
// native wire encoding ("ISO-8859-1" for the classic backend, "UTF-8"
// for the SDK backend) and the outbound channel's encoding, which is
// always "UTF-8". ISO-8859-1 maps every byte directly onto the
// identically-numbered Unicode code point, so the conversion is a
// closed-form byte<->rune mapping with no external encoding table;
// that is why this stays on the standard library rather than pulling
// in golang.org/x/text/encoding/charmap for a single fixed charset.
func ConvertClipboard(data []byte, from, to string) []byte {
	if from == to {
		return data
	}
	switch {
	case from == "ISO-8859-1" && to == "UTF-8":
		return latin1ToUTF8(data)
	case from == "UTF-8" && to == "ISO-8859-1":
		return utf8ToLatin1(data)
	default:
		return data
	}
}

func latin1ToUTF8(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	var buf [utf8.UTFMax]byte
	for _, b := range data {
		n := utf8.EncodeRune(buf[:], rune(b))
		out = append(out, buf[:n]...)
	}
	return out
}

// utf8ToLatin1 substitutes '?' for any code point outside Latin-1's
// 0-255 range, matching the lossy fallback a real ISO-8859-1 wire
// format has no choice but to take.
func utf8ToLatin1(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, r := range string(data) {
		if r > 0xFF {
			out = append(out, '?')
			continue
		}
		out = append(out, byte(r))
	}
	return out
}
