package codec

import (
	"bytes"
	"net/textproto"
)

// Field is a single header or trailer line.
type Field struct {
	Name  string
	Value string
}

// tchar per RFC 9110 section 5.6.2.
var tokenTable = func() [256]bool {
	var t [256]bool
	for c := '0'; c <= '9'; c++ {
		t[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		t[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		t[c] = true
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		t[c] = true
	}
	return t
}()

// parseField splits "name: value" and validates both halves. The returned name
// is in canonical MIME form.
func parseField(line []byte) (Field, bool) {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return Field{}, false
	}
	name := line[:colon]
	for _, b := range name {
		if !tokenTable[b] {
			return Field{}, false
		}
	}
	value := bytes.Trim(line[colon+1:], " \t")
	for _, b := range value {
		if (b < 0x20 && b != '\t') || b == 0x7f {
			return Field{}, false
		}
	}
	return Field{
		Name:  textproto.CanonicalMIMEHeaderKey(string(name)),
		Value: string(value),
	}, true
}

func unhex(b byte) (byte, bool) {
	switch {
	case '0' <= b && b <= '9':
		return b - '0', true
	case 'a' <= b && b <= 'f':
		return b - 'a' + 10, true
	case 'A' <= b && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}
