package codec

import (
	"bytes"
	"errors"
	"testing"
)

// decodeAll feeds pieces to d one after another and collects the content.
func decodeAll(d *ChunkedDecoder, pieces ...[]byte) ([]byte, int, error) {
	var content []byte
	ends := 0
	for _, piece := range pieces {
		for len(piece) > 0 {
			n, fragment, err := d.Decode(piece)
			if err != nil {
				return content, ends, err
			}
			content = append(content, fragment...)
			wasDone := d.Done()
			piece = piece[n:]
			if wasDone {
				ends++
				if len(piece) > 0 {
					return content, ends, errors.New("bytes left after end of body")
				}
			}
		}
	}
	return content, ends, nil
}

func TestChunkedDecodeWhole(t *testing.T) {
	body := []byte("d\r\nHello, world!\r\n1a\r\nBut what's wrong with you?\r\nf\r\nFinally am here\r\n0\r\n\r\n")
	d := NewChunkedDecoder(0)
	content, ends, err := decodeAll(d, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "Hello, world!But what's wrong with you?Finally am here"; string(content) != want {
		t.Fatalf("content = %q, want %q", content, want)
	}
	if ends != 1 || !d.Done() {
		t.Fatalf("end of body signaled %d times, done=%v", ends, d.Done())
	}
}

func TestChunkedDecodeEverySplit(t *testing.T) {
	body := []byte("8\r\n01234567\r\n1;name=value\r\nX\r\nA \r\n0123456789\r\n0\r\nExpires: never\r\nX-Sum: 42\r\n\r\n")
	want := "01234567X0123456789"
	for i := 0; i <= len(body); i++ {
		for j := i; j <= len(body); j++ {
			d := NewChunkedDecoder(0)
			content, ends, err := decodeAll(d, body[:i], body[i:j], body[j:])
			if err != nil {
				t.Fatalf("split (%d,%d): unexpected error: %v", i, j, err)
			}
			if string(content) != want {
				t.Fatalf("split (%d,%d): content = %q, want %q", i, j, content, want)
			}
			if ends != 1 {
				t.Fatalf("split (%d,%d): end of body signaled %d times", i, j, ends)
			}
			if trailers := d.Trailers(); len(trailers) != 2 || trailers[1] != (Field{Name: "X-Sum", Value: "42"}) {
				t.Fatalf("split (%d,%d): trailers = %+v", i, j, trailers)
			}
		}
	}
}

func TestChunkedDecodeByteAtATime(t *testing.T) {
	body := []byte("4\r\nWiki\r\n5\r\npedia\r\nE\r\n in\r\n\r\nchunks.\r\n0\r\n\r\n")
	d := NewChunkedDecoder(0)
	pieces := make([][]byte, len(body))
	for i := range body {
		pieces[i] = body[i : i+1]
	}
	content, ends, err := decodeAll(d, pieces...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "Wikipedia in\r\n\r\nchunks."; string(content) != want {
		t.Fatalf("content = %q, want %q", content, want)
	}
	if ends != 1 {
		t.Fatalf("end of body signaled %d times", ends)
	}
}

func TestChunkedDecodeStopsAtEnd(t *testing.T) {
	d := NewChunkedDecoder(0)
	input := []byte("0\r\n\r\nHTTP/1.1 200 OK\r\n")
	n, fragment, err := d.Decode(input)
	if err != nil || fragment != nil {
		t.Fatalf("Decode = (%d, %q, %v)", n, fragment, err)
	}
	if n != 5 || !d.Done() {
		t.Fatalf("consumed %d bytes, done=%v; want 5, true", n, d.Done())
	}
	if n, _, _ := d.Decode(input[n:]); n != 0 {
		t.Fatalf("decoder consumed %d bytes after end of body", n)
	}
}

func TestChunkedDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   error
	}{
		{"non-hex size", "zz\r\nabc\r\n0\r\n\r\n", ErrBadChunkSize},
		{"hex then garbage", "8x\r\n01234567\r\n", ErrBadChunkSize},
		{"empty size line", "\r\n", ErrBadChunkSize},
		{"bare LF after size", "8\n01234567\r\n", ErrBadChunkSize},
		{"CR without LF", "8\rX", ErrBadChunkSize},
		{"oversized size", "1000000000000000\r\n", ErrBadChunkSize},
		{"data longer than declared", "4\r\n01234567\r\n0\r\n\r\n", ErrBadChunkData},
		{"missing CRLF after data", "4\r\n0123\n0\r\n\r\n", ErrBadChunkData},
		{"bad trailer", "0\r\nno-colon\r\n\r\n", ErrBadTrailer},
		{"bare LF in trailer", "0\r\nX: y\n\r\n", ErrBadTrailer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewChunkedDecoder(0)
			_, _, err := decodeAll(d, []byte(tt.input))
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestChunkedDecodeTrailerLimit(t *testing.T) {
	d := NewChunkedDecoder(16)
	trailer := "0\r\nX-Long: " + string(bytes.Repeat([]byte("a"), 32)) + "\r\n\r\n"
	if _, _, err := decodeAll(d, []byte(trailer)); !errors.Is(err, ErrTrailerTooLarge) {
		t.Fatalf("err = %v, want %v", err, ErrTrailerTooLarge)
	}
}

func TestChunkedDecoderReset(t *testing.T) {
	d := NewChunkedDecoder(0)
	if _, _, err := decodeAll(d, []byte("3\r\nabc\r\n0\r\nA: b\r\n\r\n")); err != nil {
		t.Fatalf("first body: %v", err)
	}
	d.Reset()
	if d.State() != ChunkSize || len(d.Trailers()) != 0 {
		t.Fatalf("Reset left state=%v trailers=%v", d.State(), d.Trailers())
	}
	content, ends, err := decodeAll(d, []byte("2\r\nxy\r\n0\r\n\r\n"))
	if err != nil || string(content) != "xy" || ends != 1 {
		t.Fatalf("second body = (%q, %d, %v)", content, ends, err)
	}
}
