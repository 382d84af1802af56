package codec

import "fmt"

// ChunkState is the position of a ChunkedDecoder inside the chunked framing.
type ChunkState int

const (
	ChunkSize      ChunkState = iota // accumulating hex digits
	ChunkSizeWS                      // optional whitespace after the digits
	ChunkExtension                   // skipping ;name=value up to CR
	ChunkSizeLF                      // CR seen, LF required
	ChunkData                        // copying declared-size bytes
	ChunkDataCR                      // CR required after chunk-data
	ChunkDataLF                      // LF required after chunk-data CR
	ChunkTrailer                     // trailer field lines until a blank line
	ChunkTrailerLF                   // CR seen inside the trailer section
	ChunkEnd                         // terminal chunk and final CRLF consumed
)

func (s ChunkState) String() string {
	switch s {
	case ChunkSize:
		return "CHUNK_SIZE"
	case ChunkSizeWS:
		return "CHUNK_SIZE_WS"
	case ChunkExtension:
		return "CHUNK_EXTENSION"
	case ChunkSizeLF:
		return "CHUNK_SIZE_LF"
	case ChunkData:
		return "CHUNK_DATA"
	case ChunkDataCR, ChunkDataLF:
		return "CHUNK_DATA_CRLF"
	case ChunkTrailer, ChunkTrailerLF:
		return "TRAILER"
	case ChunkEnd:
		return "END"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

const (
	maxChunkSizeDigits   = 15 // keeps the size positive in an int64
	maxChunkExtensionLen = 4096
	defaultTrailerLimit  = 8192
)

// ChunkedDecoder is a restartable state machine for the chunked transfer
// coding. It performs no I/O: callers feed it whatever bytes have arrived and it
// resumes from any split point, including inside a size line, a data block or
// a CRLF.
type ChunkedDecoder struct {
	state        ChunkState
	size         int64 // declared size while in ChunkSize, bytes left while in ChunkData
	digits       int
	extLen       int
	line         []byte
	trailerBytes int
	trailerLimit int
	trailers     []Field
}

// NewChunkedDecoder creates a decoder whose trailer section may not exceed
// trailerLimit bytes. A non-positive limit selects the default.
func NewChunkedDecoder(trailerLimit int) *ChunkedDecoder {
	d := &ChunkedDecoder{}
	d.init(trailerLimit)
	return d
}

func (d *ChunkedDecoder) init(trailerLimit int) {
	if trailerLimit <= 0 {
		trailerLimit = defaultTrailerLimit
	}
	d.trailerLimit = trailerLimit
	d.Reset()
}

// Reset returns the decoder to its initial state so it can decode a new body.
func (d *ChunkedDecoder) Reset() {
	d.state = ChunkSize
	d.size = 0
	d.digits = 0
	d.extLen = 0
	d.line = d.line[:0]
	d.trailerBytes = 0
	d.trailers = nil
}

// State returns the current framing position.
func (d *ChunkedDecoder) State() ChunkState { return d.state }

// Done reports whether the terminal chunk and its trailer section were consumed.
func (d *ChunkedDecoder) Done() bool { return d.state == ChunkEnd }

// Trailers returns the trailer fields received after the terminal chunk.
func (d *ChunkedDecoder) Trailers() []Field { return d.trailers }

// Decode consumes bytes from data and returns how many were consumed. It stops
// right after producing a content fragment, so at most one fragment is returned
// per call; the fragment aliases data. Once Done reports true no further bytes
// are consumed. Any framing violation is returned as an error and the decoder
// must not be used again until Reset.
func (d *ChunkedDecoder) Decode(data []byte) (n int, fragment []byte, err error) {
	for n < len(data) {
		b := data[n]
		switch d.state {
		case ChunkSize:
			if v, ok := unhex(b); ok {
				if d.digits == maxChunkSizeDigits {
					return n, nil, ErrBadChunkSize
				}
				d.size = d.size<<4 | int64(v)
				d.digits++
				n++
				continue
			}
			if d.digits == 0 {
				return n, nil, ErrBadChunkSize
			}
			if err := d.afterSize(b); err != nil {
				return n, nil, err
			}
			n++
		case ChunkSizeWS:
			if b != ' ' && b != '\t' {
				if err := d.afterSize(b); err != nil {
					return n, nil, err
				}
			}
			n++
		case ChunkExtension:
			switch b {
			case '\r':
				d.state = ChunkSizeLF
			case '\n':
				return n, nil, ErrBadChunkSize
			default:
				if d.extLen++; d.extLen > maxChunkExtensionLen {
					return n, nil, ErrBadChunkExtension
				}
			}
			n++
		case ChunkSizeLF:
			if b != '\n' {
				return n, nil, ErrBadChunkSize
			}
			n++
			if d.size == 0 {
				d.state = ChunkTrailer
			} else {
				d.state = ChunkData
			}
		case ChunkData:
			take := int64(len(data) - n)
			if take > d.size {
				take = d.size
			}
			fragment = data[n : n+int(take)]
			n += int(take)
			if d.size -= take; d.size == 0 {
				d.state = ChunkDataCR
			}
			return n, fragment, nil
		case ChunkDataCR:
			if b != '\r' {
				return n, nil, ErrBadChunkData
			}
			d.state = ChunkDataLF
			n++
		case ChunkDataLF:
			if b != '\n' {
				return n, nil, ErrBadChunkData
			}
			d.state = ChunkSize
			d.size, d.digits, d.extLen = 0, 0, 0
			n++
		case ChunkTrailer:
			if b == '\r' {
				d.state = ChunkTrailerLF
			} else if b == '\n' {
				return n, nil, ErrBadTrailer
			} else {
				if d.trailerBytes++; d.trailerBytes > d.trailerLimit {
					return n, nil, ErrTrailerTooLarge
				}
				d.line = append(d.line, b)
			}
			n++
		case ChunkTrailerLF:
			if b != '\n' {
				return n, nil, ErrBadTrailer
			}
			n++
			if len(d.line) == 0 {
				d.state = ChunkEnd
				return n, nil, nil
			}
			field, ok := parseField(d.line)
			if !ok {
				return n, nil, ErrBadTrailer
			}
			d.trailers = append(d.trailers, field)
			d.line = d.line[:0]
			d.state = ChunkTrailer
		case ChunkEnd:
			return n, nil, nil
		}
	}
	return n, nil, nil
}

// afterSize handles the first byte that follows the hex digits of a size line.
func (d *ChunkedDecoder) afterSize(b byte) error {
	switch b {
	case ' ', '\t':
		d.state = ChunkSizeWS
	case ';':
		d.state = ChunkExtension
	case '\r':
		d.state = ChunkSizeLF
	default:
		return ErrBadChunkSize
	}
	return nil
}
