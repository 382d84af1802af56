package codec

import "errors"

// Protocol errors raised while decoding a response. Every one of them is fatal
// to the connection that produced the bytes.
var (
	ErrBadStatusLine     = errors.New("malformed status line")
	ErrUnsupportedProto  = errors.New("unsupported protocol version")
	ErrBadHeader         = errors.New("malformed header line")
	ErrBadLineEnding     = errors.New("line not terminated by CRLF")
	ErrHeaderTooLarge    = errors.New("header section too large")
	ErrBadContentLength  = errors.New("invalid content-length")
	ErrContentTooLarge   = errors.New("content exceeds configured limit")
	ErrBadChunkSize      = errors.New("malformed chunk size")
	ErrBadChunkExtension = errors.New("chunk extension too large")
	ErrBadChunkData      = errors.New("chunk data not terminated by CRLF")
	ErrBadTrailer        = errors.New("malformed trailer line")
	ErrTrailerTooLarge   = errors.New("trailer section too large")
)

// Errors reported when the peer closes the stream. They describe a broken
// transport rather than malformed framing.
var (
	ErrClosedBeforeResponse = errors.New("connection closed before response")
	ErrUnexpectedEOF        = errors.New("connection closed mid-message")
)

// IsEOFError reports whether err was caused by the peer closing the stream.
func IsEOFError(err error) bool {
	return errors.Is(err, ErrClosedBeforeResponse) || errors.Is(err, ErrUnexpectedEOF)
}
