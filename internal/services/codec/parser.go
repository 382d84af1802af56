package codec

import (
	"bytes"
	"strconv"
	"strings"
)

// BodyMode is the framing selected for the body after the header section.
type BodyMode int

const (
	BodyNone       BodyMode = iota // no body: HEAD, 204, 304, Content-Length: 0
	BodyChunked                    // Transfer-Encoding: chunked
	BodyLength                     // Content-Length: N
	BodyUntilClose                 // delimited by the peer closing the stream
)

func (m BodyMode) String() string {
	switch m {
	case BodyNone:
		return "none"
	case BodyChunked:
		return "chunked"
	case BodyLength:
		return "content-length"
	case BodyUntilClose:
		return "until-close"
	default:
		return "unknown"
	}
}

// Handler receives the events produced by a ResponseParser. Calls happen on
// the goroutine that invokes Parse, in stream order.
type Handler interface {
	OnStatus(version string, status int, reason string)
	OnHeader(name, value string)
	OnHeadersComplete(mode BodyMode)
	// OnContent delivers a fragment that aliases the parser input. Returning
	// true pauses the parser: Parse returns immediately and the caller must keep
	// the unconsumed input intact until it calls Parse again.
	OnContent(fragment []byte) (pause bool)
	OnTrailer(name, value string)
	OnMessageComplete()
}

type parserState int

const (
	stateStatusLine parserState = iota
	stateHeaders
	stateInterimHeaders // header section of a 1xx response, discarded
	stateBody
	stateComplete
)

// Limits bounds the resources one response may consume.
type Limits struct {
	MaxHeaderBytes  int
	MaxContentBytes int64 // zero means unbounded
	MaxTrailerBytes int
}

const defaultMaxHeaderBytes = 32 * 1024

// ResponseParser decodes one HTTP/1.x response at a time from a byte stream
// that may arrive in arbitrary pieces.
type ResponseParser struct {
	handler Handler
	limits  Limits
	state   parserState

	line        []byte
	headerBytes int
	headRequest bool

	version  string
	status   int
	chunked  bool
	teSeen   bool
	length   int64 // -1 when no Content-Length was declared
	close    bool
	keepSeen bool

	mode      BodyMode
	remaining int64
	received  int64
	decoder   ChunkedDecoder
}

// NewResponseParser creates a parser that reports to h.
func NewResponseParser(h Handler, limits Limits) *ResponseParser {
	if limits.MaxHeaderBytes <= 0 {
		limits.MaxHeaderBytes = defaultMaxHeaderBytes
	}
	p := &ResponseParser{handler: h, limits: limits}
	p.decoder.init(limits.MaxTrailerBytes)
	p.Reset(false)
	return p
}

// Reset prepares the parser for the next response. headRequest must be true
// when the matching request was a HEAD, whose response never carries a body.
func (p *ResponseParser) Reset(headRequest bool) {
	p.state = stateStatusLine
	p.line = p.line[:0]
	p.headerBytes = 0
	p.headRequest = headRequest
	p.version = ""
	p.status = 0
	p.resetFraming()
	p.mode = BodyNone
	p.remaining = 0
	p.received = 0
	p.decoder.Reset()
}

func (p *ResponseParser) resetFraming() {
	p.chunked = false
	p.teSeen = false
	p.length = -1
	p.close = false
	p.keepSeen = false
}

// IsComplete reports whether the end of the current message was observed.
func (p *ResponseParser) IsComplete() bool { return p.state == stateComplete }

// IsStarted reports whether any byte of the current response was consumed.
func (p *ResponseParser) IsStarted() bool { return p.state != stateStatusLine || p.headerBytes > 0 }

// BodyMode returns the framing of the current body.
func (p *ResponseParser) BodyMode() BodyMode { return p.mode }

// Received returns the number of content bytes delivered so far.
func (p *ResponseParser) Received() int64 { return p.received }

// Persistent reports whether the connection may carry another exchange after
// this response, judging by version, Connection header and framing.
func (p *ResponseParser) Persistent() bool {
	if p.mode == BodyUntilClose || p.status == 101 {
		return false
	}
	if p.teSeen && p.length >= 0 {
		return false
	}
	if p.version == "HTTP/1.0" {
		return p.keepSeen && !p.close
	}
	return !p.close
}

// Parse consumes bytes from data and returns how many were consumed. It
// returns early when the handler pauses on a content fragment or when the
// message is complete; any bytes left over then belong to the caller.
func (p *ResponseParser) Parse(data []byte) (n int, err error) {
	for p.state != stateComplete {
		switch p.state {
		case stateStatusLine, stateHeaders, stateInterimHeaders:
			if n == len(data) {
				return n, nil
			}
			line, used, err := p.nextLine(data[n:])
			n += used
			if err != nil {
				return n, err
			}
			if line == nil {
				return n, nil
			}
			if err := p.onLine(line); err != nil {
				return n, err
			}
		case stateBody:
			used, pause, err := p.parseBody(data[n:])
			n += used
			if err != nil || pause {
				return n, err
			}
			if p.state == stateBody && n == len(data) {
				return n, nil
			}
		}
	}
	return n, nil
}

// ParseEOF tells the parser that the peer closed the stream. A body delimited
// by close completes here; anything else is truncation.
func (p *ResponseParser) ParseEOF() error {
	switch {
	case p.state == stateComplete:
		return nil
	case p.state == stateBody && p.mode == BodyUntilClose:
		p.complete()
		return nil
	case !p.IsStarted():
		return ErrClosedBeforeResponse
	default:
		return ErrUnexpectedEOF
	}
}

// nextLine returns the next complete line without its CRLF, or nil when the
// line is still incomplete. Partial lines are buffered across calls.
func (p *ResponseParser) nextLine(data []byte) (line []byte, used int, err error) {
	lf := bytes.IndexByte(data, '\n')
	segment := data
	if lf >= 0 {
		segment = data[:lf+1]
	}
	if p.headerBytes += len(segment); p.headerBytes > p.limits.MaxHeaderBytes {
		return nil, len(segment), ErrHeaderTooLarge
	}
	if lf < 0 {
		p.line = append(p.line, segment...)
		return nil, len(segment), nil
	}
	line = segment[:lf]
	if len(p.line) > 0 {
		p.line = append(p.line, line...)
		line = p.line
	}
	if len(line) == 0 || line[len(line)-1] != '\r' {
		return nil, len(segment), ErrBadLineEnding
	}
	p.line = p.line[:0]
	return line[:len(line)-1], len(segment), nil
}

func (p *ResponseParser) onLine(line []byte) error {
	switch p.state {
	case stateStatusLine:
		return p.onStatusLine(line)
	case stateInterimHeaders:
		if len(line) == 0 {
			p.state = stateStatusLine
			p.status = 0
		}
		return nil
	default:
		if len(line) == 0 {
			return p.onHeadersComplete()
		}
		if line[0] == ' ' || line[0] == '\t' { // obs-fold
			return ErrBadHeader
		}
		field, ok := parseField(line)
		if !ok {
			return ErrBadHeader
		}
		if err := p.inspect(field); err != nil {
			return err
		}
		p.handler.OnHeader(field.Name, field.Value)
		return nil
	}
}

// onStatusLine parses: HTTP-version SP status-code SP [ reason-phrase ]
func (p *ResponseParser) onStatusLine(line []byte) error {
	if len(line) < 12 || line[8] != ' ' || (len(line) > 12 && line[12] != ' ') {
		return ErrBadStatusLine
	}
	version := string(line[:8])
	if version != "HTTP/1.1" && version != "HTTP/1.0" {
		if strings.HasPrefix(version, "HTTP/") {
			return ErrUnsupportedProto
		}
		return ErrBadStatusLine
	}
	status := 0
	for _, b := range line[9:12] {
		if b < '0' || b > '9' {
			return ErrBadStatusLine
		}
		status = status*10 + int(b-'0')
	}
	if status < 100 {
		return ErrBadStatusLine
	}
	p.version = version
	p.status = status
	if status >= 100 && status < 200 && status != 101 {
		p.state = stateInterimHeaders
		return nil
	}
	reason := ""
	if len(line) > 13 {
		reason = string(line[13:])
	}
	p.resetFraming()
	p.state = stateHeaders
	p.handler.OnStatus(version, status, reason)
	return nil
}

// inspect records the headers that decide framing and persistence.
func (p *ResponseParser) inspect(f Field) error {
	switch f.Name {
	case "Transfer-Encoding":
		p.teSeen = true
		codings := strings.Split(f.Value, ",")
		last := strings.TrimSpace(codings[len(codings)-1])
		p.chunked = strings.EqualFold(last, "chunked")
	case "Content-Length":
		n, err := strconv.ParseInt(strings.TrimSpace(f.Value), 10, 64)
		if err != nil || n < 0 {
			return ErrBadContentLength
		}
		if p.length >= 0 && p.length != n {
			return ErrBadContentLength
		}
		p.length = n
	case "Connection":
		for _, token := range strings.Split(f.Value, ",") {
			switch strings.ToLower(strings.TrimSpace(token)) {
			case "close":
				p.close = true
			case "keep-alive":
				p.keepSeen = true
			}
		}
	}
	return nil
}

func (p *ResponseParser) onHeadersComplete() error {
	switch {
	case p.headRequest, p.status == 204, p.status == 304, p.status == 101:
		p.mode = BodyNone
	case p.teSeen && p.chunked:
		p.mode = BodyChunked
	case p.teSeen:
		p.mode = BodyUntilClose
	case p.length == 0:
		p.mode = BodyNone
	case p.length > 0:
		if max := p.limits.MaxContentBytes; max > 0 && p.length > max {
			return ErrContentTooLarge
		}
		p.mode = BodyLength
		p.remaining = p.length
	default:
		p.mode = BodyUntilClose
	}
	p.handler.OnHeadersComplete(p.mode)
	if p.mode == BodyNone {
		p.complete()
	} else {
		p.state = stateBody
	}
	return nil
}

func (p *ResponseParser) parseBody(data []byte) (n int, pause bool, err error) {
	switch p.mode {
	case BodyLength:
		if p.remaining == 0 {
			p.complete()
			return 0, false, nil
		}
		if len(data) == 0 {
			return 0, false, nil
		}
		take := int64(len(data))
		if take > p.remaining {
			take = p.remaining
		}
		p.remaining -= take
		pause = p.deliver(data[:take])
		if p.remaining == 0 && !pause {
			p.complete()
		}
		return int(take), pause, nil
	case BodyChunked:
		used, fragment, err := p.decoder.Decode(data)
		if err != nil {
			return used, false, err
		}
		if fragment != nil {
			if max := p.limits.MaxContentBytes; max > 0 && p.received+int64(len(fragment)) > max {
				return used, false, ErrContentTooLarge
			}
			pause = p.deliver(fragment)
		}
		if p.decoder.Done() {
			for _, t := range p.decoder.Trailers() {
				p.handler.OnTrailer(t.Name, t.Value)
			}
			p.complete()
		}
		return used, pause, nil
	default: // BodyUntilClose
		if len(data) == 0 {
			return 0, false, nil
		}
		if max := p.limits.MaxContentBytes; max > 0 && p.received+int64(len(data)) > max {
			return 0, false, ErrContentTooLarge
		}
		return len(data), p.deliver(data), nil
	}
}

func (p *ResponseParser) deliver(fragment []byte) bool {
	p.received += int64(len(fragment))
	return p.handler.OnContent(fragment)
}

func (p *ResponseParser) complete() {
	p.state = stateComplete
	p.handler.OnMessageComplete()
}
