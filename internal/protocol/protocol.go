// Package protocol implements the line-oriented wire format spoken
// between reqid clients and the server.
//
//	client → server   REQ\n
//	server → client   3fa8c210-9b4e-4a21-8f6d-12ab34cd56ef\n
//	server → client   ERR unknown\n
//
// Receivers tolerate a "\r" before the "\n".
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	// RequestToken is the only command the server recognises.
	RequestToken = "REQ"

	// ErrorMarker begins every failure response.
	ErrorMarker = "ERR"

	// ReasonUnknown answers any line other than RequestToken.
	ReasonUnknown = "unknown"

	// ReasonInternal answers a request the server could not serve.
	ReasonInternal = "internal"

	// IDLen is the length of a rendered identifier.
	IDLen = 36
)

// Request is RequestToken framed for the wire.
var Request = []byte(RequestToken + "\n")

// TrimLine removes the line terminator and at most one preceding "\r".
func TrimLine(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}

// IsRequest reports whether a trimmed line is exactly RequestToken.
func IsRequest(line []byte) bool {
	return string(line) == RequestToken
}

// AppendID appends a success response carrying id.
func AppendID(dst []byte, id string) []byte {
	dst = append(dst, id...)
	return append(dst, '\n')
}

// AppendError appends a failure response with the given reason.
func AppendError(dst []byte, reason string) []byte {
	dst = append(dst, ErrorMarker...)
	dst = append(dst, ' ')
	dst = append(dst, reason...)
	return append(dst, '\n')
}

// ErrMalformed is returned by ParseReply for lines that are neither an
// identifier nor an error response.
var ErrMalformed = errors.New("malformed reply")

// Reply is a parsed server response.
type Reply struct {
	ID     string // set on success
	Reason string // text after ErrorMarker, without the separating space
	line   string // the line as received, terminator stripped
}

// IsError reports whether the server answered with an error line.
func (r Reply) IsError() bool { return r.ID == "" }

// String renders the reply as it appeared on the wire, without the
// terminator.
func (r Reply) String() string {
	switch {
	case r.line != "":
		return r.line
	case !r.IsError():
		return r.ID
	case r.Reason == "":
		return ErrorMarker
	}
	return ErrorMarker + " " + r.Reason
}

// ParseReply classifies one response line.  The terminator and a
// preceding "\r" are stripped first.  Any line beginning with
// ErrorMarker is an error reply, whatever follows it.
func ParseReply(line string) (Reply, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	if rest, ok := strings.CutPrefix(line, ErrorMarker); ok {
		return Reply{Reason: strings.TrimPrefix(rest, " "), line: line}, nil
	}
	if ValidID(line) {
		return Reply{ID: line, line: line}, nil
	}
	return Reply{}, fmt.Errorf("%w: %q", ErrMalformed, line)
}

// ValidID reports whether s is a lowercase 8-4-4-4-12 version-4,
// variant-1 identifier.
func ValidID(s string) bool {
	if len(s) != IDLen {
		return false
	}
	for i := 0; i < IDLen; i++ {
		c := s[i]
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isLowerHex(c) {
				return false
			}
		}
	}
	if s[14] != '4' {
		return false
	}
	switch s[19] {
	case '8', '9', 'a', 'b':
		return true
	}
	return false
}

func isLowerHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f')
}
