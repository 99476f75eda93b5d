package ft

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is the first field of a request. Unrecognized commands are kept
// verbatim so the server can answer them with an Illegal Command status.
type Command string

const (
	// CommandList requests a listing of the served directory.
	CommandList Command = "-l"

	// CommandGet requests the contents of one file.
	CommandGet Command = "-g"
)

// Valid reports whether c is a command the server executes.
func (c Command) Valid() bool {
	return c == CommandList || c == CommandGet
}

// Name returns a short lowercase name for metrics and spans.
func (c Command) Name() string {
	switch c {
	case CommandList:
		return "list"
	case CommandGet:
		return "get"
	default:
		return "illegal"
	}
}

// MaxPort is the largest valid data port.
const MaxPort = 65535

// Request is a decoded control request.
//
// Filename is set only for CommandGet. DataPort is the port on the client
// that the server connects back to.
type Request struct {
	Command  Command
	Filename string
	DataPort int
}

// DecodeRequest parses the request string (without its terminator).
//
// Fields are positional: command, then a filename for -g, then the data
// port. Everything after the command separator is the port for other
// commands, matching what deployed clients send. No escaping exists, so a
// filename containing '&' or '*' cannot be expressed.
func DecodeRequest(s string) (*Request, error) {
	command, rest, ok := strings.Cut(s, FieldSeparator)
	if !ok {
		return nil, malformed("missing separator after command %q", command)
	}
	if command == "" {
		return nil, malformed("empty command")
	}

	req := &Request{Command: Command(command)}

	if req.Command == CommandGet {
		var filename string
		filename, rest, ok = strings.Cut(rest, FieldSeparator)
		if !ok {
			return nil, malformed("missing separator after filename")
		}
		if filename == "" {
			return nil, malformed("empty filename")
		}
		req.Filename = filename
	}

	port, err := parsePort(rest)
	if err != nil {
		return nil, err
	}
	req.DataPort = port

	return req, nil
}

func parsePort(field string) (int, error) {
	if field == "" {
		return 0, malformed("empty data port")
	}
	for i := 0; i < len(field); i++ {
		if field[i] < '0' || field[i] > '9' {
			return 0, malformed("data port %q is not a decimal integer", field)
		}
	}
	port, err := strconv.Atoi(field)
	if err != nil || port < 1 || port > MaxPort {
		return 0, malformed("data port %q out of range", field)
	}
	return port, nil
}

func malformed(format string, args ...any) error {
	return NewError(ErrMalformedRequest, "decode request", fmt.Errorf(format, args...))
}

// Encode returns the wire form of r, terminator included.
func (r *Request) Encode() string {
	var b strings.Builder
	b.WriteString(string(r.Command))
	b.WriteString(FieldSeparator)
	if r.Command == CommandGet {
		b.WriteString(r.Filename)
		b.WriteString(FieldSeparator)
	}
	b.WriteString(strconv.Itoa(r.DataPort))
	b.WriteByte(RequestTerminator)
	return b.String()
}

// Validate checks that r can be encoded losslessly.
func (r *Request) Validate() error {
	if r.Command == "" || strings.ContainsAny(string(r.Command), FieldSeparator+string(RequestTerminator)) {
		return malformed("invalid command %q", r.Command)
	}
	if r.Command == CommandGet {
		if r.Filename == "" || strings.ContainsAny(r.Filename, FieldSeparator+string(RequestTerminator)) {
			return malformed("filename %q cannot be encoded", r.Filename)
		}
	} else if r.Filename != "" {
		return malformed("filename only allowed with %s", CommandGet)
	}
	if r.DataPort < 1 || r.DataPort > MaxPort {
		return malformed("data port %d out of range", r.DataPort)
	}
	return nil
}

func (r *Request) String() string {
	if r.Command == CommandGet {
		return fmt.Sprintf("%s %q port=%d", r.Command, r.Filename, r.DataPort)
	}
	return fmt.Sprintf("%s port=%d", r.Command, r.DataPort)
}
