/*
Package stomp implements the subset of STOMP 1.2 framing the chat backend speaks.

A frame is a command line, header lines, a blank line, and a NUL-terminated
body; a lone LF octet is a heart-beat. Each WebSocket text message carries
exactly one frame. The codec covers the commands the chat protocol uses:
CONNECT/CONNECTED for the handshake, SUBSCRIBE/UNSUBSCRIBE for room routing,
SEND and MESSAGE for payload traffic, DISCONNECT for teardown, and ERROR for
protocol-level failures.
*/
package stomp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frame commands used by the chat protocol.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdMessage     = "MESSAGE"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
	CmdReceipt     = "RECEIPT"
)

// Standard header names.
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHost          = "host"
	HdrHeartBeat     = "heart-beat"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrContentType   = "content-type"
	HdrAuthorization = "Authorization"
	HdrMessage       = "message"
)

// HeartBeat is the wire representation of a STOMP heart-beat: a single LF octet.
var HeartBeat = []byte("\n")

// Frame is one STOMP frame.
type Frame struct {
	// Command is the frame command (first line).
	Command string

	// Headers holds the frame's header entries. Repeated headers are not
	// supported; the chat protocol never sends them.
	Headers map[string]string

	// Body is the frame payload, without the trailing NUL.
	Body []byte
}

// NewFrame constructs a frame with an initialized header map.
func NewFrame(command string) *Frame {
	return &Frame{
		Command: command,
		Headers: make(map[string]string),
	}
}

// Header returns the value of the named header, or "" when absent.
func (f *Frame) Header(name string) string {
	if f.Headers == nil {
		return ""
	}
	return f.Headers[name]
}

// IsHeartBeat reports whether raw is a heart-beat rather than a frame.
// Servers may send CRLF heart-beats; both forms are accepted.
func IsHeartBeat(raw []byte) bool {
	trimmed := bytes.TrimRight(raw, "\r\n")
	return len(trimmed) == 0
}

// escapeHeader applies the STOMP 1.2 header value escaping rules.
func escapeHeader(value string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		"\r", `\r`,
		"\n", `\n`,
		":", `\c`,
	)
	return replacer.Replace(value)
}

// unescapeHeader reverses escapeHeader. An undefined escape sequence is a
// protocol error.
func unescapeHeader(value string) (string, error) {
	var sb strings.Builder

	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}

		i++
		if i >= len(value) {
			return "", fmt.Errorf("truncated escape sequence in header value %q", value)
		}

		switch value[i] {
		case '\\':
			sb.WriteByte('\\')
		case 'r':
			sb.WriteByte('\r')
		case 'n':
			sb.WriteByte('\n')
		case 'c':
			sb.WriteByte(':')
		default:
			return "", fmt.Errorf("undefined escape sequence \\%c in header value %q", value[i], value)
		}
	}

	return sb.String(), nil
}

// Marshal serializes the frame into its wire representation, including the
// trailing NUL octet.
func (f *Frame) Marshal() []byte {
	var buf bytes.Buffer

	buf.WriteString(f.Command)
	buf.WriteByte('\n')

	for name, value := range f.Headers {
		buf.WriteString(escapeHeader(name))
		buf.WriteByte(':')
		buf.WriteString(escapeHeader(value))
		buf.WriteByte('\n')
	}

	if len(f.Body) > 0 {
		buf.WriteString("content-length:")
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)

	return buf.Bytes()
}

// Unmarshal parses one frame from its wire representation.
// The caller is expected to have screened heart-beats with IsHeartBeat first.
func Unmarshal(raw []byte) (*Frame, error) {
	// Tolerate heart-beat octets preceding the frame in the same message.
	raw = bytes.TrimLeft(raw, "\r\n")
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	headerEnd := bytes.Index(raw, []byte("\n\n"))
	if headerEnd < 0 {
		return nil, fmt.Errorf("malformed frame: missing header terminator")
	}

	headerBlock := string(raw[:headerEnd])
	body := raw[headerEnd+2:]

	// Strip the frame terminator and any trailing heart-beat octets.
	if i := bytes.IndexByte(body, 0); i >= 0 {
		body = body[:i]
	}

	lines := strings.Split(headerBlock, "\n")
	command := strings.TrimRight(lines[0], "\r")
	if command == "" {
		return nil, fmt.Errorf("malformed frame: empty command")
	}

	frame := NewFrame(command)

	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		sep := strings.IndexByte(line, ':')
		if sep < 0 {
			return nil, fmt.Errorf("malformed header line %q", line)
		}

		name, err := unescapeHeader(line[:sep])
		if err != nil {
			return nil, err
		}
		value, err := unescapeHeader(line[sep+1:])
		if err != nil {
			return nil, err
		}

		// First entry wins for repeated headers, per the STOMP spec.
		if _, exists := frame.Headers[name]; !exists {
			frame.Headers[name] = value
		}
	}

	if len(body) > 0 {
		frame.Body = append([]byte(nil), body...)
	}

	return frame, nil
}

// FormatHeartBeat renders a heart-beat header value from the two intervals
// (what we can send, what we want to receive), in milliseconds.
func FormatHeartBeat(outgoing, incoming time.Duration) string {
	return fmt.Sprintf("%d,%d", outgoing.Milliseconds(), incoming.Milliseconds())
}

// NegotiateHeartBeat resolves the effective heart-beat intervals from the
// client's offer and the server's CONNECTED heart-beat header, per the STOMP
// 1.2 rules: each direction runs at the slower of the two sides' values, and
// a zero on either side disables that direction. A missing or malformed
// server header disables heart-beating entirely.
func NegotiateHeartBeat(clientOutgoing, clientIncoming time.Duration, serverValue string) (outgoing, incoming time.Duration) {
	serverSend, serverReceive, err := parseHeartBeat(serverValue)
	if err != nil {
		return 0, 0
	}

	if clientOutgoing > 0 && serverReceive > 0 {
		outgoing = maxDuration(clientOutgoing, serverReceive)
	}

	if clientIncoming > 0 && serverSend > 0 {
		incoming = maxDuration(clientIncoming, serverSend)
	}

	return outgoing, incoming
}

// parseHeartBeat parses a "sx,sy" heart-beat header value into durations.
func parseHeartBeat(value string) (send, receive time.Duration, err error) {
	parts := strings.Split(strings.TrimSpace(value), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed heart-beat header %q", value)
	}

	sendMs, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed heart-beat header %q: %w", value, err)
	}

	receiveMs, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed heart-beat header %q: %w", value, err)
	}

	if sendMs < 0 || receiveMs < 0 {
		return 0, 0, fmt.Errorf("negative heart-beat interval in %q", value)
	}

	return time.Duration(sendMs) * time.Millisecond, time.Duration(receiveMs) * time.Millisecond, nil
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
