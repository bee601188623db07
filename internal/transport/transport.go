// Package transport implements the hex-line wire framing of spec.md §6:
// every packet is hex-encoded onto one newline-terminated line, prefixed
// with a one-byte flag (0 = payload, 1 = error message).
package transport

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"net"

	"github.com/gaoyinhao/MiniDB/pkg/dberr"
)

const (
	flagOK  byte = 0
	flagErr byte = 1
)

// Transporter owns the raw hex-line framing over one net.Conn: one line
// sent, one line received, no multiplexing.
type Transporter struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// NewTransporter wraps conn.
func NewTransporter(conn net.Conn) *Transporter {
	return &Transporter{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

// Send hex-encodes data and writes it as one `\n`-terminated line.
func (t *Transporter) Send(data []byte) error {
	line := hex.EncodeToString(data)
	if _, err := t.writer.WriteString(line); err != nil {
		return dberr.Wrap(dberr.FileNotReadWritable, err)
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return dberr.Wrap(dberr.FileNotReadWritable, err)
	}
	return t.writer.Flush()
}

// Receive reads one line and hex-decodes it. io.EOF propagates unwrapped
// so callers can tell a clean disconnect from a real I/O failure.
func (t *Transporter) Receive() ([]byte, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return nil, io.EOF
		}
		if err != io.EOF {
			return nil, dberr.Wrap(dberr.FileNotReadWritable, err)
		}
	}
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	data, decErr := hex.DecodeString(line)
	if decErr != nil {
		return nil, dberr.Wrap(dberr.InvalidPageData, decErr)
	}
	return data, nil
}

// Close closes the underlying connection.
func (t *Transporter) Close() error { return t.conn.Close() }

// Encoder packs/unpacks the one-byte flag in front of every payload.
type Encoder struct{}

// Encode builds the wire bytes for a successful payload, or, if sendErr is
// non-nil, an error packet carrying its message.
func (Encoder) Encode(payload []byte, sendErr error) []byte {
	if sendErr != nil {
		msg := sendErr.Error()
		if msg == "" {
			msg = "internal server error"
		}
		return append([]byte{flagErr}, msg...)
	}
	return append([]byte{flagOK}, payload...)
}

// Decode splits wire bytes back into a payload or an error, per spec.md
// §6's `[flag][payload]` framing.
func (Encoder) Decode(data []byte) (payload []byte, isErr bool, err error) {
	if len(data) < 1 {
		return nil, false, dberr.New(dberr.InvalidPageData)
	}
	switch data[0] {
	case flagOK:
		return data[1:], false, nil
	case flagErr:
		return nil, true, fmt.Errorf("%s", data[1:])
	default:
		return nil, false, dberr.New(dberr.InvalidPageData)
	}
}

// Packager is the high-level send/receive API sessions use: Transporter
// for the bytes, Encoder for the flag framing.
type Packager struct {
	t *Transporter
	e Encoder
}

// NewPackager builds a Packager over conn.
func NewPackager(conn net.Conn) *Packager {
	return &Packager{t: NewTransporter(conn), e: Encoder{}}
}

// Send writes payload as a successful packet, or, if sendErr is non-nil,
// as an error packet instead.
func (p *Packager) Send(payload []byte, sendErr error) error {
	return p.t.Send(p.e.Encode(payload, sendErr))
}

// Receive reads one packet and splits it into payload/error.
func (p *Packager) Receive() (payload []byte, isErr bool, err error) {
	data, err := p.t.Receive()
	if err != nil {
		return nil, false, err
	}
	return p.e.Decode(data)
}

// Close closes the underlying connection.
func (p *Packager) Close() error { return p.t.Close() }
