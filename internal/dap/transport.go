// Package dap is the native debugger bridge of dap-dump. It speaks the
// Debug Adapter Protocol to gdb (--interpreter=dap) or lldb-dap and
// exposes the inspected process as a bridge.NativeBridge:
//   - Transport: framed message exchange over TCP or an adapter's stdio
//   - Client: the requests the dump engine needs (evaluate, readMemory,
//     scopes, variables, setFunctionBreakpoints) with per-call timeouts
//   - Bridge: memory, types (parsed from ptype/o), symbols and calls
//   - SessionManager: attached dump sessions with lifecycle management
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/go-dap"
)

// Transport frames DAP messages over one connection.
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	seq    int
}

// NewTCPTransport connects to an adapter listening at address.
func NewTCPTransport(address string, timeout time.Duration) (*Transport, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DAP server at %s: %w", address, err)
	}
	return newTransport(conn), nil
}

// NewStdioTransport talks to an adapter through its stdin and stdout.
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) *Transport {
	return newTransport(&pipePair{r: stdout, w: stdin})
}

// NewConnTransport wraps an established connection. Tests use it with
// net.Pipe.
func NewConnTransport(conn io.ReadWriteCloser) *Transport {
	return newTransport(conn)
}

func newTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		seq:    1,
	}
}

type pipePair struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (p *pipePair) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipePair) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipePair) Close() error {
	return stderrors.Join(p.w.Close(), p.r.Close())
}

// NextSeq returns the next outgoing sequence number.
func (t *Transport) NextSeq() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.seq
	t.seq++
	return seq
}

// Send writes one message.
func (t *Transport) Send(msg dap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}
	return nil
}

// Receive blocks until the next message arrives.
func (t *Transport) Receive() (dap.Message, error) {
	msg, err := dap.ReadProtocolMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read DAP message: %w", err)
	}
	return msg, nil
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// isDisconnect reports whether err means the peer is gone rather than a
// single undecodable message.
func isDisconnect(err error) bool {
	return stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, io.ErrClosedPipe) ||
		stderrors.Is(err, net.ErrClosed) ||
		stderrors.Is(err, os.ErrClosed)
}
