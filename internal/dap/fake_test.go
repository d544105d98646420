package dap

import (
	"bufio"
	"encoding/base64"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"

	"github.com/ctagard/dap-dump/internal/slogutil"
)

// fakeAdapter answers DAP requests from canned data on one end of a pipe.
type fakeAdapter struct {
	conn   net.Conn
	reader *bufio.Reader

	mu       sync.Mutex
	seq      int
	evals    map[string]dap.EvaluateResponseBody
	memory   map[uint64][]byte
	scopes   []dap.Scope
	vars     map[int][]dap.Variable
	verified int
	// silent commands are read but never answered.
	silent   map[string]bool
	requests []string
}

func newFakeAdapter(conn net.Conn) *fakeAdapter {
	return &fakeAdapter{
		conn:   conn,
		reader: bufio.NewReader(conn),
		evals: map[string]dap.EvaluateResponseBody{
			"sizeof(void*)": {Result: "8", Type: "unsigned long"},
			"show endian":   {Result: "The target endianness is set automatically (currently little endian)."},
			"show osabi":    {Result: `The current OS ABI is "auto" (currently "GNU/Linux").`},
		},
		memory: make(map[uint64][]byte),
		vars:   make(map[int][]dap.Variable),
		silent: make(map[string]bool),
	}
}

// startFake connects a client to a fake adapter. Both are closed when
// the test ends.
func startFake(t *testing.T, timeout time.Duration) (*Client, *fakeAdapter) {
	t.Helper()
	clientConn, adapterConn := net.Pipe()
	f := newFakeAdapter(adapterConn)
	go f.serve()
	c := NewClient(NewConnTransport(clientConn), timeout, slogutil.NewDiscardLogger())
	t.Cleanup(func() {
		_ = c.Close()
		_ = adapterConn.Close()
	})
	return c, f
}

func (f *fakeAdapter) eval(expr, result, typ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals[expr] = dap.EvaluateResponseBody{Result: result, Type: typ}
}

// mute stops answering command.
func (f *fakeAdapter) mute(command string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent[command] = true
}

func (f *fakeAdapter) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// count returns how often a logged request occurred.
func (f *fakeAdapter) count(entry string) int {
	n := 0
	for _, r := range f.log() {
		if r == entry {
			n++
		}
	}
	return n
}

func (f *fakeAdapter) serve() {
	for {
		msg, err := dap.ReadProtocolMessage(f.reader)
		if err != nil {
			return
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			continue
		}
		resp := f.handle(msg, req.GetRequest())
		if resp == nil {
			continue
		}
		if err := f.write(resp); err != nil {
			return
		}
		if _, ok := msg.(*dap.InitializeRequest); ok {
			_ = f.write(&dap.InitializedEvent{Event: dap.Event{
				ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "event"},
				Event:           "initialized",
			}})
		}
	}
}

func (f *fakeAdapter) write(msg dap.Message) error {
	return dap.WriteProtocolMessage(f.conn, msg)
}

func (f *fakeAdapter) nextSeq() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq
}

func (f *fakeAdapter) response(req *dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"},
		RequestSeq:      req.Seq,
		Success:         true,
		Command:         req.Command,
	}
}

func (f *fakeAdapter) fail(req *dap.Request, text string) dap.Message {
	r := f.response(req)
	r.Success = false
	r.Message = text
	return &dap.ErrorResponse{Response: r, Body: dap.ErrorResponseBody{Error: &dap.ErrorMessage{Format: text}}}
}

func (f *fakeAdapter) record(entry string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, entry)
}

func (f *fakeAdapter) handle(msg dap.Message, req *dap.Request) dap.Message {
	f.mu.Lock()
	silent := f.silent[req.Command]
	f.mu.Unlock()

	switch r := msg.(type) {
	case *dap.EvaluateRequest:
		f.record("evaluate " + r.Arguments.Expression)
	case *dap.ReadMemoryRequest:
		f.record("readMemory " + r.Arguments.MemoryReference)
	default:
		f.record(req.Command)
	}
	if silent {
		return nil
	}

	switch r := msg.(type) {
	case *dap.InitializeRequest:
		return &dap.InitializeResponse{Response: f.response(req), Body: dap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsReadMemoryRequest:        true,
		}}
	case *dap.AttachRequest:
		return &dap.AttachResponse{Response: f.response(req)}
	case *dap.ConfigurationDoneRequest:
		return &dap.ConfigurationDoneResponse{Response: f.response(req)}
	case *dap.DisconnectRequest:
		return &dap.DisconnectResponse{Response: f.response(req)}
	case *dap.ThreadsRequest:
		return &dap.ThreadsResponse{Response: f.response(req), Body: dap.ThreadsResponseBody{
			Threads: []dap.Thread{{Id: 1, Name: "main"}},
		}}
	case *dap.StackTraceRequest:
		return &dap.StackTraceResponse{Response: f.response(req), Body: dap.StackTraceResponseBody{
			StackFrames: []dap.StackFrame{{Id: 1000, Name: "main"}},
			TotalFrames: 1,
		}}
	case *dap.ScopesRequest:
		f.mu.Lock()
		scopes := f.scopes
		f.mu.Unlock()
		return &dap.ScopesResponse{Response: f.response(req), Body: dap.ScopesResponseBody{Scopes: scopes}}
	case *dap.VariablesRequest:
		f.mu.Lock()
		vars := f.vars[r.Arguments.VariablesReference]
		f.mu.Unlock()
		return &dap.VariablesResponse{Response: f.response(req), Body: dap.VariablesResponseBody{Variables: vars}}
	case *dap.EvaluateRequest:
		f.mu.Lock()
		body, ok := f.evals[r.Arguments.Expression]
		f.mu.Unlock()
		if !ok {
			return f.fail(req, "No symbol in current context.")
		}
		return &dap.EvaluateResponse{Response: f.response(req), Body: body}
	case *dap.ReadMemoryRequest:
		addr, err := strconv.ParseUint(r.Arguments.MemoryReference, 0, 64)
		if err != nil {
			return f.fail(req, "bad memory reference")
		}
		data := f.read(addr+uint64(r.Arguments.Offset), r.Arguments.Count)
		if data == nil {
			return f.fail(req, "Cannot access memory")
		}
		return &dap.ReadMemoryResponse{Response: f.response(req), Body: dap.ReadMemoryResponseBody{
			Address: r.Arguments.MemoryReference,
			Data:    base64.StdEncoding.EncodeToString(data),
		}}
	case *dap.SetFunctionBreakpointsRequest:
		f.mu.Lock()
		verified := f.verified
		f.mu.Unlock()
		bps := make([]dap.Breakpoint, len(r.Arguments.Breakpoints))
		for i := range bps {
			bps[i] = dap.Breakpoint{Id: i + 1, Verified: i < verified}
		}
		return &dap.SetFunctionBreakpointsResponse{Response: f.response(req), Body: dap.SetFunctionBreakpointsResponseBody{Breakpoints: bps}}
	}
	return f.fail(req, "unsupported request")
}

// read returns up to count bytes of the region containing addr, or nil.
func (f *fakeAdapter) read(addr uint64, count int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	for start, region := range f.memory {
		if addr >= start && addr < start+uint64(len(region)) {
			off := addr - start
			end := min(off+uint64(count), uint64(len(region)))
			return region[off:end]
		}
	}
	return nil
}

// pointPtype is gdb's "ptype/o Point" for struct Point { int x, y; }.
const pointPtype = `/* offset      |    size */  type = struct Point {
/*      0      |       4 */    int x;
/*      4      |       4 */    int y;

                               /* total size (bytes):    8 */
                             }
`
