package dap

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/go-dap"

	"github.com/ctagard/dap-dump/internal/errors"
)

// DefaultRequestTimeout bounds requests that do not resume the debuggee.
const DefaultRequestTimeout = 10 * time.Second

// StoppedInfo describes the last stop of the debuggee.
type StoppedInfo struct {
	Reason      string
	ThreadID    int
	Description string
	AllStopped  bool
}

// Client issues DAP requests and routes responses and events. Once the
// connection is gone every request fails with TARGET_LOST.
type Client struct {
	transport *Transport
	logger    *slog.Logger
	timeout   time.Duration

	pending map[int]chan dap.Message
	mu      sync.Mutex

	eventHandler func(dap.Message)

	capabilities dap.Capabilities

	initialized     chan struct{}
	initializedOnce sync.Once

	stopped *StoppedInfo

	// lost is closed when the adapter connection ends; lostErr says why.
	lost     chan struct{}
	lostOnce sync.Once
	lostErr  *errors.DebugError

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient starts reading from transport. A zero timeout selects
// DefaultRequestTimeout.
func NewClient(transport *Transport, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:   transport,
		logger:      logger,
		timeout:     timeout,
		pending:     make(map[int]chan dap.Message),
		initialized: make(chan struct{}),
		lost:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// SetEventHandler installs a callback for events not handled internally.
func (c *Client) SetEventHandler(handler func(dap.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventHandler = handler
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	consecutiveErrors := 0
	const maxConsecutiveErrors = 5

	for {
		msg, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.ctx.Done():
				c.markLost(stderrors.New("client closed"))
				return
			default:
			}
			if isDisconnect(err) {
				c.markLost(err)
				return
			}
			consecutiveErrors++
			c.logger.Warn("DAP transport error", "attempt", consecutiveErrors, "max", maxConsecutiveErrors, "error", err)
			if consecutiveErrors >= maxConsecutiveErrors {
				c.markLost(fmt.Errorf("too many consecutive transport errors: %w", err))
				return
			}
			continue
		}
		consecutiveErrors = 0
		c.handleMessage(msg)
	}
}

// markLost records the loss of the adapter and fails every waiting
// request.
func (c *Client) markLost(cause error) {
	c.lostOnce.Do(func() {
		c.mu.Lock()
		c.lostErr = errors.TargetLost(cause)
		c.mu.Unlock()
		close(c.lost)
		c.logger.Error("debug adapter connection lost", "error", cause)
	})
}

func (c *Client) lostError() *errors.DebugError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lostErr
}

// Lost is closed once the adapter connection is gone.
func (c *Client) Lost() <-chan struct{} {
	return c.lost
}

func (c *Client) handleMessage(msg dap.Message) {
	if r, ok := msg.(dap.ResponseMessage); ok {
		seq := r.GetResponse().RequestSeq
		c.mu.Lock()
		ch, found := c.pending[seq]
		delete(c.pending, seq)
		c.mu.Unlock()
		if found {
			ch <- msg
		} else {
			c.logger.Debug("response without pending request", "requestSeq", seq, "command", r.GetResponse().Command)
		}
		return
	}

	switch e := msg.(type) {
	case *dap.InitializedEvent:
		c.initializedOnce.Do(func() { close(c.initialized) })
	case *dap.StoppedEvent:
		c.mu.Lock()
		c.stopped = &StoppedInfo{
			Reason:      e.Body.Reason,
			ThreadID:    e.Body.ThreadId,
			Description: e.Body.Description,
			AllStopped:  e.Body.AllThreadsStopped,
		}
		c.mu.Unlock()
	case *dap.ContinuedEvent:
		c.mu.Lock()
		c.stopped = nil
		c.mu.Unlock()
	case *dap.ExitedEvent:
		c.logger.Info("debuggee exited", "exitCode", e.Body.ExitCode)
	case *dap.TerminatedEvent:
		c.markLost(stderrors.New("debuggee terminated"))
	case *dap.OutputEvent:
		c.logger.Debug("adapter output", "category", e.Body.Category, "output", e.Body.Output)
	}

	c.mu.Lock()
	handler := c.eventHandler
	c.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

// Stopped returns the last stop, or nil while the debuggee runs.
func (c *Client) Stopped() *StoppedInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped == nil {
		return nil
	}
	s := *c.stopped
	return &s
}

// send registers a pending request and writes it. The returned channel
// receives the response.
func (c *Client) send(req dap.RequestMessage) (int, chan dap.Message, error) {
	if err := c.lostError(); err != nil {
		return 0, nil, err
	}
	seq := c.transport.NextSeq()
	r := req.GetRequest()
	r.Seq = seq
	r.Type = "request"

	respCh := make(chan dap.Message, 1)
	c.mu.Lock()
	c.pending[seq] = respCh
	c.mu.Unlock()

	if err := c.transport.Send(req); err != nil {
		c.forget(seq)
		if isDisconnect(err) {
			c.markLost(err)
			return 0, nil, c.lostError()
		}
		return 0, nil, errors.DAPProtocolError(r.Command, err)
	}
	return seq, respCh, nil
}

func (c *Client) forget(seq int) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

// await waits for the response to seq, bounded by ctx and timeout.
func (c *Client) await(ctx context.Context, command string, seq int, respCh chan dap.Message, timeout time.Duration) (dap.Message, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		return resp, nil
	case <-c.lost:
		c.forget(seq)
		return nil, c.lostError()
	case <-timer.C:
		c.forget(seq)
		return nil, errors.DAPTimeout(command, int(timeout/time.Second))
	case <-ctx.Done():
		c.forget(seq)
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.DAPTimeout(command, int(timeout/time.Second))
		}
		return nil, errors.Wrap(errors.CodeDAPProtocolError, command+" cancelled", "", ctx.Err())
	}
}

// roundTrip sends req and returns its successful response as R.
func roundTrip[R dap.ResponseMessage](ctx context.Context, c *Client, req dap.RequestMessage, timeout time.Duration) (R, error) {
	var zero R
	command := req.GetRequest().Command
	seq, respCh, err := c.send(req)
	if err != nil {
		return zero, err
	}
	msg, err := c.await(ctx, command, seq, respCh, timeout)
	if err != nil {
		return zero, err
	}
	return asResponse[R](command, msg)
}

func asResponse[R dap.ResponseMessage](command string, msg dap.Message) (R, error) {
	var zero R
	if err := responseError(command, msg); err != nil {
		return zero, err
	}
	resp, ok := msg.(R)
	if !ok {
		return zero, errors.DAPProtocolError(command, fmt.Errorf("unexpected response type: %T", msg))
	}
	return resp, nil
}

// responseError converts a failed response into an error.
func responseError(command string, msg dap.Message) error {
	r, ok := msg.(dap.ResponseMessage)
	if !ok {
		return errors.DAPProtocolError(command, fmt.Errorf("unexpected message type: %T", msg))
	}
	if r.GetResponse().Success {
		return nil
	}
	text := r.GetResponse().Message
	if er, ok := msg.(*dap.ErrorResponse); ok && er.Body.Error != nil && er.Body.Error.Format != "" {
		text = er.Body.Error.Format
	}
	return &RequestError{Command: command, Message: text}
}

// RequestError is an adapter's refusal of a request.
type RequestError struct {
	Command string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
}

// Initialize sends the initialize request.
func (c *Client) Initialize(ctx context.Context, clientID string) (*dap.InitializeResponse, error) {
	req := &dap.InitializeRequest{
		Request: dap.Request{Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{
			ClientID:                 clientID,
			ClientName:               clientID,
			AdapterID:                "dap-dump",
			Locale:                   "en-US",
			LinesStartAt1:            true,
			ColumnsStartAt1:          true,
			PathFormat:               "path",
			SupportsVariableType:     true,
			SupportsVariablePaging:   true,
			SupportsMemoryReferences: true,
		},
	}
	resp, err := roundTrip[*dap.InitializeResponse](ctx, c, req, 0)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.capabilities = resp.Body
	c.mu.Unlock()
	return resp, nil
}

// Capabilities returns what the adapter announced in its initialize
// response.
func (c *Client) Capabilities() dap.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// WaitInitialized waits for the initialized event.
func (c *Client) WaitInitialized(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.initialized:
		return nil
	case <-c.lost:
		return c.lostError()
	case <-timer.C:
		return errors.DAPTimeout("initialized event", int(timeout/time.Second))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingResponse is a request whose response is collected later. Some
// adapters answer attach only after configurationDone.
type PendingResponse struct {
	c       *Client
	command string
	seq     int
	ch      chan dap.Message
}

// AttachAsync sends an attach request without waiting for the response.
func (c *Client) AttachAsync(args map[string]any) (*PendingResponse, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attach args: %w", err)
	}
	req := &dap.AttachRequest{
		Request:   dap.Request{Command: "attach"},
		Arguments: argsJSON,
	}
	seq, ch, err := c.send(req)
	if err != nil {
		return nil, err
	}
	return &PendingResponse{c: c, command: "attach", seq: seq, ch: ch}, nil
}

// Wait returns the response, or an error when the request failed.
func (p *PendingResponse) Wait(ctx context.Context, timeout time.Duration) error {
	msg, err := p.c.await(ctx, p.command, p.seq, p.ch, timeout)
	if err != nil {
		return err
	}
	return responseError(p.command, msg)
}

// Attach sends an attach request and waits for the response.
func (c *Client) Attach(ctx context.Context, args map[string]any) error {
	p, err := c.AttachAsync(args)
	if err != nil {
		return err
	}
	return p.Wait(ctx, 30*time.Second)
}

// ConfigurationDone signals that configuration is complete.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	req := &dap.ConfigurationDoneRequest{
		Request: dap.Request{Command: "configurationDone"},
	}
	_, err := roundTrip[*dap.ConfigurationDoneResponse](ctx, c, req, 0)
	return err
}

// Disconnect ends the debug session. The debuggee keeps running unless
// terminateDebuggee is set.
func (c *Client) Disconnect(ctx context.Context, terminateDebuggee bool) error {
	req := &dap.DisconnectRequest{
		Request: dap.Request{Command: "disconnect"},
		Arguments: &dap.DisconnectArguments{
			TerminateDebuggee: terminateDebuggee,
		},
	}
	_, err := roundTrip[*dap.DisconnectResponse](ctx, c, req, 0)
	return err
}

// Threads lists the debuggee's threads.
func (c *Client) Threads(ctx context.Context) ([]dap.Thread, error) {
	req := &dap.ThreadsRequest{
		Request: dap.Request{Command: "threads"},
	}
	resp, err := roundTrip[*dap.ThreadsResponse](ctx, c, req, 0)
	if err != nil {
		return nil, err
	}
	return resp.Body.Threads, nil
}

// StackTrace returns up to levels frames of a thread.
func (c *Client) StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]dap.StackFrame, error) {
	req := &dap.StackTraceRequest{
		Request: dap.Request{Command: "stackTrace"},
		Arguments: dap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	}
	resp, err := roundTrip[*dap.StackTraceResponse](ctx, c, req, 0)
	if err != nil {
		return nil, err
	}
	return resp.Body.StackFrames, nil
}

// Scopes returns the scopes of a frame.
func (c *Client) Scopes(ctx context.Context, frameID int) ([]dap.Scope, error) {
	req := &dap.ScopesRequest{
		Request:   dap.Request{Command: "scopes"},
		Arguments: dap.ScopesArguments{FrameId: frameID},
	}
	resp, err := roundTrip[*dap.ScopesResponse](ctx, c, req, 0)
	if err != nil {
		return nil, err
	}
	return resp.Body.Scopes, nil
}

// Variables returns the children of a variables reference.
func (c *Client) Variables(ctx context.Context, variablesRef int) ([]dap.Variable, error) {
	req := &dap.VariablesRequest{
		Request:   dap.Request{Command: "variables"},
		Arguments: dap.VariablesArguments{VariablesReference: variablesRef},
	}
	resp, err := roundTrip[*dap.VariablesResponse](ctx, c, req, 0)
	if err != nil {
		return nil, err
	}
	return resp.Body.Variables, nil
}

// Evaluate evaluates expression in a frame. evalContext is "watch" for
// expressions and "repl" for debugger commands. The context deadline
// bounds the call, so callers resuming the debuggee pass their own.
func (c *Client) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
	req := &dap.EvaluateRequest{
		Request: dap.Request{Command: "evaluate"},
		Arguments: dap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    evalContext,
		},
	}
	resp, err := roundTrip[*dap.EvaluateResponse](ctx, c, req, c.deadline(ctx))
	if err != nil {
		return nil, err
	}
	return &resp.Body, nil
}

// ReadMemory reads count bytes at memoryReference+offset. The data in the
// body is base64.
func (c *Client) ReadMemory(ctx context.Context, memoryReference string, offset, count int) (*dap.ReadMemoryResponseBody, error) {
	req := &dap.ReadMemoryRequest{
		Request: dap.Request{Command: "readMemory"},
		Arguments: dap.ReadMemoryArguments{
			MemoryReference: memoryReference,
			Offset:          offset,
			Count:           count,
		},
	}
	resp, err := roundTrip[*dap.ReadMemoryResponse](ctx, c, req, 0)
	if err != nil {
		return nil, err
	}
	return &resp.Body, nil
}

// SetFunctionBreakpoints replaces all function breakpoints.
func (c *Client) SetFunctionBreakpoints(ctx context.Context, names []string) ([]dap.Breakpoint, error) {
	bps := make([]dap.FunctionBreakpoint, len(names))
	for i, n := range names {
		bps[i] = dap.FunctionBreakpoint{Name: n}
	}
	req := &dap.SetFunctionBreakpointsRequest{
		Request:   dap.Request{Command: "setFunctionBreakpoints"},
		Arguments: dap.SetFunctionBreakpointsArguments{Breakpoints: bps},
	}
	resp, err := roundTrip[*dap.SetFunctionBreakpointsResponse](ctx, c, req, 0)
	if err != nil {
		return nil, err
	}
	return resp.Body.Breakpoints, nil
}

// deadline returns the time left on ctx when it is set, so a caller's
// call timeout can exceed the client default.
func (c *Client) deadline(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left > 0 {
			return left
		}
	}
	return c.timeout
}

// Close shuts down the client and its transport.
func (c *Client) Close() error {
	c.cancel()
	err := c.transport.Close()
	c.wg.Wait()
	return err
}
