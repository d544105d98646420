package dap

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/go-dap"

	"github.com/ctagard/dap-dump/internal/bridge"
	"github.com/ctagard/dap-dump/internal/errors"
)

// DefaultTypeCommand prints a type with member offsets in gdb.
const DefaultTypeCommand = "ptype/o %s"

// BridgeOptions configure a Bridge.
type BridgeOptions struct {
	// TypeCommand is the repl command printing a type, with %s for the
	// type name. Its output must follow gdb's "ptype/o" format.
	TypeCommand string
	// LazyTimeout bounds type resolutions triggered while walking fields
	// and targets, which carry no caller context.
	LazyTimeout time.Duration
}

// Bridge implements bridge.NativeBridge, bridge.LocalsLister and
// bridge.BreakpointSetter over a DAP client.
type Bridge struct {
	client *Client
	opts   BridgeOptions
	logger *slog.Logger

	mu         sync.Mutex
	target     *bridge.TargetInfo
	frameID    int
	frameKnown bool
	types      map[string]bridge.NativeType
	failures   map[string]*errors.DebugError
}

var (
	_ bridge.NativeBridge     = (*Bridge)(nil)
	_ bridge.LocalsLister     = (*Bridge)(nil)
	_ bridge.BreakpointSetter = (*Bridge)(nil)
)

// NewBridge creates a bridge over an attached client.
func NewBridge(client *Client, opts BridgeOptions, logger *slog.Logger) *Bridge {
	if opts.TypeCommand == "" {
		opts.TypeCommand = DefaultTypeCommand
	}
	if opts.LazyTimeout <= 0 {
		opts.LazyTimeout = DefaultRequestTimeout
	}
	return &Bridge{
		client:   client,
		opts:     opts,
		logger:   logger,
		types:    make(map[string]bridge.NativeType),
		failures: make(map[string]*errors.DebugError),
	}
}

// Refresh forgets the selected frame. Frame ids are only valid while the
// debuggee stays stopped, so callers refresh before each fetch.
func (b *Bridge) Refresh() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameKnown = false
}

// SelectFrame pins the frame used for evaluation.
func (b *Bridge) SelectFrame(frameID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameID, b.frameKnown = frameID, true
}

// contain maps a client error onto the bridge taxonomy: a lost target
// stays fatal, everything else becomes the error built by soft.
func contain(err error, soft func(error) *errors.DebugError) *errors.DebugError {
	if errors.CodeOf(err) == errors.CodeTargetLost {
		return errors.FromError(err)
	}
	return soft(err)
}

// frame returns the top frame of the stopped thread.
func (b *Bridge) frame(ctx context.Context) (int, error) {
	b.mu.Lock()
	if b.frameKnown {
		id := b.frameID
		b.mu.Unlock()
		return id, nil
	}
	b.mu.Unlock()

	thread := 0
	if st := b.client.Stopped(); st != nil && st.ThreadID != 0 {
		thread = st.ThreadID
	} else {
		threads, err := b.client.Threads(ctx)
		if err != nil {
			return 0, err
		}
		if len(threads) == 0 {
			return 0, fmt.Errorf("debuggee has no threads")
		}
		thread = threads[0].Id
	}
	frames, err := b.client.StackTrace(ctx, thread, 0, 1)
	if err != nil {
		return 0, err
	}
	if len(frames) == 0 {
		return 0, fmt.Errorf("thread %d has no frames", thread)
	}
	b.SelectFrame(frames[0].Id)
	return frames[0].Id, nil
}

func (b *Bridge) evaluate(ctx context.Context, expr, evalContext string) (*dap.EvaluateResponseBody, error) {
	frameID, err := b.frame(ctx)
	if err != nil {
		return nil, err
	}
	return b.client.Evaluate(ctx, expr, frameID, evalContext)
}

// evaluateInteger evaluates expr and parses its result as an integer.
func (b *Bridge) evaluateInteger(ctx context.Context, expr string) (int64, error) {
	body, err := b.evaluate(ctx, expr, "watch")
	if err != nil {
		return 0, err
	}
	v, ok := parseIntegerText(body.Result)
	if !ok {
		return 0, fmt.Errorf("%s: not an integer: %q", expr, body.Result)
	}
	return v, nil
}

// Target probes pointer width, byte order and ABI once.
func (b *Bridge) Target(ctx context.Context) bridge.Result[bridge.TargetInfo] {
	b.mu.Lock()
	if b.target != nil {
		t := *b.target
		b.mu.Unlock()
		return bridge.Ok(t)
	}
	b.mu.Unlock()

	ptr, err := b.evaluateInteger(ctx, "sizeof(void*)")
	if err != nil {
		return bridge.Fail[bridge.TargetInfo](contain(err, func(err error) *errors.DebugError {
			return errors.EvaluationFailed("sizeof(void*)", err)
		}))
	}
	info := bridge.TargetInfo{PointerSize: int(ptr)}
	if body, err := b.evaluate(ctx, "show endian", "repl"); err == nil {
		info.BigEndian = strings.Contains(body.Result, "big endian")
	} else if errors.IsFatal(err) {
		return bridge.Fail[bridge.TargetInfo](errors.FromError(err))
	}
	if body, err := b.evaluate(ctx, "show osabi", "repl"); err == nil {
		info.OS = bridge.ParseOS(osabiName(body.Result))
	} else if errors.IsFatal(err) {
		return bridge.Fail[bridge.TargetInfo](errors.FromError(err))
	}
	b.logger.Debug("target probed", "pointerSize", info.PointerSize, "bigEndian", info.BigEndian, "os", info.OS)

	b.mu.Lock()
	b.target = &info
	b.mu.Unlock()
	return bridge.Ok(info)
}

var currentlyParen = regexp.MustCompile(`\(currently "?([^")]*)"?\)`)

// osabiName extracts the effective ABI from "show osabi" output:
// `The current OS ABI is "auto" (currently "GNU/Linux").`
func osabiName(out string) string {
	if m := currentlyParen.FindStringSubmatch(out); m != nil {
		return m[1]
	}
	return out
}

func (b *Bridge) targetInfo() bridge.TargetInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.target == nil {
		return bridge.TargetInfo{PointerSize: 8}
	}
	return *b.target
}

func (b *Bridge) byteOrder() binary.ByteOrder {
	if b.targetInfo().BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ReadMemory reads size bytes at addr through a readMemory request.
func (b *Bridge) ReadMemory(ctx context.Context, addr uint64, size int) bridge.Result[[]byte] {
	if addr == 0 || size == 0 {
		return bridge.Ok([]byte{})
	}
	if size < 0 {
		return bridge.Fail[[]byte](errors.MemoryReadFailed(addr, size, fmt.Errorf("negative size")))
	}
	body, err := b.client.ReadMemory(ctx, fmt.Sprintf("0x%x", addr), 0, size)
	if err != nil {
		return bridge.Fail[[]byte](contain(err, func(err error) *errors.DebugError {
			return errors.MemoryReadFailed(addr, size, err)
		}))
	}
	data, err := base64.StdEncoding.DecodeString(body.Data)
	if err != nil {
		return bridge.Fail[[]byte](errors.MemoryReadFailed(addr, size, err))
	}
	if len(data) < size {
		return bridge.Fail[[]byte](errors.MemoryReadFailed(addr, size,
			fmt.Errorf("%d of %d bytes readable", len(data), size)))
	}
	return bridge.Ok(data[:size])
}

// ResolveType describes the named type. Results, failures included, are
// cached for the lifetime of the bridge.
func (b *Bridge) ResolveType(ctx context.Context, name string) bridge.Result[bridge.NativeType] {
	t, err := b.resolve(ctx, name)
	if err != nil {
		return bridge.Fail[bridge.NativeType](contain(err, func(err error) *errors.DebugError {
			return errors.UnresolvableType(name).WithCause(err)
		}))
	}
	return bridge.Ok(t)
}

func normalizeTypeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	for _, kw := range []string{"struct ", "class ", "union ", "enum "} {
		name = strings.TrimPrefix(name, kw)
	}
	return name
}

func (b *Bridge) resolve(ctx context.Context, name string) (bridge.NativeType, error) {
	name = normalizeTypeName(name)
	if name == "" {
		return nil, fmt.Errorf("empty type name")
	}
	b.mu.Lock()
	if t, ok := b.types[name]; ok {
		b.mu.Unlock()
		return t, nil
	}
	if err, ok := b.failures[name]; ok {
		b.mu.Unlock()
		return nil, err
	}
	b.mu.Unlock()

	t, err := b.describe(ctx, name)
	if err != nil {
		if errors.IsFatal(err) {
			return nil, err
		}
		b.mu.Lock()
		b.failures[name] = errors.UnresolvableType(name).WithCause(err)
		b.mu.Unlock()
		return nil, err
	}
	b.store(name, t)
	return t, nil
}

func (b *Bridge) store(name string, t bridge.NativeType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.types[name]; !ok {
		b.types[name] = t
	}
}

func (b *Bridge) describe(ctx context.Context, name string) (bridge.NativeType, error) {
	target := b.targetInfo()
	if kind, size, signed, ok := builtinScalar(name, target); ok {
		return &nativeType{b: b, name: name, kind: kind, size: size, signed: signed}, nil
	}
	if t, ok, err := b.derivedType(ctx, name, target); ok || err != nil {
		return t, err
	}

	body, err := b.evaluate(ctx, fmt.Sprintf(b.opts.TypeCommand, name), "repl")
	if err != nil {
		return nil, err
	}
	decl, err := parsePtype(body.Result)
	if err != nil {
		return nil, err
	}

	switch {
	case decl.IsAggregate() || decl.Keyword == "enum":
		printed := normalizeTypeName(decl.Name)
		if printed == "" || printed == name {
			t := b.fromDecl(decl, name)
			b.store(name, t)
			if t.size < 0 {
				t.size = b.sizeOf(ctx, name)
			}
			return t, nil
		}
		// A typedef printed as its target.
		t := b.fromDecl(decl, printed)
		if t.size < 0 {
			t.size = b.sizeOf(ctx, printed)
		}
		b.store(printed, t)
		return &nativeType{b: b, name: name, kind: bridge.KindTypedef, size: t.size,
			target: t, targetDone: true}, nil
	case normalizeTypeName(decl.Text) != name:
		underlying, err := b.resolve(ctx, decl.Text)
		if err != nil {
			return nil, err
		}
		return &nativeType{b: b, name: name, kind: bridge.KindTypedef, size: underlying.Size(),
			signed: underlying.Signed(), target: underlying, targetDone: true}, nil
	case strings.Contains(decl.Text, "("):
		return &nativeType{b: b, name: name, kind: bridge.KindFunction, size: 1}, nil
	}
	return b.unknownType(name, b.sizeOf(ctx, name)), nil
}

// sizeOf asks the debugger for sizeof(name), -1 when it cannot tell.
func (b *Bridge) sizeOf(ctx context.Context, name string) int64 {
	n, err := b.evaluateInteger(ctx, "sizeof("+name+")")
	if err != nil {
		b.logger.Debug("sizeof failed", "type", name, "error", err)
		return -1
	}
	return n
}

// baseOffset returns the offset of a non-virtual base inside derived.
func (b *Bridge) baseOffset(derived, base string) int64 {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.LazyTimeout)
	defer cancel()
	const probe = 0x1000
	off, err := b.evaluateInteger(ctx, fmt.Sprintf("(long long)(%s*)(%s*)%d - %d", base, derived, probe, probe))
	if err != nil {
		b.logger.Debug("base offset probe failed", "derived", derived, "base", base, "error", err)
		return 0
	}
	return off
}

// lazyType resolves a type discovered while walking another one. Failures
// yield an unknown type of the given size.
func (b *Bridge) lazyType(name string, size int64) bridge.NativeType {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.LazyTimeout)
	defer cancel()
	t, err := b.resolve(ctx, name)
	if err != nil {
		b.logger.Debug("type not resolvable", "type", name, "error", err)
		return b.unknownType(normalizeTypeName(name), size)
	}
	return t
}

// ResolveSymbolAddress returns the address of a global, 0 when unknown.
func (b *Bridge) ResolveSymbolAddress(ctx context.Context, name string) bridge.Result[uint64] {
	v, err := b.evaluateInteger(ctx, "(unsigned long long)&"+name)
	if err != nil {
		if errors.IsFatal(err) {
			return bridge.Fail[uint64](errors.FromError(err))
		}
		return bridge.Ok[uint64](0)
	}
	return bridge.Ok(uint64(v))
}

// callPattern matches a function call in an expression.
var callPattern = regexp.MustCompile(`[A-Za-z0-9_>\]]\s*\(`)

// Evaluate evaluates expr in the selected frame.
func (b *Bridge) Evaluate(ctx context.Context, expr string) bridge.Result[bridge.NativeValue] {
	body, err := b.evaluate(ctx, expr, "watch")
	if err != nil {
		return bridge.Fail[bridge.NativeValue](contain(err, func(err error) *errors.DebugError {
			return errors.EvaluationFailed(expr, err)
		}))
	}
	v, err := b.value(ctx, expr, expr, body.Result, body.Type, !callPattern.MatchString(expr))
	if err != nil {
		return bridge.Fail[bridge.NativeValue](errors.FromError(err))
	}
	return bridge.Ok[bridge.NativeValue](v)
}

// CallMethod calls method on the object at target.
func (b *Bridge) CallMethod(ctx context.Context, target bridge.MethodTarget, method string, args ...string) bridge.Result[bridge.NativeValue] {
	expr := target.Expression(method, args...)
	body, err := b.evaluate(ctx, expr, "watch")
	if err != nil {
		return bridge.Fail[bridge.NativeValue](contain(err, func(err error) *errors.DebugError {
			return errors.EvaluationFailed(expr, err)
		}))
	}
	v, err := b.value(ctx, expr, expr, body.Result, body.Type, false)
	if err != nil {
		return bridge.Fail[bridge.NativeValue](errors.FromError(err))
	}
	return bridge.Ok[bridge.NativeValue](v)
}

// Locals lists the arguments and locals of the selected frame.
func (b *Bridge) Locals(ctx context.Context) bridge.Result[[]bridge.NativeValue] {
	frameID, err := b.frame(ctx)
	if err != nil {
		return bridge.Fail[[]bridge.NativeValue](contain(err, func(err error) *errors.DebugError {
			return errors.OutOfScope("locals").WithCause(err)
		}))
	}
	scopes, err := b.client.Scopes(ctx, frameID)
	if err != nil {
		return bridge.Fail[[]bridge.NativeValue](contain(err, func(err error) *errors.DebugError {
			return errors.OutOfScope("locals").WithCause(err)
		}))
	}
	var out []bridge.NativeValue
	seen := make(map[string]bool)
	for _, sc := range scopes {
		if !isLocalScope(sc) {
			continue
		}
		vars, err := b.client.Variables(ctx, sc.VariablesReference)
		if err != nil {
			if errors.IsFatal(err) {
				return bridge.Fail[[]bridge.NativeValue](errors.FromError(err))
			}
			b.logger.Debug("scope unreadable", "scope", sc.Name, "error", err)
			continue
		}
		for _, v := range vars {
			if seen[v.Name] {
				continue
			}
			seen[v.Name] = true
			expr := v.EvaluateName
			if expr == "" {
				expr = v.Name
			}
			nv, err := b.value(ctx, v.Name, expr, v.Value, v.Type, true)
			if err != nil {
				return bridge.Fail[[]bridge.NativeValue](errors.FromError(err))
			}
			out = append(out, nv)
		}
	}
	return bridge.Ok(out)
}

func isLocalScope(sc dap.Scope) bool {
	switch sc.PresentationHint {
	case "locals", "arguments":
		return true
	case "registers":
		return false
	}
	switch strings.ToLower(sc.Name) {
	case "locals", "local", "arguments", "args":
		return true
	}
	return false
}

// SetFunctionBreakpoints installs function breakpoints and returns how
// many the debugger verified.
func (b *Bridge) SetFunctionBreakpoints(ctx context.Context, functions []string) bridge.Result[int] {
	bps, err := b.client.SetFunctionBreakpoints(ctx, functions)
	if err != nil {
		return bridge.Fail[int](contain(err, func(err error) *errors.DebugError {
			return errors.BreakpointFailed(strings.Join(functions, ", "), err.Error())
		}))
	}
	n := 0
	for _, bp := range bps {
		if bp.Verified {
			n++
		}
	}
	return bridge.Ok(n)
}

// nativeValue is a value described by an evaluate or variables reply.
type nativeValue struct {
	name      string
	typ       bridge.NativeType
	addr      uint64
	hasAddr   bool
	data      []byte
	optimized bool
}

func (v *nativeValue) Name() string            { return v.name }
func (v *nativeValue) Type() bridge.NativeType { return v.typ }
func (v *nativeValue) Address() (uint64, bool) { return v.addr, v.hasAddr }
func (v *nativeValue) Bytes() []byte           { return v.data }
func (v *nativeValue) OptimizedOut() bool      { return v.optimized }

// value builds a native value from the textual reply of the debugger.
// When addressable is set the address of expr is queried; the expression
// must then be free of calls, since it is evaluated again. Only a lost
// target is reported as an error.
func (b *Bridge) value(ctx context.Context, name, expr, result, typeName string, addressable bool) (*nativeValue, error) {
	v := &nativeValue{name: name}
	if typeName != "" {
		t, err := b.resolve(ctx, typeName)
		switch {
		case err == nil:
			v.typ = t
		case errors.IsFatal(err):
			return nil, err
		default:
			v.typ = b.unknownType(normalizeTypeName(typeName), -1)
		}
	}
	if strings.Contains(result, "<optimized out>") {
		v.optimized = true
		return v, nil
	}
	if addressable {
		addr, err := b.evaluateInteger(ctx, "(unsigned long long)&("+expr+")")
		switch {
		case err == nil:
			v.addr, v.hasAddr = uint64(addr), true
		case errors.IsFatal(err):
			return nil, err
		}
	}
	if v.typ != nil {
		v.data = scalarBytes(result, bridge.StripTypedefs(v.typ), b.byteOrder())
	}
	return v, nil
}

var (
	castPrefix = regexp.MustCompile(`^\([^()]*\)\s+`)
	leadingInt = regexp.MustCompile(`^[-+]?(?:0x[0-9a-fA-F]+|\d+)`)
)

// parseIntegerText parses the leading integer of a result such as "8",
// "0x601040 <buf>" or "(unsigned long) 16".
func parseIntegerText(s string) (int64, bool) {
	s = castPrefix.ReplaceAllString(strings.TrimSpace(s), "")
	tok := leadingInt.FindString(s)
	if tok == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return v, true
	}
	if u, err := strconv.ParseUint(tok, 0, 64); err == nil {
		return int64(u), true
	}
	return 0, false
}

// scalarBytes encodes the printed value of a scalar in target byte
// order. It returns nil for aggregates and unparsable text.
func scalarBytes(result string, t bridge.NativeType, order binary.ByteOrder) []byte {
	if t == nil || t.Size() <= 0 || t.Size() > 8 {
		return nil
	}
	text := castPrefix.ReplaceAllString(strings.TrimSpace(result), "")
	var bits uint64
	switch t.Kind() {
	case bridge.KindBool:
		switch {
		case strings.HasPrefix(text, "true"):
			bits = 1
		case strings.HasPrefix(text, "false"):
		default:
			return nil
		}
	case bridge.KindFloat:
		tok, _, _ := strings.Cut(text, " ")
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil
		}
		switch t.Size() {
		case 4:
			bits = uint64(math.Float32bits(float32(f)))
		case 8:
			bits = math.Float64bits(f)
		default:
			return nil
		}
	case bridge.KindEnum:
		n, ok := parseIntegerText(text)
		if !ok {
			tok, _, _ := strings.Cut(text, " ")
			found := false
			for _, e := range t.Enumerators() {
				if e.Name == tok || strings.HasSuffix(tok, "::"+e.Name) {
					n, found = e.Value, true
					break
				}
			}
			if !found {
				return nil
			}
		}
		bits = uint64(n)
	case bridge.KindInt, bridge.KindChar, bridge.KindPointer:
		n, ok := parseIntegerText(text)
		if !ok {
			return nil
		}
		bits = uint64(n)
	default:
		return nil
	}
	buf := make([]byte, 8)
	order.PutUint64(buf, bits)
	if order == binary.BigEndian {
		return buf[8-t.Size():]
	}
	return buf[:t.Size()]
}
