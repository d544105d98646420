// Package dump drives the structured dump of a debuggee's variables.
//
// A Session lives as long as the debugger attach: it owns the type cache,
// the layout table and the detected library version. Each Fetch starts
// with Reset, walks the requested variables through the registered
// decoders and renders one protocol document.
package dump

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ctagard/dap-dump/internal/bridge"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typeadapter"
	"github.com/ctagard/dap-dump/internal/typemodel"
	"github.com/ctagard/dap-dump/pkg/types"
)

// Options are the per-session defaults. Request fields override the
// numeric limits.
type Options struct {
	MaxNumChild        int
	DisplayStringLimit int
	// CallTimeout bounds every evaluation that may resume the debuggee.
	CallTimeout time.Duration
	// CanCall permits debuggee function calls.
	CanCall bool
	// QtVersion is used when detection fails.
	QtVersion layout.Version
	// QtNamespace, when set, skips namespace detection.
	QtNamespace string
	Qt3Support  bool
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		MaxNumChild:        100,
		DisplayStringLimit: 100,
		CallTimeout:        5 * time.Second,
		CanCall:            true,
		QtVersion:          layout.Make(5, 6, 0),
	}
}

// Session is the dump state of one debugger attach. Fetches are
// serialized.
type Session struct {
	nb       bridge.NativeBridge
	decoders *Registry
	layouts  *layout.Table
	adapter  *typeadapter.Adapter
	types    *typemodel.Registry
	opts     Options
	logger   *slog.Logger

	target bridge.TargetInfo
	order  binary.ByteOrder

	qtVersion      layout.Version
	qtVersionKnown bool
	qtNamespace    string
	namespaceKnown bool
	breakpoints    []string

	// Per-fetch state, cleared by Reset.
	typesToReport []*typemodel.Type
	reported      map[string]bool
	counts        map[string]int
	reads         int

	fetches int
	mu      sync.Mutex
}

// NewSession queries the target and prepares an empty session.
func NewSession(ctx context.Context, nb bridge.NativeBridge, decoders *Registry, layouts *layout.Table, opts Options, logger *slog.Logger) (*Session, error) {
	target, err := nb.Target(ctx).Get()
	if err != nil {
		return nil, fmt.Errorf("failed to query target: %w", err)
	}
	if target.PointerSize != 4 && target.PointerSize != 8 {
		return nil, errors.Wrap(errors.CodeInvalidParameter,
			fmt.Sprintf("unsupported pointer size %d", target.PointerSize), "", nil)
	}
	if decoders == nil {
		decoders = NewRegistry()
	}
	if layouts == nil {
		layouts = layout.DefaultTable()
	}
	if opts.MaxNumChild <= 0 {
		opts.MaxNumChild = DefaultOptions().MaxNumChild
	}
	if opts.DisplayStringLimit <= 0 {
		opts.DisplayStringLimit = DefaultOptions().DisplayStringLimit
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultOptions().CallTimeout
	}
	if opts.QtVersion == 0 {
		opts.QtVersion = DefaultOptions().QtVersion
	}

	var order binary.ByteOrder = binary.LittleEndian
	if target.BigEndian {
		order = binary.BigEndian
	}
	reg := typemodel.NewRegistry()
	s := &Session{
		nb:       nb,
		decoders: decoders,
		layouts:  layouts,
		adapter:  typeadapter.New(nb, reg, target, logger),
		types:    reg,
		opts:     opts,
		logger:   logger,
		target:   target,
		order:    order,
	}
	if opts.QtNamespace != "" {
		s.qtNamespace = opts.QtNamespace
		s.namespaceKnown = true
	}
	s.Reset()
	return s, nil
}

// Detected returns the library version and namespace found by earlier
// fetches. ok is false until the version has been determined.
func (s *Session) Detected() (v layout.Version, ns string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qtVersion, s.qtNamespace, s.qtVersionKnown
}

// Reset clears the per-fetch state. The type cache is kept.
func (s *Session) Reset() {
	s.typesToReport = nil
	s.reported = make(map[string]bool)
	s.counts = make(map[string]int)
	s.reads = 0
}

// Target returns the inspected process description.
func (s *Session) Target() bridge.TargetInfo {
	return s.target
}

// Types returns the session's type cache.
func (s *Session) Types() *typemodel.Registry {
	return s.types
}

// Adapter returns the session's type adapter.
func (s *Session) Adapter() *typeadapter.Adapter {
	return s.adapter
}

// Layouts returns the layout table.
func (s *Session) Layouts() *layout.Table {
	return s.layouts
}

// Reads returns the number of memory reads of the current fetch.
func (s *Session) Reads() int {
	return s.reads
}

// Fetches returns the number of completed fetches.
func (s *Session) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// ReadMemory implements typemodel.Memory.
func (s *Session) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	s.reads++
	return s.nb.ReadMemory(ctx, addr, size).Get()
}

// ByteOrder implements typemodel.Memory.
func (s *Session) ByteOrder() binary.ByteOrder {
	return s.order
}

// PointerSize implements typemodel.Memory.
func (s *Session) PointerSize() int {
	return s.target.PointerSize
}

// QtVersion returns the detected library version, probing once per
// session: the hook data symbol (Qt >= 5.3), then qVersion(), then the
// configured fallback.
func (s *Session) QtVersion(ctx context.Context) (layout.Version, error) {
	if s.qtVersionKnown {
		return s.qtVersion, nil
	}
	v, err := s.detectQtVersion(ctx)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		v = s.opts.QtVersion
		s.logger.Debug("qt version not detected, using fallback", "version", v)
	}
	s.qtVersion = v
	s.qtVersionKnown = true
	return v, nil
}

func plausibleVersion(v uint64) bool {
	return v >= 0x040000 && v < 0x070000
}

func (s *Session) detectQtVersion(ctx context.Context) (layout.Version, error) {
	ns, err := s.QtNamespace(ctx)
	if err != nil {
		return 0, err
	}
	hook := s.nb.ResolveSymbolAddress(ctx, ns+"qtHookData")
	if hook.Code() == errors.CodeTargetLost {
		return 0, hook.Err()
	}
	if addr := hook.Or(0); addr != 0 {
		// qtHookData[QtHookData::QtVersion]
		ptr := s.target.PointerSize
		data, err := s.ReadMemory(ctx, addr+uint64(2*ptr), ptr)
		if errors.IsFatal(err) {
			return 0, err
		}
		if err == nil {
			if v, derr := typemodel.DecodeUint(data, s.order); derr == nil && plausibleVersion(v) {
				return layout.Version(v), nil
			}
		}
	}
	if !s.opts.CanCall {
		return 0, nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	r := s.nb.Evaluate(cctx, "((const char*(*)())"+ns+"qVersion)()")
	if !r.IsOk() {
		if r.Code() == errors.CodeTargetLost {
			return 0, r.Err()
		}
		s.logger.Warn("qVersion() failed", "error", r.Err())
		return 0, nil
	}
	p, err := s.adapter.NativeInteger(r.Value())
	if err != nil || p == 0 {
		return 0, nil
	}
	text, err := s.ReadCString(ctx, p, 16)
	if err != nil {
		if errors.IsFatal(err) {
			return 0, err
		}
		return 0, nil
	}
	v, err := layout.ParseVersion(text)
	if err != nil || !plausibleVersion(uint64(v)) {
		return 0, nil
	}
	return v, nil
}

// ReadCString reads a NUL terminated string of at most limit bytes. Reads
// go in chunks and fall back to single bytes near unmapped memory.
func (s *Session) ReadCString(ctx context.Context, addr uint64, limit int) (string, error) {
	if addr == 0 {
		return "", errors.MemoryReadFailed(0, limit, fmt.Errorf("null address"))
	}
	var buf []byte
	for len(buf) < limit {
		at := addr + uint64(len(buf))
		chunk, err := s.ReadMemory(ctx, at, 32)
		if err != nil {
			if errors.IsFatal(err) {
				return "", err
			}
			if chunk, err = s.ReadMemory(ctx, at, 1); err != nil {
				return "", err
			}
		}
		if len(chunk) == 0 {
			return "", errors.MemoryReadFailed(at, 1, fmt.Errorf("empty read"))
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return string(append(buf, chunk[:i]...)), nil
		}
		buf = append(buf, chunk...)
	}
	return string(buf[:limit]), nil
}

// QtNamespace returns the library namespace including the trailing "::",
// or "". A configured namespace wins; otherwise the type of the shared
// null array reveals it.
func (s *Session) QtNamespace(ctx context.Context) (string, error) {
	if s.namespaceKnown {
		return s.qtNamespace, nil
	}
	const probe = "QArrayData"
	r := s.nb.Evaluate(ctx, probe+"::shared_null[0]")
	switch {
	case r.Code() == errors.CodeTargetLost:
		return "", r.Err()
	case r.IsOk() && r.Value().Type() != nil:
		name := strings.TrimPrefix(r.Value().Type().Name(), "const ")
		if ns, ok := strings.CutSuffix(name, probe); ok && (ns == "" || strings.HasSuffix(ns, "::")) {
			s.qtNamespace = ns
		}
	default:
		s.logger.Debug("qt namespace probe failed", "error", r.Err())
	}
	s.namespaceKnown = true
	return s.qtNamespace, nil
}

func (s *Session) reportType(t *typemodel.Type) {
	if t == nil || t.Name == "" || s.reported[t.Name] {
		return
	}
	switch t.Stripped().Code {
	case typemodel.CodeStruct, typemodel.CodeUnion, typemodel.CodeEnum, typemodel.CodeIntegral, typemodel.CodeFloat:
	default:
		return
	}
	s.reported[t.Name] = true
	s.typesToReport = append(s.typesToReport, t)
}

// specialBreakpoints lists the function breakpoints requested by req.
func (s *Session) specialBreakpoints(req types.FetchRequest, ns string) []string {
	var names []string
	if req.BreakOnAbort {
		names = append(names, "abort")
	}
	if req.BreakOnWarning {
		names = append(names, ns+"qWarning", ns+"QMessageLogger::warning")
	}
	if req.BreakOnFatal {
		names = append(names, ns+"qFatal", ns+"QMessageLogger::fatal")
	}
	return names
}

func (s *Session) applyBreakpoints(ctx context.Context, req types.FetchRequest) error {
	setter, ok := s.nb.(bridge.BreakpointSetter)
	if !ok {
		return nil
	}
	ns, err := s.QtNamespace(ctx)
	if err != nil {
		return err
	}
	want := s.specialBreakpoints(req, ns)
	if strings.Join(want, "\n") == strings.Join(s.breakpoints, "\n") {
		return nil
	}
	r := setter.SetFunctionBreakpoints(ctx, want)
	if !r.IsOk() {
		if r.Code() == errors.CodeTargetLost {
			return r.Err()
		}
		s.logger.Warn("failed to set special breakpoints", "functions", want, "error", r.Err())
		return nil
	}
	if r.Value() < len(want) {
		s.logger.Warn("some special breakpoints were not verified", "requested", len(want), "verified", r.Value())
	}
	s.breakpoints = want
	return nil
}

// Fetch runs one dump request and returns the protocol document. Only a
// lost target makes it fail; every other problem is contained in the
// node where it occurred.
func (s *Session) Fetch(ctx context.Context, req types.FetchRequest) (string, error) {
	doc, err := s.FetchDocument(ctx, req)
	if err != nil {
		return "", err
	}
	return doc.String(), nil
}

// FetchDocument is Fetch without the final rendering.
func (s *Session) FetchDocument(ctx context.Context, req types.FetchRequest) (*output.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.Reset()
	if err := s.applyBreakpoints(ctx, req); err != nil {
		return nil, s.fatal(err)
	}

	ns, err := s.QtNamespace(ctx)
	if err != nil {
		return nil, s.fatal(err)
	}

	doc := output.NewDocument()
	d := newDumper(ctx, s, req, ns, doc.Root)
	if err := d.dumpLocals(); err != nil {
		return nil, s.fatal(err)
	}
	if err := d.dumpResult(); err != nil {
		return nil, s.fatal(err)
	}
	if err := d.dumpWatchers(); err != nil {
		return nil, s.fatal(err)
	}

	for _, t := range s.typesToReport {
		doc.TypeInfo = append(doc.TypeInfo, output.TypeInfo{Name: t.Name, Size: t.Size()})
	}
	doc.QtNamespace = s.qtNamespace
	doc.Partial = req.PartialVar != ""
	for k, v := range s.counts {
		doc.Counts[k] = v
	}
	doc.Elapsed = time.Since(start)
	s.fetches++
	s.logger.Debug("fetch complete",
		"items", len(doc.Root.Items()),
		"reads", s.reads,
		"types", s.types.Len(),
		"elapsed", doc.Elapsed)
	return doc, nil
}

func (s *Session) fatal(err error) error {
	s.logger.Error("fetch aborted", "error", err)
	return err
}
