package dump

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ctagard/dap-dump/internal/bridge"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
	"github.com/ctagard/dap-dump/pkg/types"
)

// maxDepth bounds nesting within one top-level item.
const maxDepth = 100

// Dumper is the API decoders use to render one fetch. It always points at
// the item currently under construction.
type Dumper struct {
	ctx    context.Context
	s      *Session
	req    types.FetchRequest
	ns     string
	root   *output.Scope
	scope  *output.Scope
	logger *slog.Logger

	expanded    map[string]bool
	maxNumChild int
	stringLimit int
	depth       int
	// excluded decoder keys for the value being rendered.
	excluded []string
}

func newDumper(ctx context.Context, s *Session, req types.FetchRequest, ns string, root *output.Scope) *Dumper {
	d := &Dumper{
		ctx:         ctx,
		s:           s,
		req:         req,
		ns:          ns,
		root:        root,
		scope:       root,
		logger:      s.logger,
		expanded:    make(map[string]bool, len(req.Expanded)),
		maxNumChild: s.opts.MaxNumChild,
		stringLimit: s.opts.DisplayStringLimit,
	}
	for _, iname := range req.Expanded {
		d.expanded[iname] = true
	}
	if req.MaxNumChild > 0 {
		d.maxNumChild = req.MaxNumChild
	}
	if req.DisplayStringLimit > 0 {
		d.stringLimit = req.DisplayStringLimit
	}
	return d
}

// Context returns the fetch context.
func (d *Dumper) Context() context.Context {
	return d.ctx
}

// Request returns the fetch request.
func (d *Dumper) Request() types.FetchRequest {
	return d.req
}

// Logger returns the session logger.
func (d *Dumper) Logger() *slog.Logger {
	return d.logger
}

// Mem returns the process memory, counting every read.
func (d *Dumper) Mem() typemodel.Memory {
	return d.s
}

// Item returns the item under construction.
func (d *Dumper) Item() *output.Item {
	return d.scope.Item()
}

// IName returns the iname of the current item.
func (d *Dumper) IName() string {
	iname, _ := d.Item().Get(output.KeyIName)
	return iname
}

// IsExpanded reports whether the front end asked for the current item's
// children.
func (d *Dumper) IsExpanded() bool {
	return d.expanded[d.IName()]
}

// MaxNumChild returns the child cap in effect.
func (d *Dumper) MaxNumChild() int {
	return d.maxNumChild
}

// StringLimit returns the maximum number of characters shown for strings.
func (d *Dumper) StringLimit() int {
	return d.stringLimit
}

// QtNamespace returns the detected library namespace, e.g. "Ns::".
func (d *Dumper) QtNamespace() string {
	return d.ns
}

// QtVersion returns the detected library version.
func (d *Dumper) QtVersion() (layout.Version, error) {
	return d.s.QtVersion(d.ctx)
}

// PtrSize returns the target's pointer width in bytes.
func (d *Dumper) PtrSize() int {
	return d.s.target.PointerSize
}

// IsWindows reports whether the target uses the Windows ABI.
func (d *Dumper) IsWindows() bool {
	return d.s.target.OS == bridge.OSWindows
}

// Qt3Support reports whether the library was built with Qt 3 support.
func (d *Dumper) Qt3Support() bool {
	return d.s.opts.Qt3Support
}

// SubItem renders a child called name of the current item. Failures of
// fn stay inside the child; only a lost target is returned.
func (d *Dumper) SubItem(name string, fn func() error) error {
	return d.subItem(name, name, fn)
}

func (d *Dumper) subItem(component, name string, fn func() error) error {
	return d.within(d.scope.Open(name, d.IName()+"."+component), fn)
}

// PutSubItem renders v as the child called name.
func (d *Dumper) PutSubItem(name string, v *typemodel.Value) error {
	return d.SubItem(name, func() error {
		return d.PutItem(v)
	})
}

// within runs fn with sc as the current scope and commits sc afterwards,
// whatever fn produced.
func (d *Dumper) within(sc *output.Scope, fn func() error) error {
	saved := d.scope
	d.scope = sc
	d.depth++
	err := d.run(fn)
	d.depth--
	d.scope = saved

	if err != nil {
		if errors.IsFatal(err) {
			sc.Rollback()
			return err
		}
		d.contain(sc.Item(), err)
	}
	sc.Commit()
	return nil
}

// run converts a decoder panic into an ordinary decode failure.
func (d *Dumper) run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			typ, _ := d.Item().Get(output.KeyType)
			err = errors.DecodeFailed(typ, fmt.Errorf("panic: %v", r))
		}
	}()
	if d.depth > maxDepth {
		return errors.InvalidLayout(d.IName(), "nesting too deep")
	}
	return fn()
}

func (d *Dumper) contain(it *output.Item, err error) {
	iname, _ := it.Get(output.KeyIName)
	typ, _ := it.Get(output.KeyType)
	code := errors.CodeOf(err)

	switch {
	case code == errors.CodeInvalidLayout:
		it.Reset()
		if typ != "" {
			it.Set(output.KeyType, typ)
		}
		it.SetValue("(invalid)", "", 0)
		it.SetNumChild(0)
		d.logger.Debug("invalid layout", "iname", iname, "error", err)
		return
	case d.req.PassExceptions:
		it.Reset()
		if typ != "" {
			it.Set(output.KeyType, typ)
		}
		msg := err.Error()
		if output.IsPrintable(msg) {
			it.SetValue("<"+msg+">", "", 0)
		} else {
			it.SetValue(output.HexString(msg), output.UTF8, 0)
		}
		it.SetNumChild(0)
	default:
		if !it.Has(output.KeyValue) {
			it.SetValue("", output.NotAccessible, 0)
		}
		if it.NumChild() < 0 {
			it.SetNumChild(0)
		}
	}

	if code == errors.CodeEvaluationFailed {
		d.logger.Warn("evaluation failed", "iname", iname, "error", err)
	} else {
		d.logger.Debug("decode failed", "iname", iname, "type", typ, "error", err)
	}
}

// PutValue sets a plain display value.
func (d *Dumper) PutValue(value string) {
	d.Item().SetValue(value, "", 0)
}

// PutEncodedValue sets a value in encoding enc. elided is the full length
// when the value was truncated, 0 otherwise.
func (d *Dumper) PutEncodedValue(value string, enc output.Encoding, elided int) {
	d.Item().SetValue(value, enc, elided)
}

// PutSpecialValue sets one of the semantic encodings.
func (d *Dumper) PutSpecialValue(enc output.Encoding, value string) {
	d.Item().SetValue(value, enc, 0)
}

// PutEmptyValue sets an empty display value.
func (d *Dumper) PutEmptyValue() {
	d.PutValue("")
}

// PutType sets the type label.
func (d *Dumper) PutType(name string) {
	d.Item().Set(output.KeyType, name)
}

// PutNumChild declares the number of children.
func (d *Dumper) PutNumChild(n int) {
	d.Item().SetNumChild(n)
}

// PutField sets an extra attribute on the current item.
func (d *Dumper) PutField(key, value string) {
	d.Item().Set(key, value)
}

// PutItemCount shows n as the item count and declares n children.
func (d *Dumper) PutItemCount(n int) {
	d.PutItemCountMax(n, 1000000000)
}

// PutItemCountMax is PutItemCount for containers whose size is only
// known up to maximum.
func (d *Dumper) PutItemCountMax(n, maximum int) {
	if n > maximum {
		d.PutSpecialValue(output.MinimumItemCount, output.Itoa(int64(maximum)))
	} else {
		d.PutSpecialValue(output.ItemCount, output.Itoa(int64(n)))
	}
	d.PutNumChild(n)
}

// PutIntItem renders a child holding an integer.
func (d *Dumper) PutIntItem(name string, n int64) error {
	return d.SubItem(name, func() error {
		d.PutValue(output.Itoa(n))
		d.PutType("int")
		d.PutNumChild(0)
		return nil
	})
}

// PutBoolItem renders a child holding a boolean.
func (d *Dumper) PutBoolItem(name string, b bool) error {
	return d.SubItem(name, func() error {
		d.PutValue(boolString(b))
		d.PutType("bool")
		d.PutNumChild(0)
		return nil
	})
}

// PutValueItem renders a child with a precomputed value.
func (d *Dumper) PutValueItem(name, value string, enc output.Encoding, typeName string) error {
	return d.SubItem(name, func() error {
		d.PutEncodedValue(value, enc, 0)
		d.PutType(typeName)
		d.PutNumChild(0)
		return nil
	})
}

// Check fails the current item as an invalid layout when cond is false.
// Decoders check every count before using it for further reads.
func (d *Dumper) Check(cond bool, what string) error {
	if cond {
		return nil
	}
	typ, _ := d.Item().Get(output.KeyType)
	return errors.InvalidLayout(typ, what)
}

// CheckRef validates a reference count.
func (d *Dumper) CheckRef(ref int64) error {
	return d.Check(ref >= -1 && ref < 1000000, fmt.Sprintf("reference count %d", ref))
}

// Layout returns the descriptor of name for the inspected process.
func (d *Dumper) Layout(name string) (layout.Descriptor, error) {
	v, err := d.QtVersion()
	if err != nil {
		return layout.Descriptor{}, err
	}
	desc, ok := d.s.layouts.Lookup(name, v, d.PtrSize(), layout.OSFor(d.s.target.OS))
	if !ok {
		return layout.Descriptor{}, errors.InvalidLayout(name, "no layout for Qt "+v.String())
	}
	return desc, nil
}

// LookupType resolves a type by name.
func (d *Dumper) LookupType(name string) (*typemodel.Type, error) {
	t, err := d.s.adapter.LookupType(d.ctx, name)
	if err != nil {
		return nil, err
	}
	if t.Code == typemodel.CodeUnresolvable {
		return nil, errors.UnresolvableType(name)
	}
	return t, nil
}

// LookupQtType resolves a library type, adding the namespace.
func (d *Dumper) LookupQtType(name string) (*typemodel.Type, error) {
	return d.LookupType(d.ns + name)
}

// CreateValue returns a live value of type t at addr.
func (d *Dumper) CreateValue(addr uint64, t *typemodel.Type) *typemodel.Value {
	return typemodel.NewLive(t, addr)
}

// CreateTypedValue resolves typeName and returns a value of it at addr.
func (d *Dumper) CreateTypedValue(addr uint64, typeName string) (*typemodel.Value, error) {
	t, err := d.LookupType(typeName)
	if err != nil {
		return nil, err
	}
	return typemodel.NewLive(t, addr), nil
}

// TemplateArgument returns the pos'th type argument of v's type.
func (d *Dumper) TemplateArgument(v *typemodel.Value, pos int) (*typemodel.Type, error) {
	arg, ok := v.Type.TemplateArgument(pos)
	if !ok || arg.IsValue || arg.Type == nil || arg.Type.Code == typemodel.CodeUnresolvable {
		return nil, errors.UnresolvableType(fmt.Sprintf("%s template argument %d", v.Type.Name, pos))
	}
	return arg.Type, nil
}

// NumericTemplateArgument returns the pos'th integral argument of v's type.
func (d *Dumper) NumericTemplateArgument(v *typemodel.Value, pos int) (int64, error) {
	arg, ok := v.Type.TemplateArgument(pos)
	if !ok || !arg.IsValue {
		return 0, errors.UnresolvableType(fmt.Sprintf("%s template argument %d", v.Type.Name, pos))
	}
	return arg.Value, nil
}

// Deref returns the pointee of a pointer or reference value.
func (d *Dumper) Deref(v *typemodel.Value) (*typemodel.Value, error) {
	return d.s.adapter.Dereference(d.ctx, v, d.s)
}

// Fields lists the members of v.
func (d *Dumper) Fields(v *typemodel.Value) ([]typemodel.Field, error) {
	return d.s.adapter.FieldsFor(d.ctx, v)
}

// AddressOf returns the address of a live value.
func (d *Dumper) AddressOf(v *typemodel.Value) (uint64, error) {
	addr, ok := v.Address()
	if !ok || addr == 0 {
		return 0, errors.MemoryReadFailed(0, int(v.Type.Size()), fmt.Errorf("%s has no address", v.Type.Name))
	}
	return addr, nil
}

// CanCall reports whether decoders may call functions in the debuggee.
func (d *Dumper) CanCall() bool {
	return d.s.opts.CanCall
}

// PutCallItem renders the result of calling method on v as the child
// called name. A call that fails or times out renders as notcallable.
func (d *Dumper) PutCallItem(name, resultType string, v *typemodel.Value, method string, args ...string) error {
	return d.SubItem(name, func() error {
		if !d.CanCall() {
			d.PutSpecialValue(output.NotCallable, "")
			d.PutNumChild(0)
			return nil
		}
		res, err := d.Call(v, method, args...)
		if err != nil {
			d.PutSpecialValue(output.NotCallable, "")
			d.PutNumChild(0)
			return err
		}
		if resultType != "" {
			if t, lerr := d.LookupType(resultType); lerr == nil && res.Type.Code == typemodel.CodeUnresolvable {
				res.Type = t
			}
		}
		return d.PutItem(res)
	})
}

// Call invokes method on v inside the debuggee, bounded by the session's
// call timeout.
func (d *Dumper) Call(v *typemodel.Value, method string, args ...string) (*typemodel.Value, error) {
	addr, err := d.AddressOf(v)
	if err != nil {
		return nil, err
	}
	target := bridge.MethodTarget{TypeName: v.Type.Name, Address: addr}
	if strings.Contains(target.TypeName, ":") {
		target.TypeName = "'" + target.TypeName + "'"
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.s.opts.CallTimeout)
	defer cancel()
	r := d.s.nb.CallMethod(ctx, target, method, args...)
	if !r.IsOk() {
		if r.Code() == errors.CodeTargetLost {
			return nil, r.Err()
		}
		return nil, errors.EvaluationFailed(target.Expression(method, args...), r.Err())
	}
	return d.s.adapter.FromNativeValue(d.ctx, r.Value()), nil
}

// Evaluate evaluates expr in the selected frame. The evaluation is bounded
// by the call timeout since expr may contain calls.
func (d *Dumper) Evaluate(expr string) (*typemodel.Value, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.s.opts.CallTimeout)
	defer cancel()
	r := d.s.nb.Evaluate(ctx, expr)
	if !r.IsOk() {
		if r.Code() == errors.CodeTargetLost {
			return nil, r.Err()
		}
		return nil, errors.EvaluationFailed(expr, r.Err())
	}
	return d.s.adapter.FromNativeValue(d.ctx, r.Value()), nil
}

// EvaluateInteger evaluates expr and returns its integral result.
func (d *Dumper) EvaluateInteger(expr string) (uint64, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.s.opts.CallTimeout)
	defer cancel()
	r := d.s.nb.Evaluate(ctx, expr)
	if !r.IsOk() {
		if r.Code() == errors.CodeTargetLost {
			return 0, r.Err()
		}
		return 0, errors.EvaluationFailed(expr, r.Err())
	}
	return d.s.adapter.NativeInteger(r.Value())
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
