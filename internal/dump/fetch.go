package dump

import (
	"strings"

	"github.com/ctagard/dap-dump/internal/bridge"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// partialTarget splits a partialvar iname such as "local.x.1.2" or
// "local.x@2.0" into its section and variable name ("local", "x").
func partialTarget(iname string) (section, name string) {
	section, rest, ok := strings.Cut(iname, ".")
	if !ok {
		return section, ""
	}
	name, _, _ = strings.Cut(rest, ".")
	name, _, _ = strings.Cut(name, "@")
	return section, name
}

// wants reports whether a top-level node of section and name belongs to
// the current fetch.
func (d *Dumper) wants(section, name string) bool {
	if d.req.PartialVar == "" {
		return true
	}
	ps, pn := partialTarget(d.req.PartialVar)
	return ps == section && pn == name
}

// topLevel renders v as the top-level node iname.
func (d *Dumper) topLevel(name, iname string, v *typemodel.Value) error {
	return d.within(d.root.Open(name, iname), func() error {
		return d.PutItem(v)
	})
}

// variables returns the requested variables, or the frame's locals when
// the request names none.
func (d *Dumper) variables() ([]*typemodel.Value, error) {
	var out []*typemodel.Value
	if len(d.req.VarList) > 0 {
		for _, name := range d.req.VarList {
			if !d.wants("local", name) {
				continue
			}
			r := d.s.nb.Evaluate(d.ctx, name)
			switch {
			case r.Code() == errors.CodeTargetLost:
				return nil, r.Err()
			case !r.IsOk():
				d.logger.Debug("variable not available", "name", name, "error", r.Err())
				v := typemodel.NotAddressable(typemodel.Unresolvable(""))
				v.Name = name
				out = append(out, v)
			default:
				v := d.s.adapter.FromNativeValue(d.ctx, r.Value())
				v.Name = name
				out = append(out, v)
			}
		}
		return out, nil
	}

	lister, ok := d.s.nb.(bridge.LocalsLister)
	if !ok {
		return nil, nil
	}
	r := lister.Locals(d.ctx)
	if !r.IsOk() {
		if r.Code() == errors.CodeTargetLost {
			return nil, r.Err()
		}
		d.logger.Warn("cannot list locals", "error", r.Err())
		return nil, nil
	}
	for _, nv := range r.Value() {
		v := d.s.adapter.FromNativeValue(d.ctx, nv)
		out = append(out, v)
	}
	return out, nil
}

// dumpLocals renders the variables under "local.". A name seen before
// gets an "@<n>" suffix so shadowed variables keep distinct inames.
func (d *Dumper) dumpLocals() error {
	vars, err := d.variables()
	if err != nil {
		return err
	}
	shadowed := make(map[string]int)
	for _, v := range vars {
		if !d.wants("local", v.Name) {
			continue
		}
		name := v.Name
		if level, ok := shadowed[name]; ok {
			shadowed[name] = level + 1
			name += "@" + output.Itoa(int64(level))
		} else {
			shadowed[name] = 1
		}
		if err := d.topLevel(name, "local."+name, v); err != nil {
			return err
		}
	}
	return nil
}

// dumpResult renders the return value of the last call as "return.<name>".
func (d *Dumper) dumpResult() error {
	name := d.req.ResultVarName
	if name == "" || !d.wants("return", name) {
		return nil
	}
	r := d.s.nb.Evaluate(d.ctx, name)
	if !r.IsOk() {
		if r.Code() == errors.CodeTargetLost {
			return r.Err()
		}
		d.logger.Debug("result variable not available", "name", name, "error", r.Err())
		return nil
	}
	v := d.s.adapter.FromNativeValue(d.ctx, r.Value())
	return d.topLevel(name, "return."+name, v)
}

// dumpWatchers renders each watch expression under "watch.<n>" unless the
// watcher names its own iname.
func (d *Dumper) dumpWatchers() error {
	for i, w := range d.req.Watchers {
		iname := w.IName
		if iname == "" {
			iname = "watch." + output.Itoa(int64(i))
		}
		section, rest, _ := strings.Cut(iname, ".")
		if !d.wants(section, rest) {
			continue
		}
		exp := strings.TrimSpace(w.Expression)
		hexExp := output.HexString(exp)
		sc := d.root.Open("", iname)
		sc.Item().Set(output.KeyExp, hexExp)
		sc.Item().Set("wname", hexExp)

		v, err := d.Evaluate(exp)
		if err != nil {
			if errors.IsFatal(err) {
				return err
			}
			d.logger.Debug("watch expression failed", "exp", exp, "error", err)
			sc.Item().Set(output.KeyType, " ")
			sc.Item().SetValue("<no such value>", "", 0)
			sc.Item().SetNumChild(0)
			sc.Commit()
			continue
		}
		if err := d.within(sc, func() error { return d.PutItem(v) }); err != nil {
			return err
		}
	}
	return nil
}
