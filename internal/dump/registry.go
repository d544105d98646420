package dump

import (
	"sort"
	"strings"

	"github.com/ctagard/dap-dump/internal/typemodel"
)

// Decoder renders one value of the type it is registered for into the
// current item of d.
type Decoder interface {
	Decode(d *Dumper, v *typemodel.Value) error
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(d *Dumper, v *typemodel.Value) error

// Decode calls f.
func (f DecoderFunc) Decode(d *Dumper, v *typemodel.Value) error {
	return f(d, v)
}

// Fallback gets a chance to render structs that have no decoder of their
// own, e.g. classes derived from a decoded base. It reports whether it
// rendered v.
type Fallback func(d *Dumper, v *typemodel.Value) (bool, error)

// Registry maps normalized type names to decoders.
type Registry struct {
	decoders  map[string]Decoder
	fallbacks []Fallback
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// Register installs dec for name. name is normalized, so "QMap",
// "QMap<K, V>" and "Ns::QMap" all share one entry.
func (r *Registry) Register(name string, dec Decoder) {
	r.decoders[NormalizeTypeName(name, "")] = dec
}

// RegisterFunc installs fn for name.
func (r *Registry) RegisterFunc(name string, fn func(d *Dumper, v *typemodel.Value) error) {
	r.Register(name, DecoderFunc(fn))
}

// RegisterFallback appends fb to the fallbacks tried in order.
func (r *Registry) RegisterFallback(fb Fallback) {
	r.fallbacks = append(r.fallbacks, fb)
}

// Lookup finds the decoder for typeName, stripping namespace ns first.
// It returns the normalized key.
func (r *Registry) Lookup(typeName, ns string) (Decoder, string, bool) {
	key := NormalizeTypeName(typeName, ns)
	dec, ok := r.decoders[key]
	return dec, key, ok
}

// Names returns the registered keys in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.decoders))
	for n := range r.decoders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered decoders.
func (r *Registry) Len() int {
	return len(r.decoders)
}

// NormalizeTypeName turns a C++ type name into a registry key: qualifiers
// and namespace ns are dropped, template arguments removed and "::"
// replaced by "__". "const Ns::QHash<int, QString>::Node" with ns "Ns::"
// becomes "QHash__Node".
func NormalizeTypeName(name, ns string) string {
	name = strings.TrimSpace(name)
	for _, q := range []string{"const ", "volatile ", "struct ", "class ", "union "} {
		name = strings.TrimPrefix(name, q)
	}
	if ns != "" {
		name = strings.ReplaceAll(name, ns, "")
	}
	var sb strings.Builder
	depth := 0
	for i := 0; i < len(name); i++ {
		switch c := name[i]; c {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				sb.WriteByte(c)
			}
		}
	}
	key := strings.TrimSpace(sb.String())
	key = strings.TrimSuffix(key, " const")
	return strings.ReplaceAll(key, "::", "__")
}
