// Package layout holds the byte offsets of library-private object layouts.
//
// Decoders never branch on versions themselves. They ask a Table for the
// Descriptor registered for (name, library version, pointer width, target
// OS) and read the offsets it carries.
package layout

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ctagard/dap-dump/internal/bridge"
)

// Version is a library version encoded as 0x10000*major + 0x100*minor + patch.
type Version uint32

// Make builds a Version from its components.
func Make(major, minor, patch int) Version {
	return Version(major<<16 | minor<<8 | patch)
}

// ParseVersion accepts "5.6.1", "5.6", "0x050601" and suffixed
// forms like "5.6.1-beta".
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty version")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid version %q: %w", s, err)
		}
		return Version(n), nil
	}
	if i := strings.IndexAny(s, "-+ "); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return 0, fmt.Errorf("invalid version %q", s)
		}
		nums[i] = n
	}
	return Make(nums[0], nums[1], nums[2]), nil
}

// MustParseVersion is ParseVersion for literals.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) Major() int { return int(v >> 16) }
func (v Version) Minor() int { return int(v>>8) & 0xff }
func (v Version) Patch() int { return int(v) & 0xff }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// VersionRange is the half-open interval [Min, Max). A zero Max is
// unbounded.
type VersionRange struct {
	Min Version
	Max Version
}

// Contains reports whether v lies in the range.
func (r VersionRange) Contains(v Version) bool {
	return v >= r.Min && (r.Max == 0 || v < r.Max)
}

func (r VersionRange) String() string {
	if r.Max == 0 {
		return fmt.Sprintf("[%s, )", r.Min)
	}
	return fmt.Sprintf("[%s, %s)", r.Min, r.Max)
}

// OS selects descriptors by target ABI family.
type OS int

const (
	Any OS = iota
	Unix
	Windows
)

var osNames = map[OS]string{Any: "any", Unix: "unix", Windows: "windows"}

func (o OS) String() string {
	if s, ok := osNames[o]; ok {
		return s
	}
	return fmt.Sprintf("OS(%d)", int(o))
}

// ParseOS maps "any", "unix" (also "linux", "darwin") and "windows".
func ParseOS(s string) (OS, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return Any, nil
	case "unix", "linux", "darwin", "macos":
		return Unix, nil
	case "windows", "win":
		return Windows, nil
	}
	return Any, fmt.Errorf("unknown os %q", s)
}

// OSFor maps a bridge target OS onto the layout OS family.
func OSFor(o bridge.OS) OS {
	if o == bridge.OSWindows {
		return Windows
	}
	return Unix
}

// Descriptor is one row of the table: the offsets of Name's private
// layout for a version range, pointer width and OS. PointerWidth 0 and
// OS Any match every target.
type Descriptor struct {
	Name         string
	Range        VersionRange
	PointerWidth int
	OS           OS
	Offsets      map[string]int64
}

// Off returns the offset registered under key, 0 when absent.
func (d Descriptor) Off(key string) int64 {
	return d.Offsets[key]
}

// Has reports whether key is registered.
func (d Descriptor) Has(key string) bool {
	_, ok := d.Offsets[key]
	return ok
}

// Keys returns the offset keys in sorted order.
func (d Descriptor) Keys() []string {
	keys := make([]string, 0, len(d.Offsets))
	for k := range d.Offsets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d Descriptor) specificity() int {
	s := 0
	if d.OS != Any {
		s += 2
	}
	if d.PointerWidth != 0 {
		s++
	}
	return s
}

func (d Descriptor) matches(name string, v Version, ptr int, os OS) bool {
	return d.Name == name &&
		d.Range.Contains(v) &&
		(d.PointerWidth == 0 || d.PointerWidth == ptr) &&
		(d.OS == Any || d.OS == os)
}

func (d Descriptor) sameKey(o Descriptor) bool {
	return d.Name == o.Name && d.Range == o.Range && d.PointerWidth == o.PointerWidth && d.OS == o.OS
}

func (d Descriptor) String() string {
	width := "any"
	if d.PointerWidth != 0 {
		width = strconv.Itoa(d.PointerWidth * 8)
	}
	return fmt.Sprintf("%s %s ptr=%s os=%s", d.Name, d.Range, width, d.OS)
}

// Table is a set of descriptors.
type Table struct {
	entries []Descriptor
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// Register adds d. A descriptor with the same name, range, width and OS
// is replaced.
func (t *Table) Register(d Descriptor) {
	offsets := make(map[string]int64, len(d.Offsets))
	for k, v := range d.Offsets {
		offsets[k] = v
	}
	d.Offsets = offsets
	for i := range t.entries {
		if t.entries[i].sameKey(d) {
			t.entries[i] = d
			return
		}
	}
	t.entries = append(t.entries, d)
}

// Lookup returns the most specific descriptor for the tuple. An exact OS
// beats Any and an exact pointer width beats 0; among equally specific
// matches the later registration wins.
func (t *Table) Lookup(name string, v Version, ptr int, os OS) (Descriptor, bool) {
	best := -1
	for i, d := range t.entries {
		if !d.matches(name, v, ptr, os) {
			continue
		}
		if best < 0 || d.specificity() >= t.entries[best].specificity() {
			best = i
		}
	}
	if best < 0 {
		return Descriptor{}, false
	}
	return t.entries[best], true
}

// Entries returns the descriptors sorted by name, version, width and OS.
func (t *Table) Entries() []Descriptor {
	out := make([]Descriptor, len(t.entries))
	copy(out, t.entries)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Range.Min != b.Range.Min {
			return a.Range.Min < b.Range.Min
		}
		if a.PointerWidth != b.PointerWidth {
			return a.PointerWidth < b.PointerWidth
		}
		return a.OS < b.OS
	})
	return out
}

// Filter returns the sorted entries whose name contains substr.
func (t *Table) Filter(substr string) []Descriptor {
	var out []Descriptor
	for _, d := range t.Entries() {
		if strings.Contains(strings.ToLower(d.Name), strings.ToLower(substr)) {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of descriptors.
func (t *Table) Len() int {
	return len(t.entries)
}
