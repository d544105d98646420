package layout

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ctagard/dap-dump/internal/errors"
)

// fileDescriptor is the TOML form of a Descriptor:
//
//	[[descriptor]]
//	name = "QFilePrivate"
//	min = "5.6.0"
//	max = "6.0.0"
//	pointer_width = 8
//	os = "unix"
//	[descriptor.offsets]
//	fileName = 248
type fileDescriptor struct {
	Name         string           `toml:"name"`
	Min          string           `toml:"min"`
	Max          string           `toml:"max,omitempty"`
	PointerWidth int              `toml:"pointer_width,omitempty"`
	OS           string           `toml:"os,omitempty"`
	Offsets      map[string]int64 `toml:"offsets"`
}

type overrideFile struct {
	Descriptors []fileDescriptor `toml:"descriptor"`
}

// LoadOverrides reads descriptors from a TOML file. Offsets of an
// existing descriptor with the same name, range, width and OS are
// replaced key by key; other descriptors are added.
func (t *Table) LoadOverrides(path string) error {
	var f overrideFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return errors.LayoutOverrideInvalid(path, err.Error())
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.LayoutOverrideInvalid(path, "unknown keys: "+strings.Join(keys, ", "))
	}
	for i, fd := range f.Descriptors {
		d, err := fd.descriptor()
		if err != nil {
			return errors.LayoutOverrideInvalid(path, fmt.Sprintf("descriptor %d: %v", i, err))
		}
		t.merge(d)
	}
	return nil
}

func (t *Table) merge(d Descriptor) {
	for i := range t.entries {
		if !t.entries[i].sameKey(d) {
			continue
		}
		for k, v := range d.Offsets {
			t.entries[i].Offsets[k] = v
		}
		return
	}
	t.Register(d)
}

func (fd fileDescriptor) descriptor() (Descriptor, error) {
	if fd.Name == "" {
		return Descriptor{}, fmt.Errorf("name is required")
	}
	if len(fd.Offsets) == 0 {
		return Descriptor{}, fmt.Errorf("%s: no offsets", fd.Name)
	}
	d := Descriptor{Name: fd.Name, PointerWidth: fd.PointerWidth, Offsets: fd.Offsets}
	switch fd.PointerWidth {
	case 0, 4, 8:
	default:
		return Descriptor{}, fmt.Errorf("%s: pointer_width must be 4 or 8", fd.Name)
	}
	var err error
	if fd.Min != "" {
		if d.Range.Min, err = ParseVersion(fd.Min); err != nil {
			return Descriptor{}, err
		}
	}
	if fd.Max != "" {
		if d.Range.Max, err = ParseVersion(fd.Max); err != nil {
			return Descriptor{}, err
		}
		if d.Range.Max <= d.Range.Min {
			return Descriptor{}, fmt.Errorf("%s: empty version range %s", fd.Name, d.Range)
		}
	}
	if d.OS, err = ParseOS(fd.OS); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// WriteTOML encodes descriptors in the override file format.
func WriteTOML(w io.Writer, descs []Descriptor) error {
	f := overrideFile{Descriptors: make([]fileDescriptor, len(descs))}
	for i, d := range descs {
		fd := fileDescriptor{
			Name:         d.Name,
			Min:          d.Range.Min.String(),
			PointerWidth: d.PointerWidth,
			Offsets:      d.Offsets,
		}
		if d.Range.Max != 0 {
			fd.Max = d.Range.Max.String()
		}
		if d.OS != Any {
			fd.OS = d.OS.String()
		}
		f.Descriptors[i] = fd
	}
	if err := toml.NewEncoder(w).Encode(f); err != nil {
		return fmt.Errorf("failed to encode layouts: %w", err)
	}
	return nil
}
