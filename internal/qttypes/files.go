package qttypes

import (
	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

func registerFiles(reg *dump.Registry) {
	reg.RegisterFunc("QFile", dumpFile)
	reg.RegisterFunc("QTemporaryFile", dumpFile)
	reg.RegisterFunc("QDir", dumpDir)
	reg.RegisterFunc("QFileInfo", dumpFileInfo)
}

func dumpFile(d *dump.Dumper, v *typemodel.Value) error {
	desc, err := d.Layout(layout.FilePrivate)
	if err != nil {
		return err
	}
	priv, err := readPtr(d, v, desc.Off("dPtr"))
	if err != nil {
		return err
	}
	if err := d.Check(priv != 0, "null file private"); err != nil {
		return err
	}
	if _, err := putStringValue(d, priv+uint64(desc.Off("fileName"))); err != nil {
		return err
	}
	d.PutNumChild(1)
	return withChildren(d, func() error {
		if err := d.PutCallItem("exists", "bool", v, "exists"); err != nil {
			return err
		}
		return d.PutFields(v)
	})
}

// dirOffsets returns the member offsets of the QDirPrivate at priv. Qt
// 5.2 shipped with two member orders; an int that is 0 or 1 at the probe
// offset marks the newer one.
func dirOffsets(d *dump.Dumper, priv uint64) (layout.Descriptor, int64, error) {
	desc, err := d.Layout(layout.DirPrivate)
	if err != nil {
		return layout.Descriptor{}, 0, err
	}
	if desc.Has("probe") {
		first, err := d.ExtractInt(priv + uint64(desc.Off("probe")))
		if err != nil {
			return layout.Descriptor{}, 0, err
		}
		if first != 0 && first != 1 {
			if desc, err = d.Layout(layout.DirPrivateLegacy); err != nil {
				return layout.Descriptor{}, 0, err
			}
		}
	}
	var shift int64
	if desc.Has("qt3Support") && d.Qt3Support() {
		shift = desc.Off("qt3Support")
	}
	return desc, shift, nil
}

func dumpDir(d *dump.Dumper, v *typemodel.Value) error {
	priv, err := dPtr(d, v)
	if err != nil {
		return err
	}
	if err := d.Check(priv != 0, "null dir private"); err != nil {
		return err
	}
	desc, shift, err := dirOffsets(d, priv)
	if err != nil {
		return err
	}
	at := func(key string) uint64 {
		return priv + uint64(desc.Off(key)+shift)
	}
	if _, err := putStringValue(d, at("dirEntry")); err != nil {
		return err
	}
	d.PutNumChild(1)
	return withChildren(d, func() error {
		// count() fills the entry caches.
		if _, err := d.Call(v, "count"); errors.IsFatal(err) {
			return err
		}
		ns := d.QtNamespace()
		children := []struct{ name, typ, key string }{
			{"absolutePath", ns + "QString", "absoluteDirEntry"},
			{"entryInfoList", ns + "QList<" + ns + "QFileInfo>", "fileInfos"},
			{"entryList", ns + "QStringList", "files"},
		}
		for _, c := range children {
			err := d.SubItem(c.name, func() error {
				cv, err := d.CreateTypedValue(at(c.key), c.typ)
				if err != nil {
					return err
				}
				return d.PutItem(cv)
			})
			if err != nil {
				return err
			}
		}
		return d.PutFields(v)
	})
}

var fileInfoCalls = [][2]string{
	{"absolutePath", "absolutePath"},
	{"absoluteFilePath", "absoluteFilePath"},
	{"canonicalPath", "canonicalPath"},
	{"canonicalFilePath", "canonicalFilePath"},
	{"completeBaseName", "completeBaseName"},
	{"completeSuffix", "completeSuffix"},
	{"baseName", "baseName"},
	{"fileName", "fileName"},
	{"filePath", "filePath"},
	{"path", "path"},
	{"groupid", "groupId"},
	{"ownerid", "ownerId"},
}

var fileInfoPredicates = [][2]string{
	{"caching", "caching"},
	{"exists", "exists"},
	{"isAbsolute", "isAbsolute"},
	{"isDir", "isDir"},
	{"isExecutable", "isExecutable"},
	{"isFile", "isFile"},
	{"isHidden", "isHidden"},
	{"isReadable", "isReadable"},
	{"isRelative", "isRelative"},
	{"isRoot", "isRoot"},
	{"isSymLink", "isSymLink"},
	{"isWritable", "isWritable"},
	{"created", "created"},
	{"lastModified", "lastModified"},
	{"lastRead", "lastRead"},
}

// QFile::Permission bits in display order.
var permissionBits = []struct {
	name string
	bit  int64
}{
	{"ReadOwner", 0x4000}, {"WriteOwner", 0x2000}, {"ExeOwner", 0x1000},
	{"ReadUser", 0x0400}, {"WriteUser", 0x0200}, {"ExeUser", 0x0100},
	{"ReadGroup", 0x0040}, {"WriteGroup", 0x0020}, {"ExeGroup", 0x0010},
	{"ReadOther", 0x0004}, {"WriteOther", 0x0002}, {"ExeOther", 0x0001},
}

func dumpFileInfo(d *dump.Dumper, v *typemodel.Value) error {
	priv, err := dPtr(d, v)
	if err != nil {
		return err
	}
	if err := d.Check(priv != 0, "null file info private"); err != nil {
		return err
	}
	if _, err := putStringValue(d, priv+uint64(d.PtrSize())); err != nil {
		return err
	}
	d.PutNumChild(1)
	return withChildren(d, func() error {
		if err := callItems(d, v, fileInfoCalls); err != nil {
			return err
		}
		if err := putPermissions(d, v); err != nil {
			return err
		}
		if err := callItems(d, v, fileInfoPredicates); err != nil {
			return err
		}
		return d.PutFields(v)
	})
}

func putPermissions(d *dump.Dumper, v *typemodel.Value) error {
	return d.SubItem("permissions", func() error {
		d.PutType(d.QtNamespace() + "QFile::Permissions")
		res, err := d.Call(v, "permissions")
		if err != nil {
			if errors.IsFatal(err) {
				return err
			}
			d.PutValue("<not available>")
			d.PutNumChild(0)
			return nil
		}
		if m, merr := d.Member(res, "i"); merr == nil {
			res = m
		}
		perms, err := d.Int(res)
		if err != nil {
			return err
		}
		d.PutEmptyValue()
		d.PutNumChild(len(permissionBits))
		return d.Children(len(permissionBits), 0, func(i int) error {
			p := permissionBits[i]
			return d.PutBoolItem(p.name, perms&p.bit != 0)
		})
	})
}
