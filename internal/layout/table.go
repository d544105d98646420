package layout

// Descriptor names of the built-in table.
const (
	ArrayData            = "QArrayData"
	VectorData           = "QVectorData"
	ListData             = "QListData"
	LinkedListData       = "QLinkedListData"
	HashData             = "QHashData"
	MapData              = "QMapData"
	DateTimePrivate      = "QDateTimePrivate"
	TimeZonePrivate      = "QTimeZonePrivate"
	FilePrivate          = "QFilePrivate"
	DirPrivate           = "QDirPrivate"
	DirPrivateLegacy     = "QDirPrivate.legacy"
	HostAddressPrivate   = "QHostAddressPrivate"
	URLPrivate           = "QUrlPrivate"
	ImageData            = "QImageData"
	PixmapData           = "QPixmapData"
	ExternalRefCountData = "ExternalRefCountData"
	VariantPrivate       = "QVariant::Private"
	ObjectPrivate        = "QObjectPrivate"
	JSONPrivate          = "QJsonPrivate"
)

// Data pointer encodings used by the "dataMode" key.
const (
	DataAbsolute int64 = 0 // a pointer to the payload
	DataRelative int64 = 1 // an offset from the header
	DataInline   int64 = 2 // the payload follows at "data"
)

var (
	qt4   = VersionRange{Min: 0, Max: Make(5, 0, 0)}
	qt5   = VersionRange{Min: Make(5, 0, 0), Max: Make(6, 0, 0)}
	allQt = VersionRange{Min: 0, Max: Make(6, 0, 0)}
)

type offsets = map[string]int64

// perWidth registers one descriptor per pointer width, computing the
// offsets from the width.
func (t *Table) perWidth(name string, r VersionRange, os OS, fn func(p int64) offsets) {
	for _, p := range []int{4, 8} {
		t.Register(Descriptor{Name: name, Range: r, PointerWidth: p, OS: os, Offsets: fn(int64(p))})
	}
}

func (t *Table) fixed(name string, r VersionRange, width int, os OS, o offsets) {
	t.Register(Descriptor{Name: name, Range: r, PointerWidth: width, OS: os, Offsets: o})
}

// DefaultTable returns the built-in descriptors for Qt 4 and Qt 5.
func DefaultTable() *Table {
	t := NewTable()
	t.containers()
	t.dateTime()
	t.files()
	t.network()
	t.images()
	t.misc()
	return t
}

func (t *Table) containers() {
	t.perWidth(ArrayData, qt4, Any, func(p int64) offsets {
		return offsets{"ref": 0, "alloc": 4, "size": 8, "data": 8 + p, "dataMode": DataAbsolute}
	})
	t.perWidth(ArrayData, qt5, Any, func(p int64) offsets {
		return offsets{"ref": 0, "size": 4, "alloc": 8, "allocMask": 0x7fffffff, "data": 8 + p, "dataMode": DataRelative}
	})

	t.fixed(VectorData, qt4, 0, Any, offsets{"ref": 0, "alloc": 4, "size": 8, "data": 16, "dataMode": DataInline})
	t.perWidth(VectorData, qt5, Any, func(p int64) offsets {
		return offsets{"ref": 0, "size": 4, "alloc": 8, "allocMask": 0x7fffffff, "data": 8 + p, "dataMode": DataRelative}
	})

	t.perWidth(ListData, qt4, Any, func(p int64) offsets {
		return offsets{"ref": 0, "alloc": 4, "begin": 8, "end": 12, "array": 16 + p}
	})
	t.perWidth(ListData, qt5, Any, func(p int64) offsets {
		return offsets{"ref": 0, "alloc": 4, "begin": 8, "end": 12, "array": 16}
	})

	t.perWidth(LinkedListData, allQt, Any, func(p int64) offsets {
		return offsets{"ref": 2 * p, "size": 2*p + 4, "nodeNext": 0, "nodeValue": 2 * p}
	})

	t.perWidth(HashData, allQt, Any, func(p int64) offsets {
		return offsets{
			"fakeNext":    0,
			"buckets":     p,
			"ref":         2 * p,
			"size":        2*p + 4,
			"nodeSize":    2*p + 8,
			"userNumBits": 2*p + 12,
			"numBits":     2*p + 14,
			"numBuckets":  2*p + 16,
			"nodeNext":    0,
			"nodeHash":    p,
		}
	})

	// Qt 4 maps are skip lists; node pointers address the backward link
	// that follows the key/value payload.
	t.perWidth(MapData, qt4, Any, func(p int64) offsets {
		return offsets{"tree": 0, "backward": 0, "forward": p, "size": 13*p + 8}
	})
	t.perWidth(MapData, qt5, Any, func(p int64) offsets {
		return offsets{
			"tree":        1,
			"ref":         0,
			"size":        4,
			"header":      8,
			"nodeParent":  0,
			"nodeLeft":    p,
			"nodeRight":   2 * p,
			"nodePayload": 3 * p,
		}
	})
}

func (t *Table) dateTime() {
	// {ref, QDate, QTime}: jd is a uint in Qt 4 and a qint64 before 5.2.
	t.fixed(DateTimePrivate, qt4, 0, Any, offsets{"split": 1, "date": 4, "time": 8})
	early5 := VersionRange{Min: Make(5, 0, 0), Max: Make(5, 2, 0)}
	t.fixed(DateTimePrivate, early5, 4, Any, offsets{"split": 1, "date": 4, "time": 12})
	t.fixed(DateTimePrivate, early5, 8, Any, offsets{"split": 1, "date": 8, "time": 16})

	late5 := VersionRange{Min: Make(5, 2, 0), Max: Make(6, 0, 0)}
	t.fixed(DateTimePrivate, late5, 4, Windows, offsets{"msecs": 8, "spec": 16, "offsetFromUtc": 20, "timeZone": 24, "status": 28})
	t.fixed(DateTimePrivate, late5, 8, Windows, offsets{"msecs": 8, "spec": 16, "offsetFromUtc": 20, "timeZone": 24, "status": 32})
	t.fixed(DateTimePrivate, late5, 4, Unix, offsets{"msecs": 4, "spec": 12, "offsetFromUtc": 16, "timeZone": 20, "status": 24})
	t.fixed(DateTimePrivate, late5, 8, Unix, offsets{"msecs": 8, "spec": 16, "offsetFromUtc": 20, "timeZone": 24, "status": 32})

	// [vptr][QSharedData] precede the id.
	t.perWidth(TimeZonePrivate, allQt, Any, func(p int64) offsets {
		return offsets{"id": 2 * p}
	})
}

func (t *Table) files() {
	file := func(r VersionRange, os OS, name32, name64 int64) {
		t.fixed(FilePrivate, r, 4, os, offsets{"dPtr": 4, "fileName": name32})
		t.fixed(FilePrivate, r, 8, os, offsets{"dPtr": 8, "fileName": name64})
	}
	file(VersionRange{Min: Make(5, 6, 0), Max: Make(6, 0, 0)}, Windows, 164, 248)
	file(VersionRange{Min: Make(5, 6, 0), Max: Make(6, 0, 0)}, Unix, 168, 248)
	file(VersionRange{Min: Make(5, 5, 0), Max: Make(5, 6, 0)}, Any, 164, 248)
	file(VersionRange{Min: Make(5, 4, 0), Max: Make(5, 5, 0)}, Windows, 188, 272)
	file(VersionRange{Min: Make(5, 4, 0), Max: Make(5, 5, 0)}, Unix, 180, 272)
	file(VersionRange{Min: Make(5, 2, 1), Max: Make(5, 4, 0)}, Windows, 180, 272)
	file(VersionRange{Min: Make(5, 2, 1), Max: Make(5, 4, 0)}, Unix, 176, 272)
	file(VersionRange{Min: Make(5, 0, 0), Max: Make(5, 2, 1)}, Any, 176, 280)
	file(qt4, Windows, 144, 232)
	file(qt4, Unix, 140, 232)

	// QFileSystemEntry is {QString, QByteArray, 3 x qint16} plus padding.
	legacyDir := func(p int64) offsets {
		files := int64(24)
		if p == 8 {
			files = 40
		}
		return offsets{
			"files":            files,
			"fileInfos":        files + p,
			"dirEntry":         files + 2*p,
			"absoluteDirEntry": files + 2*p + 2*p + 8,
			"qt3Support":       p,
		}
	}
	t.perWidth(DirPrivate, VersionRange{Min: 0, Max: Make(5, 2, 0)}, Any, legacyDir)
	t.perWidth(DirPrivateLegacy, VersionRange{Min: Make(5, 2, 0), Max: Make(5, 3, 0)}, Any, legacyDir)

	reordered := map[int]offsets{
		4: {"files": 4, "fileInfos": 8, "dirEntry": 0x20, "absoluteDirEntry": 0x30},
		8: {"files": 0x08, "fileInfos": 0x10, "dirEntry": 0x30, "absoluteDirEntry": 0x48},
	}
	for _, w := range []int{4, 8} {
		t.fixed(DirPrivate, VersionRange{Min: Make(5, 3, 0), Max: Make(6, 0, 0)}, w, Any, reordered[w])
		// 5.2 shipped both orders; "probe" locates the int that tells them apart.
		o := offsets{"probe": int64(w)}
		for k, v := range reordered[w] {
			o[k] = v
		}
		t.fixed(DirPrivate, VersionRange{Min: Make(5, 2, 0), Max: Make(5, 3, 0)}, w, Any, o)
	}
}

func (t *Table) network() {
	t.perWidth(HostAddressPrivate, qt4, Any, func(p int64) offsets {
		return offsets{"a": 0, "a6": 4, "protocol": 20, "ipString": 24, "scopeId": 24 + p, "isParsed": 24 + 2*p}
	})
	t.perWidth(HostAddressPrivate, VersionRange{Min: Make(5, 0, 0), Max: Make(5, 7, 0)}, Any, func(p int64) offsets {
		return offsets{"ipString": 0, "scopeId": p, "a": 2 * p, "a6": 2*p + 4, "protocol": 2*p + 20, "isParsed": 2*p + 24}
	})
	t.perWidth(HostAddressPrivate, VersionRange{Min: Make(5, 7, 0), Max: Make(6, 0, 0)}, Any, func(p int64) offsets {
		return offsets{"ipString": 0, "scopeId": p, "a": 2 * p, "a6": 3 * p, "protocol": 3*p + 16, "isParsed": 3*p + 20}
	})

	t.perWidth(URLPrivate, qt4, Any, func(p int64) offsets {
		return offsets{"encodedOriginal": 8 * p}
	})
	t.perWidth(URLPrivate, qt5, Any, func(p int64) offsets {
		return offsets{
			"port":     4,
			"scheme":   8,
			"userName": 8 + p,
			"password": 8 + 2*p,
			"host":     8 + 3*p,
			"path":     8 + 4*p,
			"query":    8 + 5*p,
			"fragment": 8 + 6*p,
		}
	})
}

func (t *Table) images() {
	// QImageData: ref, width, height, depth, nbytes, padding, then
	// devicePixelRatio (Qt 5), the color table and the bits pointer.
	image := func(ratio, dSlots int64) func(p int64) offsets {
		return func(p int64) offsets {
			pad := p - 4
			return offsets{
				"dPtr":       dSlots * p,
				"width":      4,
				"height":     8,
				"depth":      12,
				"nbytes":     16,
				"bits":       20 + pad + ratio + p,
				"format":     20 + pad + ratio + 2*p,
				"qt3Support": p,
			}
		}
	}
	t.perWidth(ImageData, qt4, Any, image(0, 2))
	t.perWidth(ImageData, qt5, Any, image(8, 3))

	t.perWidth(PixmapData, qt4, Any, func(p int64) offsets {
		return offsets{"dPtr": 2 * p, "width": p, "height": p + 4}
	})
	t.perWidth(PixmapData, qt5, Any, func(p int64) offsets {
		return offsets{"dPtr": 3 * p, "width": p, "height": p + 4}
	})
}

func (t *Table) misc() {
	t.fixed(ExternalRefCountData, allQt, 0, Any, offsets{"weakref": 0, "strongref": 4})

	// Private is {Data data (8 bytes); uint type:30, is_shared:1, is_null:1}.
	t.fixed(VariantPrivate, allQt, 0, Any, offsets{
		"data":        0,
		"typeWord":    8,
		"typeBits":    30,
		"isSharedBit": 30,
		"isNullBit":   31,
		"sharedPtr":   0,
	})

	t.perWidth(ObjectPrivate, qt4, Any, func(p int64) offsets {
		return offsets{"dPtr": p, "qPtr": p, "parent": 2 * p, "children": 3 * p}
	})
	t.perWidth(ObjectPrivate, qt5, Any, func(p int64) offsets {
		extra := int64(28)
		if p == 8 {
			extra = 48
		}
		return offsets{
			"dPtr":            p,
			"qPtr":            p,
			"parent":          2 * p,
			"children":        3 * p,
			"extraData":       extra,
			"extraObjectName": 4 * p,
		}
	})

	// Binary JSON: Base is {size, is_object:1 | length:31, tableOffset};
	// values pack type:3, latinOrIntValue:1, latinKey:1, value:27.
	t.fixed(JSONPrivate, qt5, 0, Any, offsets{
		"length":      4,
		"tableOffset": 8,
		"entrySize":   4,
		"typeShift":   0,
		"typeBits":    3,
		"latinShift":  3,
		"keyShift":    4,
		"valueShift":  5,
		"valueBits":   27,
	})
}
