// Package variant decodes QVariant. The type tag of a variant selects a
// built-in scalar, a known library class or, for every other tag, a user
// type whose name the debuggee's meta type system supplies.
package variant

import (
	"fmt"

	"github.com/ctagard/dap-dump/internal/layout"
)

// Kind is the result of classifying a tag. Classification is final: a
// value never changes kind once classified.
type Kind int

const (
	Invalid Kind = iota
	BuiltinScalar
	BuiltinContainer
	UserType
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case BuiltinScalar:
		return "scalar"
	case BuiltinContainer:
		return "container"
	case UserType:
		return "user"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Scalar identifies how a built-in scalar payload is stored.
type Scalar int

const (
	NotScalar Scalar = iota
	Bool
	Int
	UInt
	LongLong
	ULongLong
	Double
	VoidStar
	Long
	Short
	Char
	ULong
	UShort
	UChar
	Float
)

// Class is a classified tag.
type Class struct {
	Kind Kind
	// Name is the payload's type name without namespace, e.g. "int" or
	// "QStringList". Empty for user types.
	Name   string
	Scalar Scalar
	// Indirect marks legacy scalars whose payload is stored behind a
	// shared private rather than in place.
	Indirect bool
}

type scalarTag struct {
	name   string
	scalar Scalar
}

var simpleTags = []scalarTag{
	1: {"bool", Bool},
	2: {"int", Int},
	3: {"uint", UInt},
	4: {"qlonglong", LongLong},
	5: {"qulonglong", ULongLong},
	6: {"double", Double},
}

// extendedTags start at 31 on Qt 5 and at 128 on Qt 4.
var extendedTags = []scalarTag{
	{"void *", VoidStar},
	{"long", Long},
	{"short", Short},
	{"char", Char},
	{"unsigned long", ULong},
	{"unsigned short", UShort},
	{"unsigned char", UChar},
	{"float", Float},
}

// coreTags start at 7.
var coreTags = []string{
	"QChar", "QVariantMap", "QVariantList", "QString", "QStringList",
	"QByteArray", "QBitArray", "QDate", "QTime", "QDateTime", "QUrl",
	"QLocale", "QRect", "QRectF", "QSize", "QSizeF", "QLine", "QLineF",
	"QPoint", "QPointF", "QRegExp", "QVariantHash",
}

// guiTags start at 64.
var guiTags = []string{
	"QFont", "QPixmap", "QBrush", "QColor", "QPalette", "QIcon", "QImage",
	"QPolygon", "QRegion", "QBitmap", "QCursor",
}

// laterGUITags start at 75 on Qt 5 and at 76 on Qt 4. The empty slot is a
// tag without a class.
var laterGUITags = []string{
	"QKeySequence", "QPen", "QTextLength", "QTextFormat", "",
	"QTransform", "QMatrix4x4", "QVector2D", "QVector3D", "QVector4D",
	"QQuaternion", "QPolygonF",
}

// Classify maps a variant type tag to its payload class for Qt version v.
func Classify(tag int64, v layout.Version) Class {
	qt5 := v >= layout.Make(5, 0, 0)
	switch {
	case tag == 0:
		return Class{Kind: Invalid, Name: "invalid"}
	case tag > 0 && tag < int64(len(simpleTags)):
		s := simpleTags[tag]
		return Class{Kind: BuiltinScalar, Name: s.name, Scalar: s.scalar}
	case tag >= 31 && tag <= 38 && qt5:
		s := extendedTags[tag-31]
		return Class{Kind: BuiltinScalar, Name: s.name, Scalar: s.scalar}
	case tag >= 128 && tag <= 135 && !qt5:
		s := extendedTags[tag-128]
		// void * and float fit the data union; the rest were shared.
		indirect := s.scalar != VoidStar && s.scalar != Float
		return Class{Kind: BuiltinScalar, Name: s.name, Scalar: s.scalar, Indirect: indirect}
	case tag >= 7 && tag <= 28:
		return Class{Kind: BuiltinContainer, Name: coreTags[tag-7]}
	case tag >= 64 && tag <= 74:
		return Class{Kind: BuiltinContainer, Name: guiTags[tag-64]}
	}
	first := int64(75)
	if !qt5 {
		first = 76
	}
	if tag >= first && tag <= 86 {
		if name := laterGUITags[tag-first]; name != "" {
			return Class{Kind: BuiltinContainer, Name: name}
		}
	}
	return Class{Kind: UserType}
}

// typedefFallbacks spell out the variant typedefs for debuggers that
// cannot look typedefs up by name. %s is the namespace.
var typedefFallbacks = map[string]string{
	"QVariantMap":  "%[1]sQMap<%[1]sQString, %[1]sQVariant>",
	"QVariantHash": "%[1]sQHash<%[1]sQString, %[1]sQVariant>",
	"QVariantList": "%[1]sQList<%[1]sQVariant>",
}
