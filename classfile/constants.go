package classfile

// Magic is the class file signature.
const Magic = 0xCAFEBABE

// Class file versions (major in the low 16 bits, minor in the high 16 bits).
const (
	V1_1 = 3<<16 | 45
	V1_2 = 46
	V1_3 = 47
	V1_4 = 48
	V1_5 = 49
	V1_6 = 50
	V1_7 = 51
	V1_8 = 52
	V9   = 53
	V10  = 54
	V11  = 55
	V12  = 56
	V13  = 57
	V14  = 58
	V15  = 59
	V16  = 60
	V17  = 61
	V18  = 62
	V19  = 63
	V20  = 64
	V21  = 65
	V22  = 66
	V23  = 67
	V24  = 68
	V25  = 69

	// VPreview marks a minor version of 0xFFFF.
	VPreview = 0xFFFF0000
)

// MaxMajorVersion is the newest major version accepted by the decoder.
const MaxMajorVersion = 69

// majorVersion extracts the major version from a packed version.
func majorVersion(version int) int {
	return version & 0xFFFF
}

// Access flags.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccOpen         = 0x0020
	AccTransitive   = 0x0020
	AccVolatile     = 0x0040
	AccBridge       = 0x0040
	AccStaticPhase  = 0x0040
	AccVarargs      = 0x0080
	AccTransient    = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
	AccMandated     = 0x8000
	AccModule       = 0x8000

	// AccDeprecated is a pseudo flag carried on events for the Deprecated attribute.
	AccDeprecated = 0x20000
)

// Constant pool tags.
const (
	TagUTF8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// Method handle reference kinds.
const (
	HGetField         = 1
	HGetStatic        = 2
	HPutField         = 3
	HPutStatic        = 4
	HInvokeVirtual    = 5
	HInvokeStatic     = 6
	HInvokeSpecial    = 7
	HNewInvokeSpecial = 8
	HInvokeInterface  = 9
)

// Frame kinds passed to MethodVisitor.VisitFrame.
const (
	FNew    = -1 // expanded frame, all locals and stack
	FFull   = 0
	FAppend = 1
	FChop   = 2
	FSame   = 3
	FSame1  = 4
)

// Compressed frame type ranges in the StackMapTable attribute.
const (
	sameFrame                    = 0
	sameLocals1StackItemFrame    = 64
	reservedFrame                = 128
	sameLocals1StackItemFrameExt = 247
	chopFrame                    = 248 // chops 3, 2, 1 locals through 250
	sameFrameExtended            = 251
	appendFrame                  = 252 // appends 1, 2, 3 locals through 254
	fullFrame                    = 255
)

// Verification type item tags.
const (
	ItemTop               = 0
	ItemInteger           = 1
	ItemFloat             = 2
	ItemDouble            = 3
	ItemLong              = 4
	ItemNull              = 5
	ItemUninitializedThis = 6
	ItemObject            = 7
	ItemUninitialized     = 8
)

// newarray operand types.
const (
	TBoolean = 4
	TChar    = 5
	TFloat   = 6
	TDouble  = 7
	TByte    = 8
	TShort   = 9
	TInt     = 10
	TLong    = 11
)

// Format limits.
const (
	MaxCodeLength    = 65535
	MaxPoolCount     = 65535
	MaxTableEntries  = 65535
	MaxLocalsOrStack = 65535
)

// Well-known names.
const (
	objectClass    = "java/lang/Object"
	throwableClass = "java/lang/Throwable"
	stringClass    = "java/lang/String"
	classClass     = "java/lang/Class"
	methodTypeName = "java/lang/invoke/MethodType"
	handleClass    = "java/lang/invoke/MethodHandle"
	constructor    = "<init>"
	classInit      = "<clinit>"
)
