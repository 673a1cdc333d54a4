package classfile

// Opcodes.
const (
	OpNop             = 0
	OpAconstNull      = 1
	OpIconstM1        = 2
	OpIconst0         = 3
	OpIconst1         = 4
	OpIconst2         = 5
	OpIconst3         = 6
	OpIconst4         = 7
	OpIconst5         = 8
	OpLconst0         = 9
	OpLconst1         = 10
	OpFconst0         = 11
	OpFconst1         = 12
	OpFconst2         = 13
	OpDconst0         = 14
	OpDconst1         = 15
	OpBipush          = 16
	OpSipush          = 17
	OpLdc             = 18
	OpLdcW            = 19
	OpLdc2W           = 20
	OpIload           = 21
	OpLload           = 22
	OpFload           = 23
	OpDload           = 24
	OpAload           = 25
	OpIload0          = 26
	OpIload1          = 27
	OpIload2          = 28
	OpIload3          = 29
	OpLload0          = 30
	OpLload1          = 31
	OpLload2          = 32
	OpLload3          = 33
	OpFload0          = 34
	OpFload1          = 35
	OpFload2          = 36
	OpFload3          = 37
	OpDload0          = 38
	OpDload1          = 39
	OpDload2          = 40
	OpDload3          = 41
	OpAload0          = 42
	OpAload1          = 43
	OpAload2          = 44
	OpAload3          = 45
	OpIaload          = 46
	OpLaload          = 47
	OpFaload          = 48
	OpDaload          = 49
	OpAaload          = 50
	OpBaload          = 51
	OpCaload          = 52
	OpSaload          = 53
	OpIstore          = 54
	OpLstore          = 55
	OpFstore          = 56
	OpDstore          = 57
	OpAstore          = 58
	OpIstore0         = 59
	OpIstore1         = 60
	OpIstore2         = 61
	OpIstore3         = 62
	OpLstore0         = 63
	OpLstore1         = 64
	OpLstore2         = 65
	OpLstore3         = 66
	OpFstore0         = 67
	OpFstore1         = 68
	OpFstore2         = 69
	OpFstore3         = 70
	OpDstore0         = 71
	OpDstore1         = 72
	OpDstore2         = 73
	OpDstore3         = 74
	OpAstore0         = 75
	OpAstore1         = 76
	OpAstore2         = 77
	OpAstore3         = 78
	OpIastore         = 79
	OpLastore         = 80
	OpFastore         = 81
	OpDastore         = 82
	OpAastore         = 83
	OpBastore         = 84
	OpCastore         = 85
	OpSastore         = 86
	OpPop             = 87
	OpPop2            = 88
	OpDup             = 89
	OpDupX1           = 90
	OpDupX2           = 91
	OpDup2            = 92
	OpDup2X1          = 93
	OpDup2X2          = 94
	OpSwap            = 95
	OpIadd            = 96
	OpLadd            = 97
	OpFadd            = 98
	OpDadd            = 99
	OpIsub            = 100
	OpLsub            = 101
	OpFsub            = 102
	OpDsub            = 103
	OpImul            = 104
	OpLmul            = 105
	OpFmul            = 106
	OpDmul            = 107
	OpIdiv            = 108
	OpLdiv            = 109
	OpFdiv            = 110
	OpDdiv            = 111
	OpIrem            = 112
	OpLrem            = 113
	OpFrem            = 114
	OpDrem            = 115
	OpIneg            = 116
	OpLneg            = 117
	OpFneg            = 118
	OpDneg            = 119
	OpIshl            = 120
	OpLshl            = 121
	OpIshr            = 122
	OpLshr            = 123
	OpIushr           = 124
	OpLushr           = 125
	OpIand            = 126
	OpLand            = 127
	OpIor             = 128
	OpLor             = 129
	OpIxor            = 130
	OpLxor            = 131
	OpIinc            = 132
	OpI2l             = 133
	OpI2f             = 134
	OpI2d             = 135
	OpL2i             = 136
	OpL2f             = 137
	OpL2d             = 138
	OpF2i             = 139
	OpF2l             = 140
	OpF2d             = 141
	OpD2i             = 142
	OpD2l             = 143
	OpD2f             = 144
	OpI2b             = 145
	OpI2c             = 146
	OpI2s             = 147
	OpLcmp            = 148
	OpFcmpl           = 149
	OpFcmpg           = 150
	OpDcmpl           = 151
	OpDcmpg           = 152
	OpIfeq            = 153
	OpIfne            = 154
	OpIflt            = 155
	OpIfge            = 156
	OpIfgt            = 157
	OpIfle            = 158
	OpIfIcmpeq        = 159
	OpIfIcmpne        = 160
	OpIfIcmplt        = 161
	OpIfIcmpge        = 162
	OpIfIcmpgt        = 163
	OpIfIcmple        = 164
	OpIfAcmpeq        = 165
	OpIfAcmpne        = 166
	OpGoto            = 167
	OpJsr             = 168
	OpRet             = 169
	OpTableswitch     = 170
	OpLookupswitch    = 171
	OpIreturn         = 172
	OpLreturn         = 173
	OpFreturn         = 174
	OpDreturn         = 175
	OpAreturn         = 176
	OpReturn          = 177
	OpGetstatic       = 178
	OpPutstatic       = 179
	OpGetfield        = 180
	OpPutfield        = 181
	OpInvokevirtual   = 182
	OpInvokespecial   = 183
	OpInvokestatic    = 184
	OpInvokeinterface = 185
	OpInvokedynamic   = 186
	OpNew             = 187
	OpNewarray        = 188
	OpAnewarray       = 189
	OpArraylength     = 190
	OpAthrow          = 191
	OpCheckcast       = 192
	OpInstanceof      = 193
	OpMonitorenter    = 194
	OpMonitorexit     = 195
	OpWide            = 196
	OpMultianewarray  = 197
	OpIfnull          = 198
	OpIfnonnull       = 199
	OpGotoW           = 200
	OpJsrW            = 201
)

// operand encodings
const (
	fmtInvalid = iota
	fmtNone
	fmtS1
	fmtS2
	fmtNewArray
	fmtLdc
	fmtLdcW
	fmtVar
	fmtImplicitVar
	fmtIinc
	fmtJump
	fmtJumpW
	fmtTableSwitch
	fmtLookupSwitch
	fmtField
	fmtMethod
	fmtInterface
	fmtIndy
	fmtType
	fmtMultiANewArray
	fmtWide
)

type opInfo struct {
	name   string
	format uint8
}

var opTable = [256]opInfo{
	OpNop:             {"nop", fmtNone},
	OpAconstNull:      {"aconst_null", fmtNone},
	OpIconstM1:        {"iconst_m1", fmtNone},
	OpIconst0:         {"iconst_0", fmtNone},
	OpIconst1:         {"iconst_1", fmtNone},
	OpIconst2:         {"iconst_2", fmtNone},
	OpIconst3:         {"iconst_3", fmtNone},
	OpIconst4:         {"iconst_4", fmtNone},
	OpIconst5:         {"iconst_5", fmtNone},
	OpLconst0:         {"lconst_0", fmtNone},
	OpLconst1:         {"lconst_1", fmtNone},
	OpFconst0:         {"fconst_0", fmtNone},
	OpFconst1:         {"fconst_1", fmtNone},
	OpFconst2:         {"fconst_2", fmtNone},
	OpDconst0:         {"dconst_0", fmtNone},
	OpDconst1:         {"dconst_1", fmtNone},
	OpBipush:          {"bipush", fmtS1},
	OpSipush:          {"sipush", fmtS2},
	OpLdc:             {"ldc", fmtLdc},
	OpLdcW:            {"ldc_w", fmtLdcW},
	OpLdc2W:           {"ldc2_w", fmtLdcW},
	OpIload:           {"iload", fmtVar},
	OpLload:           {"lload", fmtVar},
	OpFload:           {"fload", fmtVar},
	OpDload:           {"dload", fmtVar},
	OpAload:           {"aload", fmtVar},
	OpIload0:          {"iload_0", fmtImplicitVar},
	OpIload1:          {"iload_1", fmtImplicitVar},
	OpIload2:          {"iload_2", fmtImplicitVar},
	OpIload3:          {"iload_3", fmtImplicitVar},
	OpLload0:          {"lload_0", fmtImplicitVar},
	OpLload1:          {"lload_1", fmtImplicitVar},
	OpLload2:          {"lload_2", fmtImplicitVar},
	OpLload3:          {"lload_3", fmtImplicitVar},
	OpFload0:          {"fload_0", fmtImplicitVar},
	OpFload1:          {"fload_1", fmtImplicitVar},
	OpFload2:          {"fload_2", fmtImplicitVar},
	OpFload3:          {"fload_3", fmtImplicitVar},
	OpDload0:          {"dload_0", fmtImplicitVar},
	OpDload1:          {"dload_1", fmtImplicitVar},
	OpDload2:          {"dload_2", fmtImplicitVar},
	OpDload3:          {"dload_3", fmtImplicitVar},
	OpAload0:          {"aload_0", fmtImplicitVar},
	OpAload1:          {"aload_1", fmtImplicitVar},
	OpAload2:          {"aload_2", fmtImplicitVar},
	OpAload3:          {"aload_3", fmtImplicitVar},
	OpIaload:          {"iaload", fmtNone},
	OpLaload:          {"laload", fmtNone},
	OpFaload:          {"faload", fmtNone},
	OpDaload:          {"daload", fmtNone},
	OpAaload:          {"aaload", fmtNone},
	OpBaload:          {"baload", fmtNone},
	OpCaload:          {"caload", fmtNone},
	OpSaload:          {"saload", fmtNone},
	OpIstore:          {"istore", fmtVar},
	OpLstore:          {"lstore", fmtVar},
	OpFstore:          {"fstore", fmtVar},
	OpDstore:          {"dstore", fmtVar},
	OpAstore:          {"astore", fmtVar},
	OpIstore0:         {"istore_0", fmtImplicitVar},
	OpIstore1:         {"istore_1", fmtImplicitVar},
	OpIstore2:         {"istore_2", fmtImplicitVar},
	OpIstore3:         {"istore_3", fmtImplicitVar},
	OpLstore0:         {"lstore_0", fmtImplicitVar},
	OpLstore1:         {"lstore_1", fmtImplicitVar},
	OpLstore2:         {"lstore_2", fmtImplicitVar},
	OpLstore3:         {"lstore_3", fmtImplicitVar},
	OpFstore0:         {"fstore_0", fmtImplicitVar},
	OpFstore1:         {"fstore_1", fmtImplicitVar},
	OpFstore2:         {"fstore_2", fmtImplicitVar},
	OpFstore3:         {"fstore_3", fmtImplicitVar},
	OpDstore0:         {"dstore_0", fmtImplicitVar},
	OpDstore1:         {"dstore_1", fmtImplicitVar},
	OpDstore2:         {"dstore_2", fmtImplicitVar},
	OpDstore3:         {"dstore_3", fmtImplicitVar},
	OpAstore0:         {"astore_0", fmtImplicitVar},
	OpAstore1:         {"astore_1", fmtImplicitVar},
	OpAstore2:         {"astore_2", fmtImplicitVar},
	OpAstore3:         {"astore_3", fmtImplicitVar},
	OpIastore:         {"iastore", fmtNone},
	OpLastore:         {"lastore", fmtNone},
	OpFastore:         {"fastore", fmtNone},
	OpDastore:         {"dastore", fmtNone},
	OpAastore:         {"aastore", fmtNone},
	OpBastore:         {"bastore", fmtNone},
	OpCastore:         {"castore", fmtNone},
	OpSastore:         {"sastore", fmtNone},
	OpPop:             {"pop", fmtNone},
	OpPop2:            {"pop2", fmtNone},
	OpDup:             {"dup", fmtNone},
	OpDupX1:           {"dup_x1", fmtNone},
	OpDupX2:           {"dup_x2", fmtNone},
	OpDup2:            {"dup2", fmtNone},
	OpDup2X1:          {"dup2_x1", fmtNone},
	OpDup2X2:          {"dup2_x2", fmtNone},
	OpSwap:            {"swap", fmtNone},
	OpIadd:            {"iadd", fmtNone},
	OpLadd:            {"ladd", fmtNone},
	OpFadd:            {"fadd", fmtNone},
	OpDadd:            {"dadd", fmtNone},
	OpIsub:            {"isub", fmtNone},
	OpLsub:            {"lsub", fmtNone},
	OpFsub:            {"fsub", fmtNone},
	OpDsub:            {"dsub", fmtNone},
	OpImul:            {"imul", fmtNone},
	OpLmul:            {"lmul", fmtNone},
	OpFmul:            {"fmul", fmtNone},
	OpDmul:            {"dmul", fmtNone},
	OpIdiv:            {"idiv", fmtNone},
	OpLdiv:            {"ldiv", fmtNone},
	OpFdiv:            {"fdiv", fmtNone},
	OpDdiv:            {"ddiv", fmtNone},
	OpIrem:            {"irem", fmtNone},
	OpLrem:            {"lrem", fmtNone},
	OpFrem:            {"frem", fmtNone},
	OpDrem:            {"drem", fmtNone},
	OpIneg:            {"ineg", fmtNone},
	OpLneg:            {"lneg", fmtNone},
	OpFneg:            {"fneg", fmtNone},
	OpDneg:            {"dneg", fmtNone},
	OpIshl:            {"ishl", fmtNone},
	OpLshl:            {"lshl", fmtNone},
	OpIshr:            {"ishr", fmtNone},
	OpLshr:            {"lshr", fmtNone},
	OpIushr:           {"iushr", fmtNone},
	OpLushr:           {"lushr", fmtNone},
	OpIand:            {"iand", fmtNone},
	OpLand:            {"land", fmtNone},
	OpIor:             {"ior", fmtNone},
	OpLor:             {"lor", fmtNone},
	OpIxor:            {"ixor", fmtNone},
	OpLxor:            {"lxor", fmtNone},
	OpIinc:            {"iinc", fmtIinc},
	OpI2l:             {"i2l", fmtNone},
	OpI2f:             {"i2f", fmtNone},
	OpI2d:             {"i2d", fmtNone},
	OpL2i:             {"l2i", fmtNone},
	OpL2f:             {"l2f", fmtNone},
	OpL2d:             {"l2d", fmtNone},
	OpF2i:             {"f2i", fmtNone},
	OpF2l:             {"f2l", fmtNone},
	OpF2d:             {"f2d", fmtNone},
	OpD2i:             {"d2i", fmtNone},
	OpD2l:             {"d2l", fmtNone},
	OpD2f:             {"d2f", fmtNone},
	OpI2b:             {"i2b", fmtNone},
	OpI2c:             {"i2c", fmtNone},
	OpI2s:             {"i2s", fmtNone},
	OpLcmp:            {"lcmp", fmtNone},
	OpFcmpl:           {"fcmpl", fmtNone},
	OpFcmpg:           {"fcmpg", fmtNone},
	OpDcmpl:           {"dcmpl", fmtNone},
	OpDcmpg:           {"dcmpg", fmtNone},
	OpIfeq:            {"ifeq", fmtJump},
	OpIfne:            {"ifne", fmtJump},
	OpIflt:            {"iflt", fmtJump},
	OpIfge:            {"ifge", fmtJump},
	OpIfgt:            {"ifgt", fmtJump},
	OpIfle:            {"ifle", fmtJump},
	OpIfIcmpeq:        {"if_icmpeq", fmtJump},
	OpIfIcmpne:        {"if_icmpne", fmtJump},
	OpIfIcmplt:        {"if_icmplt", fmtJump},
	OpIfIcmpge:        {"if_icmpge", fmtJump},
	OpIfIcmpgt:        {"if_icmpgt", fmtJump},
	OpIfIcmple:        {"if_icmple", fmtJump},
	OpIfAcmpeq:        {"if_acmpeq", fmtJump},
	OpIfAcmpne:        {"if_acmpne", fmtJump},
	OpGoto:            {"goto", fmtJump},
	OpJsr:             {"jsr", fmtJump},
	OpRet:             {"ret", fmtVar},
	OpTableswitch:     {"tableswitch", fmtTableSwitch},
	OpLookupswitch:    {"lookupswitch", fmtLookupSwitch},
	OpIreturn:         {"ireturn", fmtNone},
	OpLreturn:         {"lreturn", fmtNone},
	OpFreturn:         {"freturn", fmtNone},
	OpDreturn:         {"dreturn", fmtNone},
	OpAreturn:         {"areturn", fmtNone},
	OpReturn:          {"return", fmtNone},
	OpGetstatic:       {"getstatic", fmtField},
	OpPutstatic:       {"putstatic", fmtField},
	OpGetfield:        {"getfield", fmtField},
	OpPutfield:        {"putfield", fmtField},
	OpInvokevirtual:   {"invokevirtual", fmtMethod},
	OpInvokespecial:   {"invokespecial", fmtMethod},
	OpInvokestatic:    {"invokestatic", fmtMethod},
	OpInvokeinterface: {"invokeinterface", fmtInterface},
	OpInvokedynamic:   {"invokedynamic", fmtIndy},
	OpNew:             {"new", fmtType},
	OpNewarray:        {"newarray", fmtNewArray},
	OpAnewarray:       {"anewarray", fmtType},
	OpArraylength:     {"arraylength", fmtNone},
	OpAthrow:          {"athrow", fmtNone},
	OpCheckcast:       {"checkcast", fmtType},
	OpInstanceof:      {"instanceof", fmtType},
	OpMonitorenter:    {"monitorenter", fmtNone},
	OpMonitorexit:     {"monitorexit", fmtNone},
	OpWide:            {"wide", fmtWide},
	OpMultianewarray:  {"multianewarray", fmtMultiANewArray},
	OpIfnull:          {"ifnull", fmtJump},
	OpIfnonnull:       {"ifnonnull", fmtJump},
	OpGotoW:           {"goto_w", fmtJumpW},
	OpJsrW:            {"jsr_w", fmtJumpW},
}

// OpcodeName returns the mnemonic for op, or "" if op is not a valid opcode.
func OpcodeName(op int) string {
	if op < 0 || op > 255 {
		return ""
	}
	return opTable[op].name
}

func opFormat(op int) uint8 {
	if op < 0 || op > 255 {
		return fmtInvalid
	}
	return opTable[op].format
}

// isUnconditional reports whether control never falls through op.
func isUnconditional(op int) bool {
	switch op {
	case OpGoto, OpGotoW, OpRet, OpTableswitch, OpLookupswitch, OpAthrow,
		OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn, OpReturn:
		return true
	}
	return false
}

// isConditionalJump reports whether op is a two-way branch.
func isConditionalJump(op int) bool {
	return (op >= OpIfeq && op <= OpIfAcmpne) || op == OpIfnull || op == OpIfnonnull
}

// invertJump returns the conditional jump with the opposite condition.
func invertJump(op int) int {
	if op == OpIfnull || op == OpIfnonnull {
		return op ^ 1
	}
	return ((op + 1) ^ 1) - 1
}

// implicitVar splits an xload_n or xstore_n opcode into its base opcode and slot.
func implicitVar(op int) (base, slot int) {
	if op >= OpIload0 && op <= OpAload3 {
		n := op - OpIload0
		return OpIload + n/4, n % 4
	}
	n := op - OpIstore0
	return OpIstore + n/4, n % 4
}
