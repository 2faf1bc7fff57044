package evmvm

type opCode byte

const (
	opStop       opCode = 0x00
	opAdd        opCode = 0x01
	opMul        opCode = 0x02
	opSub        opCode = 0x03
	opDiv        opCode = 0x04
	opSDiv       opCode = 0x05
	opMod        opCode = 0x06
	opSMod       opCode = 0x07
	opAddMod     opCode = 0x08
	opMulMod     opCode = 0x09
	opExp        opCode = 0x0a
	opSignExtend opCode = 0x0b

	opLT     opCode = 0x10
	opGT     opCode = 0x11
	opSLT    opCode = 0x12
	opSGT    opCode = 0x13
	opEq     opCode = 0x14
	opIsZero opCode = 0x15
	opAnd    opCode = 0x16
	opOr     opCode = 0x17
	opXor    opCode = 0x18
	opNot    opCode = 0x19
	opByte   opCode = 0x1a
	opShl    opCode = 0x1b
	opShr    opCode = 0x1c
	opSar    opCode = 0x1d

	opSha3 opCode = 0x20

	opAddress        opCode = 0x30
	opBalance        opCode = 0x31
	opOrigin         opCode = 0x32
	opCaller         opCode = 0x33
	opCallValue      opCode = 0x34
	opCallDataLoad   opCode = 0x35
	opCallDataSize   opCode = 0x36
	opCallDataCopy   opCode = 0x37
	opCodeSize       opCode = 0x38
	opCodeCopy       opCode = 0x39
	opGasPrice       opCode = 0x3a
	opExtCodeSize    opCode = 0x3b
	opExtCodeCopy    opCode = 0x3c
	opReturnDataSize opCode = 0x3d
	opReturnDataCopy opCode = 0x3e
	opExtCodeHash    opCode = 0x3f

	opBlockHash   opCode = 0x40
	opCoinbase    opCode = 0x41
	opTimestamp   opCode = 0x42
	opNumber      opCode = 0x43
	opDifficulty  opCode = 0x44
	opGasLimit    opCode = 0x45
	opChainID     opCode = 0x46
	opSelfBalance opCode = 0x47
	opBaseFee     opCode = 0x48

	opPop      opCode = 0x50
	opMLoad    opCode = 0x51
	opMStore   opCode = 0x52
	opMStore8  opCode = 0x53
	opSLoad    opCode = 0x54
	opSStore   opCode = 0x55
	opJump     opCode = 0x56
	opJumpI    opCode = 0x57
	opPC       opCode = 0x58
	opMSize    opCode = 0x59
	opGas      opCode = 0x5a
	opJumpDest opCode = 0x5b

	opPush1  opCode = 0x60
	opPush32 opCode = 0x7f

	opDup1  opCode = 0x80
	opDup16 opCode = 0x8f

	opSwap1  opCode = 0x90
	opSwap16 opCode = 0x9f

	opLog0 opCode = 0xa0
	opLog4 opCode = 0xa4

	opCreate       opCode = 0xf0
	opCall         opCode = 0xf1
	opCallCode     opCode = 0xf2
	opReturn       opCode = 0xf3
	opDelegateCall opCode = 0xf4
	opCreate2      opCode = 0xf5
	opStaticCall   opCode = 0xfa
	opRevert       opCode = 0xfd
	opInvalid      opCode = 0xfe
	opSelfDestruct opCode = 0xff
)

func isPush(op opCode) bool { return op >= opPush1 && op <= opPush32 }
func pushSize(op opCode) int { return int(op-opPush1) + 1 }
func isDup(op opCode) bool  { return op >= opDup1 && op <= opDup16 }
func dupN(op opCode) int    { return int(op-opDup1) + 1 }
func isSwap(op opCode) bool { return op >= opSwap1 && op <= opSwap16 }
func swapN(op opCode) int   { return int(op-opSwap1) + 1 }
func isLog(op opCode) bool  { return op >= opLog0 && op <= opLog4 }
func logTopics(op opCode) int { return int(op - opLog0) }
