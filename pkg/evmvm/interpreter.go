package evmvm

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/evmcore"
)

// frame is one executing call/create context: its own stack, memory and
// program counter, sharing the StackState's current substate frame.
type frame struct {
	state     *evmcore.StackState
	env       *callEnv
	address   common.Address
	caller    common.Address
	value     *uint256.Int
	input     []byte
	code      []byte
	isCreate  bool
	gas       uint64
	stack     *stack
	memory    *memory
	pc        uint64
	returnData []byte
}

// callEnv is block/transaction context shared read-only across all nested
// frames of one Execute call.
type callEnv struct {
	vicinity     evmcore.Vicinity
	precompiles  map[common.Address]Precompile
	depth        int
}

const maxCallDepth = 1024

var errOutOfGas = evmcore.ExitFatalErr("out of gas")

// run executes a single frame to completion (STOP/RETURN/REVERT, an error,
// or falling off the end of code) and returns its exit reason and output
// bytes. It consumes gas from frame.gas as it goes; any CALL/CREATE
// encountered recurses into run() via the call.go helpers.
func run(f *frame) (evmcore.ExitReason, []byte) {
	for {
		if int(f.pc) >= len(f.code) {
			return evmcore.ExitSucceeded, nil
		}
		op := opCode(f.code[f.pc])

		switch {
		case isPush(op):
			n := pushSize(op)
			start := int(f.pc) + 1
			end := start + n
			var buf [32]byte
			if start < len(f.code) {
				e := end
				if e > len(f.code) {
					e = len(f.code)
				}
				copy(buf[32-n:], f.code[start:e])
			}
			if !chargeAndCheck(f, gasVeryLow) {
				return fatalOOG()
			}
			v := new(uint256.Int).SetBytes(buf[:])
			f.stack.push(v)
			f.pc += uint64(n) + 1
			continue

		case isDup(op):
			if !chargeAndCheck(f, gasVeryLow) {
				return fatalOOG()
			}
			f.stack.push(f.stack.peek(dupN(op) - 1))
			f.pc++
			continue

		case isSwap(op):
			if !chargeAndCheck(f, gasVeryLow) {
				return fatalOOG()
			}
			f.stack.swap(swapN(op))
			f.pc++
			continue

		case isLog(op):
			reason, out, ok := execLog(f, op)
			if !ok {
				return reason, out
			}
			f.pc++
			continue
		}

		switch op {
		case opStop:
			return evmcore.ExitSucceeded, nil

		case opAdd, opMul, opSub, opDiv, opSDiv, opMod, opSMod, opSignExtend,
			opLT, opGT, opSLT, opSGT, opEq, opAnd, opOr, opXor, opByte, opShl, opShr, opSar:
			if reason, out, ok := execBinary(f, op); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opIsZero, opNot:
			if reason, out, ok := execUnary(f, op); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opAddMod, opMulMod:
			if reason, out, ok := execTernary(f, op); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opExp:
			if reason, out, ok := execExp(f); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opSha3:
			if reason, out, ok := execSha3(f); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opAddress:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(addrToU256(f.address))
			f.pc++
			continue

		case opBalance:
			if !chargeAndCheck(f, gasBalance) {
				return fatalOOG()
			}
			addr := u256ToAddr(f.stack.pop())
			f.stack.push(f.state.GetBalance(addr))
			f.pc++
			continue

		case opOrigin:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(addrToU256(f.env.vicinity.Origin))
			f.pc++
			continue

		case opCaller:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(addrToU256(f.caller))
			f.pc++
			continue

		case opCallValue:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(f.value)
			f.pc++
			continue

		case opCallDataLoad:
			if !chargeAndCheck(f, gasVeryLow) {
				return fatalOOG()
			}
			off := f.stack.pop()
			f.stack.push(new(uint256.Int).SetBytes(padSlice(f.input, off.Uint64(), 32)))
			f.pc++
			continue

		case opCallDataSize:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(uint256.NewInt(uint64(len(f.input))))
			f.pc++
			continue

		case opCallDataCopy:
			if reason, out, ok := execMemCopy(f, f.input); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opCodeSize:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(uint256.NewInt(uint64(len(f.code))))
			f.pc++
			continue

		case opCodeCopy:
			if reason, out, ok := execMemCopy(f, f.code); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opGasPrice:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(f.env.vicinity.GasPrice)
			f.pc++
			continue

		case opExtCodeSize:
			if !chargeAndCheck(f, gasExtCode) {
				return fatalOOG()
			}
			addr := u256ToAddr(f.stack.pop())
			f.stack.push(uint256.NewInt(uint64(len(f.state.GetCode(addr)))))
			f.pc++
			continue

		case opExtCodeCopy:
			if !chargeAndCheck(f, gasExtCode) {
				return fatalOOG()
			}
			addr := u256ToAddr(f.stack.pop())
			if reason, out, ok := execMemCopy(f, f.state.GetCode(addr)); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opReturnDataSize:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(uint256.NewInt(uint64(len(f.returnData))))
			f.pc++
			continue

		case opReturnDataCopy:
			if reason, out, ok := execMemCopy(f, f.returnData); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opExtCodeHash:
			if !chargeAndCheck(f, gasExtCode) {
				return fatalOOG()
			}
			addr := u256ToAddr(f.stack.pop())
			if !f.state.Exists(addr) {
				f.stack.push(uint256.NewInt(0))
			} else {
				h := crypto.Keccak256Hash(f.state.GetCode(addr))
				f.stack.push(new(uint256.Int).SetBytes(h[:]))
			}
			f.pc++
			continue

		case opBlockHash:
			if !chargeAndCheck(f, gasExtCode) {
				return fatalOOG()
			}
			n := f.stack.pop()
			_ = n
			f.stack.push(uint256.NewInt(0))
			f.pc++
			continue

		case opCoinbase:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(addrToU256(f.env.vicinity.BlockCoinbase))
			f.pc++
			continue

		case opTimestamp:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(uint256.NewInt(f.env.vicinity.BlockTimestamp))
			f.pc++
			continue

		case opNumber:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(uint256.NewInt(f.env.vicinity.BlockNumber))
			f.pc++
			continue

		case opDifficulty:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(f.env.vicinity.BlockDifficulty)
			f.pc++
			continue

		case opGasLimit:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(uint256.NewInt(f.env.vicinity.BlockGasLimit))
			f.pc++
			continue

		case opChainID:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(f.env.vicinity.ChainID)
			f.pc++
			continue

		case opSelfBalance:
			if !chargeAndCheck(f, gasLow) {
				return fatalOOG()
			}
			f.stack.push(f.state.GetBalance(f.address))
			f.pc++
			continue

		case opBaseFee:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(f.env.vicinity.BlockBaseFeePerGas)
			f.pc++
			continue

		case opPop:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.pop()
			f.pc++
			continue

		case opMLoad:
			if reason, out, ok := execMLoad(f); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opMStore:
			if reason, out, ok := execMStore(f, 32); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opMStore8:
			if reason, out, ok := execMStore(f, 1); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opSLoad:
			if !chargeAndCheck(f, sloadCost(f)) {
				return fatalOOG()
			}
			key := u256ToHash(f.stack.pop())
			val := f.state.GetStorage(f.address, key)
			f.stack.push(new(uint256.Int).SetBytes(val[:]))
			f.pc++
			continue

		case opSStore:
			if reason, out, ok := execSStore(f); !ok {
				return reason, out
			}
			f.pc++
			continue

		case opJump:
			if !chargeAndCheck(f, gasMid) {
				return fatalOOG()
			}
			dest := f.stack.pop()
			if !validJumpDest(f.code, dest.Uint64()) {
				return evmcore.ExitErr("invalid jump destination"), nil
			}
			f.pc = dest.Uint64()
			continue

		case opJumpI:
			if !chargeAndCheck(f, gasHigh) {
				return fatalOOG()
			}
			dest := f.stack.pop()
			cond := f.stack.pop()
			if !cond.IsZero() {
				if !validJumpDest(f.code, dest.Uint64()) {
					return evmcore.ExitErr("invalid jump destination"), nil
				}
				f.pc = dest.Uint64()
				continue
			}
			f.pc++
			continue

		case opPC:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(uint256.NewInt(f.pc))
			f.pc++
			continue

		case opMSize:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(uint256.NewInt(f.memory.len()))
			f.pc++
			continue

		case opGas:
			if !chargeAndCheck(f, gasBase) {
				return fatalOOG()
			}
			f.stack.push(uint256.NewInt(f.gas))
			f.pc++
			continue

		case opJumpDest:
			if !chargeAndCheck(f, gasJumpDest) {
				return fatalOOG()
			}
			f.pc++
			continue

		case opCreate, opCreate2:
			reason, out := execCreate(f, op == opCreate2)
			if reason.Kind != evmcore.ExitSucceed {
				return reason, out
			}
			f.pc++
			continue

		case opCall, opCallCode, opDelegateCall, opStaticCall:
			reason, out := execCall(f, op)
			if reason.Kind != evmcore.ExitSucceed {
				return reason, out
			}
			f.pc++
			continue

		case opReturn:
			off, size := f.stack.pop(), f.stack.pop()
			if !chargeMemory(f, off.Uint64(), size.Uint64()) {
				return fatalOOG()
			}
			return evmcore.ExitSucceeded, f.memory.get(off.Uint64(), size.Uint64())

		case opRevert:
			off, size := f.stack.pop(), f.stack.pop()
			if !chargeMemory(f, off.Uint64(), size.Uint64()) {
				return fatalOOG()
			}
			return evmcore.ExitReverted, f.memory.get(off.Uint64(), size.Uint64())

		case opSelfDestruct:
			if !chargeAndCheck(f, gasSelfDestruct) {
				return fatalOOG()
			}
			beneficiary := u256ToAddr(f.stack.pop())
			balance := f.state.GetBalance(f.address)
			f.state.Transfer(f.address, beneficiary, balance)
			f.state.Suicide(f.address)
			return evmcore.ExitSucceeded, nil

		case opInvalid:
			return evmcore.ExitErr("invalid opcode"), nil

		default:
			return evmcore.ExitErr("undefined opcode"), nil
		}
	}
}

func fatalOOG() (evmcore.ExitReason, []byte) { return errOutOfGas, nil }

func chargeAndCheck(f *frame, cost uint64) bool {
	if f.gas < cost {
		return false
	}
	f.gas -= cost
	return true
}

func chargeMemory(f *frame, offset, size uint64) bool {
	if size == 0 {
		return true
	}
	needWords := wordCount(offset + size)
	curWords := wordCount(f.memory.len())
	if needWords <= curWords {
		f.memory.resize(offset + size)
		return true
	}
	cost := memoryGasCost(needWords) - memoryGasCost(curWords)
	if !chargeAndCheck(f, cost) {
		return false
	}
	f.memory.resize(offset + size)
	return true
}

func sloadCost(f *frame) uint64 { return gasSLoad }

func validJumpDest(code []byte, dest uint64) bool {
	if dest >= uint64(len(code)) {
		return false
	}
	if opCode(code[dest]) != opJumpDest {
		return false
	}
	// A JUMPDEST inside PUSH data is not a valid destination.
	i := 0
	for i < int(dest) {
		op := opCode(code[i])
		if isPush(op) {
			i += pushSize(op) + 1
		} else {
			i++
		}
	}
	return i == int(dest)
}

func padSlice(data []byte, offset uint64, size int) []byte {
	out := make([]byte, size)
	if offset >= uint64(len(data)) {
		return out
	}
	n := copy(out, data[offset:])
	_ = n
	return out
}

func addrToU256(a common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes(a.Bytes())
}

func u256ToAddr(v uint256.Int) common.Address {
	var b [32]byte
	v.WriteToSlice(b[:])
	return common.BytesToAddress(b[12:])
}

func u256ToHash(v uint256.Int) common.Hash {
	var b [32]byte
	v.WriteToSlice(b[:])
	return common.BytesToHash(b[:])
}

func u64ToHash32(n uint64) common.Hash {
	var b [32]byte
	binary.BigEndian.PutUint64(b[24:], n)
	return common.BytesToHash(b[:])
}
