package evmvm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/evmcore"
)

var commonHashZero = common.Hash{}

func execBinary(f *frame, op opCode) (evmcore.ExitReason, []byte, bool) {
	if !chargeAndCheck(f, binaryGas(op)) {
		r, o := fatalOOG()
		return r, o, false
	}
	b := f.stack.pop()
	a := f.stack.pop()
	var res uint256.Int
	switch op {
	case opAdd:
		res.Add(&a, &b)
	case opMul:
		res.Mul(&a, &b)
	case opSub:
		res.Sub(&b, &a)
	case opDiv:
		res.Div(&b, &a)
	case opSDiv:
		res.SDiv(&b, &a)
	case opMod:
		res.Mod(&b, &a)
	case opSMod:
		res.SMod(&b, &a)
	case opSignExtend:
		res.ExtendSign(&a, &b)
	case opLT:
		res.SetBool(b.Lt(&a))
	case opGT:
		res.SetBool(b.Gt(&a))
	case opSLT:
		res.SetBool(b.Slt(&a))
	case opSGT:
		res.SetBool(b.Sgt(&a))
	case opEq:
		res.SetBool(a.Eq(&b))
	case opAnd:
		res.And(&a, &b)
	case opOr:
		res.Or(&a, &b)
	case opXor:
		res.Xor(&a, &b)
	case opByte:
		res = a
		res.Byte(&b)
	case opShl:
		res.Lsh(&a, uint(clampShift(b)))
	case opShr:
		res.Rsh(&a, uint(clampShift(b)))
	case opSar:
		res.SRsh(&a, uint(clampShift(b)))
	}
	f.stack.push(&res)
	return evmcore.ExitSucceeded, nil, true
}

func clampShift(v uint256.Int) uint64 {
	if v.GtUint64(256) {
		return 256
	}
	return v.Uint64()
}

func binaryGas(op opCode) uint64 {
	switch op {
	case opMul, opDiv, opSDiv, opMod, opSMod, opSignExtend:
		return gasLow
	default:
		return gasVeryLow
	}
}

func execUnary(f *frame, op opCode) (evmcore.ExitReason, []byte, bool) {
	if !chargeAndCheck(f, gasVeryLow) {
		r, o := fatalOOG()
		return r, o, false
	}
	a := f.stack.pop()
	var res uint256.Int
	switch op {
	case opIsZero:
		res.SetBool(a.IsZero())
	case opNot:
		res.Not(&a)
	}
	f.stack.push(&res)
	return evmcore.ExitSucceeded, nil, true
}

func execTernary(f *frame, op opCode) (evmcore.ExitReason, []byte, bool) {
	if !chargeAndCheck(f, gasMid) {
		r, o := fatalOOG()
		return r, o, false
	}
	a := f.stack.pop()
	b := f.stack.pop()
	n := f.stack.pop()
	var res uint256.Int
	switch op {
	case opAddMod:
		res.AddMod(&a, &b, &n)
	case opMulMod:
		res.MulMod(&a, &b, &n)
	}
	f.stack.push(&res)
	return evmcore.ExitSucceeded, nil, true
}

func execExp(f *frame) (evmcore.ExitReason, []byte, bool) {
	if !chargeAndCheck(f, gasExp) {
		r, o := fatalOOG()
		return r, o, false
	}
	base := f.stack.pop()
	exp := f.stack.pop()
	byteLen := (exp.BitLen() + 7) / 8
	if !chargeAndCheck(f, uint64(byteLen)*gasExpByte) {
		r, o := fatalOOG()
		return r, o, false
	}
	var res uint256.Int
	res.Exp(&base, &exp)
	f.stack.push(&res)
	return evmcore.ExitSucceeded, nil, true
}

func execSha3(f *frame) (evmcore.ExitReason, []byte, bool) {
	off := f.stack.pop()
	size := f.stack.pop()
	if !chargeMemory(f, off.Uint64(), size.Uint64()) {
		r, o := fatalOOG()
		return r, o, false
	}
	cost := gasSha3 + wordCount(size.Uint64())*gasSha3Word
	if !chargeAndCheck(f, cost) {
		r, o := fatalOOG()
		return r, o, false
	}
	data := f.memory.get(off.Uint64(), size.Uint64())
	h := crypto.Keccak256(data)
	f.stack.push(new(uint256.Int).SetBytes(h))
	return evmcore.ExitSucceeded, nil, true
}

func execMemCopy(f *frame, src []byte) (evmcore.ExitReason, []byte, bool) {
	destOff := f.stack.pop()
	srcOff := f.stack.pop()
	size := f.stack.pop()
	if !chargeMemory(f, destOff.Uint64(), size.Uint64()) {
		r, o := fatalOOG()
		return r, o, false
	}
	cost := gasCopy * wordCount(size.Uint64())
	if !chargeAndCheck(f, cost) {
		r, o := fatalOOG()
		return r, o, false
	}
	f.memory.set(destOff.Uint64(), padSlice(src, srcOff.Uint64(), int(size.Uint64())))
	return evmcore.ExitSucceeded, nil, true
}

func execMLoad(f *frame) (evmcore.ExitReason, []byte, bool) {
	off := f.stack.pop()
	if !chargeMemory(f, off.Uint64(), 32) {
		r, o := fatalOOG()
		return r, o, false
	}
	if !chargeAndCheck(f, gasVeryLow) {
		r, o := fatalOOG()
		return r, o, false
	}
	f.stack.push(new(uint256.Int).SetBytes(f.memory.get(off.Uint64(), 32)))
	return evmcore.ExitSucceeded, nil, true
}

func execMStore(f *frame, width int) (evmcore.ExitReason, []byte, bool) {
	off := f.stack.pop()
	val := f.stack.pop()
	if !chargeMemory(f, off.Uint64(), uint64(width)) {
		r, o := fatalOOG()
		return r, o, false
	}
	if !chargeAndCheck(f, gasVeryLow) {
		r, o := fatalOOG()
		return r, o, false
	}
	if width == 1 {
		f.memory.set(off.Uint64(), []byte{byte(val.Uint64())})
	} else {
		var b [32]byte
		val.WriteToSlice(b[:])
		f.memory.set(off.Uint64(), b[:])
	}
	return evmcore.ExitSucceeded, nil, true
}

func execSStore(f *frame) (evmcore.ExitReason, []byte, bool) {
	if f.state.IsStatic() {
		return evmcore.ExitErr("state change in static context"), nil, false
	}
	key := u256ToHash(f.stack.pop())
	val := f.stack.pop()
	newVal := u256ToHash(val)

	current := f.state.GetStorage(f.address, key)
	original := f.state.GetOriginalStorage(f.address, key)

	var cost uint64
	switch {
	case current == newVal:
		cost = gasSLoad
	case original == current:
		if original == (commonHashZero) && newVal != commonHashZero {
			cost = gasSSet
		} else {
			cost = gasSReset
		}
	default:
		cost = gasSLoad
	}
	if !chargeAndCheck(f, cost) {
		r, o := fatalOOG()
		return r, o, false
	}
	f.state.SetStorage(f.address, key, newVal)
	return evmcore.ExitSucceeded, nil, true
}

func execLog(f *frame, op opCode) (evmcore.ExitReason, []byte, bool) {
	if f.state.IsStatic() {
		return evmcore.ExitErr("state change in static context"), nil, false
	}
	n := logTopics(op)
	off := f.stack.pop()
	size := f.stack.pop()
	topics := make([]common.Hash, n)
	for i := 0; i < n; i++ {
		topics[i] = u256ToHash(f.stack.pop())
	}
	if !chargeMemory(f, off.Uint64(), size.Uint64()) {
		r, o := fatalOOG()
		return r, o, false
	}
	cost := gasLog + uint64(n)*gasLogTopic + size.Uint64()*gasLogData
	if !chargeAndCheck(f, cost) {
		r, o := fatalOOG()
		return r, o, false
	}
	data := f.memory.get(off.Uint64(), size.Uint64())
	f.state.Log(evmcore.Log{Address: f.address, Topics: topics, Data: data})
	return evmcore.ExitSucceeded, nil, true
}
