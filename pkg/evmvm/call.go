package evmvm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/evmcore"
)

// Precompile is a native contract reachable at a fixed address instead of
// through bytecode interpretation. The OFUEL meta-token lives behind this
// seam (see pkg/token), the same way the engine this system was built
// against dispatched its token logic through a precompile set. Unlike
// ordinary contract code, a precompile does not read/write through the
// Backend/Substate storage model — it owns its own backing maps (bound to
// the same branch the transaction runs on) and returns any events it wants
// recorded as Logs directly.
type Precompile interface {
	RequiredGas(input []byte) uint64
	Run(caller common.Address, value *uint256.Int, input []byte) ([]byte, []evmcore.Log, error)
}

// Result is the outcome of a top-level Execute call (a whole transaction's
// worth of execution, including every nested CALL/CREATE it makes).
type Result struct {
	Reason  evmcore.ExitReason
	Output  []byte
	GasUsed uint64
	Applies []evmcore.Apply
	Logs    []evmcore.Log
}

// Execute runs one top-level message call or contract creation against
// state, charging from gasLimit and finalizing (applying to the backend)
// on success. Reverted or errored executions still consume the gas spent
// but apply no state changes.
func Execute(
	state *evmcore.StackState,
	vicinity evmcore.Vicinity,
	precompiles map[common.Address]Precompile,
	caller, address common.Address,
	value *uint256.Int,
	input []byte,
	gasLimit uint64,
	isCreate bool,
) Result {
	env := &callEnv{vicinity: vicinity, precompiles: precompiles}

	var code []byte
	if isCreate {
		code = input
		input = nil
	} else {
		code = state.GetCode(address)
	}

	if !state.Transfer(caller, address, value) {
		return Result{Reason: evmcore.ExitErr("insufficient balance"), GasUsed: gasLimit}
	}

	f := &frame{
		state:    state,
		env:      env,
		address:  address,
		caller:   caller,
		value:    value,
		input:    input,
		code:     code,
		isCreate: isCreate,
		gas:      gasLimit,
		stack:    newStack(),
		memory:   newMemory(),
	}

	var reason evmcore.ExitReason
	var out []byte
	if pre, ok := precompiles[address]; ok && !isCreate {
		reqGas := pre.RequiredGas(input)
		if !chargeAndCheck(f, reqGas) {
			reason, out = fatalOOG()
		} else {
			res, logs, err := pre.Run(caller, value, input)
			if err != nil {
				reason, out = evmcore.ExitErr(err.Error()), nil
			} else {
				for _, l := range logs {
					state.Log(l)
				}
				reason, out = evmcore.ExitSucceeded, res
			}
		}
	} else {
		reason, out = run(f)
	}

	if isCreate && reason.IsSucceed() {
		depositCost := uint64(len(out)) * gasCodeDeposit
		if !chargeAndCheck(f, depositCost) {
			reason, out = fatalOOG()
		} else {
			state.SetCode(address, out)
		}
	}

	gasUsed := gasLimit - f.gas

	if !reason.IsSucceed() {
		return Result{Reason: reason, Output: out, GasUsed: gasUsed}
	}

	logs, err := state.Finalize(true)
	if err != nil {
		return Result{Reason: evmcore.ExitFatalErr(err.Error()), GasUsed: gasUsed}
	}
	applies, _ := state.Current().Deconstruct(state.Backend())
	return Result{Reason: reason, Output: out, GasUsed: gasUsed, Applies: applies, Logs: logs}
}

// execCreate implements CREATE/CREATE2: derives the new contract address,
// enters a fresh substate frame, runs the init code, and installs the
// returned bytes as the deployed contract's code on success.
func execCreate(f *frame, isCreate2 bool) (evmcore.ExitReason, []byte) {
	if f.state.IsStatic() {
		return evmcore.ExitErr("state change in static context"), nil
	}
	if !chargeAndCheck(f, gasCreate) {
		return fatalOOG()
	}
	value := f.stack.pop()
	off := f.stack.pop()
	size := f.stack.pop()
	var salt uint256.Int
	if isCreate2 {
		salt = f.stack.pop()
	}
	if !chargeMemory(f, off.Uint64(), size.Uint64()) {
		return fatalOOG()
	}
	initCode := f.memory.get(off.Uint64(), size.Uint64())

	var newAddr common.Address
	if isCreate2 {
		var saltBytes [32]byte
		salt.WriteToSlice(saltBytes[:])
		newAddr = crypto.CreateAddress2(f.address, saltBytes, crypto.Keccak256(initCode))
	} else {
		newAddr = crypto.CreateAddress(f.address, f.state.GetNonce(f.address))
	}
	f.state.IncNonce(f.address)

	if f.env.depth >= maxCallDepth {
		f.stack.push(uint256.NewInt(0))
		return evmcore.ExitSucceeded, nil
	}

	childGas := f.gas
	f.state.EnterCall(childGas, f.state.IsStatic())
	f.env.depth++

	childFrame := &frame{
		state:    f.state,
		env:      f.env,
		address:  newAddr,
		caller:   f.address,
		value:    &value,
		code:     initCode,
		isCreate: true,
		gas:      childGas,
		stack:    newStack(),
		memory:   newMemory(),
	}
	if !f.state.Transfer(f.address, newAddr, &value) {
		f.state.ExitDiscard()
		f.env.depth--
		f.stack.push(uint256.NewInt(0))
		return evmcore.ExitSucceeded, nil
	}

	reason, out := run(childFrame)
	f.env.depth--

	if reason.IsSucceed() {
		depositCost := uint64(len(out)) * gasCodeDeposit
		if childFrame.gas < depositCost {
			f.state.ExitDiscard()
			f.gas -= childGas
			f.stack.push(uint256.NewInt(0))
			f.returnData = nil
			return evmcore.ExitSucceeded, nil
		}
		childFrame.gas -= depositCost
		f.state.SetCode(newAddr, out)
		f.state.ExitCommit()
		f.gas -= childGas - childFrame.gas
		f.stack.push(addrToU256(newAddr))
		f.returnData = nil
		return evmcore.ExitSucceeded, nil
	}

	f.state.ExitDiscard()
	f.gas -= childGas - childFrame.gas
	f.stack.push(uint256.NewInt(0))
	f.returnData = out
	return evmcore.ExitSucceeded, nil
}

// execCall implements CALL/CALLCODE/DELEGATECALL/STATICCALL: pops the
// arguments per variant, recurses into a child frame (or a precompile),
// and writes the child's return data into this frame's memory.
func execCall(f *frame, op opCode) (evmcore.ExitReason, []byte) {
	if !chargeAndCheck(f, gasCall) {
		return fatalOOG()
	}

	gasArg := f.stack.pop()
	target := u256ToAddr(f.stack.pop())

	var value uint256.Int
	hasValue := op == opCall || op == opCallCode
	if hasValue {
		value = f.stack.pop()
	}
	if (op == opCall) && f.state.IsStatic() && !value.IsZero() {
		return evmcore.ExitErr("state change in static context"), nil
	}

	argsOff := f.stack.pop()
	argsSize := f.stack.pop()
	retOff := f.stack.pop()
	retSize := f.stack.pop()

	if !chargeMemory(f, argsOff.Uint64(), argsSize.Uint64()) {
		return fatalOOG()
	}
	if !chargeMemory(f, retOff.Uint64(), retSize.Uint64()) {
		return fatalOOG()
	}
	args := f.memory.get(argsOff.Uint64(), argsSize.Uint64())

	if !value.IsZero() {
		if !chargeAndCheck(f, gasCallValue) {
			return fatalOOG()
		}
	}
	if op == opCall && !f.state.Exists(target) {
		if !chargeAndCheck(f, gasNewAccount) {
			return fatalOOG()
		}
	}

	requestedGas := gasArg.Uint64()
	if requestedGas > f.gas {
		requestedGas = f.gas
	}
	f.gas -= requestedGas
	childGas := requestedGas
	if !value.IsZero() {
		childGas += gasCallStipend
	}

	if f.env.depth >= maxCallDepth {
		f.stack.push(uint256.NewInt(0))
		return evmcore.ExitSucceeded, nil
	}

	callAddr, codeAddr, callValue, isStatic := target, target, &value, f.state.IsStatic()
	switch op {
	case opCallCode:
		callAddr = f.address
	case opDelegateCall:
		callAddr = f.address
		callValue = f.value
	case opStaticCall:
		isStatic = true
		callValue = uint256.NewInt(0)
	}

	f.state.EnterCall(childGas, isStatic)
	f.env.depth++

	var reason evmcore.ExitReason
	var out []byte
	if pre, ok := f.env.precompiles[codeAddr]; ok {
		reqGas := pre.RequiredGas(args)
		if reqGas > childGas {
			reason, out = fatalOOG()
			childGas = 0
		} else {
			res, logs, err := pre.Run(f.effectiveCaller(op), callValue, args)
			childGas -= reqGas
			if err != nil {
				reason, out = evmcore.ExitErr(err.Error()), nil
			} else {
				for _, l := range logs {
					f.state.Log(l)
				}
				reason, out = evmcore.ExitSucceeded, res
			}
		}
	} else {
		code := f.state.GetCode(codeAddr)
		if op != opDelegateCall && !callValue.IsZero() {
			if !f.state.Transfer(f.address, callAddr, callValue) {
				f.state.ExitDiscard()
				f.env.depth--
				f.gas += requestedGas
				f.stack.push(uint256.NewInt(0))
				return evmcore.ExitSucceeded, nil
			}
		}
		childFrame := &frame{
			state:   f.state,
			env:     f.env,
			address: callAddr,
			caller:  f.effectiveCaller(op),
			value:   callValue,
			input:   args,
			code:    code,
			gas:     childGas,
			stack:   newStack(),
			memory:  newMemory(),
		}
		reason, out = run(childFrame)
		childGas = childFrame.gas
	}
	f.env.depth--

	if reason.IsSucceed() {
		f.state.ExitCommit()
		f.stack.push(uint256.NewInt(1))
	} else {
		f.state.ExitRevert()
		f.stack.push(uint256.NewInt(0))
	}
	// Refund whatever the child frame (or precompile) left unspent,
	// including any unused call stipend.
	f.gas += childGas

	f.returnData = out
	copySize := retSize.Uint64()
	if uint64(len(out)) < copySize {
		copySize = uint64(len(out))
	}
	if copySize > 0 {
		f.memory.set(retOff.Uint64(), out[:copySize])
	}
	return evmcore.ExitSucceeded, nil
}

func (f *frame) effectiveCaller(op opCode) common.Address {
	if op == opDelegateCall {
		return f.caller
	}
	return f.address
}
