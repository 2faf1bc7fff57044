// Copyright 2025 Certen Protocol

// Package token implements OFUEL, the single native meta-token: an
// ERC-20-shaped precompile whose balances, allowances and supply live
// directly in versioned backing maps instead of contract storage. It is
// reachable both as the fee-payment account model consulted by pkg/ovrtx
// and, via pkg/evmvm's Precompile seam, as an ordinary-looking contract
// address callable from Solidity code.
package token

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ovrchain/ovrd/pkg/evmcore"
	"github.com/ovrchain/ovrd/pkg/vkv"
)

// Address is OFUEL's well-known contract address, 0x...1000.
var Address = common.BytesToAddress([]byte{0x10, 0x00})

const decimals = 18

// Gas costs per selector, taken from the standard OpenZeppelin ERC-20
// implementation's measured costs.
const (
	gasName         = 3283
	gasSymbol       = 3437
	gasDecimals     = 243
	gasTotalSupply  = 1003
	gasBalanceOf    = 1350
	gasAllowance    = 1624
	gasTransfer     = 23661
	gasApprove      = 20750
	gasTransferFrom = 6610
)

var (
	transferSelector = crypto.Keccak256([]byte("Transfer(address,address,uint256)"))
	approvalSelector = crypto.Keccak256([]byte("Approval(address,address,uint256)"))

	nameBytes   = abiString("Overeality")
	symbolBytes = abiString("OFUEL")
)

// Account is the balance/nonce/code record backing an OFUEL holder. This is
// the same shape as an ordinary EVM account (see evmcore.Basic) plus code,
// since OFUEL is this system's sole account model.
type Account struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
}

// Token is OFUEL's state: an address->Account map, an (address,slot)->value
// storage map (kept for account-model parity though the selectors below
// never populate it), an (owner,spender)->allowance map, and a versioned
// total-supply cell.
type Token struct {
	accounts   *vkv.OrderedMap[common.Address, Account]
	storages   *vkv.DualKeyMap[common.Address, common.Hash, common.Hash]
	allowances *vkv.DualKeyMap[common.Address, common.Address, uint256Wire]
	supply     *vkv.Orphan[uint256Wire]
}

// uint256Wire is the JSON-friendly representation stored in VKV; uint256.Int
// marshals awkwardly via encoding/json on its own, so values round-trip
// through a decimal string.
type uint256Wire string

func toWire(v *uint256.Int) uint256Wire {
	if v == nil {
		return "0"
	}
	return uint256Wire(v.Dec())
}

func fromWire(w uint256Wire) *uint256.Int {
	v, ok := new(uint256.Int).SetFromDecimal(string(w))
	if !ok {
		return uint256.NewInt(0)
	}
	return v
}

var addressCodec = vkv.KeyCodec[common.Address]{
	Encode: func(a common.Address) []byte { return a.Bytes() },
	Decode: func(b []byte) common.Address { return common.BytesToAddress(b) },
}

var hashCodec = vkv.KeyCodec[common.Hash]{
	Encode: func(h common.Hash) []byte { return h.Bytes() },
	Decode: func(b []byte) common.Hash { return common.BytesToHash(b) },
}

// New binds a Token to the given VKV store, scoped to branch.
func New(store *vkv.Store, branch vkv.BranchName) *Token {
	return &Token{
		accounts:   vkv.NewOrderedMap[common.Address, Account](store, "ofuel:accounts", branch, addressCodec),
		storages:   vkv.NewDualKeyMap[common.Address, common.Hash, common.Hash](store, "ofuel:storages", branch, addressCodec, hashCodec),
		allowances: vkv.NewDualKeyMap[common.Address, common.Address, uint256Wire](store, "ofuel:allowances", branch, addressCodec, addressCodec),
		supply:     vkv.NewOrphan[uint256Wire](store, "ofuel:supply", branch),
	}
}

// OnBranch returns a Token view pinned to a different branch of the same
// store, mirroring vkv's container OnBranch pattern.
func (t *Token) OnBranch(branch vkv.BranchName) *Token {
	return &Token{
		accounts:   t.accounts.OnBranch(branch),
		storages:   t.storages.OnBranch(branch),
		allowances: t.allowances.OnBranch(branch),
		supply:     t.supply.OnBranch(branch),
	}
}

// Get returns addr's Account, or the zero Account if none exists.
func (t *Token) Get(addr common.Address) Account {
	acc, ok, err := t.accounts.Get(addr)
	if err != nil || !ok {
		return Account{Balance: uint256.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = uint256.NewInt(0)
	}
	return acc
}

func (t *Token) set(ver vkv.Version, addr common.Address, acc Account) error {
	return t.accounts.Insert(ver, addr, acc)
}

// CreditGenesis sets addr's balance directly, used only by InitChain.
func (t *Token) CreditGenesis(ver vkv.Version, addr common.Address, amount *uint256.Int) error {
	acc := t.Get(addr)
	acc.Balance = new(uint256.Int).Add(acc.Balance, amount)
	if err := t.set(ver, addr, acc); err != nil {
		return err
	}
	supply, _, err := t.supply.Get()
	if err != nil {
		return err
	}
	newSupply := new(uint256.Int).Add(fromWire(supply), amount)
	return t.supply.Set(ver, toWire(newSupply))
}

// ChargeFee bumps addr's nonce by one and subtracts fee from its balance,
// saturating at zero rather than going negative. Used by pkg/ovrtx to charge
// the sender once per delivered transaction, independent of whether the
// transaction's own execution committed or was rolled back.
func (t *Token) ChargeFee(ver vkv.Version, addr common.Address, fee *uint256.Int) error {
	acc := t.Get(addr)
	acc.Nonce++
	if acc.Balance.Cmp(fee) < 0 {
		acc.Balance = uint256.NewInt(0)
	} else {
		acc.Balance = new(uint256.Int).Sub(acc.Balance, fee)
	}
	return t.set(ver, addr, acc)
}

func (t *Token) allowance(owner, spender common.Address) *uint256.Int {
	w, ok, err := t.allowances.Get(owner, spender)
	if err != nil || !ok {
		return uint256.NewInt(0)
	}
	return fromWire(w)
}

func (t *Token) totalSupply() *uint256.Int {
	w, _, err := t.supply.Get()
	if err != nil {
		return uint256.NewInt(0)
	}
	return fromWire(w)
}

// RequiredGas reports the fixed cost of the selector encoded in input.
func (t *Token) RequiredGas(input []byte) uint64 {
	switch selectorOf(input) {
	case selName:
		return gasName
	case selSymbol:
		return gasSymbol
	case selDecimals:
		return gasDecimals
	case selTotalSupply:
		return gasTotalSupply
	case selBalanceOf:
		return gasBalanceOf
	case selAllowance:
		return gasAllowance
	case selTransfer:
		return gasTransfer
	case selTransferFrom:
		return gasTransferFrom
	case selApprove:
		return gasApprove
	default:
		return 0
	}
}

// Bound pins a Token to the version a single transaction writes through,
// satisfying pkg/evmvm.Precompile's state-free Run signature. One Bound is
// constructed per transaction by whichever state branch is executing it.
type Bound struct {
	token *Token
	ver   vkv.Version
}

// Bind returns a Precompile view of t scoped to ver.
func (t *Token) Bind(ver vkv.Version) Bound {
	return Bound{token: t, ver: ver}
}

func (b Bound) RequiredGas(input []byte) uint64 { return b.token.RequiredGas(input) }

func (b Bound) Run(caller common.Address, value *uint256.Int, input []byte) ([]byte, []evmcore.Log, error) {
	return b.token.run(caller, value, input, b.ver)
}

// run dispatches one OFUEL call against ver.
func (t *Token) run(caller common.Address, value *uint256.Int, input []byte, ver vkv.Version) ([]byte, []evmcore.Log, error) {
	switch selectorOf(input) {
	case selName:
		return nameBytes, nil, nil
	case selSymbol:
		return symbolBytes, nil, nil
	case selDecimals:
		return abiUint64(decimals), nil, nil
	case selTotalSupply:
		return abiUint256(t.totalSupply()), nil, nil
	case selBalanceOf:
		owner, err := readAddress(input, 0)
		if err != nil {
			return nil, nil, err
		}
		return abiUint256(t.Get(owner).Balance), nil, nil
	case selAllowance:
		owner, err := readAddress(input, 0)
		if err != nil {
			return nil, nil, err
		}
		spender, err := readAddress(input, 1)
		if err != nil {
			return nil, nil, err
		}
		return abiUint256(t.allowance(owner, spender)), nil, nil
	case selTransfer:
		return t.transfer(ver, caller, input)
	case selTransferFrom:
		return t.transferFrom(ver, caller, input)
	case selApprove:
		return t.approve(ver, caller, input)
	default:
		return nil, nil, errors.New("unknown OFUEL selector")
	}
}

func (t *Token) transfer(ver vkv.Version, caller common.Address, input []byte) ([]byte, []evmcore.Log, error) {
	recipient, err := readAddress(input, 0)
	if err != nil {
		return nil, nil, err
	}
	if recipient == (common.Address{}) {
		return nil, nil, errors.New("transfer to the zero address")
	}
	amount, err := readUint256(input, 1)
	if err != nil {
		return nil, nil, err
	}

	c := t.Get(caller)
	if c.Balance.Cmp(amount) < 0 {
		return nil, nil, errors.New("insufficient balance")
	}
	r := t.Get(recipient)

	c.Nonce++
	c.Balance = new(uint256.Int).Sub(c.Balance, amount)
	r.Balance = new(uint256.Int).Add(r.Balance, amount)

	if err := t.set(ver, caller, c); err != nil {
		return nil, nil, err
	}
	if err := t.set(ver, recipient, r); err != nil {
		return nil, nil, err
	}

	log := transferLog(caller, recipient, amount)
	return abiBool(true), []evmcore.Log{log}, nil
}

func (t *Token) transferFrom(ver vkv.Version, caller common.Address, input []byte) ([]byte, []evmcore.Log, error) {
	from, err := readAddress(input, 0)
	if err != nil {
		return nil, nil, err
	}
	if from == (common.Address{}) {
		return nil, nil, errors.New("transfer from the zero address")
	}
	recipient, err := readAddress(input, 1)
	if err != nil {
		return nil, nil, err
	}
	if recipient == (common.Address{}) {
		return nil, nil, errors.New("transfer to the zero address")
	}
	amount, err := readUint256(input, 2)
	if err != nil {
		return nil, nil, err
	}

	allowance := t.allowance(from, caller)
	if allowance.Cmp(amount) < 0 {
		return nil, nil, errors.New("transfer amount exceeds allowance")
	}
	c := t.Get(caller)
	f := t.Get(from)
	if f.Balance.Cmp(amount) < 0 {
		return nil, nil, errors.New("insufficient balance")
	}
	r := t.Get(recipient)

	c.Nonce++
	f.Balance = new(uint256.Int).Sub(f.Balance, amount)
	r.Balance = new(uint256.Int).Add(r.Balance, amount)
	newAllowance := new(uint256.Int).Sub(allowance, amount)

	if err := t.set(ver, caller, c); err != nil {
		return nil, nil, err
	}
	if err := t.set(ver, from, f); err != nil {
		return nil, nil, err
	}
	if err := t.set(ver, recipient, r); err != nil {
		return nil, nil, err
	}
	if err := t.allowances.Insert(ver, from, caller, toWire(newAllowance)); err != nil {
		return nil, nil, err
	}

	logs := []evmcore.Log{
		transferLog(from, recipient, amount),
		approvalLog(from, caller, newAllowance),
	}
	return abiBool(true), logs, nil
}

// approve adds amount onto the existing allowance rather than replacing it,
// matching the behavior observed in this system's predecessor rather than
// the standard ERC-20 replace semantics.
func (t *Token) approve(ver vkv.Version, caller common.Address, input []byte) ([]byte, []evmcore.Log, error) {
	spender, err := readAddress(input, 0)
	if err != nil {
		return nil, nil, err
	}
	if spender == (common.Address{}) {
		return nil, nil, errors.New("approve to the zero address")
	}
	amount, err := readUint256(input, 1)
	if err != nil {
		return nil, nil, err
	}

	c := t.Get(caller)
	c.Nonce++
	newAllowance := saturatingAdd(t.allowance(caller, spender), amount)

	if err := t.set(ver, caller, c); err != nil {
		return nil, nil, err
	}
	if err := t.allowances.Insert(ver, caller, spender, toWire(newAllowance)); err != nil {
		return nil, nil, err
	}

	log := approvalLog(caller, spender, newAllowance)
	return abiBool(true), []evmcore.Log{log}, nil
}

func saturatingAdd(a, b *uint256.Int) *uint256.Int {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return sum
}

func transferLog(from, to common.Address, amount *uint256.Int) evmcore.Log {
	return evmcore.Log{
		Address: Address,
		Topics: []common.Hash{
			common.BytesToHash(transferSelector),
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: padTo32(amount.Bytes()),
	}
}

func approvalLog(owner, spender common.Address, amount *uint256.Int) evmcore.Log {
	return evmcore.Log{
		Address: Address,
		Topics: []common.Hash{
			common.BytesToHash(approvalSelector),
			common.BytesToHash(owner.Bytes()),
			common.BytesToHash(spender.Bytes()),
		},
		Data: padTo32(amount.Bytes()),
	}
}

// --- minimal hand-rolled ABI encode/decode: 4-byte selector + 32-byte words ---

type selector uint32

const (
	selUnknown selector = iota
	selName
	selSymbol
	selDecimals
	selTotalSupply
	selBalanceOf
	selAllowance
	selTransfer
	selTransferFrom
	selApprove
)

var selectorFor = map[selector][]byte{
	selName:         crypto.Keccak256([]byte("name()"))[:4],
	selSymbol:       crypto.Keccak256([]byte("symbol()"))[:4],
	selDecimals:     crypto.Keccak256([]byte("decimals()"))[:4],
	selTotalSupply:  crypto.Keccak256([]byte("totalSupply()"))[:4],
	selBalanceOf:    crypto.Keccak256([]byte("balanceOf(address)"))[:4],
	selAllowance:    crypto.Keccak256([]byte("allowance(address,address)"))[:4],
	selTransfer:     crypto.Keccak256([]byte("transfer(address,uint256)"))[:4],
	selTransferFrom: crypto.Keccak256([]byte("transferFrom(address,address,uint256)"))[:4],
	selApprove:      crypto.Keccak256([]byte("approve(address,uint256)"))[:4],
}

func selectorOf(input []byte) selector {
	if len(input) < 4 {
		return selUnknown
	}
	for s, b := range selectorFor {
		if common.Bytes2Hex(b) == common.Bytes2Hex(input[:4]) {
			return s
		}
	}
	return selUnknown
}

func readAddress(input []byte, argIndex int) (common.Address, error) {
	start := 4 + argIndex*32
	if len(input) < start+32 {
		return common.Address{}, errors.New("calldata too short")
	}
	return common.BytesToAddress(input[start : start+32]), nil
}

func readUint256(input []byte, argIndex int) (*uint256.Int, error) {
	start := 4 + argIndex*32
	if len(input) < start+32 {
		return nil, errors.New("calldata too short")
	}
	return new(uint256.Int).SetBytes(input[start : start+32]), nil
}

func abiBool(v bool) []byte {
	out := make([]byte, 32)
	if v {
		out[31] = 1
	}
	return out
}

func abiUint64(v uint64) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:], v)
	return out
}

func abiUint256(v *uint256.Int) []byte {
	out := make([]byte, 32)
	v.WriteToSlice(out)
	return out
}

func abiString(s string) []byte {
	// offset(32) + length(32) + data padded to a multiple of 32 bytes.
	data := []byte(s)
	out := make([]byte, 0, 64+padRight32(data))
	out = append(out, abiUint64(32)...)
	out = append(out, abiUint64(uint64(len(data)))...)
	out = append(out, padRightBytes(data)...)
	return out
}

// padTo32 left-pads b (a big-endian numeric value) to 32 bytes, used for log
// data such as transferred amounts.
func padTo32(b []byte) []byte {
	out := make([]byte, 32)
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}

// padRight32 reports the padded length of b rounded up to a multiple of 32.
func padRight32(b []byte) int {
	if len(b) == 0 {
		return 32
	}
	rem := len(b) % 32
	if rem == 0 {
		return len(b)
	}
	return len(b) + (32 - rem)
}

// padRightBytes right-pads b (raw string data) with zero bytes to a multiple
// of 32 bytes.
func padRightBytes(b []byte) []byte {
	out := make([]byte, padRight32(b))
	copy(out, b)
	return out
}
