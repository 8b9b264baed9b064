package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/pkg/types"
)

// ErrInsufficientFunds mirrors the node's rejection of an unaffordable value
var ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")

// NeverMine makes submitted transactions stay pending forever
const NeverMine = -1

type mockRequest struct {
	amount   *big.Int
	unlockAt time.Time
}

type mockTx struct {
	hash   common.Hash
	from   common.Address
	kind   types.TxKind
	value  *big.Int
	revert bool

	pollsLeft int
	receipt   *ethtypes.Receipt
}

// MockStakeContract is an in-memory staking contract with the same read and
// write surface as StakeContract. Deposits, unstake requests and withdrawals
// take effect when the transaction is mined; unstaked amounts unlock after
// types.LockWindow on the mock clock.
type MockStakeContract struct {
	mu sync.Mutex

	balances map[common.Address]*big.Int
	staked   map[common.Address]*big.Int
	requests map[common.Address][]mockRequest

	txs         map[common.Hash]*mockTx
	nonce       uint64
	block       int64
	miningDelay int

	offset      time.Duration
	now         func() time.Time
	submitErr   error
	revertNext  bool
	readErr     error
	submissions int
	reads       int
}

// NewMockStakeContract creates an empty mock that mines on the first receipt
// lookup after submission.
func NewMockStakeContract() *MockStakeContract {
	return &MockStakeContract{
		balances: make(map[common.Address]*big.Int),
		staked:   make(map[common.Address]*big.Int),
		requests: make(map[common.Address][]mockRequest),
		txs:      make(map[common.Hash]*mockTx),
		now:      time.Now,
	}
}

// Fund credits wei to address
func (m *MockStakeContract) Fund(address common.Address, wei *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[address] = new(big.Int).Add(m.balanceLocked(address), wei)
}

// Advance moves the mock clock forward
func (m *MockStakeContract) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset += d
}

// SetMiningDelay sets how many receipt lookups return NotFound before a
// transaction is mined. NeverMine keeps transactions pending.
func (m *MockStakeContract) SetMiningDelay(polls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.miningDelay = polls
}

// FailNextSubmit makes the next write call return err without creating a
// transaction.
func (m *MockStakeContract) FailNextSubmit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErr = err
}

// RevertNext makes the next submitted transaction revert when mined
func (m *MockStakeContract) RevertNext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revertNext = true
}

// FailReads makes view calls return err until called again with nil
func (m *MockStakeContract) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// Submissions returns the number of write calls that reached the contract
func (m *MockStakeContract) Submissions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submissions
}

// Reads returns the number of view and balance calls served
func (m *MockStakeContract) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *MockStakeContract) clock() time.Time {
	return m.now().Add(m.offset)
}

func (m *MockStakeContract) balanceLocked(address common.Address) *big.Int {
	if b, ok := m.balances[address]; ok {
		return b
	}
	return new(big.Int)
}

func (m *MockStakeContract) stakedLocked(address common.Address) *big.Int {
	if s, ok := m.staked[address]; ok {
		return s
	}
	return new(big.Int)
}

// BalanceAt returns the wallet balance of address
func (m *MockStakeContract) BalanceAt(_ context.Context, address common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	return new(big.Int).Set(m.balanceLocked(address)), nil
}

// StakingBalance returns the amount account has staked
func (m *MockStakeContract) StakingBalance(_ context.Context, pool uint64, account common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	if pool != types.DefaultPoolID {
		return new(big.Int), nil
	}
	return new(big.Int).Set(m.stakedLocked(account)), nil
}

// WithdrawAmount returns the requested total and its unlocked part
func (m *MockStakeContract) WithdrawAmount(_ context.Context, pool uint64, account common.Address) (*big.Int, *big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return nil, nil, m.readErr
	}
	requested, unlocked := new(big.Int), new(big.Int)
	if pool != types.DefaultPoolID {
		return requested, unlocked, nil
	}
	now := m.clock()
	for _, r := range m.requests[account] {
		requested.Add(requested, r.amount)
		if !now.Before(r.unlockAt) {
			unlocked.Add(unlocked, r.amount)
		}
	}
	return requested, unlocked, nil
}

// DepositETH queues a deposit of value from opts.From
func (m *MockStakeContract) DepositETH(opts *bind.TransactOpts, value *big.Int) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value.Cmp(m.balanceLocked(opts.From)) > 0 && m.submitErr == nil {
		m.submissions++
		return common.Hash{}, fmt.Errorf("failed to deposit: %w", ErrInsufficientFunds)
	}
	return m.submitLocked(opts.From, types.TxDeposit, value)
}

// Unstake queues an unstake request
func (m *MockStakeContract) Unstake(opts *bind.TransactOpts, pool uint64, amount *big.Int) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pool != types.DefaultPoolID {
		return common.Hash{}, fmt.Errorf("failed to unstake: invalid pool %d", pool)
	}
	return m.submitLocked(opts.From, types.TxUnstake, amount)
}

// Withdraw queues a withdrawal of all unlocked requests
func (m *MockStakeContract) Withdraw(opts *bind.TransactOpts, pool uint64) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pool != types.DefaultPoolID {
		return common.Hash{}, fmt.Errorf("failed to withdraw: invalid pool %d", pool)
	}
	return m.submitLocked(opts.From, types.TxWithdraw, nil)
}

func (m *MockStakeContract) submitLocked(from common.Address, kind types.TxKind, value *big.Int) (common.Hash, error) {
	m.submissions++
	if m.submitErr != nil {
		err := m.submitErr
		m.submitErr = nil
		return common.Hash{}, fmt.Errorf("failed to %s: %w", kind, err)
	}

	m.nonce++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], m.nonce)
	hash := crypto.Keccak256Hash(from.Bytes(), seed[:])

	tx := &mockTx{
		hash:      hash,
		from:      from,
		kind:      kind,
		revert:    m.revertNext,
		pollsLeft: m.miningDelay,
	}
	if value != nil {
		tx.value = new(big.Int).Set(value)
	}
	m.revertNext = false
	m.txs[hash] = tx

	logging.Debug("mock transaction submitted",
		logging.TxKind(string(kind)),
		logging.TxHash(hash),
		logging.Account(from),
		logging.Component("mock"))
	return hash, nil
}

// TransactionReceipt mines hash once its delay has elapsed. Unknown and
// unmined hashes return ethereum.NotFound.
func (m *MockStakeContract) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if tx.receipt != nil {
		return tx.receipt, nil
	}
	if tx.pollsLeft == NeverMine {
		return nil, ethereum.NotFound
	}
	if tx.pollsLeft > 0 {
		tx.pollsLeft--
		return nil, ethereum.NotFound
	}

	m.block++
	status := ethtypes.ReceiptStatusSuccessful
	if tx.revert || !m.applyLocked(tx) {
		status = ethtypes.ReceiptStatusFailed
	}
	tx.receipt = &ethtypes.Receipt{
		Status:      status,
		TxHash:      hash,
		BlockNumber: big.NewInt(m.block),
	}
	return tx.receipt, nil
}

// applyLocked executes tx against the ledger and reports whether it succeeded.
func (m *MockStakeContract) applyLocked(tx *mockTx) bool {
	switch tx.kind {
	case types.TxDeposit:
		balance := m.balanceLocked(tx.from)
		if tx.value.Sign() <= 0 || tx.value.Cmp(balance) > 0 {
			return false
		}
		m.balances[tx.from] = new(big.Int).Sub(balance, tx.value)
		m.staked[tx.from] = new(big.Int).Add(m.stakedLocked(tx.from), tx.value)

	case types.TxUnstake:
		staked := m.stakedLocked(tx.from)
		if tx.value.Sign() <= 0 || tx.value.Cmp(staked) > 0 {
			return false
		}
		m.staked[tx.from] = new(big.Int).Sub(staked, tx.value)
		m.requests[tx.from] = append(m.requests[tx.from], mockRequest{
			amount:   new(big.Int).Set(tx.value),
			unlockAt: m.clock().Add(types.LockWindow),
		})

	case types.TxWithdraw:
		now := m.clock()
		paid := new(big.Int)
		var remaining []mockRequest
		for _, r := range m.requests[tx.from] {
			if now.Before(r.unlockAt) {
				remaining = append(remaining, r)
				continue
			}
			paid.Add(paid, r.amount)
		}
		if paid.Sign() == 0 {
			return false
		}
		m.requests[tx.from] = remaining
		m.balances[tx.from] = new(big.Int).Add(m.balanceLocked(tx.from), paid)

	default:
		return false
	}
	return true
}

// MockWallet is a session backed by a MockStakeContract ledger
type MockWallet struct {
	contract *MockStakeContract
	address  common.Address
	canSign  bool
}

// NewMockWallet returns a signing wallet for address
func NewMockWallet(contract *MockStakeContract, address common.Address) *MockWallet {
	return &MockWallet{contract: contract, address: address, canSign: true}
}

// NewMockReadOnlyWallet returns a wallet without a signer
func NewMockReadOnlyWallet(contract *MockStakeContract, address common.Address) *MockWallet {
	return &MockWallet{contract: contract, address: address}
}

// Account returns the wallet address
func (w *MockWallet) Account() common.Address {
	return w.address
}

// CanSign reports whether the wallet can sign
func (w *MockWallet) CanSign() bool {
	return w.canSign
}

// Balance returns the ledger balance
func (w *MockWallet) Balance(ctx context.Context) (*big.Int, error) {
	return w.contract.BalanceAt(ctx, w.address)
}

// TransactOpts returns unsigned options carrying the sender
func (w *MockWallet) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if !w.canSign {
		return nil, types.ErrNoSigner
	}
	return &bind.TransactOpts{From: w.address, Context: ctx}, nil
}
