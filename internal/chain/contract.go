package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// StakeContractABI covers the subset of the RCC staking contract the client
// reads and drives.
const StakeContractABI = `[
	{
		"inputs": [
			{"name": "_pid", "type": "uint256"},
			{"name": "_user", "type": "address"}
		],
		"name": "stakingBalance",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "_pid", "type": "uint256"},
			{"name": "_user", "type": "address"}
		],
		"name": "withdrawAmount",
		"outputs": [
			{"name": "requestAmount", "type": "uint256"},
			{"name": "pendingWithdrawAmount", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "depositETH",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "_pid", "type": "uint256"},
			{"name": "_amount", "type": "uint256"}
		],
		"name": "unstake",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "_pid", "type": "uint256"}],
		"name": "withdraw",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// StakeContract is the on-chain binding of the staking contract
type StakeContract struct {
	client   *Client
	address  common.Address
	contract *bind.BoundContract
}

// NewStakeContract binds the contract at address. The client must be
// connected; use NewMockStakeContract for tests.
func NewStakeContract(client *Client, address common.Address) (*StakeContract, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required (use NewMockStakeContract for testing)")
	}
	backend := client.contractBackend()
	if backend == nil {
		return nil, ErrNotConnected
	}

	parsedABI, err := abi.JSON(strings.NewReader(StakeContractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse staking ABI: %w", err)
	}

	return &StakeContract{
		client:   client,
		address:  address,
		contract: bind.NewBoundContract(address, parsedABI, backend, backend, backend),
	}, nil
}

// Address returns the contract address
func (sc *StakeContract) Address() common.Address {
	return sc.address
}

// StakingBalance returns the amount account has staked in pool
func (sc *StakeContract) StakingBalance(ctx context.Context, pool uint64, account common.Address) (*big.Int, error) {
	if _, err := sc.client.backend(ctx); err != nil {
		return nil, err
	}

	var result []interface{}
	err := sc.contract.Call(&bind.CallOpts{Context: ctx}, &result, "stakingBalance", new(big.Int).SetUint64(pool), account)
	if err != nil {
		return nil, fmt.Errorf("failed to get staking balance: %w", err)
	}
	if len(result) != 1 {
		return nil, fmt.Errorf("stakingBalance: unexpected result length %d", len(result))
	}
	balance, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("stakingBalance: unexpected result type %T", result[0])
	}
	return balance, nil
}

// WithdrawAmount returns the total requested unstake amount and the part of
// it that has cleared the lock window.
func (sc *StakeContract) WithdrawAmount(ctx context.Context, pool uint64, account common.Address) (requestAmount, pendingWithdrawAmount *big.Int, err error) {
	if _, err := sc.client.backend(ctx); err != nil {
		return nil, nil, err
	}

	var result []interface{}
	err = sc.contract.Call(&bind.CallOpts{Context: ctx}, &result, "withdrawAmount", new(big.Int).SetUint64(pool), account)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get withdraw amount: %w", err)
	}
	if len(result) != 2 {
		return nil, nil, fmt.Errorf("withdrawAmount: unexpected result length %d", len(result))
	}
	requestAmount, ok1 := result[0].(*big.Int)
	pendingWithdrawAmount, ok2 := result[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, nil, fmt.Errorf("withdrawAmount: unexpected result types %T, %T", result[0], result[1])
	}
	return requestAmount, pendingWithdrawAmount, nil
}

// DepositETH stakes value wei into the ETH pool
func (sc *StakeContract) DepositETH(opts *bind.TransactOpts, value *big.Int) (common.Hash, error) {
	auth := *opts
	auth.Value = new(big.Int).Set(value)

	tx, err := sc.contract.Transact(&auth, "depositETH")
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to deposit: %w", err)
	}
	return tx.Hash(), nil
}

// Unstake requests amount wei out of pool, starting the lock window
func (sc *StakeContract) Unstake(opts *bind.TransactOpts, pool uint64, amount *big.Int) (common.Hash, error) {
	auth := *opts
	auth.Value = nil

	tx, err := sc.contract.Transact(&auth, "unstake", new(big.Int).SetUint64(pool), amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to unstake: %w", err)
	}
	return tx.Hash(), nil
}

// Withdraw pays out everything in pool that has cleared the lock window
func (sc *StakeContract) Withdraw(opts *bind.TransactOpts, pool uint64) (common.Hash, error) {
	auth := *opts
	auth.Value = nil

	tx, err := sc.contract.Transact(&auth, "withdraw", new(big.Int).SetUint64(pool))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to withdraw: %w", err)
	}
	return tx.Hash(), nil
}
