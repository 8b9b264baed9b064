package doctor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainProbe is the part of the RPC client the chain checks need.
// *chain.Client implements it.
type ChainProbe interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	ChainID() *big.Int
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
}

// RPCChecker connects to the endpoint and verifies the chain id. It leaves
// the probe connected for the checks that follow.
type RPCChecker struct {
	probe  ChainProbe
	rpcURL string
}

func NewRPCChecker(probe ChainProbe, rpcURL string) *RPCChecker {
	return &RPCChecker{probe: probe, rpcURL: rpcURL}
}

func (c *RPCChecker) Name() string       { return "RPC endpoint" }
func (c *RPCChecker) Category() Category { return CategoryChain }

func (c *RPCChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     c.Name(),
		Category: c.Category(),
	}
	if c.probe == nil {
		result.Status = StatusSkipped
		result.Message = "RPC endpoint: Skipped in mock mode"
		return result
	}

	if !c.probe.IsConnected() {
		if err := c.probe.Connect(ctx); err != nil {
			result.Status = StatusError
			result.Message = "RPC endpoint: Unreachable"
			result.Details = err.Error()
			return result
		}
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("RPC endpoint: Chain %s", c.probe.ChainID())
	result.Details = c.rpcURL
	return result
}

// ContractChecker checks that the configured address holds contract code
type ContractChecker struct {
	probe   ChainProbe
	address common.Address
}

func NewContractChecker(probe ChainProbe, address common.Address) *ContractChecker {
	return &ContractChecker{probe: probe, address: address}
}

func (c *ContractChecker) Name() string       { return "Stake contract" }
func (c *ContractChecker) Category() Category { return CategoryChain }

func (c *ContractChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     c.Name(),
		Category: c.Category(),
	}
	if c.probe == nil {
		result.Status = StatusSkipped
		result.Message = "Stake contract: Skipped in mock mode"
		return result
	}
	if !c.probe.IsConnected() {
		result.Status = StatusSkipped
		result.Message = "Stake contract: Skipped, RPC not connected"
		return result
	}

	code, err := c.probe.CodeAt(ctx, c.address)
	if err != nil {
		result.Status = StatusError
		result.Message = "Stake contract: Unable to check"
		result.Details = err.Error()
		return result
	}
	if len(code) == 0 {
		result.Status = StatusError
		result.Message = fmt.Sprintf("Stake contract: No code at %s", shortAddress(c.address.Hex()))
		result.Details = "Check contract.address and chain.chain_id"
		return result
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("Stake contract: Deployed at %s", shortAddress(c.address.Hex()))
	return result
}
