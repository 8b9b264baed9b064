package doctor

import (
	"context"

	"github.com/rccstake/rccstake/internal/config"
)

// ConfigChecker validates the loaded configuration. Live mode additionally
// requires an RPC URL and a contract address.
type ConfigChecker struct {
	config *config.Config
	live   bool
}

func NewConfigChecker(cfg *config.Config, live bool) *ConfigChecker {
	return &ConfigChecker{config: cfg, live: live}
}

func (c *ConfigChecker) Name() string       { return "Configuration" }
func (c *ConfigChecker) Category() Category { return CategoryConfig }

func (c *ConfigChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     c.Name(),
		Category: c.Category(),
	}

	validate := c.config.Validate
	if c.live {
		validate = c.config.ValidateLive
	}
	if err := validate(); err != nil {
		result.Status = StatusError
		result.Message = "Configuration: Invalid"
		result.Details = err.Error()
		result.FixCommand = "rccstake config init --force"
		return result
	}

	result.Status = StatusOK
	result.Message = "Configuration: Valid"
	if c.live {
		result.Details = "chain " + c.config.Chain.RPCURL
	}
	return result
}
