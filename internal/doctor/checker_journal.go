package doctor

import (
	"context"

	"github.com/rccstake/rccstake/internal/config"
	"github.com/rccstake/rccstake/internal/journal"
)

// JournalChecker opens the transaction journal. A running "rccstake serve"
// holds the database lock, which shows up here as an error.
type JournalChecker struct {
	config config.JournalConfig
}

func NewJournalChecker(cfg config.JournalConfig) *JournalChecker {
	return &JournalChecker{config: cfg}
}

func (c *JournalChecker) Name() string       { return "Journal" }
func (c *JournalChecker) Category() Category { return CategoryStorage }

func (c *JournalChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     c.Name(),
		Category: c.Category(),
	}
	if !c.config.Enabled {
		result.Status = StatusSkipped
		result.Message = "Journal: Disabled"
		return result
	}

	j, err := journal.Open(c.config.Path)
	if err != nil {
		result.Status = StatusError
		result.Message = "Journal: Unable to open"
		result.Details = err.Error()
		return result
	}
	j.Close()

	result.Status = StatusOK
	result.Message = "Journal: Writable"
	result.Details = c.config.Path
	return result
}
