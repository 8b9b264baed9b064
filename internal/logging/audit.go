package logging

// AuditEvent records a value-transferring operation
type AuditEvent struct {
	Operation string // "deposit", "unstake", "withdraw"
	Account   string // signer address
	Contract  string // staking contract address
	Amount    string // decimal ETH, empty for withdraw
	Result    string // "submitted", "confirmed", "failed"
	Details   string
}

// Audit logs an AuditEvent at info level under the "audit" attribute so it
// can be filtered from regular logs.
func Audit(event AuditEvent) {
	Logger().Info("audit",
		"audit", true,
		"operation", event.Operation,
		"account", event.Account,
		"contract", event.Contract,
		"amount", event.Amount,
		"result", event.Result,
		"details", event.Details,
	)
}
