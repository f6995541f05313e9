package types

import "fmt"

// NotSupportedError reports an unknown network or asset.
type NotSupportedError struct {
	Kind string // "network", "asset" or "transaction"
	Name string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("unsupported %s: %s", e.Kind, e.Name)
}

// NewNotSupported creates a NotSupportedError.
func NewNotSupported(kind, name string) *NotSupportedError {
	return &NotSupportedError{Kind: kind, Name: name}
}

// InvalidHeaderError reports a malformed or incomplete payment header.
type InvalidHeaderError struct {
	Reason string
}

func (e *InvalidHeaderError) Error() string {
	return e.Reason
}

// NewInvalidHeader creates an InvalidHeaderError.
func NewInvalidHeader(reason string) *InvalidHeaderError {
	return &InvalidHeaderError{Reason: reason}
}

// SettlementError represents an on-chain submission or receipt failure.
// Expected failure shapes (insufficient balance, nonce used) are caught
// upstream by the Verifier; SettlementError is for the unexpected ones.
type SettlementError struct {
	Reason string
	Payer  string
	Chain  string
	TxHash string
	Err    error
}

func (e *SettlementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("settlement failed: %s (%s)", e.Reason, e.Err.Error())
	}
	return fmt.Sprintf("settlement failed: %s", e.Reason)
}

func (e *SettlementError) Unwrap() error { return e.Err }

// NewSettlementError creates a SettlementError.
func NewSettlementError(reason, payer, chain, txHash string, err error) *SettlementError {
	return &SettlementError{Reason: reason, Payer: payer, Chain: chain, TxHash: txHash, Err: err}
}

// ConfigError is fatal at startup: missing required env or an unparseable registry.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

// NewConfigError creates a ConfigError.
func NewConfigError(reason string) *ConfigError { return &ConfigError{Reason: reason} }
