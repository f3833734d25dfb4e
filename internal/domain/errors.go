package domain

import "fmt"

// MalformedPayloadError means an adapter could not parse an inbound payload.
// The event is logged and discarded; the provider is still acknowledged so a
// permanently unparseable payload does not cause a retry loop.
type MalformedPayloadError struct {
	Provider string
	Reason   string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload from %s: %s", e.Provider, e.Reason)
}

// AuthenticationError means a provider's signature/secret/origin check failed.
// No state change is applied; the delivery is acknowledged and flagged for
// security review.
type AuthenticationError struct {
	Provider string
	Reason   string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %s", e.Provider, e.Reason)
}

// InvalidTransitionError means an event targeted a transition the state machine
// does not permit from the transaction's current state.
type InvalidTransitionError struct {
	TransactionID string
	From          TransactionStatus
	Reported      ReportedStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transaction %s: reported status %q not applicable from %s",
		e.TransactionID, e.Reported, e.From)
}

// InsufficientFundsError means a balance reservation asked for more than the
// merchant's available balance.
type InsufficientFundsError struct {
	MerchantID string
	Available  int64
	Requested  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("merchant %s: insufficient funds (available %d, requested %d)",
		e.MerchantID, e.Available, e.Requested)
}

// InvalidDisputeTargetError means a dispute referenced a transaction that is
// not COMPLETED or SETTLED.
type InvalidDisputeTargetError struct {
	TransactionID string
	Status        TransactionStatus
}

func (e *InvalidDisputeTargetError) Error() string {
	return fmt.Sprintf("transaction %s in state %s cannot be disputed", e.TransactionID, e.Status)
}

// StorageUnavailableError wraps a storage collaborator failure. It is the only
// error class a webhook answers non-200 for, signaling the provider to retry.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }
