package domain

import "time"

// EventOutcome is the recorded result of processing one provider event.
type EventOutcome string

const (
	// OutcomeReserved marks an in-flight reservation: the winner of the dedup
	// race has claimed the event but not yet committed its side effects.
	OutcomeReserved EventOutcome = "reserved"
	// OutcomeApplied means the event caused a state transition.
	OutcomeApplied EventOutcome = "applied"
	// OutcomeRejected means the event targeted a transition not permitted from
	// the transaction's current state; retries are answered from this record
	// without re-attempting.
	OutcomeRejected EventOutcome = "rejected"
)

// IdempotencyRecord pins a (provider_name, provider_event_id) pair to its
// processing outcome. Insertion is atomic; a duplicate key never triggers a
// second side effect. Records are never mutated after commit.
type IdempotencyRecord struct {
	ProviderName    string       `json:"provider_name"`
	ProviderEventID string       `json:"provider_event_id"`
	FirstSeenAt     time.Time    `json:"first_seen_at"`
	TransactionID   string       `json:"resulting_transaction_id,omitempty"`
	Outcome         EventOutcome `json:"outcome"`
}
