package contracts

// LedgerAction names what a ledger entry records.
type LedgerAction string

const (
	ActionRoleOutput        LedgerAction = "role_output"
	ActionRoleFailure       LedgerAction = "role_failure"
	ActionRoleTimeout       LedgerAction = "role_timeout"
	ActionTransportError    LedgerAction = "transport_error"
	ActionConfigError       LedgerAction = "config_error"
	ActionComposeReport     LedgerAction = "compose_report"
	ActionGovernanceSummary LedgerAction = "governance_summary"
	ActionRollover          LedgerAction = "rollover"
)

// GenesisHash is the prev_hash of the first ledger entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// LedgerEntry is one line of the signed, hash-chained audit ledger.
//
// The signing substrate is the canonical serialization (sorted keys, no
// whitespace) of exactly the fields returned by CanonicalFields. ThisHash is
// SHA-256 over that serialization concatenated with the hex signature, so
// any mutation of a signed field breaks both the signature and the chain.
type LedgerEntry struct {
	Seq         uint64         `json:"seq"`
	TS          string         `json:"ts"`
	SessionID   string         `json:"session_id"`
	Role        string         `json:"role"`
	Action      LedgerAction   `json:"action"`
	PayloadHash string         `json:"payload_hash"`
	PrevHash    string         `json:"prev_hash"`
	ThisHash    string         `json:"this_hash"`
	Signature   string         `json:"signature"`
	SignerKeyID string         `json:"signer_key_id"`
	ConfigHash  string         `json:"config_hash"`
	SoftSignals []string       `json:"soft_signals,omitempty"`
	HardActions []string       `json:"hard_actions,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// CanonicalFields returns the signed subset of the entry. Map keys sort
// lexicographically under RFC 8785, which fixes the wire order:
// action, config_hash, payload_hash, prev_hash, role, seq, session_id, ts.
func (e *LedgerEntry) CanonicalFields() map[string]any {
	return map[string]any{
		"seq":          e.Seq,
		"ts":           e.TS,
		"session_id":   e.SessionID,
		"role":         e.Role,
		"action":       string(e.Action),
		"payload_hash": e.PayloadHash,
		"prev_hash":    e.PrevHash,
		"config_hash":  e.ConfigHash,
	}
}
