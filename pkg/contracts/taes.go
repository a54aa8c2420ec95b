package contracts

// TAESRecord is the tri-axis evaluation of one role output.
//
// IV is always the canonical weighting 0.5/0.35/0.15 regardless of domain;
// DomainQuality is the same sub-scores aggregated with the domain weight
// table. Governance gates operate on IV only.
type TAESRecord struct {
	Role          RoleName `json:"role"`
	Domain        Domain   `json:"domain"`
	Logical       float64  `json:"logical"`
	Practical     float64  `json:"practical"`
	Probable      float64  `json:"probable"`
	IV            float64  `json:"iv"`
	DomainQuality float64  `json:"domain_quality"`
	IRD           float64  `json:"ird"`

	ContradictionCount int `json:"contradiction_count"`
	HedgeCount         int `json:"hedge_count"`

	RequiresReconciliation bool `json:"requires_reconciliation"`
	Reconciled             bool `json:"reconciled,omitempty"`
}

// GovernanceOutcome records what the coupling layer did to one TAES record.
// Hard directives may only lower IV and raise IRD.
type GovernanceOutcome struct {
	HardActions []string `json:"hard_actions,omitempty"`
	SoftSignals []string `json:"soft_signals,omitempty"`
	IVBefore    float64  `json:"iv_before"`
	IVAfter     float64  `json:"iv_after"`
	IRDBefore   float64  `json:"ird_before"`
	IRDAfter    float64  `json:"ird_after"`
}

// RoleResult bundles everything the chain produced for one role.
type RoleResult struct {
	Output      string             `json:"output"`
	TAES        *TAESRecord        `json:"taes,omitempty"`
	Governance  *GovernanceOutcome `json:"governance,omitempty"`
	Temperature float64            `json:"temperature"`
}

// ErrorKind classifies a chain error for the results error list.
type ErrorKind string

const (
	ErrKindTransport  ErrorKind = "transport_error"
	ErrKindParse      ErrorKind = "parse_error"
	ErrKindValidation ErrorKind = "validation_error"
	ErrKindTimeout    ErrorKind = "role_timeout"
	ErrKindConfig     ErrorKind = "config_error"
	ErrKindRole       ErrorKind = "role_failure"
)

// ChainError is one non-fatal or fatal failure surfaced in results.
type ChainError struct {
	Role    RoleName  `json:"role"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// GovernanceSummary aggregates governance activity over a whole session.
type GovernanceSummary struct {
	Signals     []string           `json:"signals"`
	SoftSignals []string           `json:"soft_signals"`
	NoGo        bool               `json:"no_go"`
	RequiresRRP bool               `json:"requires_rrp"`
	Redundancy  map[string]float64 `json:"redundancy,omitempty"`
}

// DisalignmentAlert flags sustained high IRD across recent sessions.
type DisalignmentAlert struct {
	Alert  bool    `json:"alert"`
	AvgIRD float64 `json:"avg_ird,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// ChainResult is the full outcome of one session.
type ChainResult struct {
	SessionID  string `json:"session_id"`
	Domain     Domain `json:"domain"`
	ConfigHash string `json:"config_hash"`

	Caller     *CallerOutcome `json:"caller,omitempty"`
	Strategist *RoleResult    `json:"strategist,omitempty"`
	Analyst    *RoleResult    `json:"analyst,omitempty"`
	Producer   *RoleResult    `json:"producer,omitempty"`
	Courier    *RoleResult    `json:"courier,omitempty"`
	Critic     *RoleResult    `json:"critic,omitempty"`

	Registry   RegistrySnapshot   `json:"registry"`
	Governance GovernanceSummary  `json:"governance"`
	Report     string             `json:"report,omitempty"`
	Errors     []ChainError       `json:"errors,omitempty"`
	Terminated bool               `json:"terminated,omitempty"`
	Alignment  *DisalignmentAlert `json:"alignment,omitempty"`
}

// Result returns the RoleResult slot for a chained role, or nil.
func (c *ChainResult) Result(role RoleName) *RoleResult {
	switch role {
	case RoleStrategist:
		return c.Strategist
	case RoleAnalyst:
		return c.Analyst
	case RoleProducer:
		return c.Producer
	case RoleCourier:
		return c.Courier
	case RoleCritic:
		return c.Critic
	}
	return nil
}

// SetResult stores the RoleResult slot for a chained role.
func (c *ChainResult) SetResult(role RoleName, r *RoleResult) {
	switch role {
	case RoleStrategist:
		c.Strategist = r
	case RoleAnalyst:
		c.Analyst = r
	case RoleProducer:
		c.Producer = r
	case RoleCourier:
		c.Courier = r
	case RoleCritic:
		c.Critic = r
	}
}
