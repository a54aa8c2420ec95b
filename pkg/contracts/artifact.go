// Package contracts defines the typed artifacts exchanged between roles and
// the records the kernel persists about them. Artifacts become immutable once
// the orchestrator writes them to the registry.
package contracts

// RoleName identifies a role in the reasoning chain.
type RoleName string

const (
	RoleCaller     RoleName = "Caller"
	RoleStrategist RoleName = "Strategist"
	RoleAnalyst    RoleName = "Analyst"
	RoleProducer   RoleName = "Producer"
	RoleCourier    RoleName = "Courier"
	RoleCritic     RoleName = "Critic"
)

// ChainRoles lists the five chained roles in execution order. Caller is a
// pre-chain triage step and is not part of this sequence.
var ChainRoles = []RoleName{RoleStrategist, RoleAnalyst, RoleProducer, RoleCourier, RoleCritic}

// ArtifactKind is the single-letter artifact family a role emits.
type ArtifactKind string

const (
	KindStrategy   ArtifactKind = "S"
	KindAnalysis   ArtifactKind = "A"
	KindProduction ArtifactKind = "P"
	KindCourier    ArtifactKind = "C"
	KindCritique   ArtifactKind = "X"
)

// Kind returns the artifact kind a chained role emits, or "" for Caller.
func (r RoleName) Kind() ArtifactKind {
	switch r {
	case RoleStrategist:
		return KindStrategy
	case RoleAnalyst:
		return KindAnalysis
	case RoleProducer:
		return KindProduction
	case RoleCourier:
		return KindCourier
	case RoleCritic:
		return KindCritique
	}
	return ""
}

// Domain is the closed set of supported objective domains.
type Domain string

const (
	DomainMarketing Domain = "marketing"
	DomainTechnical Domain = "technical"
	DomainOps       Domain = "ops"
	DomainCreative  Domain = "creative"
	DomainEducation Domain = "education"
	DomainProduct   Domain = "product"
	DomainStrategy  Domain = "strategy"
	DomainResearch  Domain = "research"
	DomainFinance   Domain = "finance"
)

// Domains lists every supported domain.
var Domains = []Domain{
	DomainMarketing, DomainTechnical, DomainOps, DomainCreative,
	DomainEducation, DomainProduct, DomainStrategy, DomainResearch,
	DomainFinance,
}

// ValidDomain reports whether d is in the closed domain set.
func ValidDomain(d Domain) bool {
	for _, known := range Domains {
		if d == known {
			return true
		}
	}
	return false
}

// Strategy is one Strategist artifact (kind S).
type Strategy struct {
	SID             string   `json:"s_id"`
	Title           string   `json:"title"`
	Audience        string   `json:"audience"`
	Hooks           []string `json:"hooks"`
	ThreeStepPlan   []string `json:"three_step_plan"`
	AcceptanceTests []string `json:"acceptance_tests"`
}

// KPIRow is one row of an Analyst KPI table.
type KPIRow struct {
	Metric string  `json:"metric"`
	Target float64 `json:"target"`
	Unit   string  `json:"unit"`
}

// Analysis is one Analyst artifact (kind A).
type Analysis struct {
	AID            string   `json:"a_id"`
	SRefs          []string `json:"s_refs"`
	KPITable       []KPIRow `json:"kpi_table"`
	Falsifications []string `json:"falsifications"`
	Risks          []string `json:"risks"`
}

// SpecType enumerates the asset flavors Producer may emit.
type SpecType string

const (
	SpecAPI        SpecType = "api"
	SpecDDL        SpecType = "ddl"
	SpecConfig     SpecType = "config"
	SpecCopyBlock  SpecType = "copy_block"
	SpecWiring     SpecType = "wiring"
	SpecPromptPack SpecType = "prompt_pack"
)

// Production is one Producer artifact (kind P).
type Production struct {
	PID      string   `json:"p_id"`
	ARefs    []string `json:"a_refs"`
	SpecType SpecType `json:"spec_type"`
	Body     string   `json:"body"`
}

// CourierRow is one Courier schedule row (kind C). Rows reference Producer
// assets by id and never introduce assets of their own.
type CourierRow struct {
	Day         string `json:"day"`
	Time        string `json:"time"`
	Channel     string `json:"channel"`
	PID         string `json:"p_id"`
	KPITarget   string `json:"kpi_target"`
	OwnerAction string `json:"owner_action"`
}

// Severity grades a Critic finding.
type Severity string

const (
	SeverityLow  Severity = "low"
	SeverityMed  Severity = "med"
	SeverityHigh Severity = "high"
)

// CritiqueRefs holds the upstream ids a Critic finding points at, bucketed
// by artifact kind.
type CritiqueRefs struct {
	S []string `json:"s,omitempty"`
	A []string `json:"a,omitempty"`
	P []string `json:"p,omitempty"`
	C []string `json:"c,omitempty"`
}

// KindsSpanned counts how many distinct artifact kinds the refs touch.
func (r CritiqueRefs) KindsSpanned() int {
	n := 0
	for _, bucket := range [][]string{r.S, r.A, r.P, r.C} {
		if len(bucket) > 0 {
			n++
		}
	}
	return n
}

// Critique is one Critic artifact (kind X).
type Critique struct {
	XID         string             `json:"x_id"`
	Refs        CritiqueRefs       `json:"refs"`
	Issue       string             `json:"issue"`
	Fix         string             `json:"fix"`
	Severity    Severity           `json:"severity"`
	ProofScores map[string]float64 `json:"proof_scores"`
}

// QANote records one bounded micro-Q&A exchange between adjacent roles.
type QANote struct {
	From     RoleName `json:"from"`
	To       RoleName `json:"to"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
}

// CallerStatus is the triage verdict of the optional Caller role.
type CallerStatus string

const (
	CallerTerminate CallerStatus = "terminate"
	CallerProceed   CallerStatus = "proceed"
	CallerSuggest   CallerStatus = "suggest_optimized_prompt_and_insight"
)

// CallerOutcome is the parsed output of the Caller triage role.
type CallerOutcome struct {
	Status             CallerStatus   `json:"status"`
	Response           string         `json:"response,omitempty"`
	Payload            *CallerPayload `json:"payload,omitempty"`
	SuggestedObjective string         `json:"suggested_objective,omitempty"`
}

// CallerPayload carries the (possibly rewritten) objective on proceed.
type CallerPayload struct {
	Objective string `json:"objective"`
}

// RegistrySnapshot is the immutable view of a session registry handed back
// in chain results.
type RegistrySnapshot struct {
	S []Strategy   `json:"S"`
	A []Analysis   `json:"A"`
	P []Production `json:"P"`
	C []CourierRow `json:"C"`
	X []Critique   `json:"X"`
	Q []QANote     `json:"Q"`
}
