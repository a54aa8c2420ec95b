// Package orchestration sequences the five-role reasoning chain: Strategist,
// Analyst, Producer, Courier, Critic. Each role turn is evaluated, governed,
// and committed to the signed ledger before the next role runs.
package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/axprotocol/core/pkg/canonicalize"
	"github.com/axprotocol/core/pkg/config"
	"github.com/axprotocol/core/pkg/contracts"
	"github.com/axprotocol/core/pkg/detection"
	"github.com/axprotocol/core/pkg/directives"
	"github.com/axprotocol/core/pkg/governance"
	"github.com/axprotocol/core/pkg/ledger"
	"github.com/axprotocol/core/pkg/llm"
	"github.com/axprotocol/core/pkg/registry"
	"github.com/axprotocol/core/pkg/taes"
	"github.com/axprotocol/core/pkg/validation"
)

// Per-role soft timeout. Tunable later if a deployment needs it; the outer
// request budget is the caller's context.
const roleTimeout = 180 * time.Second

// Auto-detected domains whose winning keyword share falls below this are a
// misroute risk: the kernel is guessing, not routing.
const lowDomainConfidence = 0.35

// Chain runs sessions. One Chain serves many concurrent sessions; all
// session state lives in the per-run locals, the shared pieces (ledger,
// coupling, IRD log) serialize internally.
type Chain struct {
	cfg        *config.Config
	client     llm.Client
	coupling   *governance.Coupling
	appender   *ledger.Appender
	irdLog     *taes.IRDLog
	dirLoader  *directives.Loader
	shapes     RoleShapes
	configHash string
	logger     *slog.Logger

	// EnableCaller turns on the pre-chain triage role.
	EnableCaller bool
}

// New wires a chain from its parts.
func New(cfg *config.Config, client llm.Client, coupling *governance.Coupling,
	appender *ledger.Appender, irdLog *taes.IRDLog, shapes RoleShapes,
	configHash string, logger *slog.Logger) *Chain {
	return &Chain{
		cfg:        cfg,
		client:     client,
		coupling:   coupling,
		appender:   appender,
		irdLog:     irdLog,
		dirLoader:  directives.NewLoader(),
		shapes:     shapes,
		configHash: configHash,
		logger:     logger,
	}
}

// Run executes one session. The result always carries whatever artifacts
// were produced plus the error list; a fatal role failure ends the chain
// early but still returns a populated result.
func (c *Chain) Run(ctx context.Context, objective string, domain contracts.Domain, sessionID string) (*contracts.ChainResult, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	autoDetected := false
	confidence := 1.0
	if domain == "" {
		domain, confidence = detection.DetectDomainConfidence(objective)
		autoDetected = true
	} else if !contracts.ValidDomain(domain) {
		return nil, fmt.Errorf("unknown domain %q", domain)
	}
	if err := config.CheckProtocolFloor(c.coupling.MinProtocol); err != nil {
		return nil, err
	}

	log := c.logger.With("session_id", sessionID, "domain", domain)
	log.Info("chain start", "objective_hash", canonicalize.HashText(objective))

	result := &contracts.ChainResult{
		SessionID:  sessionID,
		Domain:     domain,
		ConfigHash: c.configHash,
	}
	run := &sessionRun{
		chain:      c,
		log:        log,
		sessionID:  sessionID,
		domain:     domain,
		objective:  objective,
		registry:   registry.New(),
		result:     result,
		redundancy: map[string]float64{},
	}
	if autoDetected {
		run.domainConfidence = confidence
	} else {
		run.domainConfidence = 1
	}

	if !c.coupling.Available {
		run.ledgerEntry(ctx, "", contracts.ActionConfigError,
			map[string]string{"error": "governance coupling unavailable"},
			[]string{governance.TagUnavailable}, nil, nil)
		result.Errors = append(result.Errors, contracts.ChainError{
			Kind: contracts.ErrKindConfig, Message: "governance coupling unavailable; soft-only enforcement",
		})
	}

	if c.EnableCaller {
		proceed := run.caller(ctx)
		if !proceed {
			run.finish(ctx)
			return result, nil
		}
		if result.Caller != nil && result.Caller.Payload != nil && result.Caller.Payload.Objective != "" {
			run.objective = result.Caller.Payload.Objective
		}
	}

	run.execute(ctx)
	run.finish(ctx)
	return result, nil
}

// sessionRun is the per-session mutable state.
type sessionRun struct {
	chain     *Chain
	log       *slog.Logger
	sessionID string
	domain    contracts.Domain
	objective string
	registry  *registry.Registry
	result    *contracts.ChainResult

	startedAt        time.Time
	priorTexts       []string
	redundancy       map[string]float64
	softSignals      map[string]struct{}
	hardActions      map[string]struct{}
	domainConfidence float64
	noGo             bool
}

// execute walks the role pipeline. Strategist, Analyst and Producer are
// load-bearing: their failure ends the chain. A Courier failure leaves the
// Critic to review what exists; a Critic failure is recorded and the chain
// completes.
func (r *sessionRun) execute(ctx context.Context) {
	r.startedAt = time.Now()
	r.softSignals = map[string]struct{}{}
	r.hardActions = map[string]struct{}{}

	if r.domainConfidence < lowDomainConfidence {
		c := r.chain.coupling
		if !c.Available || c.Has(governance.DirMisrouting) {
			r.softSignals[governance.DirMisrouting] = struct{}{}
			r.log.Info("domain detected with low confidence",
				"domain", r.domain, "confidence", r.domainConfidence)
		}
	}

	if !r.strategist(ctx) {
		return
	}
	if r.cancelled(ctx) {
		return
	}
	if !r.analyst(ctx) {
		return
	}
	if r.cancelled(ctx) {
		return
	}

	qa1 := r.note(ctx, contracts.RoleAnalyst, contracts.RoleProducer,
		"Analyses:\n"+mustCompactJSON(r.registry.Analyses()))

	if !r.producer(ctx, qa1) {
		return
	}
	if r.cancelled(ctx) {
		return
	}

	qa2 := r.note(ctx, contracts.RoleProducer, contracts.RoleCourier,
		"Producer assets:\n"+mustCompactJSON(r.registry.Productions()))

	// Courier failure is non-fatal; the Critic reviews whatever exists.
	r.courier(ctx, qa2)
	if r.cancelled(ctx) {
		return
	}
	r.critic(ctx)
}

func (r *sessionRun) cancelled(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		r.log.Warn("session cancelled between roles", "error", err)
		r.result.Errors = append(r.result.Errors, contracts.ChainError{
			Kind: contracts.ErrKindTimeout, Message: err.Error(),
		})
		return true
	}
	return false
}

func (r *sessionRun) caller(ctx context.Context) bool {
	turn := roleTurn{
		role:   contracts.RoleCaller,
		system: "You are the Caller, the triage gate. Decide whether the objective is actionable.",
		user:   callerPrompt(r.objective),
		validate: func(raw []byte) (any, validation.Result) {
			out, res := validation.Caller(raw)
			return out, res
		},
	}
	res, err := r.runTurn(ctx, turn)
	if err != nil {
		// Triage is best-effort; an unusable Caller never blocks the chain.
		r.log.Warn("caller triage failed, proceeding", "error", err)
		return true
	}
	outcome := res.parsed.(*contracts.CallerOutcome)
	r.result.Caller = outcome
	if outcome.Status == contracts.CallerTerminate {
		r.result.Terminated = true
		r.ledgerEntry(ctx, string(contracts.RoleCaller), contracts.ActionRoleOutput, outcome, nil, nil, nil)
		return false
	}
	r.ledgerEntry(ctx, string(contracts.RoleCaller), contracts.ActionRoleOutput, outcome, nil, nil, nil)
	return true
}

func (r *sessionRun) strategist(ctx context.Context) bool {
	return r.chainedRole(ctx, contracts.RoleStrategist, strategistPrompt(r.objective),
		func(raw []byte) (any, validation.Result) {
			items, res := validation.Strategies(raw)
			return items, res
		},
		func(parsed any) error {
			return r.registry.AddStrategies(parsed.([]contracts.Strategy))
		}, true)
}

func (r *sessionRun) analyst(ctx context.Context) bool {
	return r.chainedRole(ctx, contracts.RoleAnalyst,
		analystPrompt(r.objective, r.registry.Strategies()),
		func(raw []byte) (any, validation.Result) {
			items, res := validation.Analyses(raw, r.registry.IDsOfKind(contracts.KindStrategy))
			return items, res
		},
		func(parsed any) error {
			return r.registry.AddAnalyses(parsed.([]contracts.Analysis))
		}, true)
}

func (r *sessionRun) producer(ctx context.Context, qaNote string) bool {
	return r.chainedRole(ctx, contracts.RoleProducer,
		producerPrompt(r.objective, r.registry.Analyses(), qaNote),
		func(raw []byte) (any, validation.Result) {
			items, res := validation.Productions(raw, r.registry.IDsOfKind(contracts.KindAnalysis))
			return items, res
		},
		func(parsed any) error {
			return r.registry.AddProductions(parsed.([]contracts.Production))
		}, true)
}

func (r *sessionRun) courier(ctx context.Context, qaNote string) bool {
	assets := r.registry.Productions()
	return r.chainedRole(ctx, contracts.RoleCourier,
		courierPrompt(r.objective, assets, qaNote),
		func(raw []byte) (any, validation.Result) {
			rows, res := validation.CourierRows(raw, r.registry.IDsOfKind(contracts.KindProduction))
			return rows, res
		},
		func(parsed any) error {
			r.registry.AddCourierRows(parsed.([]contracts.CourierRow))
			return nil
		}, false)
}

func (r *sessionRun) critic(ctx context.Context) bool {
	ok := r.chainedRole(ctx, contracts.RoleCritic,
		criticPrompt(r.objective, r.registry.Snapshot()),
		func(raw []byte) (any, validation.Result) {
			items, res := validation.Critiques(raw,
				r.registry.IDsOfKind(contracts.KindStrategy),
				r.registry.IDsOfKind(contracts.KindAnalysis),
				r.registry.IDsOfKind(contracts.KindProduction),
				nil)
			return items, res
		},
		func(parsed any) error {
			return r.registry.AddCritiques(parsed.([]contracts.Critique))
		}, false)
	if ok {
		spanned := 0
		for _, x := range r.registry.Critiques() {
			if s := x.Refs.KindsSpanned(); s > spanned {
				spanned = s
			}
		}
		if sig := detection.ObservabilityGap(spanned); sig.Detected {
			r.softSignals[sig.Name] = struct{}{}
		}
	}
	return ok
}

// chainedRole runs one of the five pipeline roles end to end: prompt
// composition, execution, redundancy guard, registration, TAES, governance,
// ledger. fatal marks roles whose failure ends the chain.
func (r *sessionRun) chainedRole(ctx context.Context, role contracts.RoleName, userPrompt string,
	validate func([]byte) (any, validation.Result), commit func(any) error, fatal bool) bool {

	c := r.chain
	rolePrompt, err := loadRolePrompt(c.cfg.PromptsDir(), r.domain, role)
	if err != nil {
		r.recordFailure(ctx, role, contracts.ErrKindConfig, err, fatal)
		return false
	}
	system := directives.SystemFor(role, rolePrompt, c.dirLoader.Load(c.cfg.DirectivesDir()))

	turn := roleTurn{
		role:     role,
		system:   system,
		user:     userPrompt,
		example:  loadRoleExample(c.cfg.PromptsDir(), role),
		validate: validate,
	}

	res, err := r.runTurn(ctx, turn)
	if err != nil {
		r.recordFailure(ctx, role, kindOf(err), err, fatal)
		return false
	}

	// Redundancy guard: above the retry threshold the strict re-prompt is
	// spent on distinctiveness, if it was not already used.
	score := redundancyScore(res.text, r.priorTexts)
	if score > redundancyRetryThreshold && !res.strictRetry {
		retry := turn
		retry.user += "\n\n" + uniquenessNudges[string(role)]
		if res2, err2 := r.runTurn(ctx, retry); err2 == nil {
			if s2 := redundancyScore(res2.text, r.priorTexts); s2 < score {
				res, score = res2, s2
			}
		}
	}
	r.redundancy[string(role)] = score

	if err := commit(res.parsed); err != nil {
		r.recordFailure(ctx, role, contracts.ErrKindValidation, err, fatal)
		return false
	}
	r.priorTexts = append(r.priorTexts, res.text)

	rec := taes.Evaluate(role, r.domain, res.text)
	if rec.RequiresReconciliation {
		reconciled := taes.Reconcile(role, r.domain, res.text)
		if reconciled.IRD <= taes.RRPThreshold {
			rec = reconciled
		} else {
			rec.Reconciled = true
		}
	}

	extra := []string{}
	if score >= redundancySoftThreshold {
		extra = append(extra, governance.DirRedundancy)
	}
	outcome := c.coupling.Apply(governance.Input{
		Objective:    r.objective,
		Text:         res.text,
		Role:         role,
		Domain:       r.domain,
		TAES:         &rec,
		ExtraSignals: extra,
	}, r.log)

	for _, s := range outcome.SoftSignals {
		r.softSignals[s] = struct{}{}
	}
	for _, h := range outcome.HardActions {
		r.hardActions[h] = struct{}{}
		r.noGo = true
	}

	if err := c.irdLog.Append(r.sessionID, rec, verdict(rec)); err != nil {
		r.log.Warn("ird log append failed", "error", err)
	}

	r.result.SetResult(role, &contracts.RoleResult{
		Output:      res.text,
		TAES:        &rec,
		Governance:  &outcome,
		Temperature: res.temperature,
	})

	r.ledgerEntry(ctx, string(role), contracts.ActionRoleOutput, map[string]any{
		"output_hash": canonicalize.HashText(res.text),
		"taes":        rec,
		"temperature": res.temperature,
	}, outcome.SoftSignals, outcome.HardActions, nil)

	return true
}

// runTurn applies the per-role timeout around one executor run.
func (r *sessionRun) runTurn(ctx context.Context, turn roleTurn) (*turnResult, error) {
	roleCtx, cancel := context.WithTimeout(ctx, roleTimeout)
	defer cancel()
	exec := &executor{client: r.chain.client, shapes: r.chain.shapes, logger: r.log}
	return exec.run(roleCtx, turn)
}

func (r *sessionRun) note(ctx context.Context, asker, responder contracts.RoleName, contextText string) string {
	note, ok := r.chain.microQA(ctx, asker, responder, contextText)
	if !ok {
		return ""
	}
	r.registry.AddQANote(note)
	return "Q: " + note.Question + "\nA: " + note.Answer
}

func (r *sessionRun) recordFailure(ctx context.Context, role contracts.RoleName, kind contracts.ErrorKind, err error, fatal bool) {
	r.log.Error("role failed", "role", role, "kind", kind, "error", err)
	r.result.Errors = append(r.result.Errors, contracts.ChainError{
		Role: role, Kind: kind, Message: err.Error(),
	})

	action := contracts.ActionRoleFailure
	switch kind {
	case contracts.ErrKindTimeout:
		action = contracts.ActionRoleTimeout
	case contracts.ErrKindTransport:
		action = contracts.ActionTransportError
	case contracts.ErrKindConfig:
		action = contracts.ActionConfigError
	}
	r.ledgerEntry(ctx, string(role), action, map[string]string{"error": err.Error()}, nil, nil, nil)
	if fatal {
		r.noGo = true
	}
}

// finish assembles the summary, writes the composer and governance ledger
// entries, and persists the session artifact.
func (r *sessionRun) finish(ctx context.Context) {
	c := r.chain
	r.result.Registry = r.registry.Snapshot()
	r.result.Governance = contracts.GovernanceSummary{
		Signals:     setToSorted(r.hardActions),
		SoftSignals: setToSorted(r.softSignals),
		NoGo:        r.noGo,
		RequiresRRP: r.anyRequiresRRP(),
		Redundancy:  r.redundancy,
	}

	if !r.result.Terminated {
		r.result.Report = composeReport(r.objective, r.result.Registry)
		r.ledgerEntry(ctx, "", contracts.ActionComposeReport,
			map[string]string{"report_hash": canonicalize.HashText(r.result.Report)}, nil, nil, nil)
	}

	if c.coupling.WriteToLedger {
		r.ledgerEntry(ctx, "", contracts.ActionGovernanceSummary, r.result.Governance,
			r.result.Governance.SoftSignals, r.result.Governance.Signals, nil)
	}

	alert := c.irdLog.CheckDisalignment(0.4)
	r.result.Alignment = &alert

	art := sessionArtifact{
		SessionID:  r.sessionID,
		Domain:     r.domain,
		Objective:  r.objective,
		ConfigHash: c.configHash,
		StartedAt:  r.startedAt.UTC().Format(time.RFC3339),
		Registry:   r.result.Registry,
		Governance: r.result.Governance,
		Errors:     r.result.Errors,
		Redundancy: r.redundancy,
	}
	if err := writeSessionArtifact(c.cfg.SessionsDir(), art); err != nil {
		r.log.Warn("session artifact write failed", "error", err)
	}
	r.log.Info("chain finished",
		"errors", len(r.result.Errors),
		"no_go", r.noGo,
		"hard_actions", r.result.Governance.Signals)
}

func (r *sessionRun) anyRequiresRRP() bool {
	for _, role := range contracts.ChainRoles {
		if res := r.result.Result(role); res != nil && res.TAES != nil && res.TAES.RequiresReconciliation {
			return true
		}
	}
	return false
}

// ledgerEntry writes one entry, using a fresh context if the session one is
// already dead; failures end up in the log, the chain result stays usable.
func (r *sessionRun) ledgerEntry(ctx context.Context, role string, action contracts.LedgerAction,
	payload any, soft, hard []string, meta map[string]any) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	_, err := r.chain.appender.Append(ctx, ledger.Record{
		SessionID:   r.sessionID,
		Role:        role,
		Action:      action,
		Payload:     payload,
		SoftSignals: soft,
		HardActions: hard,
		Meta:        meta,
	})
	if err != nil {
		r.log.Error("ledger append failed", "action", action, "error", err)
	}
}

func verdict(rec contracts.TAESRecord) string {
	if rec.RequiresReconciliation {
		return "requires_rrp"
	}
	return "ok"
}

func setToSorted(s map[string]struct{}) []string {
	if len(s) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
