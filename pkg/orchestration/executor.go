package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/axprotocol/core/pkg/contracts"
	"github.com/axprotocol/core/pkg/directives"
	"github.com/axprotocol/core/pkg/llm"
	"github.com/axprotocol/core/pkg/validation"
)

// execState tracks one role turn through its lifecycle. States exist for
// observability: every transition is logged with the session.
type execState string

const (
	stateInitial     execState = "initial"
	stateAwaitingLLM execState = "awaiting_llm"
	stateParsed      execState = "parsed"
	stateValidated   execState = "validated"
	stateStrictRetry execState = "strict_retry"
	stateFailed      execState = "failed"
)

// roleTurn is one role's execution request.
type roleTurn struct {
	role    contracts.RoleName
	system  string
	user    string
	example string

	// validate parses and validates the extracted JSON; it returns the typed
	// artifacts and a validation result with the exact failure message.
	validate func(raw []byte) (any, validation.Result)
}

// turnResult is what a completed role turn hands back to the chain.
type turnResult struct {
	text        string
	parsed      any
	temperature float64
	strictRetry bool
}

// executor drives single role turns: prompt, parse, validate, one strict
// re-prompt. Transport errors get one retry of their own before surfacing.
type executor struct {
	client llm.Client
	shapes RoleShapes
	logger *slog.Logger
}

// errKinded wraps a failure with its chain error kind.
type errKinded struct {
	kind contracts.ErrorKind
	err  error
}

func (e *errKinded) Error() string { return e.err.Error() }
func (e *errKinded) Unwrap() error { return e.err }

func kindOf(err error) contracts.ErrorKind {
	var ek *errKinded
	if errors.As(err, &ek) {
		return ek.kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return contracts.ErrKindTimeout
	}
	return contracts.ErrKindRole
}

func (e *executor) run(ctx context.Context, turn roleTurn) (*turnResult, error) {
	state := stateInitial
	temp := directives.Temperature(turn.role)

	log := e.logger.With("role", turn.role)
	advance := func(next execState) {
		log.Debug("role turn transition", "from", state, "to", next)
		state = next
	}

	advance(stateAwaitingLLM)
	text, err := e.complete(ctx, turn.system, turn.user, temp)
	if err != nil {
		advance(stateFailed)
		return nil, err
	}

	parsed, vres := e.parse(turn, text)
	if vres.OK {
		advance(stateValidated)
		return &turnResult{text: text, parsed: parsed, temperature: temp}, nil
	}
	log.Warn("role output rejected, strict re-prompt", "reason", vres.Reason, "detail", vres.Message)

	advance(stateStrictRetry)
	text, err = e.strictReprompt(ctx, turn, vres.Message)
	if err != nil {
		advance(stateFailed)
		return nil, err
	}
	parsed, vres = e.parse(turn, text)
	if vres.OK {
		advance(stateValidated)
		return &turnResult{text: text, parsed: parsed, temperature: strictTemperature, strictRetry: true}, nil
	}

	advance(stateFailed)
	return nil, &errKinded{
		kind: contracts.ErrKindRole,
		err:  fmt.Errorf("%s failed after strict re-prompt: %s", turn.role, vres.Message),
	}
}

// strictTemperature pins re-prompts low; structure matters more than flair.
const strictTemperature = 0.2

// strictReprompt re-asks with a strict-shape instruction, quoting the
// failure back and attaching the versioned one-shot example.
func (e *executor) strictReprompt(ctx context.Context, turn roleTurn, failure string) (string, error) {
	user := turn.user +
		"\n\nSTRICT MODE: Return ONLY JSON in a single fenced block (```" + string(turn.role.Kind()) + " ... ```)." +
		"\nPrevious attempt was rejected: " + failure
	if turn.example != "" {
		user += "\n\nExample:\n" + turn.example
	}
	return e.complete(ctx, turn.system, user, strictTemperature)
}

// complete calls the LLM, retrying transport errors once.
func (e *executor) complete(ctx context.Context, system, user string, temp float64) (string, error) {
	text, err := e.client.Complete(ctx, llm.Request{System: system, User: user, Temperature: temp})
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "", &errKinded{kind: contracts.ErrKindTimeout, err: err}
	}
	e.logger.Warn("llm transport error, retrying once", "error", err)
	text, err = e.client.Complete(ctx, llm.Request{System: system, User: user, Temperature: temp})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", &errKinded{kind: contracts.ErrKindTimeout, err: err}
		}
		return "", &errKinded{kind: contracts.ErrKindTransport, err: err}
	}
	return text, nil
}

// parse runs shape checks, JSON extraction and the turn's validator.
func (e *executor) parse(turn roleTurn, text string) (any, validation.Result) {
	if banned := e.shapes.Violation(turn.role, text); banned != "" {
		return nil, validation.Result{Reason: "banned_shape", Message: fmt.Sprintf("%s emitted banned pattern %q", turn.role, banned)}
	}
	var raw []byte
	var err error
	if turn.role == contracts.RoleCaller {
		raw, err = extractObjectJSON(text, "json")
	} else {
		raw, err = extractRoleJSON(text, turn.role.Kind())
	}
	if err != nil {
		return nil, validation.Result{Reason: "parse", Message: err.Error()}
	}
	return turn.validate(raw)
}
