// Package engine is the card lifecycle engine. Every operation runs the same
// pipeline: authenticate, authorize, validate, dispatch one store call and
// translate its result code.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/guard-e/hostel/internal/hostel/access"
	"github.com/guard-e/hostel/internal/hostel/card"
	"github.com/guard-e/hostel/internal/hostel/gateway"
	"github.com/guard-e/hostel/internal/hostel/outcome"
	"github.com/guard-e/hostel/internal/hostel/types"
)

// DefaultDepartment is the department tag used when neither the command nor
// the policy names one.
const DefaultDepartment = "ХОСТЕЛ"

// FieldValidDays and FieldDepartment extend the card field names for command
// validation.
const (
	FieldValidDays  = "valid_days"
	FieldDepartment = "department"
	FieldAction     = "action"
)

// lastStoreDate is the latest close date the card store accepts.
var lastStoreDate = civil.Date{Year: 9999, Month: 12, Day: 31}

// DeletePolicy decides what a DELETE of a missing card means.
type DeletePolicy int

const (
	// DeleteNotFoundIsError reports a missing card as NotFoundError.
	DeleteNotFoundIsError DeletePolicy = iota
	// DeleteNotFoundIsSuccess treats a missing card as already deleted.
	DeleteNotFoundIsSuccess
)

// ParseDeletePolicy accepts "error" or "success".
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "error":
		return DeleteNotFoundIsError, nil
	case "success", "idempotent":
		return DeleteNotFoundIsSuccess, nil
	default:
		return 0, fmt.Errorf("unknown delete policy %q", s)
	}
}

// Policy holds the engine's tunables.
type Policy struct {
	DefaultDepartment string
	DeleteNotFound    DeletePolicy
	// SerializePerCard makes concurrent commands on the same card number run
	// one at a time within this process.
	SerializePerCard bool
}

// Recorder receives one observation per engine operation.
type Recorder interface {
	ObserveCommand(action, result string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCommand(string, string, time.Duration) {}

// Dependencies are the collaborators injected at construction.
type Dependencies struct {
	Procedures gateway.CardProcedures
	Dumps      gateway.DumpRefresher // optional
	Logger     *slog.Logger
	Metrics    Recorder
	Now        func() time.Time
}

// Result is a successful command outcome.
type Result struct {
	Outcome outcome.Outcome
	Card    types.CardView
}

// Engine executes card commands. It is safe for concurrent use.
type Engine struct {
	procs   gateway.CardProcedures
	dumps   gateway.DumpRefresher
	log     *slog.Logger
	metrics Recorder
	now     func() time.Time
	policy  Policy
	locks   *keyLock
}

func New(deps Dependencies, policy Policy) (*Engine, error) {
	if deps.Procedures == nil {
		return nil, errors.New("engine: card procedures are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if strings.TrimSpace(policy.DefaultDepartment) == "" {
		policy.DefaultDepartment = DefaultDepartment
	}

	e := &Engine{
		procs:   deps.Procedures,
		dumps:   deps.Dumps,
		log:     deps.Logger.With(slog.String("component", "engine")),
		metrics: deps.Metrics,
		now:     deps.Now,
		policy:  policy,
	}
	if policy.SerializePerCard {
		e.locks = newKeyLock()
	}
	return e, nil
}

// Policy returns the effective policy.
func (e *Engine) Policy() Policy { return e.policy }

// Execute runs one card command for session s.
func (e *Engine) Execute(ctx context.Context, cmd types.Command, s access.Session) (res Result, err error) {
	start := time.Now()
	defer func() {
		result := StatusOf(err).Class
		if err == nil {
			result = res.Outcome.Kind.String()
		}
		e.metrics.ObserveCommand(cmd.Action.String(), result, time.Since(start))
	}()

	if !s.IsAuthenticated() {
		return Result{}, ErrUnauthenticated
	}
	if err := e.authorize(cmd.Action, s); err != nil {
		e.log.Warn("command rejected",
			slog.String("action", cmd.Action.String()),
			slog.String("user", s.Username),
			slog.String("error", err.Error()))
		return Result{}, err
	}

	params, err := e.prepare(cmd)
	if err != nil {
		return Result{}, err
	}

	if e.locks != nil {
		unlock, err := e.locks.Lock(ctx, params.CardNumber)
		if err != nil {
			return Result{}, fmt.Errorf("%s card %d: %w", cmd.Action, params.CardNumber,
				gateway.Wrap("card_lock", err, nil))
		}
		defer unlock()
	}

	out, err := e.procs.InvokeCardProcedure(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("%s card %d: %w", cmd.Action, params.CardNumber,
			gateway.Wrap("invoke_card_procedure", err, nil))
	}

	return e.translate(cmd, params, out, s)
}

// authorize checks the capability required for action.
func (e *Engine) authorize(action types.Action, s access.Session) error {
	switch action {
	case types.ActionView:
		if !access.Authorize(s, access.CanView) {
			return &AuthorizationError{Required: access.CanView}
		}
	case types.ActionUpsert:
		// Existence is only known store-side, so either capability is enough.
		if !access.AuthorizeAny(s, access.CanCreate, access.CanEdit) {
			return &AuthorizationError{Required: access.CanCreate}
		}
	case types.ActionDelete:
		if !access.Authorize(s, access.CanDelete) {
			return &AuthorizationError{Required: access.CanDelete}
		}
	case types.ActionLock, types.ActionActivate:
		if !access.Authorize(s, access.CanEdit) {
			return &AuthorizationError{Required: access.CanEdit}
		}
	default:
		// Validation reports the unknown action.
	}
	return nil
}

// prepare validates cmd and fills in defaults.
func (e *Engine) prepare(cmd types.Command) (gateway.ProcedureParams, error) {
	if !cmd.Action.Valid() {
		return gateway.ProcedureParams{}, &ValidationError{Fields: card.FieldErrors{
			FieldAction: fmt.Sprintf("unknown action %d", int(cmd.Action)),
		}}
	}

	number := cmd.Number()
	if cmd.Action != types.ActionUpsert {
		if msg, bad := card.CheckNumber(number); bad {
			return gateway.ProcedureParams{}, &ValidationError{Fields: card.FieldErrors{card.FieldCardNumber: msg}}
		}
		return gateway.ProcedureParams{
			Action:     cmd.Action,
			CardNumber: number,
			Department: e.department(cmd),
		}, nil
	}

	from := civil.DateOf(e.now())
	if cmd.ValidFrom != nil {
		from = *cmd.ValidFrom
	}

	c := card.Card{CardNumber: number, ValidFrom: &from, Status: card.StatusActive}
	if cmd.Room != nil {
		c.Room = *cmd.Room
	}

	var daysErr string
	switch {
	case cmd.ValidDays == nil:
		daysErr = "valid_days is required"
	case *cmd.ValidDays <= 0:
		daysErr = "valid_days must be greater than 0"
	case *cmd.ValidDays > lastStoreDate.DaysSince(from):
		daysErr = fmt.Sprintf("valid_days must end the card by %s", lastStoreDate)
	default:
		// Only used to check the window; the store derives the close date.
		until := from.AddDays(*cmd.ValidDays)
		c.ValidUntil = &until
	}

	_, errs := card.Validate(c)
	if daysErr != "" {
		delete(errs, card.FieldValidUntil)
		errs[FieldValidDays] = daysErr
	}
	dept := e.department(cmd)
	if dept == "" {
		errs[FieldDepartment] = "department is required"
	}
	if len(errs) > 0 {
		return gateway.ProcedureParams{}, &ValidationError{Fields: errs}
	}

	comments := ""
	if cmd.Comments != nil {
		comments = *cmd.Comments
	}
	return gateway.ProcedureParams{
		Action:     cmd.Action,
		Room:       c.Room,
		CardNumber: number,
		ValidFrom:  &from,
		ValidDays:  *cmd.ValidDays,
		Comments:   comments,
		Department: dept,
	}, nil
}

func (e *Engine) department(cmd types.Command) string {
	if d := strings.TrimSpace(cmd.Department); d != "" {
		return d
	}
	return e.policy.DefaultDepartment
}

// translate turns the raw procedure row into a Result or a typed error.
func (e *Engine) translate(cmd types.Command, p gateway.ProcedureParams, out gateway.ProcedureOutcome, s access.Session) (Result, error) {
	o := outcome.Translate(out.ResultCode)
	log := e.log.With(
		slog.String("action", cmd.Action.String()),
		slog.Int64("card_number", p.CardNumber),
		slog.String("user", s.Username),
	)

	switch o.Kind {
	case outcome.Unknown:
		log.Error("card procedure returned unknown result code", slog.Int("code", out.ResultCode))
		return Result{}, &InternalError{Code: out.ResultCode}

	case outcome.NotFound:
		if cmd.Action == types.ActionDelete && e.policy.DeleteNotFound == DeleteNotFoundIsSuccess {
			log.Info("delete of missing card treated as success")
			return Result{Outcome: o, Card: types.CardView{CardNumber: p.CardNumber}}, nil
		}
		return Result{}, &NotFoundError{CardNumber: p.CardNumber}

	case outcome.Duplicate:
		if cmd.Action != types.ActionView {
			log.Info("card procedure reported duplicate")
			return Result{}, &ConflictError{CardNumber: p.CardNumber}
		}
	}

	view := viewFromOutcome(p, out)
	if cmd.Action.Mutating() {
		log.Info("card command applied", slog.String("outcome", o.String()))
	}
	return Result{Outcome: o, Card: view}, nil
}

// ListCards returns every card, newest first.
func (e *Engine) ListCards(ctx context.Context, s access.Session) ([]types.CardView, error) {
	if err := e.gate(s, access.CanView); err != nil {
		return nil, err
	}
	rows, err := e.procs.QueryCards(ctx, gateway.CardFilter{})
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", gateway.Wrap("query_cards", err, nil))
	}
	views := make([]types.CardView, 0, len(rows))
	for _, r := range rows {
		views = append(views, viewFromRow(r))
	}
	return views, nil
}

// FindCard looks a card up by number through the listing query.
func (e *Engine) FindCard(ctx context.Context, s access.Session, number int64) (types.CardView, error) {
	if err := e.gate(s, access.CanView); err != nil {
		return types.CardView{}, err
	}
	if msg, bad := card.CheckNumber(number); bad {
		return types.CardView{}, &ValidationError{Fields: card.FieldErrors{card.FieldCardNumber: msg}}
	}
	rows, err := e.procs.QueryCards(ctx, gateway.CardFilter{CardNumber: &number, Limit: 1})
	if err != nil {
		return types.CardView{}, fmt.Errorf("find card %d: %w", number, gateway.Wrap("query_cards", err, nil))
	}
	if len(rows) == 0 {
		return types.CardView{}, &NotFoundError{CardNumber: number}
	}
	return viewFromRow(rows[0]), nil
}

// RefreshDumps asks the store to add or remove a card in the controller
// dumps. It is separate from Execute so each command keeps one side effect.
func (e *Engine) RefreshDumps(ctx context.Context, s access.Session, number int64, action gateway.DumpAction) error {
	if err := e.gate(s, access.CanEdit); err != nil {
		return err
	}
	if msg, bad := card.CheckNumber(number); bad {
		return &ValidationError{Fields: card.FieldErrors{card.FieldCardNumber: msg}}
	}
	if e.dumps == nil {
		return &InternalError{Reason: "dump refresh is not configured"}
	}
	if err := e.dumps.RefreshCardDumps(ctx, number, action); err != nil {
		return fmt.Errorf("refresh dumps for card %d: %w", number, gateway.Wrap("refresh_card_dumps", err, nil))
	}
	e.log.Info("card dumps refreshed",
		slog.Int64("card_number", number),
		slog.String("dump_action", action.String()),
		slog.String("user", s.Username))
	return nil
}

func (e *Engine) gate(s access.Session, c access.Capability) error {
	if !s.IsAuthenticated() {
		return ErrUnauthenticated
	}
	if !access.Authorize(s, c) {
		return &AuthorizationError{Required: c}
	}
	return nil
}
