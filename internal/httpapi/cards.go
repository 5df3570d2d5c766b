package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/guard-e/hostel/internal/hostel/access"
	"github.com/guard-e/hostel/internal/hostel/audit"
	"github.com/guard-e/hostel/internal/hostel/card"
	"github.com/guard-e/hostel/internal/hostel/engine"
	"github.com/guard-e/hostel/internal/hostel/gateway"
	"github.com/guard-e/hostel/internal/hostel/outcome"
	"github.com/guard-e/hostel/internal/hostel/types"
)

// upsertRequest is the body of POST /v1/cards and PUT /v1/cards/{number}.
type upsertRequest struct {
	Room       *int        `json:"room"`
	CardNumber *int64      `json:"card_number"`
	ValidFrom  *civil.Date `json:"valid_from"`
	ValidDays  *int        `json:"valid_days"`
	Comments   *string     `json:"comments"`
	Department string      `json:"department"`
}

type commandResponse struct {
	Result  string          `json:"result"`
	Message string          `json:"message"`
	Card    *types.CardView `json:"card,omitempty"`
}

type cardListResponse struct {
	Cards []types.CardView `json:"cards"`
	Count int              `json:"count"`
}

type dumpRequest struct {
	Action string `json:"action"`
}

func pathNumber(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "number")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &engine.ValidationError{Fields: card.FieldErrors{
			card.FieldCardNumber: "card number must be an integer",
		}}
	}
	return n, nil
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadJSON, "invalid JSON body")
		return
	}
	s.upsert(w, r, req)
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	n, err := pathNumber(r)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	var req upsertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadJSON, "invalid JSON body")
		return
	}
	if req.CardNumber != nil && *req.CardNumber != n {
		s.writeEngineError(w, r, &engine.ValidationError{Fields: card.FieldErrors{
			card.FieldCardNumber: "card number in body does not match the path",
		}})
		return
	}
	req.CardNumber = &n
	s.upsert(w, r, req)
}

func (s *Server) upsert(w http.ResponseWriter, r *http.Request, req upsertRequest) {
	cmd := types.Command{
		Action:     types.ActionUpsert,
		Room:       req.Room,
		CardNumber: req.CardNumber,
		ValidFrom:  req.ValidFrom,
		ValidDays:  req.ValidDays,
		Comments:   req.Comments,
		Department: strings.TrimSpace(req.Department),
	}
	s.execute(w, r, cmd)
}

func (s *Server) numberCommand(action types.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := pathNumber(r)
		if err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		s.execute(w, r, types.Command{Action: action, CardNumber: &n})
	}
}

func (s *Server) handleViewCard(w http.ResponseWriter, r *http.Request) {
	s.numberCommand(types.ActionView)(w, r)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	s.numberCommand(types.ActionDelete)(w, r)
}

func (s *Server) handleLockCard(w http.ResponseWriter, r *http.Request) {
	s.numberCommand(types.ActionLock)(w, r)
}

func (s *Server) handleActivateCard(w http.ResponseWriter, r *http.Request) {
	s.numberCommand(types.ActionActivate)(w, r)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, cmd types.Command) {
	sess := sessionFrom(r.Context()).session

	res, err := s.engine.Execute(r.Context(), cmd, sess)
	if err != nil {
		st := engine.StatusOf(err)
		s.record(r, sess, cmd.Action.String(), cmd.CardNumber, st.Class, st.HTTPStatus)
		s.writeEngineError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Outcome.Kind == outcome.Created {
		status = http.StatusCreated
	}
	s.record(r, sess, cmd.Action.String(), cmd.CardNumber, res.Outcome.String(), status)

	view := res.Card
	respond(w, r, status, commandResponse{
		Result:  res.Outcome.String(),
		Message: res.Outcome.Status(),
		Card:    &view,
	})
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context()).session

	if raw := r.URL.Query().Get("card_number"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeEngineError(w, r, &engine.ValidationError{Fields: card.FieldErrors{
				card.FieldCardNumber: "card number must be an integer",
			}})
			return
		}
		view, err := s.engine.FindCard(r.Context(), sess, n)
		if err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		respond(w, r, http.StatusOK, cardListResponse{Cards: []types.CardView{view}, Count: 1})
		return
	}

	views, err := s.engine.ListCards(r.Context(), sess)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if views == nil {
		views = []types.CardView{}
	}
	respond(w, r, http.StatusOK, cardListResponse{Cards: views, Count: len(views)})
}

func (s *Server) handleRefreshDumps(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context()).session
	n, err := pathNumber(r)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	var req dumpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadJSON, "invalid JSON body")
		return
	}

	var action gateway.DumpAction
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "", "add":
		action = gateway.DumpAdd
	case "remove":
		action = gateway.DumpRemove
	default:
		s.writeEngineError(w, r, &engine.ValidationError{Fields: card.FieldErrors{
			"action": `action must be "add" or "remove"`,
		}})
		return
	}

	if err := s.engine.RefreshDumps(r.Context(), sess, n, action); err != nil {
		st := engine.StatusOf(err)
		s.record(r, sess, "DUMPS_"+strings.ToUpper(action.String()), &n, st.Class, st.HTTPStatus)
		s.writeEngineError(w, r, err)
		return
	}
	s.record(r, sess, "DUMPS_"+strings.ToUpper(action.String()), &n, engine.ClassOK, http.StatusAccepted)
	respond(w, r, http.StatusAccepted, map[string]any{"card_number": n, "action": action.String(), "queued": true})
}

// record appends an audit event. Failures are logged and never change the
// response.
func (s *Server) record(r *http.Request, sess access.Session, action string, number *int64, result string, status int) {
	if s.audit == nil {
		return
	}
	ev := audit.Event{
		OccurredAt: s.now().UTC(),
		UserID:     sess.UserID,
		Username:   sess.Username,
		Action:     action,
		CardNumber: number,
		Result:     result,
		HTTPStatus: status,
		RequestID:  middleware.GetReqID(r.Context()),
	}
	// The request context may already be canceled by a disconnecting client.
	ctx := context.WithoutCancel(r.Context())
	if err := s.audit.Record(ctx, ev); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.String("error", err.Error()))
	}
}

type auditEventView struct {
	ID         string `json:"id"`
	OccurredAt string `json:"occurred_at"`
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	CardNumber *int64 `json:"card_number,omitempty"`
	Result     string `json:"result"`
	HTTPStatus int    `json:"http_status"`
	RequestID  string `json:"request_id,omitempty"`
}

// handleAudit lists recent audit events. Administrators only.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context()).session
	switch {
	case !sess.IsAuthenticated():
		s.writeEngineError(w, r, engine.ErrUnauthenticated)
		return
	case !access.Authorize(sess, access.IsAdmin):
		s.writeEngineError(w, r, &engine.AuthorizationError{Required: access.IsAdmin})
		return
	case s.audit == nil:
		s.writeEngineError(w, r, &engine.InternalError{Reason: "audit log is not configured"})
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	events, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	out := make([]auditEventView, 0, len(events))
	for _, ev := range events {
		out = append(out, auditEventView{
			ID:         ev.ID,
			OccurredAt: ev.OccurredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			UserID:     ev.UserID,
			Username:   ev.Username,
			Action:     ev.Action,
			CardNumber: ev.CardNumber,
			Result:     ev.Result,
			HTTPStatus: ev.HTTPStatus,
			RequestID:  ev.RequestID,
		})
	}
	respond(w, r, http.StatusOK, map[string]any{"events": out})
}
