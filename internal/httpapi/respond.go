package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/guard-e/hostel/internal/hostel/engine"
)

// Codes used only by the HTTP layer. Everything else is an engine class.
const (
	codeBadJSON       = "bad_json"
	codeRateLimited   = "rate_limited"
	codeLoginDisabled = "login_disabled"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// respond writes v as JSON, or as a protobuf Struct when the client asked for it.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsProtobuf(r) {
		msg, err := toStruct(v)
		if err != nil {
			http.Error(w, "proto conversion error", http.StatusInternalServerError)
			return
		}
		writeProto(w, status, msg)
		return
	}
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	respond(w, r, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// writeEngineError maps err through engine.StatusOf. Store and internal
// failures are logged and their details withheld from the client.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	st := engine.StatusOf(err)
	body := errorDetail{Code: st.Class, Message: err.Error()}

	var valErr *engine.ValidationError
	if errors.As(err, &valErr) {
		body.Fields = valErr.Fields
	}
	if st.HTTPStatus >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("class", st.Class),
			slog.String("error", err.Error()))
		body.Message = http.StatusText(st.HTTPStatus)
	}
	respond(w, r, st.HTTPStatus, errorBody{Error: body})
}

// decodeJSON reads a size-limited JSON body into dst and rejects unknown
// fields and trailing data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
