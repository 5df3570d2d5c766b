package httpapi_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/guard-e/hostel/internal/auth"
	"github.com/guard-e/hostel/internal/hostel/access"
	auditmem "github.com/guard-e/hostel/internal/hostel/audit/memory"
	"github.com/guard-e/hostel/internal/hostel/engine"
	"github.com/guard-e/hostel/internal/hostel/gateway"
	"github.com/guard-e/hostel/internal/hostel/gateway/memory"
	"github.com/guard-e/hostel/internal/httpapi"
)

const password = "correct horse"

type testEnv struct {
	ts    *httptest.Server
	store *memory.Store
	audit *auditmem.Store
}

// newTestEnv wires the full dependency graph on in-memory stores. Users:
// admin (all), editor (create+edit), viewer (view only).
func newTestEnv(t *testing.T, loginsPerMinute int) *testEnv {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	store := memory.New()
	store.AddUser("admin", access.FlagAdmin, 0, string(hash))
	store.AddUser("editor", access.FlagCreate|access.FlagEdit, 0, string(hash))
	store.AddUser("viewer", 0, 0, string(hash))

	logger := slog.New(slog.DiscardHandler)
	eng, err := engine.New(engine.Dependencies{
		Procedures: store,
		Dumps:      store,
		Logger:     logger,
		Now:        func() time.Time { return time.Date(2025, 1, 28, 9, 0, 0, 0, time.UTC) },
	}, engine.Policy{SerializePerCard: true})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	issuer, err := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	authn := auth.NewAuthenticator(store, auth.NewBcryptVerifier(store), issuer, auth.NewRevoker(100, time.Hour), logger)

	auditStore := auditmem.New()
	srv, err := httpapi.NewServer(httpapi.Dependencies{
		Logger:  logger,
		Addr:    ":0",
		Engine:  eng,
		Auth:    authn,
		Audit:   auditStore,
		Limiter: httpapi.NewLoginLimiter(loginsPerMinute),
		Health: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: store, audit: auditStore}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (e *testEnv) login(t *testing.T, user string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/v1/auth/login", "", `{"username":"`+user+`","password":"`+password+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", user, resp.StatusCode, body)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Token == "" {
		t.Fatalf("login %s: bad body %s", user, body)
	}
	return out.Token
}

type errorEnvelope struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeError(t *testing.T, body []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode error body %s: %v", body, err)
	}
	return env
}

type commandBody struct {
	Result  string `json:"result"`
	Message string `json:"message"`
	Card    struct {
		CardNumber  int64  `json:"card_number"`
		Room        string `json:"room"`
		ValidFrom   string `json:"valid_from"`
		ValidUntil  string `json:"valid_until"`
		Status      int    `json:"status"`
		StatusLabel string `json:"status_label"`
	} `json:"card"`
}

const newCard = `{"room":401,"card_number":1234567,"valid_from":"2025-01-28","valid_days":3,"comments":"Test card"}`

// ── Auth ─────────────────────────────────────────────────────────────────────

func TestLogin_AndMe(t *testing.T) {
	env := newTestEnv(t, 0)
	token := env.login(t, "editor")

	resp, body := env.do(t, http.MethodGet, "/v1/auth/me", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var me struct {
		Username    string             `json:"username"`
		Permissions access.Permissions `json:"permissions"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.Username != "editor" || !me.Permissions.CanCreate || !me.Permissions.CanEdit || me.Permissions.CanDelete {
		t.Errorf("unexpected profile %+v", me)
	}
}

func TestLogin_WrongPassword_401(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, body := env.do(t, http.MethodPost, "/v1/auth/login", "", `{"username":"editor","password":"nope"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if got := decodeError(t, body).Error.Code; got != engine.ClassUnauthenticated {
		t.Errorf("code = %q", got)
	}
}

func TestLogin_InvalidJSON_400(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, _ := env.do(t, http.MethodPost, "/v1/auth/login", "", `not json at all`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestLogin_RateLimited_429(t *testing.T) {
	env := newTestEnv(t, 2)
	for i := 0; i < 2; i++ {
		env.login(t, "viewer")
	}
	resp, body := env.do(t, http.MethodPost, "/v1/auth/login", "", `{"username":"viewer","password":"`+password+`"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if got := decodeError(t, body).Error.Code; got != "rate_limited" {
		t.Errorf("code = %q", got)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	env := newTestEnv(t, 0)
	token := env.login(t, "viewer")

	resp, _ := env.do(t, http.MethodPost, "/v1/auth/logout", token, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/v1/auth/me", token, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("after logout: expected 401, got %d", resp.StatusCode)
	}
}

func TestBadToken_401(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, body := env.do(t, http.MethodGet, "/v1/cards", "garbage", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if got := decodeError(t, body).Error.Code; got != engine.ClassUnauthenticated {
		t.Errorf("code = %q", got)
	}
}

func TestNoToken_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, body := env.do(t, http.MethodPost, "/v1/cards", "", newCard)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if got := decodeError(t, body).Error.Code; got != engine.ClassUnauthenticated {
		t.Errorf("code = %q", got)
	}
	if env.store.Calls() != 0 {
		t.Errorf("store was called %d times", env.store.Calls())
	}
}

// ── Cards ────────────────────────────────────────────────────────────────────

func TestCardLifecycle(t *testing.T) {
	env := newTestEnv(t, 0)
	editor := env.login(t, "editor")
	admin := env.login(t, "admin")

	resp, body := env.do(t, http.MethodPost, "/v1/cards", editor, newCard)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var created commandBody
	_ = json.Unmarshal(body, &created)
	if created.Result != "created" || created.Card.ValidUntil != "2025-01-31" || created.Card.Room != "401" {
		t.Errorf("unexpected create body %s", body)
	}

	resp, body = env.do(t, http.MethodPut, "/v1/cards/1234567", editor,
		`{"room":402,"valid_from":"2025-01-28","valid_days":10}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var updated commandBody
	_ = json.Unmarshal(body, &updated)
	if updated.Result != "updated" || updated.Card.ValidUntil != "2025-02-07" {
		t.Errorf("unexpected update body %s", body)
	}

	resp, body = env.do(t, http.MethodPost, "/v1/cards/1234567/lock", editor, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lock: expected 200, got %d: %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodGet, "/v1/cards/1234567", editor, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("view: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var viewed commandBody
	_ = json.Unmarshal(body, &viewed)
	if viewed.Card.Status != 0 || viewed.Card.StatusLabel != "inactive" {
		t.Errorf("expected inactive card, got %s", body)
	}

	resp, _ = env.do(t, http.MethodPost, "/v1/cards/1234567/activate", editor, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodDelete, "/v1/cards/1234567", editor, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("delete as editor: expected 403, got %d: %s", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodDelete, "/v1/cards/1234567", admin, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete as admin: expected 200, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodGet, "/v1/cards/1234567", editor, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("view deleted: expected 404, got %d", resp.StatusCode)
	}
	if got := decodeError(t, body).Error.Code; got != engine.ClassNotFound {
		t.Errorf("code = %q", got)
	}
}

func TestCreateCard_ValidationFields(t *testing.T) {
	env := newTestEnv(t, 0)
	token := env.login(t, "editor")

	resp, body := env.do(t, http.MethodPost, "/v1/cards", token, `{"room":42,"card_number":0,"valid_days":0}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	got := decodeError(t, body)
	if got.Error.Code != engine.ClassInvalidInput {
		t.Errorf("code = %q", got.Error.Code)
	}
	for _, f := range []string{"room", "card_number", "valid_days"} {
		if _, ok := got.Error.Fields[f]; !ok {
			t.Errorf("expected field %s in %v", f, got.Error.Fields)
		}
	}
	if env.store.Calls() != 0 {
		t.Error("invalid command reached the store")
	}
}

func TestCreateCard_ViewerForbidden(t *testing.T) {
	env := newTestEnv(t, 0)
	token := env.login(t, "viewer")

	resp, body := env.do(t, http.MethodPost, "/v1/cards", token, newCard)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if got := decodeError(t, body).Error.Code; got != engine.ClassForbidden {
		t.Errorf("code = %q", got)
	}
}

func TestCreateCard_OtherDepartmentConflict(t *testing.T) {
	env := newTestEnv(t, 0)
	token := env.login(t, "editor")

	if resp, body := env.do(t, http.MethodPost, "/v1/cards", token, newCard); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, body)
	}
	other := `{"room":401,"card_number":1234567,"valid_from":"2025-01-28","valid_days":3,"department":"OFFICE"}`
	resp, body := env.do(t, http.MethodPost, "/v1/cards", token, other)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.StatusCode, body)
	}
}

func TestUpdateCard_NumberMismatch(t *testing.T) {
	env := newTestEnv(t, 0)
	token := env.login(t, "editor")

	resp, _ := env.do(t, http.MethodPut, "/v1/cards/5", token, `{"card_number":6,"room":401,"valid_days":3}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/v1/cards/abc", token, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-numeric path: expected 400, got %d", resp.StatusCode)
	}
}

func TestListCards(t *testing.T) {
	env := newTestEnv(t, 0)
	token := env.login(t, "editor")

	for _, n := range []string{"11", "22", "33"} {
		body := `{"room":401,"card_number":` + n + `,"valid_from":"2025-01-28","valid_days":3}`
		if resp, data := env.do(t, http.MethodPost, "/v1/cards", token, body); resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: %d %s", n, resp.StatusCode, data)
		}
	}

	resp, body := env.do(t, http.MethodGet, "/v1/cards", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
	var list struct {
		Cards []struct {
			CardNumber int64 `json:"card_number"`
		} `json:"cards"`
		Count int `json:"count"`
	}
	_ = json.Unmarshal(body, &list)
	if list.Count != 3 || list.Cards[0].CardNumber != 33 {
		t.Errorf("expected newest first, got %s", body)
	}

	resp, body = env.do(t, http.MethodGet, "/v1/cards?card_number=22", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("find: %d", resp.StatusCode)
	}
	_ = json.Unmarshal(body, &list)
	if list.Count != 1 || list.Cards[0].CardNumber != 22 {
		t.Errorf("unexpected find result %s", body)
	}

	resp, _ = env.do(t, http.MethodGet, "/v1/cards?card_number=99", token, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("find missing: expected 404, got %d", resp.StatusCode)
	}
}

func TestStoreFailure_503(t *testing.T) {
	env := newTestEnv(t, 0)
	token := env.login(t, "editor")
	env.store.Fail(errors.New("connection refused"))

	resp, body := env.do(t, http.MethodPost, "/v1/cards", token, newCard)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", resp.StatusCode, body)
	}
	got := decodeError(t, body)
	if got.Error.Code != engine.ClassStoreUnavailable {
		t.Errorf("code = %q", got.Error.Code)
	}
	if strings.Contains(got.Error.Message, "refused") {
		t.Errorf("store details leaked: %q", got.Error.Message)
	}
}

func TestRefreshDumps(t *testing.T) {
	env := newTestEnv(t, 0)
	token := env.login(t, "editor")

	resp, body := env.do(t, http.MethodPost, "/v1/cards/1234567/dumps", token, `{"action":"remove"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	dumps := env.store.Dumps()
	if len(dumps) != 1 || dumps[0].CardNumber != 1234567 || dumps[0].Action != gateway.DumpRemove {
		t.Errorf("unexpected dumps %+v", dumps)
	}

	resp, _ = env.do(t, http.MethodPost, "/v1/cards/1234567/dumps", token, `{"action":"rebuild"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad action: expected 400, got %d", resp.StatusCode)
	}
}

func TestProtobufResponse(t *testing.T) {
	env := newTestEnv(t, 0)
	token := env.login(t, "editor")

	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/v1/cards", bytes.NewReader([]byte(newCard)))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-protobuf")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/x-protobuf" {
		t.Fatalf("Content-Type = %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := msg.GetFields()["result"].GetStringValue(); got != "created" {
		t.Errorf("result = %q", got)
	}
	cardFields := msg.GetFields()["card"].GetStructValue().GetFields()
	if got := cardFields["card_number"].GetNumberValue(); got != 1234567 {
		t.Errorf("card_number = %v", got)
	}
}

// ── Audit ────────────────────────────────────────────────────────────────────

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t, 0)
	editor := env.login(t, "editor")
	admin := env.login(t, "admin")

	env.do(t, http.MethodPost, "/v1/cards", editor, newCard)
	env.do(t, http.MethodDelete, "/v1/cards/1234567", editor, "")

	resp, _ := env.do(t, http.MethodGet, "/v1/audit", editor, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("editor audit: expected 403, got %d", resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodGet, "/v1/audit?limit=10", admin, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin audit: expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Events []struct {
			Action     string `json:"action"`
			Result     string `json:"result"`
			HTTPStatus int    `json:"http_status"`
			Username   string `json:"username"`
			RequestID  string `json:"request_id"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Events) != 2 {
		t.Fatalf("expected 2 events, got %s", body)
	}
	if ev := out.Events[0]; ev.Action != "DELETE" || ev.Result != engine.ClassForbidden || ev.HTTPStatus != http.StatusForbidden {
		t.Errorf("unexpected newest event %+v", ev)
	}
	if ev := out.Events[1]; ev.Action != "UPSERT" || ev.Result != "created" || ev.Username != "editor" || ev.RequestID == "" {
		t.Errorf("unexpected oldest event %+v", ev)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, _ := env.do(t, http.MethodGet, "/healthz", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
