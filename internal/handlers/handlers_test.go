package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"mytodos/internal/models"
	"mytodos/internal/reconcile"
	"mytodos/internal/store"
	"mytodos/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestHandlers(t *testing.T) (*Handlers, *reconcile.Engine, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	e := reconcile.New(reconcile.Config{Store: s, Logger: discardLogger()})
	t.Cleanup(e.Close)

	return New(e, discardLogger()), e, s
}

func setupFakeHandlers(t *testing.T, ids ...string) (*Handlers, *reconcile.Engine, *testutil.FakeStore) {
	t.Helper()
	fake := testutil.NewFakeStore()
	for i, id := range ids {
		fake.Seed(id, "todo "+id, models.IntPtr(i+1))
	}

	e := reconcile.New(reconcile.Config{Store: fake, Logger: discardLogger()})
	t.Cleanup(e.Close)
	if err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	return New(e, discardLogger()), e, fake
}

// seedTodos creates one todo per content, ordered as given, and loads them.
func seedTodos(t *testing.T, e *reconcile.Engine, s *store.SQLiteStore, contents ...string) []models.Item {
	t.Helper()
	ctx := context.Background()
	for i, content := range contents {
		if _, err := s.Create(ctx, store.CreateInput{Content: content, Order: models.IntPtr(i + 1)}); err != nil {
			t.Fatalf("failed to seed todo: %v", err)
		}
	}
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	return e.Items()
}

func findStored(t *testing.T, s *store.SQLiteStore, id string) (models.RawItem, bool) {
	t.Helper()
	todos, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, todo := range todos {
		if todo.ID == id {
			return todo, true
		}
	}
	return models.RawItem{}, false
}

func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) listResponse {
	t.Helper()
	var resp listResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func contentsOf(items []models.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Content
	}
	return out
}

func TestListTodosHandler(t *testing.T) {
	h, e, s := setupTestHandlers(t)
	seedTodos(t, e, s, "Buy milk", "Walk dog")

	req := httptest.NewRequest("GET", "/api/todos", nil)
	rec := httptest.NewRecorder()

	h.ListTodos(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected json content type, got %q", ct)
	}

	resp := decodeList(t, rec)
	if got := contentsOf(resp.Items); len(got) != 2 || got[0] != "Buy milk" || got[1] != "Walk dog" {
		t.Errorf("expected [Buy milk Walk dog], got %v", got)
	}
	if resp.Version != e.Version() {
		t.Errorf("expected version %d, got %d", e.Version(), resp.Version)
	}
}

func TestListTodosHandler_Empty(t *testing.T) {
	h, _, _ := setupTestHandlers(t)

	req := httptest.NewRequest("GET", "/api/todos", nil)
	rec := httptest.NewRecorder()

	h.ListTodos(rec, req)

	if body := rec.Body.String(); !strings.Contains(body, `"items":[]`) {
		t.Errorf("expected empty items array, got %s", body)
	}
}

func TestCreateTodoHandler_Form(t *testing.T) {
	h, e, s := setupTestHandlers(t)
	seedTodos(t, e, s, "First")

	form := url.Values{}
	form.Set("content", "  Buy milk  ")

	req := httptest.NewRequest("POST", "/api/todos", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.CreateTodo(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rec.Code, rec.Body.String())
	}

	todos, _ := s.List(context.Background())
	if len(todos) != 2 {
		t.Fatalf("expected 2 todos, got %d", len(todos))
	}
	created := todos[1]
	if created.Content != "Buy milk" {
		t.Errorf("expected trimmed content, got %q", created.Content)
	}
	if created.Order == nil || *created.Order != 2 {
		t.Errorf("expected order 2, got %v", created.Order)
	}
}

func TestCreateTodoHandler_JSON(t *testing.T) {
	h, _, s := setupTestHandlers(t)

	body, _ := json.Marshal(map[string]string{"content": "Walk dog"})
	req := httptest.NewRequest("POST", "/api/todos", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()

	h.CreateTodo(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rec.Code, rec.Body.String())
	}

	todos, _ := s.List(context.Background())
	if len(todos) != 1 || todos[0].Content != "Walk dog" {
		t.Errorf("expected one todo 'Walk dog', got %+v", todos)
	}
}

func TestCreateTodoHandler_ValidationError(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{name: "empty form", contentType: "application/x-www-form-urlencoded", body: "content="},
		{name: "blank form", contentType: "application/x-www-form-urlencoded", body: "content=+++"},
		{name: "missing field", contentType: "application/x-www-form-urlencoded", body: ""},
		{name: "blank json", contentType: "application/json", body: `{"content":"  "}`},
		{name: "bad json", contentType: "application/json", body: `{"content":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, s := setupTestHandlers(t)

			req := httptest.NewRequest("POST", "/api/todos", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()

			h.CreateTodo(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			todos, _ := s.List(context.Background())
			if len(todos) != 0 {
				t.Errorf("expected no todos to be created, got %d", len(todos))
			}
		})
	}
}

func TestCreateTodoHandler_StoreFailure(t *testing.T) {
	h, _, fake := setupFakeHandlers(t, "A")
	fake.CreateErr = testutil.ErrInjected

	form := url.Values{}
	form.Set("content", "new")
	req := httptest.NewRequest("POST", "/api/todos", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.CreateTodo(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected status %d, got %d", http.StatusBadGateway, rec.Code)
	}
}

func TestDeleteTodoHandler_Success(t *testing.T) {
	h, e, s := setupTestHandlers(t)
	items := seedTodos(t, e, s, "A", "B")

	req := withID(httptest.NewRequest("DELETE", "/api/todos/"+items[0].ID, nil), items[0].ID)
	rec := httptest.NewRecorder()

	h.DeleteTodo(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	resp := decodeList(t, rec)
	if got := contentsOf(resp.Items); len(got) != 1 || got[0] != "B" {
		t.Errorf("expected [B], got %v", got)
	}

	if _, ok := findStored(t, s, items[0].ID); ok {
		t.Error("expected todo to be deleted from store")
	}
}

func TestDeleteTodoHandler_NotFound(t *testing.T) {
	h, e, s := setupTestHandlers(t)
	seedTodos(t, e, s, "A")

	req := withID(httptest.NewRequest("DELETE", "/api/todos/nope", nil), "nope")
	rec := httptest.NewRecorder()

	h.DeleteTodo(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if len(e.Items()) != 1 {
		t.Errorf("expected list to be unchanged, got %d items", len(e.Items()))
	}
}

func TestDeleteTodoHandler_StoreFailureRollsBack(t *testing.T) {
	h, e, fake := setupFakeHandlers(t, "A", "B")
	fake.DeleteErr = testutil.ErrInjected

	req := withID(httptest.NewRequest("DELETE", "/api/todos/A", nil), "A")
	rec := httptest.NewRecorder()

	h.DeleteTodo(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected status %d, got %d", http.StatusBadGateway, rec.Code)
	}
	if len(e.Items()) != 2 || e.Items()[0].ID != "A" {
		t.Errorf("expected [A B] after rollback, got %+v", e.Items())
	}
}

func TestDeleteTodoHandler_MissingID(t *testing.T) {
	h, _, _ := setupTestHandlers(t)

	req := withID(httptest.NewRequest("DELETE", "/api/todos/", nil), "")
	rec := httptest.NewRecorder()

	h.DeleteTodo(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestReorderTodosHandler_Success(t *testing.T) {
	h, e, s := setupTestHandlers(t)
	items := seedTodos(t, e, s, "A", "B", "C")

	body, _ := json.Marshal(map[string]string{"active_id": items[0].ID, "over_id": items[2].ID})
	req := httptest.NewRequest("POST", "/api/todos/reorder", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.ReorderTodos(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	resp := decodeList(t, rec)
	if got := contentsOf(resp.Items); strings.Join(got, ",") != "B,C,A" {
		t.Errorf("expected B,C,A, got %v", got)
	}

	stored, _ := s.List(context.Background())
	want := map[string]int{"B": 1, "C": 2, "A": 3}
	for _, todo := range stored {
		if *todo.Order != want[todo.Content] {
			t.Errorf("expected %s at order %d, got %d", todo.Content, want[todo.Content], *todo.Order)
		}
	}
}

func TestReorderTodosHandler_IgnoresUnknownIDs(t *testing.T) {
	h, e, s := setupTestHandlers(t)
	items := seedTodos(t, e, s, "A", "B")

	body, _ := json.Marshal(map[string]string{"active_id": items[0].ID, "over_id": "missing"})
	req := httptest.NewRequest("POST", "/api/todos/reorder", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ReorderTodos(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := contentsOf(decodeList(t, rec).Items); strings.Join(got, ",") != "A,B" {
		t.Errorf("expected A,B, got %v", got)
	}
}

func TestReorderTodosHandler_InvalidJSON(t *testing.T) {
	h, _, _ := setupTestHandlers(t)

	req := httptest.NewRequest("POST", "/api/todos/reorder", strings.NewReader("not json"))
	rec := httptest.NewRecorder()

	h.ReorderTodos(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestReorderTodosHandler_StoreFailureRollsBack(t *testing.T) {
	h, e, fake := setupFakeHandlers(t, "A", "B", "C")
	fake.SetUpdateErr("C", testutil.ErrInjected)

	body, _ := json.Marshal(map[string]string{"active_id": "C", "over_id": "A"})
	req := httptest.NewRequest("POST", "/api/todos/reorder", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ReorderTodos(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected status %d, got %d", http.StatusBadGateway, rec.Code)
	}

	var ids []string
	for _, item := range e.Items() {
		ids = append(ids, item.ID)
	}
	if strings.Join(ids, ",") != "A,B,C" {
		t.Errorf("expected A,B,C after rollback, got %v", ids)
	}
}

func TestUpdateTodoOrderHandler_Success(t *testing.T) {
	h, e, s := setupTestHandlers(t)
	items := seedTodos(t, e, s, "A")

	req := withID(httptest.NewRequest("PUT", "/api/todos/"+items[0].ID+"/order", strings.NewReader(`{"order":7}`)), items[0].ID)
	rec := httptest.NewRecorder()

	h.UpdateTodoOrder(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, rec.Code, rec.Body.String())
	}

	todo, ok := findStored(t, s, items[0].ID)
	if !ok {
		t.Fatal("expected todo to be stored")
	}
	if *todo.Order != 7 {
		t.Errorf("expected order 7, got %d", *todo.Order)
	}
}

func TestUpdateTodoOrderHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		id   string
		body string
		want int
	}{
		{name: "missing order", id: "x", body: `{}`, want: http.StatusBadRequest},
		{name: "bad json", id: "x", body: `{"order":"one"}`, want: http.StatusBadRequest},
		{name: "missing id", id: "", body: `{"order":1}`, want: http.StatusBadRequest},
		{name: "zero order", id: "x", body: `{"order":0}`, want: http.StatusBadRequest},
		{name: "order past limit", id: "x", body: `{"order":9223372036854775807}`, want: http.StatusBadRequest},
		{name: "unknown id", id: "x", body: `{"order":1}`, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := setupTestHandlers(t)

			req := withID(httptest.NewRequest("PUT", "/api/todos/x/order", strings.NewReader(tt.body)), tt.id)
			rec := httptest.NewRecorder()

			h.UpdateTodoOrder(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	h, _, _ := setupTestHandlers(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("expected 200 ok, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestLiveTodosHandler(t *testing.T) {
	h, e, s := setupTestHandlers(t)
	items := seedTodos(t, e, s, "A", "B")

	srv := httptest.NewServer(http.HandlerFunc(h.LiveTodos))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg liveMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read initial list: %v", err)
	}
	if got := contentsOf(msg.Items); strings.Join(got, ",") != "A,B" {
		t.Errorf("expected A,B, got %v", got)
	}

	if err := e.Delete(context.Background(), items[0].ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read update: %v", err)
	}
	if got := contentsOf(msg.Items); strings.Join(got, ",") != "B" {
		t.Errorf("expected B, got %v", got)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/todos", nil))

	line := buf.String()
	for _, want := range []string{"msg=handled", "method=GET", "path=/api/todos", "status=418", "bytes=15"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected log line to contain %q, got %s", want, line)
		}
	}
}
