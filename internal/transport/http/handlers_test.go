package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/mkraev/relay/internal/adapters/ws"
	"github.com/mkraev/relay/internal/app"
	"github.com/mkraev/relay/internal/domain"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	vocab, err := domain.NewVocabulary(domain.VocabularyBasic)
	require.NoError(t, err)

	hub := ws.NewHub(app.SimplePolicy{})
	registry := app.NewRegistry()
	registry.BindTransport(hub)
	t.Cleanup(registry.Close)

	coord := &app.Coordinator{
		Vocab:     vocab,
		Registry:  registry,
		Cache:     app.NewSequenceCache(app.DefaultCacheTTL),
		History:   app.NewHistoryLog(app.DefaultCacheTTL),
		Transport: hub,
	}

	r := gin.New()
	NewAPI(coord).Register(r)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	return rec, parsed
}

func TestAPI_CreateRoom(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/createRoom", `{"id":"room-123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
	require.Equal(t, "room-123", body["roomId"])
}

func TestAPI_CreateRoomMissingID(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/createRoom", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, body["ok"])
}

func TestAPI_SendActionsRoundTrip(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/sendActions",
		`{"id":"r1","actions":["forward","turnRight","turnLeft"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
	require.Equal(t, []any{"forward", "turnRight", "turnLeft"}, body["actions"])

	rec, body = doJSON(t, r, http.MethodGet, "/rooms/r1/last-sequence", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{"forward", "turnRight", "turnLeft"}, body["sequence"])
}

func TestAPI_SendActionsInvalidTokens(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/sendActions",
		`{"id":"r1","actions":["forward","spin"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, body["ok"])
	require.Equal(t, []any{"spin"}, body["invalid"])
	require.Contains(t, body["allowed"], "forward")

	// Nothing got cached for the rejected batch.
	rec, body = doJSON(t, r, http.MethodGet, "/rooms/r1/last-sequence", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{}, body["sequence"])
}

func TestAPI_SendActionsEmptySequence(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/sendActions", `{"id":"r1","actions":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, body["ok"])
}

func TestAPI_ClearLastSequence(t *testing.T) {
	r := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/sendActions", `{"id":"r1","actions":["forward"]}`)

	rec, body := doJSON(t, r, http.MethodPost, "/rooms/r1/last-sequence/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["cleared"])

	_, body = doJSON(t, r, http.MethodGet, "/rooms/r1/last-sequence", "")
	require.Equal(t, []any{}, body["sequence"])
}

func TestAPI_HistoryEndpoints(t *testing.T) {
	r := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/sendActions", `{"id":"r1","actions":["forward","turnBack"]}`)

	rec, body := doJSON(t, r, http.MethodGet, "/rooms/r1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{"forward", "turnBack"}, body["actions"])

	rec, body = doJSON(t, r, http.MethodPost, "/rooms/r1/history/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), body["removed"])
}

func TestAPI_ListRooms(t *testing.T) {
	r := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/createRoom", `{"id":"a"}`)
	doJSON(t, r, http.MethodPost, "/createRoom", `{"id":"b"}`)

	rec, body := doJSON(t, r, http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{"a", "b"}, body["rooms"])
}

func TestAPI_ListClientsEmpty(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodGet, "/rooms/r1/clients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{}, body["clients"])
}
