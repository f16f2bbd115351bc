package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/lifesim/internal/behavior"
	"github.com/talgya/lifesim/internal/config"
	"github.com/talgya/lifesim/internal/convo"
	"github.com/talgya/lifesim/internal/schedule"
	"github.com/talgya/lifesim/internal/sim"
	"github.com/talgya/lifesim/internal/store"
	"github.com/talgya/lifesim/internal/world"
)

func testServer(t *testing.T, pushInterval time.Duration) (*Server, *sim.Engine) {
	t.Helper()
	town := &world.Map{ID: "town", TileSize: 32, SpawnNodeID: "town-0-0"}
	town.BuildGrid("town", 2, 2)

	alice := &world.Character{
		ID: "alice", Name: "Alice", Money: 1200,
		Satiety: 80, Energy: 80, Hygiene: 80, Mood: 80, Bladder: 80,
		CurrentMapID: "town", CurrentNodeID: "town-0-0",
		Position: town.Node("town-0-0").Pos(),
	}
	ws := world.NewWorldState(map[string]*world.Map{"town": town}, []*world.Character{alice}, nil)

	cfg := config.Default()
	st := store.NewMemory()
	convos := convo.NewManager()
	engine := sim.NewEngine(sim.Deps{
		Config:    cfg,
		World:     ws,
		Store:     st,
		Decider:   behavior.NewDecider(cfg, nil),
		Schedules: schedule.NewManager(st, nil),
		Convos:    convos,
		ConvoExec: convo.NewExecutor(convos, nil, 0, time.Second),
		PostProc:  convo.NewPostProcessor(nil, st),
	})
	require.NoError(t, engine.EnsureInitialized(context.Background()))
	return NewServer(engine, pushInterval), engine
}

func getJSON(t *testing.T, h http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := testServer(t, time.Second)

	var body map[string]any
	rec := getJSON(t, s.Handler(), "/api/v1/status", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	assert.Equal(t, float64(1), body["characters"])
	assert.Equal(t, false, body["paused"])
	assert.Equal(t, "1,200", body["totalMoney"])
	assert.NotEmpty(t, body["time"])
}

func TestSnapshotEndpoint(t *testing.T) {
	s, _ := testServer(t, time.Second)

	var snap world.Snapshot
	rec := getJSON(t, s.Handler(), "/api/v1/snapshot", &snap)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, snap.Characters, 1)
	assert.Equal(t, "alice", snap.Characters[0].ID)
	assert.Equal(t, "town-0-0", snap.Characters[0].NodeID)
}

func TestCharacterEndpoint(t *testing.T) {
	s, _ := testServer(t, time.Second)

	var c world.CharacterView
	rec := getJSON(t, s.Handler(), "/api/v1/characters/alice", &c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice", c.Name)
	assert.Equal(t, 1200, c.Money)

	rec = getJSON(t, s.Handler(), "/api/v1/characters/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPauseEndpoint(t *testing.T) {
	s, engine := testServer(t, time.Second)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pause", strings.NewReader(`{"paused":true}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, engine.World().TakeSnapshot().Paused)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/pause", strings.NewReader("not json"))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsEndpoint(t *testing.T) {
	s, _ := testServer(t, time.Second)

	rec := getJSON(t, s.Handler(), "/api/v1/events", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebsocketPushesSnapshots(t *testing.T) {
	s, _ := testServer(t, 10*time.Millisecond)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap world.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	require.Len(t, snap.Characters, 1)
	assert.Equal(t, "alice", snap.Characters[0].ID)
}
