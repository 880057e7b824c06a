package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentboard/agentboard/internal/board"
	"github.com/agentboard/agentboard/internal/db"
	"github.com/agentboard/agentboard/internal/task"
)

func newTestServer(t *testing.T) (*httptest.Server, *task.Service, board.Board, board.Column) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	boards := board.NewStore(database)
	def, err := board.AITemplate(0)
	require.NoError(t, err)
	b, err := boards.Create(context.Background(), "web test", def)
	require.NoError(t, err)
	ready, err := boards.ColumnByPhase(context.Background(), b.ID, board.PhaseReady)
	require.NoError(t, err)

	service := task.NewService(database, boards)
	server, err := NewServer(boards, service)
	require.NoError(t, err)
	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)
	return ts, service, b, ready
}

func TestBoardJSON(t *testing.T) {
	ts, service, b, ready := newTestServer(t)
	_, err := service.CreateTask(context.Background(), task.CreateTaskParams{
		ColumnID: ready.ID, Type: task.TypeWork, Title: "render me",
	})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/boards/" + itoa(b.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view struct {
		Board   board.Board
		Columns []struct {
			Column board.Column
			Tasks  []task.Task
		}
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "web test", view.Board.Name)
	require.Len(t, view.Columns, 5)
	require.Len(t, view.Columns[1].Tasks, 1)
	assert.Equal(t, "W1", view.Columns[1].Tasks[0].Identifier)
}

func TestBoardHTML(t *testing.T) {
	ts, service, b, ready := newTestServer(t)
	_, err := service.CreateTask(context.Background(), task.CreateTaskParams{
		ColumnID: ready.ID, Type: task.TypeWork, Title: "render me",
	})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/boards/" + itoa(b.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "render me")
	assert.Contains(t, buf.String(), "W1")
}

func TestClaimEndpoint(t *testing.T) {
	ts, service, b, ready := newTestServer(t)
	_, err := service.CreateTask(context.Background(), task.CreateTaskParams{
		ColumnID: ready.ID, Type: task.TypeWork, Title: "claim me",
	})
	require.NoError(t, err)

	body := bytes.NewBufferString(`{"agent":"a1"}`)
	resp, err := http.Post(ts.URL+"/api/boards/"+itoa(b.ID)+"/claim", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Task task.Task
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "W1", result.Task.Identifier)
	assert.Equal(t, "a1", result.Task.AssignedToID)

	// Board drained; the next claim conflicts.
	resp2, err := http.Post(ts.URL+"/api/boards/"+itoa(b.ID)+"/claim", "application/json",
		bytes.NewBufferString(`{"agent":"a2"}`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestCompleteEndpoint(t *testing.T) {
	ts, service, b, ready := newTestServer(t)
	_, err := service.CreateTask(context.Background(), task.CreateTaskParams{
		ColumnID: ready.ID, Type: task.TypeWork, Title: "finish me",
	})
	require.NoError(t, err)
	_, err = service.Claim(context.Background(), task.ClaimRequest{BoardID: b.ID, Agent: "a1"})
	require.NoError(t, err)

	// Completion by a non-holder is forbidden.
	resp, err := http.Post(ts.URL+"/api/tasks/W1/complete", "application/json",
		bytes.NewBufferString(`{"agent":"imposter"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp2, err := http.Post(ts.URL+"/api/tasks/W1/complete", "application/json",
		bytes.NewBufferString(`{"agent":"a1","summary":"done"}`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var result struct {
		Task task.Task
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&result))
	assert.Equal(t, task.StatusCompleted, result.Task.Status)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
