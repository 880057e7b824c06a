// Package web provides a simple operator surface for agentboard: an embedded
// board view plus JSON endpoints delegating to the engine.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/agentboard/agentboard/internal/board"
	"github.com/agentboard/agentboard/internal/task"
)

// Server provides the web handlers and state.
type Server struct {
	boards  *board.Store
	service *task.Service
}

// NewServer creates a new web server.
func NewServer(boards *board.Store, service *task.Service) (*Server, error) {
	return &Server{boards: boards, service: service}, nil
}

//go:embed templates/*.html
var templatesFS embed.FS

// Routes returns the router for the web surface.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boards/{id}", s.handleBoard)
	mux.HandleFunc("GET /api/boards/{id}", s.handleBoardJSON)
	mux.HandleFunc("POST /api/boards/{id}/claim", s.handleClaim)
	mux.HandleFunc("POST /api/tasks/{identifier}/complete", s.handleComplete)
	return mux
}

type columnView struct {
	Column board.Column
	Tasks  []task.Task
}

type boardView struct {
	Board   board.Board
	Columns []columnView
}

func (s *Server) loadBoardView(r *http.Request) (boardView, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return boardView{}, err
	}
	b, err := s.boards.Board(r.Context(), id)
	if err != nil {
		return boardView{}, err
	}
	columns, err := s.boards.Columns(r.Context(), id)
	if err != nil {
		return boardView{}, err
	}
	view := boardView{Board: b}
	for _, col := range columns {
		tasks, err := s.service.ColumnTasks(r.Context(), col.ID)
		if err != nil {
			return boardView{}, err
		}
		view.Columns = append(view.Columns, columnView{Column: col, Tasks: tasks})
	}
	return view, nil
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	view, err := s.loadBoardView(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tmpl.Execute(w, view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleBoardJSON(w http.ResponseWriter, r *http.Request) {
	view, err := s.loadBoardView(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type claimRequest struct {
	Agent        string   `json:"agent"`
	Capabilities []string `json:"capabilities"`
	Identifier   string   `json:"identifier,omitempty"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	boardID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.service.Claim(r.Context(), task.ClaimRequest{
		BoardID:      boardID,
		Agent:        req.Agent,
		Capabilities: req.Capabilities,
		Identifier:   req.Identifier,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type completeRequest struct {
	Agent        string   `json:"agent"`
	Summary      string   `json:"summary,omitempty"`
	FilesChanged []string `json:"files_changed,omitempty"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.service.Complete(r.Context(), identifier, req.Agent, task.CompletionPayload{
		Summary:      req.Summary,
		FilesChanged: req.FilesChanged,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps engine outcomes to HTTP statuses; everything else is
// a server error.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound), errors.Is(err, board.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, task.ErrNoTasksAvailable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, task.ErrWIPLimitReached),
		errors.Is(err, task.ErrInvalidStatus),
		errors.Is(err, task.ErrInvalidColumn),
		errors.Is(err, task.ErrReviewNotPerformed),
		errors.Is(err, task.ErrHasDependents):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, task.ErrNotAuthorized), errors.Is(err, task.ErrNotClaimed):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
