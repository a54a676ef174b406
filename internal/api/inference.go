package api

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iris-network/iris/internal/app/orchestrate"
	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/infra/stream"
)

// ─── Task Submission & Polling ──────────────────────────────────────────────

type submitRequest struct {
	Prompt     string       `json:"prompt"`
	Mode       string       `json:"mode,omitempty"`
	Difficulty string       `json:"difficulty,omitempty"`
	Streaming  bool         `json:"streaming,omitempty"`
	Files      []submitFile `json:"files,omitempty"`
}

type submitFile struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"` // "pdf" or "image"
	MIMEType string `json:"mime_type,omitempty"`
	Data     string `json:"data"` // base64
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	acct, err := s.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or missing account key")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	mode, err := parseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	difficulty, err := parseDifficulty(req.Difficulty)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	files, err := parseFiles(req.Files)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := s.orc.CreateTask(r.Context(), orchestrate.Request{
		PrincipalID: acct.ID,
		Prompt:      req.Prompt,
		Mode:        mode,
		Difficulty:  difficulty,
		Files:       files,
		Streaming:   req.Streaming,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidFormat) {
			writeError(w, http.StatusBadRequest, "prompt must not be empty")
			return
		}
		writeError(w, http.StatusInternalServerError, "task could not be created")
		return
	}

	resp := map[string]any{
		"task_id":    task.ID,
		"status":     task.Status,
		"mode":       task.Mode,
		"difficulty": task.Difficulty,
		"created_at": task.CreatedAt,
	}
	if req.Streaming {
		resp["stream_url"] = fmt.Sprintf("/inference/%s/stream", task.ID)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	acct, err := s.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or missing account key")
		return
	}

	task, err := s.store.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if task.PrincipalID != acct.ID {
		writeError(w, http.StatusForbidden, "task belongs to another principal")
		return
	}

	subtasks, err := s.store.ListSubtasksByTask(task.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "task could not be loaded")
		return
	}
	completed := 0
	for _, st := range subtasks {
		if st.Status == domain.SubtaskCompleted {
			completed++
		}
	}

	resp := map[string]any{
		"task_id":            task.ID,
		"status":             task.Status,
		"mode":               task.Mode,
		"difficulty":         task.Difficulty,
		"subtasks_total":     len(subtasks),
		"subtasks_completed": completed,
		"created_at":         task.CreatedAt,
	}
	if task.FinalResponse != "" {
		resp["final_response"] = task.FinalResponse
	}
	if !task.CompletedAt.IsZero() {
		resp["completed_at"] = task.CompletedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStream replays a task's stream session over SSE: chunk events
// followed by exactly one done or error event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	ch, err := s.hub.Subscribe(taskID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrStreamSubscribed):
			writeError(w, http.StatusConflict, "stream already has a subscriber")
		default:
			writeError(w, http.StatusNotFound, "no stream session for this task")
		}
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writer := bufio.NewWriter(w)
	for {
		select {
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", ev.Type, data)
			writer.Flush()
			flusher.Flush()
			if ev.Type == stream.EventDone || ev.Type == stream.EventError {
				s.hub.Release(taskID)
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// ─── Operational Reads ──────────────────────────────────────────────────────

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	connected, online := s.registry.Counts()
	breakers := map[string]int{}
	for state, n := range s.breakers.Stats() {
		breakers[string(state)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes_connected": connected,
		"nodes_online":    online,
		"stream_sessions": s.hub.Len(),
		"breakers":        breakers,
		"time":            time.Now().UTC(),
	})
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.registry.OnlineNodes()
	out := make([]map[string]any, 0, len(nodes))
	for _, cn := range nodes {
		out = append(out, map[string]any{
			"node_id":        cn.Node.ID,
			"tier":           cn.Node.Tier,
			"model":          cn.Node.ModelName,
			"vision":         cn.Node.SupportsVision,
			"reputation":     cn.Node.Reputation,
			"current_load":   cn.CurrentLoad,
			"latency_ms":     cn.LatencyMS,
			"last_heartbeat": cn.LastHeartbeat,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": out})
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	top, err := s.rep.Leaderboard(20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "leaderboard unavailable")
		return
	}
	out := make([]map[string]any, 0, len(top))
	for _, n := range top {
		out = append(out, map[string]any{
			"node_id":         n.ID,
			"tier":            n.Tier,
			"reputation":      n.Reputation,
			"tasks_completed": n.TasksCompleted,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": out})
}

// ─── Request Parsing ────────────────────────────────────────────────────────

func parseMode(s string) (domain.TaskMode, error) {
	switch domain.TaskMode(s) {
	case "", domain.ModeSubtasks:
		return domain.ModeSubtasks, nil
	case domain.ModeConsensus:
		return domain.ModeConsensus, nil
	case domain.ModeContext:
		return domain.ModeContext, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

func parseDifficulty(s string) (domain.Difficulty, error) {
	switch domain.Difficulty(s) {
	case "":
		return "", nil
	case domain.Simple, domain.Complex, domain.Advanced:
		return domain.Difficulty(s), nil
	default:
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
}

func parseFiles(files []submitFile) ([]domain.TaskFile, error) {
	if len(files) == 0 {
		return nil, nil
	}
	out := make([]domain.TaskFile, 0, len(files))
	for _, f := range files {
		kind := domain.FileKind(f.Kind)
		if kind != domain.FilePDF && kind != domain.FileImage {
			return nil, fmt.Errorf("unknown file kind %q", f.Kind)
		}
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, fmt.Errorf("file %q: data is not valid base64", f.Name)
		}
		out = append(out, domain.TaskFile{
			Name:     f.Name,
			Kind:     kind,
			MIMEType: f.MIMEType,
			Data:     data,
		})
	}
	return out, nil
}
