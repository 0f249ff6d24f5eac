package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/aria/pkg/lifecycle"
	"github.com/cuemby/aria/pkg/types"
)

// instanceView is the JSON-facing shape of a types.Instance.
type instanceView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Port      int    `json:"port"`
	Status    string `json:"status"`
	PID       int    `json:"pid,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toView(inst types.Instance) instanceView {
	return instanceView{
		ID:        inst.ID,
		Name:      inst.Name,
		Port:      inst.Port,
		Status:    string(inst.Status),
		PID:       inst.PID,
		CreatedAt: inst.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := s.instances.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]instanceView, len(instances))
	for i, inst := range instances {
		views[i] = toView(inst)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) resolveInstance(w http.ResponseWriter, r *http.Request) (types.Instance, bool) {
	name := chi.URLParam(r, "name")
	inst, ok, err := s.instances.GetByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return types.Instance{}, false
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "instance not found"})
		return types.Instance{}, false
	}
	return inst, true
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.resolveInstance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toView(inst))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.lifecycle.Start(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.lifecycle.Stop(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.lifecycle.Restart(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarted"})
}

func (s *Server) handleInstanceLogs(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.resolveInstance(w, r)
	if !ok {
		return
	}

	lines := clampLines(r.URL.Query().Get("lines"))
	l := lifecycle.NewLayout(lifecycle.InstanceDir(inst))

	tail, err := tailFile(l.LogPath(), lines)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instance": inst.Name, "lines": tail})
}

// tailFile returns the last n lines of path, tolerating a missing file as
// an empty log rather than an error (an instance that has never started
// has no daemon.log yet).
func tailFile(path string, n int) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(all) == 1 && all[0] == "" {
		return []string{}, nil
	}
	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}
