package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apiTypes "github.com/ricochet1k/ptymux/pkg/api"
)

// Terminal ids contain a slash ("pts/3"), so they are taken from the
// wildcard rather than a single path segment.
func terminalPath(r *http.Request) (tty string, output bool) {
	rest := strings.Trim(chi.URLParam(r, "*"), "/")
	if trimmed, ok := strings.CutSuffix(rest, "/output"); ok {
		return trimmed, true
	}
	return rest, false
}

func (h *Handler) listTerminals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiTypes.TerminalListResponse{Terminals: h.router.Summaries()})
}

func (h *Handler) getTerminal(w http.ResponseWriter, r *http.Request) {
	tty, output := terminalPath(r)
	if tty == "" {
		writeError(w, http.StatusBadRequest, "missing terminal id", "")
		return
	}
	if output {
		resp, err := h.router.Scrollback(tty)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp, err := h.router.Summary(tty)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) deleteTerminal(w http.ResponseWriter, r *http.Request) {
	tty, output := terminalPath(r)
	if tty == "" || output {
		writeError(w, http.StatusBadRequest, "invalid terminal path", "")
		return
	}
	if err := h.router.Remove(tty); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
