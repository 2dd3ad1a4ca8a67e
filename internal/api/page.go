package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed static/index.html
var staticFS embed.FS

var indexTemplate = template.Must(template.ParseFS(staticFS, "static/index.html"))

type indexData struct {
	EventPath string
	Version   string
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, indexData{EventPath: h.eventPath, Version: h.version}); err != nil {
		h.logger.Error("render index", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to render page", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
