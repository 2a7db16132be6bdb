package api

import (
	"embed"
	"html/template"
	"net/http"

	"ticket-triage/store"
)

//go:embed web
var webFS embed.FS

var indexTmpl = template.Must(template.New("index.html").
	Funcs(template.FuncMap{
		"deref": func(b *bool) bool { return b != nil && *b },
	}).
	ParseFS(webFS, "web/index.html"))

type indexData struct {
	TicketID string
	Error    string
	Record   *store.AnalysisRecord
	Recent   []*store.AnalysisRecord
}

func renderIndex(w http.ResponseWriter, data *indexData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	indexTmpl.Execute(w, data)
}
