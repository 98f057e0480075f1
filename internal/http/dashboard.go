package httpapi

import (
	_ "embed"
	"net/http"
)

//go:embed web/monitor.html
var monitorPage []byte

// Dashboard GET / serves the polling monitor page.
func Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, Fail("not found"))
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(monitorPage)
}
