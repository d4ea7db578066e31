package httpapi

import (
	"net/http"
	"path"
	"strings"
)

// cleanPrefix reduces a configured mount point to "" or "/a/b" form.
func cleanPrefix(value string) string {
	prefix := strings.Trim(strings.TrimSpace(value), "/")
	if prefix == "" {
		return ""
	}
	return path.Clean("/" + prefix)
}

// mount serves h below prefix. A request for the bare prefix is redirected
// to prefix + "/" so relative API paths keep working behind a proxy.
func mount(prefix string, h http.Handler) http.Handler {
	if prefix == "" {
		return h
	}
	mux := http.NewServeMux()
	mux.Handle(prefix+"/", http.StripPrefix(prefix, h))
	mux.Handle(prefix, http.RedirectHandler(prefix+"/", http.StatusMovedPermanently))
	return mux
}
