package agentd

import (
	"fmt"
	"net/http"
)

func newRouter(a *app) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ready")
	})

	if a.cfg.Auth.Enabled && a.login != nil {
		mux.HandleFunc("/auth/login", a.login.Handler())
		mux.HandleFunc("/auth/logout", a.login.LogoutHandler())
		mux.HandleFunc("/api/me", a.login.MeHandler())
	}

	mux.HandleFunc("/chat", a.chatHandler)

	return mux
}
