package server

import (
	"io"
	"log/slog"
	"net/http"
	httppprof "net/http/pprof"

	"github.com/nport/nport-edge/internal/auth"
	"github.com/nport/nport-edge/internal/config"
	"github.com/nport/nport-edge/internal/domain"
	"github.com/nport/nport-edge/internal/metrics"
	"github.com/nport/nport-edge/internal/tunnel"
)

func (s *Server) opsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/v1/tunnels", s.opsProtected(http.HandlerFunc(s.handleListTunnels)))
	mux.Handle("/v1/events", s.opsProtected(s.hub))
	mux.Handle("/metrics", s.opsProtected(metrics.Handler()))
	if s.cfg.PprofEnabled {
		mux.Handle("/debug/pprof/", s.opsProtected(newPprofMux()))
	}

	h := http.Handler(mux)
	h = withAccessLog(s.log.With(slog.String("component", "ops")), h)
	h = withRequestID(h)
	return h
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

// handleListTunnels returns the provider's tunnel inventory, each record
// annotated with its expiry state under the max age in force right now.
func (s *Server) handleListTunnels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, err := config.Resolve(s.lookup)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tunnels, err := s.provider.ListTunnels(r.Context(), cfg)
	if err != nil {
		s.log.Error("tunnel listing failed", "err", err)
		writeError(w, http.StatusBadGateway, "provider listing failed")
		return
	}

	maxAge := tunnel.MaxAge(cfg)
	now := s.now()
	out := make([]domain.TunnelStatus, 0, len(tunnels))
	for _, t := range tunnels {
		out = append(out, domain.TunnelStatus{Tunnel: t, Expired: tunnel.Expired(t, maxAge, now)})
	}
	writeJSON(w, http.StatusOK, domain.ListResponse{Success: true, Tunnels: out})
}

// opsProtected enforces basic auth when ops credentials are configured. With
// none set the ops listener is open, the expected mode behind a private
// network boundary. Health checks are always unauthenticated.
func (s *Server) opsProtected(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.OpsUser == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || !auth.ConstantTimeEquals(user, s.cfg.OpsUser) || !auth.VerifyPassword(s.cfg.OpsPasswordHash, pass) {
			writeBasicAuthChallenge(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeBasicAuthChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="nport-edge ops"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func newPprofMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", httppprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", httppprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", httppprof.Trace)
	return mux
}
