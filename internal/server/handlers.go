package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/nport/nport-edge/internal/config"
	"github.com/nport/nport-edge/internal/domain"
	"github.com/nport/nport-edge/internal/events"
	"github.com/nport/nport-edge/internal/metrics"
	"github.com/nport/nport-edge/internal/policy"
)

// marketingURL is where browser traffic lands. The trailing slash is part of
// the published contract; clients match the Location header byte for byte.
const marketingURL = "https://nport.link/"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		http.Redirect(w, r, marketingURL, http.StatusMovedPermanently)
	case http.MethodPost:
		s.handleProvision(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusMethodNotAllowed)
		// Clients match this body byte for byte; http.Error would
		// append a newline.
		_, _ = io.WriteString(w, "Method Not Allowed")
	}
}

// handleProvision runs the tunnel creation flow: rate limit, fresh config
// resolution, body validation, subdomain policy, provider call. Validation
// and policy failures never reach the provider.
func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(clientIP(r)) {
		metrics.CreateFailures.WithLabelValues("rate_limit").Inc()
		writeError(w, http.StatusTooManyRequests, domain.ErrRateLimitExceeded.Error())
		return
	}

	cfg, err := config.Resolve(s.lookup)
	if err != nil {
		var missing *config.MissingError
		if errors.As(err, &missing) {
			metrics.CreateFailures.WithLabelValues("config").Inc()
			writeError(w, http.StatusBadRequest, missing.Error())
			return
		}
		metrics.CreateFailures.WithLabelValues("internal").Inc()
		s.log.Error("config resolution failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var req domain.CreateTunnelRequest
	if err := decodeJSONBody(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		metrics.CreateFailures.WithLabelValues("request").Inc()
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name, err := policy.Check(req.Subdomain)
	if err != nil {
		if errors.Is(err, domain.ErrSubdomainProtected) {
			metrics.CreateFailures.WithLabelValues("protected").Inc()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		metrics.CreateFailures.WithLabelValues("request").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	tun, err := s.provider.CreateTunnel(ctx, cfg, name)
	if err != nil {
		var perr *domain.ProviderError
		if errors.As(err, &perr) {
			metrics.CreateFailures.WithLabelValues("provider").Inc()
			s.log.Error("tunnel create failed", "subdomain", name, "err", err)
			writeError(w, http.StatusBadGateway, perr.Error())
			return
		}
		metrics.CreateFailures.WithLabelValues("internal").Inc()
		s.log.Error("tunnel create failed", "subdomain", name, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	metrics.TunnelsCreated.Inc()
	s.hub.Publish(events.Event{Kind: events.KindTunnelCreated, Tunnel: tun, At: s.now().UTC()})
	s.log.Info("tunnel created", "id", tun.ID, "name", tun.Name)
	writeJSON(w, http.StatusOK, domain.TunnelResponse{Success: true, Tunnel: tun})
}

// decodeJSONBody decodes a single JSON object from the request body, bounding
// the read at maxBytes. Unknown fields are tolerated so older clients keep
// working when the request shape grows.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return errors.New("request body must contain a single JSON object")
		}
		return err
	}
	return nil
}

// clientIP keys the rate limiter. Proxy headers are ignored: the public
// listener cannot tell a trusted proxy from a spoofing caller.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, domain.ErrorResponse{Success: false, Error: msg})
}
