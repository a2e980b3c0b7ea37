package domain

// CreateTunnelRequest is the JSON body sent by clients to provision a tunnel.
type CreateTunnelRequest struct {
	Subdomain string `json:"subdomain"`
}

// TunnelResponse is the JSON body returned on successful provisioning. The
// embedded tunnel is the provider record, passed through without field loss.
type TunnelResponse struct {
	Success bool   `json:"success"`
	Tunnel  Tunnel `json:"tunnel"`
}

// ListResponse is the JSON body returned by the ops tunnel listing.
type ListResponse struct {
	Success bool           `json:"success"`
	Tunnels []TunnelStatus `json:"tunnels"`
}

// ErrorResponse is the JSON body returned by the server for structured errors.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
