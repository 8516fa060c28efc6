package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
)

const maxUserAgentLen = 512

// ClientInfo is the best-effort request origin stored alongside an entry.
type ClientInfo struct {
	IPAddress *string
	UserAgent string
}

// ClientInfoFromRequest reads the first X-Forwarded-For hop, falling back to the
// peer address. Values that do not parse as an IP are ignored. The user agent is
// truncated to 512 characters.
func ClientInfoFromRequest(r *http.Request) ClientInfo {
	if r == nil {
		return ClientInfo{}
	}

	var info ClientInfo
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		info.IPAddress = normalizeIP(strings.TrimSpace(first))
	}
	if info.IPAddress == nil && r.RemoteAddr != "" {
		host := r.RemoteAddr
		if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			host = h
		}
		info.IPAddress = normalizeIP(host)
	}

	info.UserAgent = truncateRunes(r.UserAgent(), maxUserAgentLen)
	return info
}

func normalizeIP(raw string) *string {
	ip := net.ParseIP(raw)
	if ip == nil {
		return nil
	}
	s := ip.String()
	return &s
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

type clientKey struct{}

func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey{}, info)
}

func ClientInfoFromContext(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientKey{}).(ClientInfo)
	return info
}
