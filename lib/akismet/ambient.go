package akismet

import (
	"net"
	"net/http"

	"github.com/go-pkgz/rest/realip"
)

// Ambient is a snapshot of the request the comment came with, taken once by the hosting service.
type Ambient struct {
	IP        string // client ip address
	UserAgent string // User-Agent header of the incoming request
	Referrer  string // Referer header of the incoming request
}

// AmbientFromRequest makes Ambient from an incoming http request.
// The ip is the request's remote address, client headers are not looked at.
func AmbientFromRequest(r *http.Request) Ambient {
	res := Ambient{UserAgent: r.UserAgent(), Referrer: r.Referer()}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		res.IP = host
	}
	return res
}

// AmbientFromProxiedRequest is AmbientFromRequest for a service behind a trusted reverse proxy.
// The ip is taken from X-Real-IP, X-Forwarded-For and similar headers, falling back to the remote address.
// The proxy must overwrite these headers, otherwise any client can choose the ip sent to akismet.
func AmbientFromProxiedRequest(r *http.Request) Ambient {
	res := AmbientFromRequest(r)
	if ip, err := realip.Get(r); err == nil && ip != "" {
		res.IP = ip
	}
	return res
}

func (c *Client) seedAmbient() {
	if c.ambient.UserAgent != "" {
		c.record[FieldUserAgent] = c.ambient.UserAgent
	}
	if c.ambient.Referrer != "" {
		c.record[FieldReferrer] = c.ambient.Referrer
	}
	if c.ambient.IP != "" {
		c.record[FieldUserIP] = c.ambient.IP
	}
}
