package socket

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

const (
	// PortEnv overrides the realtime port.
	PortEnv = "QB_WS_PORT"

	// DefaultPort is the local-development realtime port used when PortEnv
	// is unset or invalid.
	DefaultPort = 5050
)

// Endpoint is the realtime listener of a deployment.
type Endpoint struct {
	Host string
	Port int
}

// EndpointFromEnv pairs host with the port from PortEnv.
func EndpointFromEnv(host string) Endpoint {
	return Endpoint{Host: host, Port: PortFromEnv()}
}

// PortFromEnv returns PortEnv when it is a valid TCP port, DefaultPort otherwise.
func PortFromEnv() int {
	v := strings.TrimSpace(os.Getenv(PortEnv))
	if v == "" {
		return DefaultPort
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 65535 {
		return DefaultPort
	}
	return n
}

// HostFromBaseURL extracts the deployment host from an HTTP base URL
// ("https://app.example.com/api" -> "app.example.com").
func HostFromBaseURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// URL returns ws://host:port?token=<token>. An empty token yields an empty
// token parameter.
func (e Endpoint) URL(token string) string {
	port := e.Port
	if port <= 0 {
		port = DefaultPort
	}
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(e.Host, strconv.Itoa(port)),
		RawQuery: "token=" + url.QueryEscape(token),
	}
	return u.String()
}
