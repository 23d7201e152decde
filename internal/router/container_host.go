package router

import (
	"net"
	"net/url"
	"os"
)

// loopbackAliases mirrors the set of hostnames the original routing_util
// treats as "this box", which must be rewritten to the container's host
// bridge when the gateway itself runs inside a container: an upstream
// server configured as localhost from outside the container means nothing
// once the gateway is the one making the call.
var loopbackAliases = map[string]bool{"localhost": true, "127.0.0.1": true, "::1": true}

// RewriteContainerHost rewrites server's host to the configured container
// host bridge when the gateway detects it is running inside a container and
// server points at a loopback alias. hostGateway is the configured bridge
// address (e.g. "host.docker.internal" or "172.17.0.1"); inContainer
// reports whether the process is containerized (see DetectContainer).
func RewriteContainerHost(server, hostGateway string, inContainer bool) string {
	if !inContainer || hostGateway == "" {
		return server
	}

	parsed, err := url.Parse(server)
	if err != nil || parsed.Hostname() == "" {
		return server
	}
	if !loopbackAliases[parsed.Hostname()] {
		return server
	}

	host := hostGateway
	if port := parsed.Port(); port != "" {
		host = net.JoinHostPort(hostGateway, port)
	}
	parsed.Host = host
	return parsed.String()
}

// DetectContainer reports whether the current process appears to be running
// inside a container: an explicit override env var, or the conventional
// /.dockerenv marker file.
func DetectContainer() bool {
	if v := os.Getenv("GATEWAY_IN_CONTAINER"); v == "1" || v == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
