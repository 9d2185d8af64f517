package config

import (
	"net"
	"os"
	"strings"
	"sync"
)

// dockerHostAlias is the name a container uses to reach its host.
const dockerHostAlias = "host.docker.internal"

// containerMarkers exist at the filesystem root inside Docker and Podman.
var containerMarkers = []string{"/.dockerenv", "/run/.containerenv"}

var inContainer = sync.OnceValue(func() bool {
	for _, marker := range containerMarkers {
		if _, err := os.Stat(marker); err == nil {
			return true
		}
	}
	return false
})

// IsRunningInDocker reports whether the process runs inside a container.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	return inContainer()
}

// ResolveHostForDocker rewrites a loopback source host to the container's
// host alias, so a crawler in a container can reach a database published
// on the host's localhost. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, inContainer bool) string {
	if !inContainer || !isLoopback(host) {
		return host
	}
	return dockerHostAlias
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
