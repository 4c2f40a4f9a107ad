package config

import (
	"os"
	"sync"
)

var (
	inContainerOnce   sync.Once
	inContainerResult bool
)

// loopbackHosts are the target hosts that mean "this machine".
var loopbackHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// IsRunningInDocker reports whether the process runs inside a container,
// detected by /.dockerenv or EKAYA_IN_CONTAINER=true. The result is cached.
func IsRunningInDocker() bool {
	inContainerOnce.Do(func() {
		if os.Getenv("EKAYA_IN_CONTAINER") == "true" {
			inContainerResult = true
			return
		}
		_, err := os.Stat("/.dockerenv")
		inContainerResult = err == nil
	})
	return inContainerResult
}

// ResolveHostForDocker maps a loopback target host to host.docker.internal
// when running in a container, so targets on the host machine stay reachable.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, inContainer bool) string {
	if inContainer && loopbackHosts[host] {
		return "host.docker.internal"
	}
	return host
}
