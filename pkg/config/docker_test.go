package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveHost(t *testing.T) {
	tests := []struct {
		host        string
		inContainer bool
		want        string
	}{
		{"db.example.com", true, "db.example.com"},
		{"192.168.1.100", true, "192.168.1.100"},
		{"localhost", true, "host.docker.internal"},
		{"127.0.0.1", true, "host.docker.internal"},
		{"::1", true, "host.docker.internal"},
		{"localhost", false, "localhost"},
		{"127.0.0.1", false, "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveHost(tt.host, tt.inContainer))
		})
	}
}

func TestResolveHostForDocker_LeavesRemoteHosts(t *testing.T) {
	assert.Equal(t, "warehouse.internal", ResolveHostForDocker("warehouse.internal"))
}
