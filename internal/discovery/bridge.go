package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Bridge represents a wBMS host bridge advertised on the network
type Bridge struct {
	// Instance is the mDNS instance name (e.g., "wbms-host")
	Instance string

	// Hostname is the mDNS hostname (e.g., "rig-01.local.")
	Hostname string

	// IP is the preferred address (IPv4 when available)
	IP string

	// Port is the bridge's HTTP port
	Port int

	// Path is the WebSocket endpoint path from the "path" TXT record
	Path string

	// TLS is set when the "tls" TXT record is "1"
	TLS bool

	// Metadata contains all mDNS TXT record data
	// Common fields: "path=/frames", "version=v1.0.0", "tls=0"
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("wBMS bridge %s (%s) at %s", b.Instance, b.Hostname, b.URL())
}

// URL returns the WebSocket URL of the bridge
func (b *Bridge) URL() string {
	scheme := "ws"
	if b.TLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(b.IP, strconv.Itoa(b.Port)), b.Path)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}
