package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/wbms/internal/logging"
)

// Advertisement describes a bridge to publish over mDNS
type Advertisement struct {
	Instance string
	Port     int
	Path     string
	Version  string
	TLS      bool
}

// TXT returns the TXT records for the advertisement
func (a *Advertisement) TXT() []string {
	tls := "0"
	if a.TLS {
		tls = "1"
	}
	path := a.Path
	if path == "" {
		path = DefaultPath
	}
	txt := []string{"path=" + path, "tls=" + tls}
	if a.Version != "" {
		txt = append(txt, "version="+a.Version)
	}
	return txt
}

// Advertiser publishes one bridge until Shutdown
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers the bridge on all multicast interfaces
func Advertise(a *Advertisement) (*Advertiser, error) {
	if a.Instance == "" {
		return nil, fmt.Errorf("instance name is required")
	}
	if a.Port <= 0 || a.Port > 0xFFFF {
		return nil, fmt.Errorf("invalid port %d", a.Port)
	}

	server, err := zeroconf.Register(a.Instance, ServiceType, ServiceDomain, a.Port, a.TXT(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising bridge over mDNS",
		zap.String("instance", a.Instance),
		zap.String("service", ServiceType),
		zap.Int("port", a.Port),
	)
	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertiser) Shutdown() {
	if a.server != nil {
		a.server.Shutdown()
		logging.Info("mDNS advertisement withdrawn")
	}
}
