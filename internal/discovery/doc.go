// Package discovery advertises and finds wBMS host bridges over mDNS.
//
// A running bridge registers itself as a "_wbms-host._tcp" service whose
// TXT records carry the WebSocket path ("path=/frames"), whether TLS is
// enabled ("tls=1") and the build version. Tools browse for that service
// type to locate bridges without configuration.
//
// # Usage Example
//
//	adv, err := discovery.Advertise(&discovery.Advertisement{
//	    Instance: "wbms-host",
//	    Port:     8765,
//	    Path:     "/frames",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adv.Shutdown()
//
//	bridges, err := discovery.ScanForBridges(5 * time.Second)
//	for _, b := range bridges {
//	    fmt.Println(b.URL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Bridges must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
