package feed

import (
	"fmt"
	"net"
	"os"

	"github.com/hashicorp/mdns"

	"earshot/log"
)

const ServiceType = "_earshot._tcp"

// Advertise publishes the feed on the local network. The returned function
// withdraws it.
func Advertise(port int) (func(), error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "earshot"
	}

	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, ips, []string{"path=/ws", "now=/now"})
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}
	log.Infof("advertising %s as %s on port %d", ServiceType, host, port)
	return func() { server.Shutdown() }, nil
}

func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
