package gree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Discover broadcasts a scan request to each of broadcastAddrs (one
// per local interface, see BroadcastAddrs) and collects replies until
// the window closes. The window is the context deadline if set,
// otherwise the configured timeout. Results are deduplicated by MAC,
// since a unit reachable over several interfaces answers each
// broadcast. Zero devices found is a valid, non-failing outcome.
func Discover(ctx context.Context, broadcastAddrs []string, opts ...Option) ([]DeviceInfo, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	found := make(chan DeviceInfo)
	var wg sync.WaitGroup

	for _, addr := range broadcastAddrs {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			if err := scanAddress(ctx, addr, cfg, found); err != nil {
				cfg.logger.Warn().Err(err).Str("bcast", addr).Msg("scan failed")
			}
		}(addr)
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	var results []DeviceInfo
	seen := make(map[string]bool)
	for info := range found {
		if seen[info.MAC] {
			continue
		}
		seen[info.MAC] = true
		results = append(results, info)
		cfg.logger.Info().Str("mac", info.MAC).Str("addr", info.IP).Msg("device found")
	}

	return results, nil
}

// scanAddress runs one broadcast scan: send the plaintext scan request,
// then collect replies until the window elapses.
func scanAddress(ctx context.Context, bcast string, cfg *config, found chan<- DeviceInfo) error {
	ip := net.ParseIP(bcast)
	if ip == nil {
		return fmt.Errorf("invalid broadcast address %q", bcast)
	}

	stream, err := newBroadcastStream(cfg.logger)
	if err != nil {
		return err
	}
	defer stream.Close()

	request, err := json.Marshal(scanRequest{T: typeScan})
	if err != nil {
		return err
	}
	if err := stream.Send(request, &net.UDPAddr{IP: ip, Port: cfg.port}); err != nil {
		return err
	}

	for {
		data, sender, err := stream.Recv(ctx)
		if errors.Is(err, ErrTimeout) || errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}

		info, ok := parseScanReply(data, sender, cfg)
		if ok {
			found <- info
		}
	}
}

// parseScanReply decodes one datagram from the discovery window.
// Anything that is not a well-formed scan acknowledgment is dropped;
// the broadcast port sees unrelated LAN chatter.
func parseScanReply(data []byte, sender *net.UDPAddr, cfg *config) (DeviceInfo, bool) {
	var env packet
	if err := json.Unmarshal(data, &env); err != nil || env.Pack == "" {
		return DeviceInfo{}, false
	}

	var dev devicePayload
	if err := decryptPayload(env.Pack, GenericKey, &dev); err != nil {
		cfg.logger.Debug().Err(err).Str("from", sender.String()).Msg("undecodable scan reply")
		return DeviceInfo{}, false
	}
	if dev.T != typeDevice || dev.Mac == "" {
		return DeviceInfo{}, false
	}

	return DeviceInfo{
		IP:      sender.IP.String(),
		Port:    sender.Port,
		MAC:     dev.Mac,
		Name:    dev.Name,
		Brand:   dev.Brand,
		Model:   dev.Model,
		Version: dev.Ver,
	}, true
}

// broadcastOf computes the directed broadcast address for a 4-byte
// IPv4 address. Masks for IPv4-mapped addresses can come back 16
// bytes long; align with the address before the OR, or the leading
// 0xff bytes leave the unicast address unchanged.
func broadcastOf(ip net.IP, mask net.IPMask) net.IP {
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

// BroadcastAddrs computes the directed broadcast address of every up,
// broadcast-capable IPv4 interface, ready to hand to Discover.
func BroadcastAddrs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var addrs []string
	for _, iface := range ifaces {
		const want = net.FlagUp | net.FlagBroadcast
		if iface.Flags&want != want || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range ifaceAddrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil {
				continue
			}

			addrs = append(addrs, broadcastOf(ip, ipnet.Mask).String())
		}
	}
	return addrs, nil
}
