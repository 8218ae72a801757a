// Package gree provides a client for Gree-compatible climate control
// units over their UDP control protocol: broadcast discovery, the
// binding key exchange and encrypted state query/update.
//
// # Basic Usage
//
//	ctx := context.Background()
//	addrs, _ := gree.BroadcastAddrs()
//	devices, err := gree.Discover(ctx, addrs)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	dev, _ := gree.NewDevice(devices[0])
//	if err := dev.Bind(ctx, ""); err != nil {
//	    log.Fatal(err)
//	}
//	if err := dev.UpdateState(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(dev.Power(), dev.Mode(), dev.TargetTemperature())
//
// Binding hands out a device key; keep it (dev.Key()) and pass it to
// Bind on later runs to skip the handshake. Nothing in this package
// persists keys or state.
//
// # Configuration
//
// Operations accept functional options:
//
//	devices, err := gree.Discover(ctx, addrs,
//	    gree.WithTimeout(5*time.Second),
//	    gree.WithLogger(logger),
//	)
//
// # Protocol
//
// Devices speak JSON over UDP port 7000. Each datagram carries a
// cleartext envelope whose "pack" field holds the actual command,
// AES-128-ECB encrypted: under a fixed, publicly known key for scan
// and bind traffic, and under the per-device key for everything else.
// The protocol carries no request ids; responses are matched by
// arrival order, so keep one exchange in flight per device (Device
// does this for you).
package gree
