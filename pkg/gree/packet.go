package gree

import (
	"fmt"
	"net"
	"sort"
)

// DevicePort is the well-known UDP port units listen on for both
// broadcast discovery and point-to-point traffic.
const DevicePort = 7000

// clientID is the constant session id carried in the envelope's cid
// field. Units expect exactly this value.
const clientID = "app"

// tcpMarker is a fixed envelope field; units ignore it but some
// firmware revisions reject packets without it.
const tcpMarker = 0

// Payload command types, carried in the "t" field of the decrypted
// pack (or of the plaintext scan request).
const (
	typeScan       = "scan"
	typeDevice     = "dev"
	typeBind       = "bind"
	typeBindOK     = "bindok"
	typeStatus     = "status"
	typeStatusData = "dat"
	typeCommand    = "cmd"
	typePack       = "pack"
)

// packet is the cleartext wire envelope. Everything of consequence
// travels in Pack, encrypted and base64 encoded; the scan request is
// the one datagram sent without it.
type packet struct {
	Cid  string `json:"cid"`
	I    int    `json:"i"`
	T    string `json:"t"`
	UID  int    `json:"uid"`
	TCP  int    `json:"tcp"`
	Pack string `json:"pack,omitempty"`
}

type scanRequest struct {
	T string `json:"t"`
}

// devicePayload is the decrypted scan acknowledgment.
type devicePayload struct {
	T     string `json:"t"`
	Mac   string `json:"mac"`
	Name  string `json:"name,omitempty"`
	Brand string `json:"brand,omitempty"`
	Model string `json:"model,omitempty"`
	Ver   string `json:"ver,omitempty"`
}

type bindRequest struct {
	Mac string `json:"mac"`
	T   string `json:"t"`
}

type bindOKPayload struct {
	T   string `json:"t"`
	Key string `json:"key"`
}

type statusRequest struct {
	Cols []string `json:"cols"`
	Mac  string   `json:"mac"`
	T    string   `json:"t"`
}

type statusResponse struct {
	T    string   `json:"t,omitempty"`
	Cols []string `json:"cols"`
	Dat  []any    `json:"dat"`
}

type commandRequest struct {
	Opt []string `json:"opt"`
	P   []any    `json:"p"`
	T   string   `json:"t"`
}

type commandResponse struct {
	T   string   `json:"t,omitempty"`
	Opt []string `json:"opt"`
	Val []any    `json:"val"`
}

// DeviceInfo identifies a physical unit for addressing purposes.
// Immutable once constructed, either by Discover or manually.
type DeviceInfo struct {
	IP      string
	Port    int
	MAC     string
	Name    string
	Brand   string
	Model   string
	Version string
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s @ %s:%d (mac %s)", d.Name, d.IP, d.Port, d.MAC)
}

// udpAddr resolves the unit's address, falling back to defaultPort when
// the info carries none.
func (d DeviceInfo) udpAddr(defaultPort int) (*net.UDPAddr, error) {
	ip := net.ParseIP(d.IP)
	if ip == nil {
		return nil, fmt.Errorf("%w: invalid device address %q", ErrTransport, d.IP)
	}
	port := d.Port
	if port == 0 {
		port = defaultPort
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// PropertyMap maps property names to their values. The protocol core
// is agnostic to property semantics; named accessors live on Device.
type PropertyMap map[string]any

// sortedNames returns the map's keys in a stable order so a request's
// name and value lists stay position-paired and deterministic.
func (p PropertyMap) sortedNames() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// zipProperties pairs parallel name and value lists by position.
func zipProperties(names []string, values []any) (PropertyMap, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("%w: %d names for %d values", ErrProtocol, len(names), len(values))
	}
	props := make(PropertyMap, len(names))
	for i, name := range names {
		props[name] = values[i]
	}
	return props, nil
}
