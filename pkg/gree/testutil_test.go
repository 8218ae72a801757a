package gree

import (
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testDeviceKey is a fixed 16 byte AES key handed out by fakeUnit on
// bind.
const testDeviceKey = "hC8malJOS1MfpQVK"

// fakeUnit emulates a climate unit on a loopback UDP socket: it
// answers scan, bind, status and cmd requests the way real firmware
// does, tracking a property table.
type fakeUnit struct {
	t    *testing.T
	conn *net.UDPConn
	mac  string
	key  string

	mu        sync.Mutex
	props     map[string]any
	exchanges int
}

func startFakeUnit(t *testing.T, mac string) *fakeUnit {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)

	f := &fakeUnit{
		t:     t,
		conn:  conn,
		mac:   mac,
		key:   testDeviceKey,
		props: make(map[string]any),
	}
	go f.serve()
	t.Cleanup(func() { conn.Close() })
	return f
}

func (f *fakeUnit) port() int {
	return f.conn.LocalAddr().(*net.UDPAddr).Port
}

func (f *fakeUnit) info() DeviceInfo {
	return DeviceInfo{IP: "127.0.0.1", Port: f.port(), MAC: f.mac}
}

func (f *fakeUnit) set(name string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[name] = value
}

func (f *fakeUnit) get(name string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.props[name]
}

func (f *fakeUnit) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges
}

func (f *fakeUnit) serve() {
	buf := make([]byte, 2048)
	for {
		n, raddr, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		f.handle(buf[:n], raddr)
	}
}

func (f *fakeUnit) handle(data []byte, raddr *net.UDPAddr) {
	var env packet
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges++

	if env.Pack == "" {
		if env.T == typeScan {
			f.reply(raddr, devicePayload{
				T:     typeDevice,
				Mac:   f.mac,
				Name:  "fake-unit",
				Brand: "gree",
				Model: "gree",
				Ver:   "1.7",
			}, GenericKey)
		}
		return
	}

	// Bind travels under the generic key, everything else under the
	// device key.
	var generic map[string]any
	if err := decryptPayload(env.Pack, GenericKey, &generic); err == nil && generic["t"] == typeBind {
		f.reply(raddr, bindOKPayload{T: typeBindOK, Key: f.key}, GenericKey)
		return
	}

	var req map[string]any
	if err := decryptPayload(env.Pack, f.key, &req); err != nil {
		return
	}

	switch req["t"] {
	case typeStatus:
		var cols []string
		var dat []any
		for _, c := range req["cols"].([]any) {
			name := c.(string)
			cols = append(cols, name)
			dat = append(dat, f.props[name])
		}
		f.reply(raddr, statusResponse{T: typeStatusData, Cols: cols, Dat: dat}, f.key)
	case typeCommand:
		opts := req["opt"].([]any)
		vals := req["p"].([]any)
		var names []string
		for i, o := range opts {
			name := o.(string)
			f.props[name] = vals[i]
			names = append(names, name)
		}
		f.reply(raddr, commandResponse{Opt: names, Val: vals}, f.key)
	}
}

func (f *fakeUnit) reply(raddr *net.UDPAddr, payload any, key string) {
	pack, err := encryptPayload(payload, key)
	if err != nil {
		f.t.Errorf("fake unit encrypt: %v", err)
		return
	}
	data, err := json.Marshal(packet{Cid: f.mac, T: typePack, Pack: pack})
	if err != nil {
		f.t.Errorf("fake unit marshal: %v", err)
		return
	}
	f.conn.WriteToUDP(data, raddr)
}

// startRawResponder serves a canned answer per datagram, for shaping
// malformed or hostile responses. A nil return suppresses the reply.
func startRawResponder(t *testing.T, handler func(req []byte) []byte) int {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, raddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if resp := handler(append([]byte(nil), buf[:n]...)); resp != nil {
				conn.WriteToUDP(resp, raddr)
			}
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).Port
}

// startSilentSocket binds a port that swallows everything, for
// timeout tests.
func startSilentSocket(t *testing.T) int {
	t.Helper()
	return startRawResponder(t, func([]byte) []byte { return nil })
}

// encryptedEnvelope wraps payload in a wire envelope under key, for
// raw responders.
func encryptedEnvelope(t *testing.T, payload any, key string) []byte {
	t.Helper()

	pack, err := encryptPayload(payload, key)
	require.NoError(t, err)
	data, err := json.Marshal(packet{Cid: clientID, T: typePack, Pack: pack})
	require.NoError(t, err)
	return data
}
