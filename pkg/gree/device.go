package gree

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// TemperatureUnits selects the unit of measurement reported by the
// device.
type TemperatureUnits int

const (
	Celsius TemperatureUnits = iota
	Fahrenheit
)

// Mode is the operating mode of the unit.
type Mode int

const (
	ModeAuto Mode = iota
	ModeCool
	ModeDry
	ModeFan
	ModeHeat
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeCool:
		return "cool"
	case ModeDry:
		return "dry"
	case ModeFan:
		return "fan"
	case ModeHeat:
		return "heat"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// FanSpeed is the fan speed setting.
type FanSpeed int

const (
	FanAuto FanSpeed = iota
	FanLow
	FanMediumLow
	FanMedium
	FanMediumHigh
	FanHigh
)

func (f FanSpeed) String() string {
	switch f {
	case FanAuto:
		return "auto"
	case FanLow:
		return "low"
	case FanMediumLow:
		return "medium-low"
	case FanMedium:
		return "medium"
	case FanMediumHigh:
		return "medium-high"
	case FanHigh:
		return "high"
	}
	return fmt.Sprintf("fan(%d)", int(f))
}

// HorizontalSwing positions the horizontal blades.
type HorizontalSwing int

const (
	HorizontalDefault HorizontalSwing = iota
	HorizontalFullSwing
	HorizontalLeft
	HorizontalLeftCenter
	HorizontalCenter
	HorizontalRightCenter
	HorizontalRight
)

// VerticalSwing positions the vertical blades.
type VerticalSwing int

const (
	VerticalDefault VerticalSwing = iota
	VerticalFullSwing
	VerticalFixedUpper
	VerticalFixedUpperMiddle
	VerticalFixedMiddle
	VerticalFixedLowerMiddle
	VerticalFixedLower
	VerticalSwingUpper
	VerticalSwingUpperMiddle
	VerticalSwingMiddle
	VerticalSwingLowerMiddle
	VerticalSwingLower
)

// Property names understood by the unit. The protocol core treats
// these as opaque strings; only the Device accessors assign meaning.
const (
	PropPower           = "Pow"
	PropMode            = "Mod"
	PropTargetTemp      = "SetTem"
	PropTempUnit        = "TemUn"
	PropFanSpeed        = "WdSpd"
	PropFreshAir        = "Air"
	PropXFan            = "Blo"
	PropAnion           = "Health"
	PropSleep           = "SwhSlp"
	PropLight           = "Lig"
	PropSwingHorizontal = "SwingLfRig"
	PropSwingVertical   = "SwUpDn"
	PropQuiet           = "Quiet"
	PropTurbo           = "Tur"
	PropSteadyHeat      = "StHt"
	PropPowerSave       = "SvSt"
)

// AllProperties is the full readable property set, used by
// UpdateState to refresh the cache.
var AllProperties = []string{
	PropPower, PropMode, PropTargetTemp, PropTempUnit, PropFanSpeed,
	PropFreshAir, PropXFan, PropAnion, PropSleep, PropLight,
	PropSwingHorizontal, PropSwingVertical, PropQuiet, PropTurbo,
	PropSteadyHeat, PropPowerSave,
}

// Device is a stateful facade over the protocol core for one physical
// unit. It caches the last known property map and serializes all
// exchanges: the protocol correlates responses by arrival order only,
// so a second in-flight request against the same unit could be
// answered by the wrong response.
//
// Bind first, either with a stored key or by letting the handshake
// run. The cache is committed only from acknowledged values, so a
// failed call never leaves it diverged from the device.
type Device struct {
	info DeviceInfo
	opts []Option

	mu     sync.Mutex
	key    string
	props  PropertyMap
	logger zerolog.Logger
}

// NewDevice wraps a discovered or manually constructed DeviceInfo.
// Options are applied to every exchange the device performs.
func NewDevice(info DeviceInfo, opts ...Option) (*Device, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Device{info: info, opts: opts, logger: cfg.logger}, nil
}

// Info returns the identity this device was constructed with.
func (d *Device) Info() DeviceInfo { return d.info }

// Key returns the device key, or "" before binding. Callers wanting to
// skip the handshake on the next run must store it themselves.
func (d *Device) Key() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.key
}

// Bind runs the pairing handshake, or adopts key directly when
// non-empty.
func (d *Device) Bind(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k, err := Bind(ctx, d.info, key, d.opts...)
	if err != nil {
		return err
	}
	d.key = k
	d.logger.Info().Str("mac", d.info.MAC).Msg("device bound")
	return nil
}

// UpdateState refreshes the cached properties from the device. The
// unit changes state from other sources (remote controls, timers), so
// call this before trusting the getters.
func (d *Device) UpdateState(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.key == "" {
		return ErrNotBound
	}

	props, err := RequestState(ctx, AllProperties, d.info, d.key, d.opts...)
	if err != nil {
		return err
	}
	d.props = props
	return nil
}

// setProperty pushes a single changed property. Unchanged values are
// skipped without a network call. The cache takes the acknowledged
// value, not the requested one, since devices may coerce or clamp.
func (d *Device) setProperty(ctx context.Context, name string, value int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.key == "" {
		return ErrNotBound
	}
	if cur, ok := d.intProp(name); ok && cur == value {
		return nil
	}

	d.logger.Debug().Str("prop", name).Int("value", value).Msg("sending state update")

	ack, err := SendState(ctx, PropertyMap{name: value}, d.info, d.key, d.opts...)
	if err != nil {
		return err
	}

	if d.props == nil {
		d.props = make(PropertyMap, len(ack))
	}
	for k, v := range ack {
		d.props[k] = v
	}
	return nil
}

// intProp reads a cached property as an integer. JSON decoding hands
// numbers back as float64 and some firmware reports numerics as
// strings.
func (d *Device) intProp(name string) (int, bool) {
	v, ok := d.props[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func (d *Device) getInt(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, _ := d.intProp(name)
	return n
}

func (d *Device) getBool(name string) bool {
	return d.getInt(name) != 0
}

func boolVal(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Power reports whether the unit is on.
func (d *Device) Power() bool { return d.getBool(PropPower) }

func (d *Device) SetPower(ctx context.Context, on bool) error {
	return d.setProperty(ctx, PropPower, boolVal(on))
}

// Mode reports the operating mode.
func (d *Device) Mode() Mode { return Mode(d.getInt(PropMode)) }

func (d *Device) SetMode(ctx context.Context, m Mode) error {
	return d.setProperty(ctx, PropMode, int(m))
}

// TargetTemperature reports the setpoint. Ignore it in auto, fan or
// steady heat modes.
func (d *Device) TargetTemperature() int { return d.getInt(PropTargetTemp) }

func (d *Device) SetTargetTemperature(ctx context.Context, degrees int) error {
	return d.setProperty(ctx, PropTargetTemp, degrees)
}

// TemperatureUnits reports the unit of measurement.
func (d *Device) TemperatureUnits() TemperatureUnits {
	return TemperatureUnits(d.getInt(PropTempUnit))
}

func (d *Device) SetTemperatureUnits(ctx context.Context, u TemperatureUnits) error {
	return d.setProperty(ctx, PropTempUnit, int(u))
}

// FanSpeed reports the fan speed.
func (d *Device) FanSpeed() FanSpeed { return FanSpeed(d.getInt(PropFanSpeed)) }

func (d *Device) SetFanSpeed(ctx context.Context, f FanSpeed) error {
	return d.setProperty(ctx, PropFanSpeed, int(f))
}

// FreshAir reports whether the fresh air valve is open, if present.
func (d *Device) FreshAir() bool { return d.getBool(PropFreshAir) }

func (d *Device) SetFreshAir(ctx context.Context, on bool) error {
	return d.setProperty(ctx, PropFreshAir, boolVal(on))
}

// XFan reports whether the fan dries the coil after cool or dry mode.
func (d *Device) XFan() bool { return d.getBool(PropXFan) }

func (d *Device) SetXFan(ctx context.Context, on bool) error {
	return d.setProperty(ctx, PropXFan, boolVal(on))
}

// Anion reports whether the ozone generator is running, if present.
func (d *Device) Anion() bool { return d.getBool(PropAnion) }

func (d *Device) SetAnion(ctx context.Context, on bool) error {
	return d.setProperty(ctx, PropAnion, boolVal(on))
}

// Sleep reports whether sleep mode is adjusting temperature over time.
func (d *Device) Sleep() bool { return d.getBool(PropSleep) }

func (d *Device) SetSleep(ctx context.Context, on bool) error {
	return d.setProperty(ctx, PropSleep, boolVal(on))
}

// Light reports whether the panel light is on.
func (d *Device) Light() bool { return d.getBool(PropLight) }

func (d *Device) SetLight(ctx context.Context, on bool) error {
	return d.setProperty(ctx, PropLight, boolVal(on))
}

// HorizontalSwing reports the horizontal blade position.
func (d *Device) HorizontalSwing() HorizontalSwing {
	return HorizontalSwing(d.getInt(PropSwingHorizontal))
}

func (d *Device) SetHorizontalSwing(ctx context.Context, s HorizontalSwing) error {
	return d.setProperty(ctx, PropSwingHorizontal, int(s))
}

// VerticalSwing reports the vertical blade position.
func (d *Device) VerticalSwing() VerticalSwing {
	return VerticalSwing(d.getInt(PropSwingVertical))
}

func (d *Device) SetVerticalSwing(ctx context.Context, s VerticalSwing) error {
	return d.setProperty(ctx, PropSwingVertical, int(s))
}

// Quiet reports whether quiet operation is enabled.
func (d *Device) Quiet() bool { return d.getBool(PropQuiet) }

func (d *Device) SetQuiet(ctx context.Context, on bool) error {
	return d.setProperty(ctx, PropQuiet, boolVal(on))
}

// Turbo reports whether turbo operation is enabled.
func (d *Device) Turbo() bool { return d.getBool(PropTurbo) }

func (d *Device) SetTurbo(ctx context.Context, on bool) error {
	return d.setProperty(ctx, PropTurbo, boolVal(on))
}

// SteadyHeat reports whether the unit maintains 8 degrees C.
func (d *Device) SteadyHeat() bool { return d.getBool(PropSteadyHeat) }

func (d *Device) SetSteadyHeat(ctx context.Context, on bool) error {
	return d.setProperty(ctx, PropSteadyHeat, boolVal(on))
}

// PowerSave reports whether power save operation is enabled.
func (d *Device) PowerSave() bool { return d.getBool(PropPowerSave) }

func (d *Device) SetPowerSave(ctx context.Context, on bool) error {
	return d.setProperty(ctx, PropPowerSave, boolVal(on))
}
