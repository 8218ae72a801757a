package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Jc2k/greeclimate/pkg/gree"
)

var (
	configPath string
	logLevel   string
	targetIP   string
	targetMAC  string
	deviceKey  string
	portFlag   int
	timeoutVal time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&targetIP, "ip", "", "IP address of the unit")
	rootCmd.PersistentFlags().StringVar(&targetMAC, "mac", "", "MAC address of the unit")
	rootCmd.PersistentFlags().StringVar(&deviceKey, "key", "", "device key obtained from a previous bind")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "UDP port of the unit (default 7000)")
	rootCmd.PersistentFlags().DurationVar(&timeoutVal, "timeout", 0, "response/discovery window")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(bindCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setCmd)
}

// setup loads the config file, builds the logger and the protocol
// options shared by every subcommand. Flags win over file values.
func setup() (*cliConfig, zerolog.Logger, []gree.Option) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if timeoutVal != 0 {
		cfg.Timeout = timeoutVal
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Printf("Invalid log level %q\n", cfg.Log.Level)
		os.Exit(1)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	opts := []gree.Option{
		gree.WithPort(cfg.Port),
		gree.WithTimeout(cfg.Timeout),
		gree.WithLogger(logger),
	}
	return cfg, logger, opts
}

func targetInfo() gree.DeviceInfo {
	if targetIP == "" {
		fmt.Println("IP address required. Use --ip or run discover first.")
		os.Exit(1)
	}
	return gree.DeviceInfo{IP: targetIP, MAC: targetMAC}
}

func getDevice(opts []gree.Option) *gree.Device {
	dev, err := gree.NewDevice(targetInfo(), opts...)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return dev
}

func bindDevice(ctx context.Context, dev *gree.Device) {
	if deviceKey == "" {
		fmt.Println("Device key required. Use --key or run bind first.")
		os.Exit(1)
	}
	if err := dev.Bind(ctx, deviceKey); err != nil {
		fmt.Printf("Error binding: %v\n", err)
		os.Exit(1)
	}
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover climate units on the local subnets",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, opts := setup()

		addrs := cfg.BroadcastAddrs
		if len(addrs) == 0 {
			var err error
			addrs, err = gree.BroadcastAddrs()
			if err != nil {
				fmt.Printf("Error enumerating interfaces: %v\n", err)
				os.Exit(1)
			}
		}
		logger.Debug().Strs("bcast", addrs).Msg("scanning")

		fmt.Println("Discovering devices...")
		devices, err := gree.Discover(cmd.Context(), addrs, opts...)
		if err != nil {
			fmt.Printf("Error discovering: %v\n", err)
			os.Exit(1)
		}

		if len(devices) == 0 {
			fmt.Println("No devices found.")
			return
		}
		for _, d := range devices {
			fmt.Printf("Found %s (%s %s, firmware %s) at %s:%d mac=%s\n",
				d.Name, d.Brand, d.Model, d.Version, d.IP, d.Port, d.MAC)
		}
	},
}

var bindCmd = &cobra.Command{
	Use:   "bind",
	Short: "Pair with a unit and print its device key",
	Run: func(cmd *cobra.Command, args []string) {
		_, _, opts := setup()

		info := targetInfo()
		if info.MAC == "" {
			fmt.Println("MAC address required for binding. Use --mac.")
			os.Exit(1)
		}

		key, err := gree.Bind(cmd.Context(), info, "", opts...)
		if err != nil {
			fmt.Printf("Error binding: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Bound to %s\n", info.MAC)
		fmt.Printf("Device key: %s\n", key)
		fmt.Println("Store this key and pass it with --key; binding again invalidates nothing but needs no repeat.")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state of a unit",
	Run: func(cmd *cobra.Command, args []string) {
		_, _, opts := setup()

		dev := getDevice(opts)
		bindDevice(cmd.Context(), dev)

		if err := dev.UpdateState(cmd.Context()); err != nil {
			fmt.Printf("Error fetching state: %v\n", err)
			os.Exit(1)
		}

		onOff := func(b bool) string {
			if b {
				return "on"
			}
			return "off"
		}

		unit := "C"
		if dev.TemperatureUnits() == gree.Fahrenheit {
			unit = "F"
		}

		fmt.Printf("Power:       %s\n", onOff(dev.Power()))
		fmt.Printf("Mode:        %s\n", dev.Mode())
		fmt.Printf("Setpoint:    %d°%s\n", dev.TargetTemperature(), unit)
		fmt.Printf("Fan:         %s\n", dev.FanSpeed())
		fmt.Printf("Quiet:       %s\n", onOff(dev.Quiet()))
		fmt.Printf("Turbo:       %s\n", onOff(dev.Turbo()))
		fmt.Printf("Light:       %s\n", onOff(dev.Light()))
		fmt.Printf("Sleep:       %s\n", onOff(dev.Sleep()))
		fmt.Printf("XFan:        %s\n", onOff(dev.XFan()))
		fmt.Printf("Fresh air:   %s\n", onOff(dev.FreshAir()))
		fmt.Printf("Anion:       %s\n", onOff(dev.Anion()))
		fmt.Printf("Steady heat: %s\n", onOff(dev.SteadyHeat()))
		fmt.Printf("Power save:  %s\n", onOff(dev.PowerSave()))
	},
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings on a unit",
	Run: func(cmd *cobra.Command, args []string) {
		_, _, opts := setup()

		dev := getDevice(opts)
		bindDevice(cmd.Context(), dev)
		ctx := cmd.Context()

		changed := false
		boolFlag := func(name string, apply func(context.Context, bool) error) {
			if !cmd.Flags().Changed(name) {
				return
			}
			v, _ := cmd.Flags().GetBool(name)
			if err := apply(ctx, v); err != nil {
				fmt.Printf("Error setting %s: %v\n", name, err)
				os.Exit(1)
			}
			changed = true
		}

		if modeStr, _ := cmd.Flags().GetString("mode"); modeStr != "" {
			var mode gree.Mode
			switch modeStr {
			case "auto":
				mode = gree.ModeAuto
			case "cool":
				mode = gree.ModeCool
			case "dry":
				mode = gree.ModeDry
			case "fan":
				mode = gree.ModeFan
			case "heat":
				mode = gree.ModeHeat
			default:
				fmt.Printf("Invalid mode %q: must be auto, cool, dry, fan or heat\n", modeStr)
				os.Exit(1)
			}
			if err := dev.SetMode(ctx, mode); err != nil {
				fmt.Printf("Error setting mode: %v\n", err)
				os.Exit(1)
			}
			changed = true
		}

		if fanStr, _ := cmd.Flags().GetString("fan"); fanStr != "" {
			var fan gree.FanSpeed
			switch fanStr {
			case "auto":
				fan = gree.FanAuto
			case "low":
				fan = gree.FanLow
			case "medium-low":
				fan = gree.FanMediumLow
			case "medium":
				fan = gree.FanMedium
			case "medium-high":
				fan = gree.FanMediumHigh
			case "high":
				fan = gree.FanHigh
			default:
				fmt.Printf("Invalid fan speed %q\n", fanStr)
				os.Exit(1)
			}
			if err := dev.SetFanSpeed(ctx, fan); err != nil {
				fmt.Printf("Error setting fan speed: %v\n", err)
				os.Exit(1)
			}
			changed = true
		}

		if cmd.Flags().Changed("temp") {
			temp, _ := cmd.Flags().GetInt("temp")
			if err := dev.SetTargetTemperature(ctx, temp); err != nil {
				fmt.Printf("Error setting temperature: %v\n", err)
				os.Exit(1)
			}
			changed = true
		}

		boolFlag("power", dev.SetPower)
		boolFlag("light", dev.SetLight)
		boolFlag("quiet", dev.SetQuiet)
		boolFlag("turbo", dev.SetTurbo)
		boolFlag("sleep", dev.SetSleep)
		boolFlag("xfan", dev.SetXFan)

		if !changed {
			fmt.Println("Nothing to do. See 'greectl set --help' for available settings.")
			return
		}
		fmt.Println("Settings applied.")
	},
}

func init() {
	setCmd.Flags().Bool("power", false, "turn the unit on or off")
	setCmd.Flags().String("mode", "", "operating mode (auto, cool, dry, fan, heat)")
	setCmd.Flags().Int("temp", 0, "target temperature")
	setCmd.Flags().String("fan", "", "fan speed (auto, low, medium-low, medium, medium-high, high)")
	setCmd.Flags().Bool("light", false, "panel light")
	setCmd.Flags().Bool("quiet", false, "quiet operation")
	setCmd.Flags().Bool("turbo", false, "turbo operation")
	setCmd.Flags().Bool("sleep", false, "sleep mode")
	setCmd.Flags().Bool("xfan", false, "dry the coil after cool/dry")
}
