package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"vpflash/internal/logging"
	"vpflash/internal/mqttstatus"
	"vpflash/internal/prototype"
)

const envPrefix = "VPFLASH"

// Config is the resolved command line and environment.
type Config struct {
	Port     string
	File     string
	BaudRate int
	Timeout  time.Duration

	WaitReset   bool
	NoResetWait bool

	DryRun    string
	ListPorts bool

	MQTT    string
	Monitor string

	LogLevel    string
	LogFile     string
	NoColor     bool
	NoTimestamp bool
}

// ResetPolicy maps the reset flags onto the handshake policy.
func (c *Config) ResetPolicy() prototype.ResetPolicy {
	switch {
	case c.WaitReset:
		return prototype.ResetAlways
	case c.NoResetWait:
		return prototype.ResetNever
	default:
		return prototype.ResetAuto
	}
}

func newFlagSet(out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("vpflash", pflag.ContinueOnError)
	fs.SetOutput(out)

	fs.IntP("baud-rate", "b", prototype.DefaultBaudRate, "serial baud rate")
	fs.DurationP("timeout", "t", prototype.DefaultTimeout, "how long to wait for each device response")
	fs.Bool("wait-reset", false, "skip the BIOS probe and always wait for a manual reset")
	fs.Bool("no-reset-wait", false, "fail instead of waiting when the device is not in BIOS")
	fs.String("dry-run", "", "replay a captured device transcript instead of opening the port")
	fs.Bool("list-ports", false, "list available serial ports and exit")
	fs.String("mqtt", "", "publish status to an MQTT broker (mqtt://[user:pass@]host[:port]/topic)")
	fs.String("monitor", "", "serve a websocket status monitor on this address (e.g. :8080)")
	fs.String("log-level", "warn", "log level: debug, info, warn or error")
	fs.String("log-file", "", "also write JSON logs to this file, rotated by size")
	fs.Bool("no-color", false, "disable colored output")
	fs.Bool("no-timestamp", false, "disable timestamps in log output")

	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: vpflash [flags] <port> <file|->\n")
		fmt.Fprintf(out, "\nUploads a program to the OpenRISC based virtual prototype and runs it.\n")
		fmt.Fprintf(out, "Use \"-\" as file to read the program from standard input.\n")
		fmt.Fprintf(out, "\nExamples:\n")
		fmt.Fprintf(out, "  vpflash /dev/ttyUSB0 program.mem\n")
		fmt.Fprintf(out, "  cat program.mem | vpflash -b 57600 COM4 -\n")
		fmt.Fprintf(out, "\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nEvery flag can also be set as %s_<FLAG>, e.g. %s_BAUD_RATE=57600.\n", envPrefix, envPrefix)
	}

	return fs
}

// loadConfig parses args, overlays VPFLASH_* environment variables for flags
// not given on the command line, and validates the result.
func loadConfig(args []string, out io.Writer) (*Config, error) {
	fs := newFlagSet(out)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	cfg := &Config{
		BaudRate:    v.GetInt("baud-rate"),
		Timeout:     v.GetDuration("timeout"),
		WaitReset:   v.GetBool("wait-reset"),
		NoResetWait: v.GetBool("no-reset-wait"),
		DryRun:      v.GetString("dry-run"),
		ListPorts:   v.GetBool("list-ports"),
		MQTT:        v.GetString("mqtt"),
		Monitor:     v.GetString("monitor"),
		LogLevel:    v.GetString("log-level"),
		LogFile:     v.GetString("log-file"),
		NoColor:     v.GetBool("no-color"),
		NoTimestamp: v.GetBool("no-timestamp"),
	}

	if cfg.ListPorts {
		return cfg, nil
	}

	if fs.NArg() != 2 {
		fs.Usage()
		return nil, fmt.Errorf("expected <port> and <file> arguments, got %d", fs.NArg())
	}
	cfg.Port = fs.Arg(0)
	cfg.File = fs.Arg(1)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("port cannot be empty")
	}

	if c.File == "" {
		return fmt.Errorf("file cannot be empty (use - for stdin)")
	}

	if c.BaudRate <= 0 {
		return fmt.Errorf("baud rate must be positive, got %d", c.BaudRate)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}

	if c.WaitReset && c.NoResetWait {
		return fmt.Errorf("cannot specify both --wait-reset and --no-reset-wait")
	}

	if c.MQTT != "" {
		if _, err := mqttstatus.ParseBrokerURL(c.MQTT); err != nil {
			return fmt.Errorf("--mqtt: %w", err)
		}
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}
