// Command vpflash uploads a program to the OpenRISC based virtual prototype
// over a serial line and starts it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"vpflash/internal/logging"
	"vpflash/internal/monitor"
	"vpflash/internal/mqttstatus"
	"vpflash/internal/prototype"
	"vpflash/internal/status"
	"vpflash/internal/transport"
	"vpflash/internal/upload"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2

	logMaxSizeMB  = 10
	logMaxBackups = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		MaxSizeMB:   logMaxSizeMB,
		MaxBackups:  logMaxBackups,
		NoTimestamp: cfg.NoTimestamp,
		NoColor:     cfg.NoColor,
		Console:     stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	defer logCloser.Close()

	if cfg.ListPorts {
		return listPorts(stdout, stderr)
	}

	if err := flash(cfg, logger, stdin, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFatal
	}
	return exitOK
}

func listPorts(stdout, stderr io.Writer) int {
	ports, err := transport.Ports()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFatal
	}
	if len(ports) == 0 {
		fmt.Fprintln(stderr, "No serial ports found")
		return exitOK
	}
	for _, p := range ports {
		fmt.Fprintln(stdout, p)
	}
	return exitOK
}

func flash(cfg *Config, logger *slog.Logger, stdin io.Reader, stdout, stderr io.Writer) error {
	session := uuid.NewString()
	logger = logger.With("session", session)

	// The payload is opened before the port so an unreadable file never
	// touches the device.
	src, err := upload.Open(cfg.File, stdin)
	if err != nil {
		return err
	}
	defer src.Close()

	sinks := status.Multi{status.NewConsole(stderr, cfg.NoColor)}

	if cfg.MQTT != "" {
		mcfg, err := mqttstatus.ParseBrokerURL(cfg.MQTT)
		if err != nil {
			return err
		}
		mcfg.ClientID = "vpflash-" + session
		pub, err := mqttstatus.Connect(mcfg, logger)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	if cfg.Monitor != "" {
		mon := monitor.New(logger)
		if err := mon.Start(cfg.Monitor); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := mon.Shutdown(ctx); err != nil {
				logger.Warn("monitor shutdown", "error", err)
			}
		}()
		sinks = append(sinks, mon)
	}

	reporter := status.NewReporter(session, sinks)

	fmt.Fprintf(stderr, "\n  Port:      %s\n  Baud rate: %d\n\n", cfg.Port, cfg.BaudRate)

	opts := []prototype.Option{
		prototype.WithTimeout(cfg.Timeout),
		prototype.WithLogger(logger),
	}

	dev, err := status.Do(reporter, "Connecting to port", func() (*prototype.Device, error) {
		if cfg.DryRun != "" {
			link, err := transport.OpenReplay(cfg.DryRun, stdout)
			if err != nil {
				return nil, err
			}
			return prototype.New(link, opts...), nil
		}
		return prototype.Open(cfg.Port, cfg.BaudRate, opts...)
	})
	if err != nil {
		reporter.Finish(summary(cfg, src, prototype.Result{}, err))
		return err
	}
	defer dev.Close()

	flasher := prototype.NewFlasher(dev, reporter, cfg.ResetPolicy())
	res, err := flasher.Flash(src)
	reporter.Finish(summary(cfg, src, res, err))
	if err != nil {
		return err
	}

	logger.Info("program running", "bytes", res.BytesWritten, "elapsed", res.Elapsed)
	return nil
}

func summary(cfg *Config, src *upload.Source, res prototype.Result, err error) status.Summary {
	sum := status.Summary{
		Port:         cfg.Port,
		Source:       src.Name(),
		State:        res.State.String(),
		BytesWritten: res.BytesWritten,
		ResetAwaited: res.ResetAwaited,
		Elapsed:      res.Elapsed,
	}
	if err != nil {
		sum.Error = err.Error()
	}
	return sum
}
