package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"autogrid/internal/apps"
	"autogrid/internal/autogrid"
	"autogrid/internal/config"
	"autogrid/internal/gps"
	"autogrid/internal/logging"
	"autogrid/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./autogrid.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logging.New(logging.Config{
		Level:      level,
		Dir:        cfg.Logging.Dir,
		KeepLogs:   cfg.Logging.KeepLogs,
		EchoStderr: cfg.Logging.EchoStderr,
	})
	if err != nil {
		log.Fatalf("logging init failed: %v", err)
	}
	defer lg.Close()

	gpsSvc, err := gps.New(gps.Config{
		Source: gps.Source(cfg.GPS.Source),
		Network: gps.NetworkConfig{
			Host:     cfg.GPSNetwork.Host,
			Port:     cfg.GPSNetwork.Port,
			Protocol: cfg.GPSNetwork.Protocol,
			Timeout:  cfg.GPSNetwork.Timeout.Std(),
		},
		Serial: gps.SerialConfig{
			Device:  cfg.GPSSerial.Device,
			Baud:    cfg.GPSSerial.Baud,
			Timeout: cfg.GPSSerial.Timeout.Std(),
		},
		GPSD: gps.GPSDConfig{
			Host:    cfg.GPSGPSD.Host,
			Port:    cfg.GPSGPSD.Port,
			Timeout: cfg.GPSGPSD.Timeout.Std(),
		},
		UpdateInterval:      cfg.GPS.UpdateInterval.Std(),
		StaleAfterIntervals: cfg.GPS.StaleAfterIntervals,
		MaxRetries:          cfg.GPS.MaxRetries,
		RetryInterval:       cfg.GPS.RetryInterval.Std(),
		Clock: gps.ClockPolicy{
			Enabled:     cfg.GPS.ClockSync.Enable,
			MinInterval: cfg.GPS.ClockSync.MinInterval.Std(),
		},
	}, lg)
	if err != nil {
		lg.Errorf("%v", err)
		lg.Close()
		os.Exit(1)
	}

	comm := apps.NewCommunicator(apps.Config{
		WSJTXPort:        cfg.Apps.WSJTXPort,
		JS8CallUDPPort:   cfg.Apps.JS8CallUDPPort,
		JS8CallTCPAddr:   net.JoinHostPort(cfg.Apps.JS8CallTCPHost, strconv.Itoa(cfg.Apps.JS8CallTCPPort)),
		DetectionTimeout: cfg.Apps.DetectionTimeout.Std(),
		MaxRetries:       cfg.Apps.MaxRetries,
		RetryInterval:    cfg.Apps.RetryInterval.Std(),
	}, lg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lg.Infof("autogrid starting, gps source=%s", cfg.GPS.Source)

	if err := gpsSvc.Start(ctx); err != nil {
		lg.Errorf("gps start failed: %v", err)
		lg.Close()
		os.Exit(1)
	}
	defer gpsSvc.Close()

	if err := comm.Start(ctx); err != nil {
		lg.Errorf("application communication start failed: %v", err)
		gpsSvc.Close()
		lg.Close()
		os.Exit(1)
	}
	defer comm.Close()

	app := autogrid.New(autogrid.Config{
		HeartbeatInterval: cfg.Advanced.HeartbeatInterval.Std(),
		SleepInterval:     cfg.Advanced.SleepInterval.Std(),
		UpdateInterval:    cfg.GPS.UpdateInterval.Std(),
		GridPrecision:     cfg.Advanced.GridPrecision,
		GridEpsilonDeg:    cfg.Advanced.GridEpsilonDeg,
	}, gpsSvc, comm, lg)

	if cfg.Advanced.StatusAddr != "" {
		go func() {
			if err := web.Serve(ctx, cfg.Advanced.StatusAddr, web.Handler(app.Status), lg); err != nil {
				lg.Warnf("status endpoint stopped: %v", err)
			}
		}()
	}

	if err := app.Run(ctx); err != nil {
		lg.Errorf("unrecoverable gps failure: %v", err)
		comm.Close()
		gpsSvc.Close()
		lg.Close()
		os.Exit(1)
	}
	lg.Infof("autogrid stopping")
}
