package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/deepteams/webpconv"
	"github.com/deepteams/webpconv/internal/metrics"
	"github.com/deepteams/webpconv/internal/server"
)

func serveCommand() *cli.Command {
	flags := append(encodingFlags(),
		&cli.StringFlag{Name: "addr", Usage: "listen address"},
		&cli.IntFlag{Name: "max-upload-mb", Usage: "request body limit in MiB"},
		&cli.BoolFlag{Name: "debug", Usage: "gin debug mode"},
	)
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the HTTP conversion service",
		Flags:  flags,
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("addr") {
		cfg.Server.Addr = cmd.String("addr")
	}
	if cmd.IsSet("max-upload-mb") {
		cfg.Server.MaxUploadMB = int(cmd.Int("max-upload-mb"))
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	opts.Logger = log
	opts.Observer = m

	srv, err := server.New(server.Options{
		Converter:      webpconv.New(opts),
		Policy:         cfg.Policy(),
		Logger:         log,
		Metrics:        m,
		Gatherer:       reg,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Debug:          cmd.Bool("debug"),
	})
	if err != nil {
		return err
	}
	log.Info("starting", "version", version, "backend", opts.Encoder.Name(), "quality", cfg.Convert.Quality, "lossless", cfg.Convert.Lossless)
	return srv.ListenAndServe(ctx, cfg.Server.Addr, server.Timeouts{
		Read:     cfg.Server.ReadTimeout,
		Write:    cfg.Server.WriteTimeout,
		Shutdown: cfg.Server.ShutdownTimeout,
	})
}
