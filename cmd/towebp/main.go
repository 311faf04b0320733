// Command towebp converts PNG, JPEG and GIF images to WebP.
//
// Usage:
//
//	towebp convert [options] <file|dir>...   convert images (directories are walked)
//	towebp info <file.webp>...               describe WebP files
//	towebp serve [options]                   run the HTTP conversion service
//	towebp backends                          list encoder backends
//
// Settings come from built-in defaults, an optional TOML file (--config),
// .env, WEBPCONV_* environment variables and finally flags.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/deepteams/webpconv/internal/config"
	"github.com/deepteams/webpconv/internal/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().Run(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "towebp: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "towebp",
		Usage:   "convert PNG, JPEG and GIF images to WebP",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML settings file"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
		},
		Commands: []*cli.Command{
			convertCommand(),
			infoCommand(),
			serveCommand(),
			backendsCommand(),
		},
	}
}

// encodingFlags are shared by convert and serve.
func encodingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "quality", Aliases: []string{"q"}, Usage: "lossy quality 0-100"},
		&cli.BoolFlag{Name: "lossless", Usage: "lossless encoding"},
		&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "parallel conversions (0 = one per CPU)"},
		&cli.StringFlag{Name: "backend", Aliases: []string{"b"}, Usage: "encoder backend (see towebp backends)"},
		&cli.StringFlag{Name: "background", Usage: "#rrggbb color behind flattened transparency"},
	}
}

// loadConfig reads settings and applies any flags the user set.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("quality") {
		cfg.Convert.Quality = int(cmd.Int("quality"))
	}
	if cmd.IsSet("lossless") {
		cfg.Convert.Lossless = cmd.Bool("lossless")
	}
	if cmd.IsSet("workers") {
		cfg.Convert.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("backend") {
		cfg.Convert.Backend = cmd.String("backend")
	}
	if cmd.IsSet("background") {
		cfg.Convert.Background = cmd.String("background")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cmd *cli.Command, cfg *config.Config) (*slog.Logger, error) {
	lc := cfg.Logging()
	lc.Output = stderr(cmd)
	return logging.New(lc)
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}
