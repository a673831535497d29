package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gopkg.in/yaml.v3"

	"github.com/mrorigo/stream-healer/internal/config"
	"github.com/mrorigo/stream-healer/internal/log"
	"github.com/mrorigo/stream-healer/internal/proxy"
)

// version is set by the release build via -ldflags; local builds fall
// back to "dev".
var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			handleConfigCommand()
			return
		case "version", "--version", "-v":
			fmt.Println("stream-healer", version)
			return
		case "help", "--help", "-h":
			showHelp()
			return
		}
	}

	startServer()
}

func showHelp() {
	fmt.Println("Usage: stream-healer [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  (none)             run the proxy server")
	fmt.Println("  config preview     print the resolved configuration")
	fmt.Println("  config validate    validate the resolved configuration")
	fmt.Println("  config get <key>   print a single configuration value")
	fmt.Println("  version            print the build version")
}

type fxLogger struct{}

func (l *fxLogger) LogEvent(event fxevent.Event) {
	log.Debug(context.Background(), "fx event", log.Any("event", event))
}

func startServer() {
	app := fx.New(
		fx.WithLogger(func() fxevent.Logger { return &fxLogger{} }),
		fx.Provide(config.Load),
		fx.Provide(proxy.New),
		fx.Invoke(func(cfg config.Config) {
			log.SetGlobalConfig(cfg.Log)
			slog.SetDefault(log.GetGlobalLogger().AsSlog())
		}),
		fx.Invoke(func(lc fx.Lifecycle, srv *proxy.Server) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() {
						if err := srv.Run(); err != nil {
							log.Error(context.Background(), "server run error", log.Cause(err))
							os.Exit(1)
						}
					}()

					return nil
				},
				OnStop: func(ctx context.Context) error {
					return srv.Shutdown(ctx)
				},
			})
		}),
	)

	app.Run()
}

func handleConfigCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: stream-healer config <preview|validate|get>")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "preview":
		configPreview()
	case "validate":
		configValidate()
	case "get":
		configGet()
	default:
		fmt.Println("Usage: stream-healer config <preview|validate|get>")
		os.Exit(1)
	}
}

func configPreview() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	b, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Printf("Failed to preview config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(b))
}

func configValidate() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	problems := cfg.Validate()
	if len(problems) == 0 {
		fmt.Println("Configuration is valid!")
		return
	}

	fmt.Println("Configuration validation failed:")

	for _, p := range problems {
		fmt.Printf("  - %s\n", p)
	}

	os.Exit(1)
}

func configGet() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: stream-healer config get <key>")
		fmt.Println()
		fmt.Println("Available keys:")
		fmt.Println("  server.port           Server port number")
		fmt.Println("  server.host           Server bind address")
		fmt.Println("  server.base_path      Route prefix")
		fmt.Println("  server.debug          Debug/gin release mode toggle")
		fmt.Println("  upstream.base_url     Upstream OpenAI-compatible base URL")
		fmt.Println("  upstream.default_model Default model name")
		os.Exit(1)
	}

	key := os.Args[3]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var value any

	switch key {
	case "server.port":
		value = cfg.Server.Port
	case "server.host":
		value = cfg.Server.Host
	case "server.base_path":
		value = cfg.Server.BasePath
	case "server.debug":
		value = cfg.Server.Debug
	case "upstream.base_url":
		value = cfg.Upstream.BaseURL
	case "upstream.default_model":
		value = cfg.Upstream.DefaultModel
	default:
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		os.Exit(1)
	}

	fmt.Println(value)
}
