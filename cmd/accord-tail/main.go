// accord-tail connects to a gateway and streams dispatched events to stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/accordlabs/accord-go/pkg/gateway"
)

// Config is the optional TOML config file. Flags override its values.
type Config struct {
	Gateway ConfigGateway `toml:"gateway"`
}

// ConfigGateway holds connection settings.
type ConfigGateway struct {
	Server string `toml:"server"`
	Token  string `toml:"token"`
	Status string `toml:"status"`
}

// loadConfig reads and parses the config file. A missing file yields a
// zero-value Config so the CLI can run on flags alone.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

var (
	flagServer  string
	flagToken   string
	flagConfig  string
	flagStatus  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "accord-tail",
	Short: "Tail gateway events",
	Long:  "Connects to a chat gateway, authenticates, and prints every dispatched event.\nReconnects automatically when the connection drops.",
	RunE:  runTail,
}

func init() {
	rootCmd.Flags().StringVar(&flagServer, "server", "", "gateway base URL (http, https, ws or wss)")
	rootCmd.Flags().StringVar(&flagToken, "token", "", "access token")
	rootCmd.Flags().StringVar(&flagConfig, "config", "accord.toml", "path to TOML config file")
	rootCmd.Flags().StringVar(&flagStatus, "status", "", "presence status to announce once live")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return err
	}
	server := flagServer
	if server == "" {
		server = cfg.Gateway.Server
	}
	token := flagToken
	if token == "" {
		token = cfg.Gateway.Token
	}
	status := flagStatus
	if status == "" {
		status = cfg.Gateway.Status
	}
	if server == "" {
		return fmt.Errorf("no gateway server: pass --server or set gateway.server in %s", flagConfig)
	}
	if token == "" {
		return fmt.Errorf("no access token: pass --token or set gateway.token in %s", flagConfig)
	}

	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cli := gateway.New(server,
		func(context.Context) (string, error) { return token, nil },
		gateway.WithLogger(logger),
	)

	cli.On(gateway.EventOpen, func(data json.RawMessage) {
		id, _, _ := cli.Session()
		logger.Info("session live", "session_id", id)
		if status != "" {
			cli.SendPresenceUpdate(status)
		}
	})
	cli.On(gateway.EventClose, func(data json.RawMessage) {
		var ev gateway.CloseEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			logger.Info("connection closed", "code", ev.Code)
		}
	})
	// Every dispatched event goes to stdout as a single JSON line.
	printEvent := func(name string) gateway.Handler {
		return func(data json.RawMessage) {
			line, err := json.Marshal(map[string]any{
				"ts":    time.Now().UTC().Format(time.RFC3339),
				"event": name,
				"data":  json.RawMessage(data),
			})
			if err != nil {
				logger.Warn("cannot render event", "event", name, "error", err)
				return
			}
			fmt.Println(string(line))
		}
	}
	for _, name := range tailedEvents {
		cli.On(name, printEvent(name))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Connect(ctx); err != nil {
		// The client keeps retrying on its own; surface the first failure
		// but stay up.
		logger.Warn("initial connection failed, retrying", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return cli.Disconnect()
}

// tailedEvents is the set of dispatch names the CLI subscribes to.
var tailedEvents = []string{
	"READY",
	"MESSAGE_CREATE",
	"MESSAGE_UPDATE",
	"MESSAGE_DELETE",
	"PRESENCE_UPDATE",
	"TYPING_START",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
