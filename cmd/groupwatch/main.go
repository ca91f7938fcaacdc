package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/groupwatch/internal/bus"
	"github.com/stellarlinkco/groupwatch/internal/chat"
	"github.com/stellarlinkco/groupwatch/internal/classifier"
	"github.com/stellarlinkco/groupwatch/internal/config"
	"github.com/stellarlinkco/groupwatch/internal/gateway"
	"github.com/stellarlinkco/groupwatch/internal/monitor"
	"github.com/stellarlinkco/groupwatch/internal/store"
	"github.com/stellarlinkco/groupwatch/internal/sweeper"
)

var rootCmd = &cobra.Command{
	Use:   "groupwatch",
	Short: "groupwatch - chat group notification monitor",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST gateway (and optionally start monitoring)",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show groupwatch status",
	RunE:  runStatus,
}

var monitorFlag bool

func init() {
	serveCmd.Flags().BoolVar(&monitorFlag, "monitor", false, "Start monitoring immediately instead of waiting for POST /api/start")
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newChatClient(cfg *config.Config, b *bus.MessageBus) (chat.Client, error) {
	if cfg.Channels.Telegram.Enabled {
		return chat.NewTelegramClient(cfg.Channels.Telegram, b)
	}
	log.Printf("[serve] no messaging channel enabled, listeners will be inert")
	return chat.NewNullClient(), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'groupwatch onboard' or set GROUPWATCH_API_KEY")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	b := bus.NewMessageBus(config.DefaultBufSize)
	watchlist := store.NewWatchlistStore(cfg.DataDir)
	notifications := store.NewNotificationStore(cfg.DataDir)
	cls := classifier.NewClient(cfg)

	client, err := newChatClient(cfg, b)
	if err != nil {
		return fmt.Errorf("create chat client: %w", err)
	}

	mon := monitor.New(client, b, cls, watchlist, notifications)
	gw := gateway.New(cfg, mon, cls, watchlist, notifications)
	sw := sweeper.New(cfg.Retention, notifications)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	if err := sw.Start(ctx); err != nil {
		log.Printf("[serve] sweeper start warning: %v", err)
	}
	if monitorFlag {
		mon.StartBackground(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("[serve] shutting down...")
	cancel()
	return gw.Stop()
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if _, err := store.NewWatchlistStore(cfg.DataDir).Load(); err != nil {
		return fmt.Errorf("initialize watchlist: %w", err)
	}
	fmt.Printf("Data directory ready: %s\n", cfg.DataDir)

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set GROUPWATCH_API_KEY environment variable")
	fmt.Println("  3. Run 'groupwatch serve' and POST /api/start to begin monitoring")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	fmt.Printf("Model: %s\n", cfg.Model.Name)
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("Gateway: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)

	if _, err := os.Stat(cfg.DataDir); err != nil {
		fmt.Println("Data dir: not found (run 'groupwatch onboard')")
		return nil
	}

	wl, err := store.NewWatchlistStore(cfg.DataDir).Load()
	if err != nil {
		fmt.Printf("Watchlist: error (%v)\n", err)
	} else {
		fmt.Printf("Monitored groups: %d\n", len(wl.TargetGroups))
	}

	all := store.NewNotificationStore(cfg.DataDir).List()
	unread := 0
	for _, n := range all {
		if !n.IsRead {
			unread++
		}
	}
	fmt.Printf("Notifications: %d (%d unread)\n", len(all), unread)

	return nil
}
