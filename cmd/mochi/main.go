package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lumilinkco/mochi/internal/config"
	"github.com/lumilinkco/mochi/internal/gateway"
	"github.com/lumilinkco/mochi/internal/persona"
	"github.com/lumilinkco/mochi/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "mochi",
	Short: "mochi - chat companion with tiered conversational memory",
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the bot (channels + memory + cron)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directories",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mochi status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(gatewayCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'mochi onboard' or set MOCHI_API_KEY / ANTHROPIC_API_KEY")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
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

	// Writing the default persona makes it editable before first run
	personaPath := cfg.Persona.Path
	if personaPath == "" {
		personaPath = cfgDir + "/persona.yaml"
	}
	if _, err := os.Stat(personaPath); os.IsNotExist(err) {
		tracker, err := persona.Load(personaPath)
		if err != nil {
			return fmt.Errorf("init persona: %w", err)
		}
		if err := tracker.Save(); err != nil {
			return fmt.Errorf("write persona: %w", err)
		}
		fmt.Printf("Created persona: %s\n", personaPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key and enable channels\n", cfgPath)
	fmt.Println("  2. Or set MOCHI_API_KEY / MOCHI_TELEGRAM_TOKEN environment variables")
	fmt.Println("  3. Run 'mochi gateway' to start the bot")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Bot: %s\n", cfg.Bot.Name)
	fmt.Printf("Model: %s\n", cfg.Bot.Model)
	if key := cfg.Provider.APIKey; len(key) > 8 {
		fmt.Printf("API Key: %s...%s\n", key[:4], key[len(key)-4:])
	} else if key != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("Dashboard: enabled=%v (port %d)\n", cfg.Channels.Dashboard.Enabled, cfg.Gateway.Port)

	if dbPath := cfg.Memory.DBPath; dbPath != "" {
		if engine, err := store.NewEngine(dbPath); err == nil {
			if count, err := engine.MessageCount(); err == nil {
				fmt.Printf("Logged messages: %d\n", count)
			}
			if count, err := engine.ArchiveCount(); err == nil {
				fmt.Printf("Archived threads: %d\n", count)
			}
			_ = engine.Close()
		}
	}

	return nil
}
