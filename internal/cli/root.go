// Package cli implements the agent-council CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/logging"
	"github.com/rcliao/agent-council/internal/store"
)

var (
	dbPath     string
	configPath string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "agent-council",
	Short: "Decision engine for multi-agent replies",
	Long: "Allocate agents, route model tiers, debate candidate drafts, validate plans " +
		"and remember outcomes. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $AGENT_COUNCIL_DB or ~/.agent-council/council.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: $AGENT_COUNCIL_CONFIG)")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("AGENT_COUNCIL_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agent-council", "council.db")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("AGENT_COUNCIL_CONFIG")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		exitErr("load config", err)
	}
	return cfg
}

func newLogger(cfg *config.Config) *zap.Logger {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		exitErr("create logger", err)
	}
	return logger
}

func openStore(cfg *config.Config, logger *zap.Logger) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath(), cfg.Memory, store.WithLogger(logger))
}

// mustOpen loads config, logger and store for commands that only touch memory.
func mustOpen() (*config.Config, *zap.Logger, *store.SQLiteStore) {
	cfg := loadConfig()
	logger := newLogger(cfg)
	s, err := openStore(cfg, logger)
	if err != nil {
		exitErr("open store", err)
	}
	return cfg, logger, s
}

// readInput returns args joined, or stdin when it is piped.
func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readFile reads path, or stdin when path is "-".
func readFile(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// readDocument decodes a YAML or JSON file into v.
func readDocument(path string, v any) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
