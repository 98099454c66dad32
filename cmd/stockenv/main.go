package main

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"stockenv/internal/config"
	"stockenv/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli 在子命令之间共享已加载的配置与日志文件。
type cli struct {
	cfgPath  string
	logLevel string
	cfg      *config.Config
	logFile  *os.File
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "stockenv",
		Short:         "Single-asset trading environment for reinforcement learning",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.logFile != nil {
				return c.logFile.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.cfgPath, "config", "c", "", "config file (default $"+config.EnvConfigPath+" or configs/stockenv.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override app.log_level")

	root.AddCommand(
		newRunCmd(c),
		newServeCmd(c),
		newFetchCmd(c),
		newFeaturesCmd(c),
		newConfigCmd(c),
	)
	return root
}

func (c *cli) init() error {
	_ = godotenv.Load()

	path := config.ResolvePath(c.cfgPath)
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case c.cfgPath == "" && os.Getenv(config.EnvConfigPath) == "" && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return err
	}
	if c.logLevel != "" {
		if _, err := logger.ParseLevel(c.logLevel); err != nil {
			return err
		}
		cfg.App.LogLevel = c.logLevel
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return err
	}
	c.logFile = logFile
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)
	logger.Debugf("✓ 配置加载完成（环境=%s，数据=%s）", cfg.App.Env, cfg.Data.Source)
	c.cfg = cfg
	return nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		logger.SetOutput(os.Stderr)
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stderr, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
