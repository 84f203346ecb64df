package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"apiharvest/internal/config"
	"apiharvest/internal/logger"
	"apiharvest/internal/service"
	"apiharvest/internal/store"
	"apiharvest/pkg/api"
)

// env 每个子命令共享的运行环境
type env struct {
	cfg    *config.Config
	layout *store.Layout
	log    logger.Logger
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "apiharvest",
		Short:         "Capture authenticated API traffic from a browser and catalog it per app",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("data-dir", config.DefaultDataDir(), "data directory")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCmd(),
		newClientCmd(),
		newGenerateCmd(),
		newInitCmd(),
		newRegisterCmd(),
		newAddDomainCmd(),
		newAppsCmd(),
		newHistoryCmd(),
	)
	return rootCmd
}

// loadEnv 按 flag > 环境变量 > config.json > 默认值 读取配置
func loadEnv(cmd *cobra.Command) (*env, error) {
	v := viper.New()
	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("data_dir", flags.Lookup("data-dir")); err != nil {
		return nil, err
	}
	if f := flags.Lookup("log-level"); f != nil && f.Changed {
		v.Set("log.level", f.Value.String())
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	l := logger.New(logger.Options{Level: cfg.Log.Level, Writers: cfg.Log.Writer, File: cfg.LogFile()})
	return &env{cfg: cfg, layout: store.New(cfg.DataDir), log: l}, nil
}

// newService session 为空时按启动时间生成
func (e *env) newService(session string) (api.Service, error) {
	return api.NewService(service.Options{
		Layout:      e.layout,
		UserAgent:   e.cfg.ReplayUserAgent(),
		BatchEvery:  e.cfg.BatchEvery,
		EvalTimeout: e.cfg.EvalTimeout(),
		Session:     session,
		Logger:      e.log,
	})
}
