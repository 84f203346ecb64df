package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"apiharvest/internal/store"
)

//go:embed agent.md
var agentGuide []byte

// defaultConfig init 写入的全局配置，user_agent 留空表示使用内置 Chrome UA
var defaultConfig = map[string]any{
	"user_agent":       "",
	"devtools_url":     "http://127.0.0.1:9222",
	"poll_interval_ms": 300,
	"batch_every":      50,
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directory, AGENT.md and a default config.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			created, err := initDataDir(e.layout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range created {
				fmt.Fprintf(out, "Created %s\n", p)
			}
			fmt.Fprintf(out, "apiharvest initialized at %s\n", e.layout.Root)
			fmt.Fprintln(out, "Start Chrome with --remote-debugging-port=9222, then run `apiharvest run`.")
			return nil
		},
	}
}

// initDataDir AGENT.md 总是重写，config.json 只在不存在时创建
func initDataDir(layout *store.Layout) ([]string, error) {
	if err := layout.EnsureDirs(); err != nil {
		return nil, err
	}
	var created []string
	if err := store.WriteFileAtomic(layout.AgentGuidePath(), agentGuide, 0o644); err != nil {
		return nil, fmt.Errorf("write agent guide: %w", err)
	}
	created = append(created, layout.AgentGuidePath())

	_, err := os.Stat(layout.GlobalConfigPath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := store.WriteJSON(layout.GlobalConfigPath(), defaultConfig); err != nil {
			return nil, fmt.Errorf("write config: %w", err)
		}
		created = append(created, layout.GlobalConfigPath())
	case err != nil:
		return nil, err
	}
	return created, nil
}
