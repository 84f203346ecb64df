package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"apiharvest/internal/store"
)

const (
	clientAttempts = 100
	clientEvery    = 100 * time.Millisecond
)

var errNoResponse = errors.New("timeout waiting for response, is `apiharvest run` running?")

func newClientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cmd <json>",
		Short: "Send one command to the running browser and print the result",
		Example: `  apiharvest cmd '{"action":"status"}'
  apiharvest cmd '{"action":"navigate","url":"https://example.com"}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			body := "{}"
			if len(args) == 1 {
				body = args[0]
			}
			return sendCommand(cmd.Context(), e.layout, body, clientAttempts, clientEvery, cmd.OutOrStdout())
		},
	}
}

// sendCommand 清掉旧结果，写入命令文件，轮询结果文件；读到后打印并删除
func sendCommand(ctx context.Context, layout *store.Layout, body string, attempts int, every time.Duration, out io.Writer) error {
	resultPath := layout.ResultPath()
	_ = os.Remove(resultPath)
	if err := os.MkdirAll(layout.Root, 0o755); err != nil {
		return err
	}
	if err := store.WriteFileAtomic(layout.CommandPath(), []byte(body), 0o644); err != nil {
		return fmt.Errorf("write command: %w", err)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range attempts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		data, err := os.ReadFile(resultPath)
		if err != nil {
			continue
		}
		fmt.Fprintln(out, strings.TrimSpace(string(data)))
		_ = os.Remove(resultPath)
		return nil
	}
	return errNoResponse
}
