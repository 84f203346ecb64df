package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"apiharvest/internal/bridge"
	"apiharvest/internal/cdp"
	"apiharvest/internal/logger"
	"apiharvest/internal/storage"
	"apiharvest/pkg/api"
	"apiharvest/pkg/model"
)

const registrationPoll = 2 * time.Second

func newRunCmd() *cobra.Command {
	var devtools, open string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Attach to Chrome and capture traffic; serve the command file protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if devtools != "" {
				e.cfg.DevToolsURL = devtools
			}
			return run(cmd.Context(), e, open)
		},
	}
	cmd.Flags().StringVar(&devtools, "devtools", "", "DevTools endpoint, overrides devtools_url")
	cmd.Flags().StringVar(&open, "open", "", "URL to open once attached; an unnamed domain waits for `apiharvest register`")
	return cmd
}

func run(parent context.Context, e *env, openURL string) error {
	svc, err := e.newService("")
	if err != nil {
		return err
	}

	var journal bridge.Journal
	if dsn := e.cfg.SqlitePath(); dsn != "" {
		j, err := storage.Open(dsn, e.cfg.Sqlite.Prefix, e.log.With("module", "storage"))
		if err != nil {
			e.log.Err(err, "命令记录不可用，继续运行")
		} else {
			defer j.Close()
			journal = j
		}
	}

	mgr := cdp.New(e.cfg.DevToolsURL, svc, svc.Evals(), e.log)
	svc.AttachBrowser(mgr)
	dispatcher := svc.NewDispatcher(journal)
	src := bridge.NewFileSource(e.layout, e.cfg.PollInterval(), e.log.With("module", "bridge"))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e.log.Info("apiharvest 已启动", "session", svc.Session(), "dataDir", e.cfg.DataDir, "devtools", e.cfg.DevToolsURL)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := mgr.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("browser %s: %w", e.cfg.DevToolsURL, err)
		}
		return nil
	})
	g.Go(func() error { return src.Serve(gctx, dispatcher.Handle) })
	g.Go(func() error { return svc.WatchRegistrations(gctx, registrationPoll) })
	g.Go(func() error {
		logEvents(gctx, svc.Events(), e.log)
		return nil
	})
	if openURL != "" {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case <-mgr.Ready():
			}
			openOnce(gctx, svc, openURL, e.log)
			return nil
		})
	}

	err = g.Wait()
	svc.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openOnce 域名未命名时挂起，register 之后由 WatchRegistrations 继续导航
func openOnce(ctx context.Context, svc api.Service, url string, l logger.Logger) {
	pending, err := svc.Open(ctx, url)
	if err != nil {
		l.Err(err, "打开地址失败", "url", url)
		return
	}
	if pending {
		l.Info("域名尚未归属任何应用，执行 apiharvest register <name> <domain> 后自动打开", "url", url)
	}
}

func logEvents(ctx context.Context, events <-chan model.Event, l logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Type {
			case "request-captured":
				l.Debug(ev.Type, "app", ev.App, "url", ev.URL)
			default:
				l.Info(ev.Type, "app", ev.App, "domain", ev.Domain, "url", ev.URL)
			}
		}
	}
}
