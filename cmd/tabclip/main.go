package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tabclip/internal/capture"
	"tabclip/internal/cdp"
	"tabclip/internal/config"
	"tabclip/internal/logger"
	"tabclip/internal/router"
	"tabclip/internal/schedule"
	"tabclip/internal/server"
	"tabclip/internal/storage"
	"tabclip/pkg/api"
)

// main 是录制守护进程入口
func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	devtools := flag.String("devtools", "", "浏览器调试地址，如 http://127.0.0.1:9222；为空时按配置启动浏览器")
	headless := flag.Bool("headless", false, "以无头模式启动浏览器")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *devtools != "" {
		cfg.Browser.DevToolsURL = *devtools
	}
	if *headless {
		cfg.Browser.Headless = true
	}

	log := logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Writer: cfg.Log.Writer,
		File:   cfg.Log.File,
	})

	if err := run(cfg, log); err != nil {
		log.Error("运行失败", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	devtoolsURL := cfg.Browser.DevToolsURL
	if devtoolsURL == "" {
		if !cfg.Browser.Launch {
			return fmt.Errorf("未配置浏览器调试地址且禁用了自动启动")
		}
		b, err := cdp.Launch(cfg.Browser.Headless)
		if err != nil {
			return err
		}
		defer b.Close()
		devtoolsURL = b.DevToolsURL
		log.Info("已启动浏览器", "devtools", devtoolsURL)
	}

	db, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, log)
	if err != nil {
		return err
	}
	history := storage.NewHistory(db)
	blobs, err := storage.NewBlobStore(cfg.Download.TempDir)
	if err != nil {
		return err
	}
	downloader, err := storage.NewDownloader(cfg.Download.Dir, blobs, history, log)
	if err != nil {
		return err
	}

	mgr := cdp.New(devtoolsURL, cdp.Options{
		JPEGQuality:       cfg.Capture.JPEGQuality,
		DiscoveryInterval: cfg.Browser.DiscoveryInterval,
		Logger:            log,
	})
	defer mgr.Close()

	rt := router.New(mgr, log)
	ctrl := capture.New(capture.Deps{
		Acquirer:   mgr,
		Messenger:  rt,
		Blobs:      blobs,
		Downloader: downloader,
	}, capture.Options{
		FPS:         cfg.Capture.FPS,
		Timeslice:   cfg.Capture.Timeslice,
		JPEGQuality: cfg.Capture.JPEGQuality,
		Filename:    cfg.Capture.Filename,
		MediaType:   cfg.Capture.MediaType,
		Scheduler:   schedule.Real{},
		Logger:      log,
	})
	defer ctrl.Close()
	rt.Bind(ctrl)

	if err := mgr.Refresh(ctx); err != nil {
		return fmt.Errorf("连接浏览器失败: %w", err)
	}
	if tab, ok := mgr.First(); ok {
		ctrl.SetCurrentTab(tab)
	}

	go func() {
		if err := mgr.Run(ctx); err != nil {
			log.Error("目标发现已停止", "error", err)
		}
	}()
	go rt.Run(ctx, mgr.Inbox())

	svc := api.NewService(ctrl, mgr, history, log)
	go watchToggle(ctx, svc, log)

	srv := server.New(cfg.HTTP.Addr, svc, log)
	err = srv.ListenAndServe(ctx)
	log.Info("正在退出")
	return err
}
