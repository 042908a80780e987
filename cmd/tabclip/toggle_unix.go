//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tabclip/internal/logger"
	"tabclip/pkg/api"
)

// watchToggle SIGUSR1 触发一次切换，等同于点击扩展图标
func watchToggle(ctx context.Context, svc api.Service, log logger.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			if err := svc.Toggle(); err != nil {
				log.Warn("信号切换失败", "error", err)
			}
		}
	}
}
