package main

import (
	"context"

	"tabclip/internal/logger"
	"tabclip/pkg/api"
)

// watchToggle Windows 没有 SIGUSR1，只能通过 HTTP 接口切换
func watchToggle(ctx context.Context, svc api.Service, log logger.Logger) {
	<-ctx.Done()
}
