package api

import (
	"context"

	"tabclip/internal/capture"
	"tabclip/internal/logger"
	"tabclip/internal/service"
	"tabclip/pkg/model"
)

// Service 服务接口
type Service interface {
	// Toggle 显示选区覆盖层，或停止正在进行的录制
	Toggle() error

	// Stop 停止录制
	Stop()

	// Status 获取会话状态
	Status() model.Status

	// SelectTab 指定当前标签页
	SelectTab(tab model.TabID) error

	// ListTargets 列出目标
	ListTargets() []model.TargetInfo

	// Downloads 列出下载记录
	Downloads(ctx context.Context, limit int) ([]model.Download, error)

	// SubscribeEvents 订阅事件
	SubscribeEvents(buf int) (<-chan model.Event, func())
}

// NewService 创建并返回服务接口实现
func NewService(ctrl *capture.Controller, targets service.Targets, history service.History, l logger.Logger) Service {
	return service.New(ctrl, targets, history, l)
}
