// Package service 聚合录制控制器、目标列表与下载历史，对外提供统一的服务接口
package service

import (
	"context"

	"tabclip/internal/capture"
	"tabclip/internal/logger"
	"tabclip/pkg/model"
)

// Targets 页面目标来源
type Targets interface {
	Targets() []model.TargetInfo
}

// History 下载历史
type History interface {
	List(ctx context.Context, limit int) ([]model.Download, error)
}

// Service 服务实现
type Service struct {
	ctrl    *capture.Controller
	targets Targets
	history History
	log     logger.Logger
}

// New 创建服务
func New(ctrl *capture.Controller, targets Targets, history History, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNop()
	}
	return &Service{ctrl: ctrl, targets: targets, history: history, log: l.With("component", "service")}
}

// Toggle 等同于点击扩展图标
func (s *Service) Toggle() error {
	if err := s.ctrl.Toggle(); err != nil {
		s.log.Warn("切换录制失败", "error", err)
		return err
	}
	return nil
}

// Stop 停止当前会话
func (s *Service) Stop() {
	s.ctrl.Stop(model.ReasonAPI)
}

// Status 会话状态
func (s *Service) Status() model.Status {
	return s.ctrl.Status()
}

// SelectTab 指定当前标签页
func (s *Service) SelectTab(tab model.TabID) error {
	for _, t := range s.targets.Targets() {
		if t.ID == tab {
			s.ctrl.SetCurrentTab(tab)
			return nil
		}
	}
	return capture.ErrNoTab
}

// ListTargets 列出页面目标并标记当前标签页
func (s *Service) ListTargets() []model.TargetInfo {
	current := s.ctrl.Status().Tab
	list := s.targets.Targets()
	for i := range list {
		list[i].IsCurrent = list[i].ID == current
	}
	return list
}

// Downloads 最近的下载记录
func (s *Service) Downloads(ctx context.Context, limit int) ([]model.Download, error) {
	return s.history.List(ctx, limit)
}

// SubscribeEvents 订阅会话事件
func (s *Service) SubscribeEvents(buf int) (<-chan model.Event, func()) {
	return s.ctrl.Subscribe(buf)
}
