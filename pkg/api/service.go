package api

import (
	"context"
	"time"

	"apiharvest/internal/bridge"
	"apiharvest/internal/service"
	"apiharvest/pkg/model"
)

// Service 服务接口
type Service interface {
	// Ingest 处理一条浏览器捕获记录
	Ingest(raw []byte) model.Decision

	// RegisterApp 注册应用并回放该域名的缓冲记录，返回回放条数
	RegisterApp(name, domain string) (int, error)

	// AddDomain 为已有应用追加域名
	AddDomain(name, domain string) (int, error)

	// Apps 列出应用
	Apps() []string

	// AppDetails 列出应用及其域名
	AppDetails() []model.AppDetail

	// Open 打开地址；域名未注册时返回 pending，等待命名
	Open(ctx context.Context, url string) (bool, error)

	// ResumeNavigate 继续被挂起的导航
	ResumeNavigate(ctx context.Context) error

	// AttachBrowser 绑定浏览器连接
	AttachBrowser(b bridge.Browser)

	// GenerateAll 重建全部应用的接口目录并执行清理
	GenerateAll()

	// NewDispatcher 创建命令分发器
	NewDispatcher(journal bridge.Journal) *bridge.Dispatcher

	// Evals 求值关联表
	Evals() *bridge.EvalRegistry

	// Events 订阅事件
	Events() <-chan model.Event

	// Wait 等待后台批处理结束
	Wait()

	// Session 本进程的会话时间戳
	Session() string

	// Reload 合并其他进程写入的注册信息
	Reload(ctx context.Context) int

	// WatchRegistrations 持续合并注册信息，阻塞到 ctx 结束
	WatchRegistrations(ctx context.Context, interval time.Duration) error
}

var _ Service = (*service.Service)(nil)

// NewService 创建并返回服务接口实现
func NewService(opts service.Options) (Service, error) {
	return service.New(opts)
}
