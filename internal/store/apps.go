package store

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"apiharvest/pkg/model"
)

var (
	ErrAppNotFound = errors.New("app not found")
	ErrAppExists   = errors.New("app already exists")
)

// ReadApp 读取应用注册信息
func (l *Layout) ReadApp(name string) (*model.AppRegistration, error) {
	reg := &model.AppRegistration{}
	if err := ReadJSON(l.ConfigPath(name), reg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrAppNotFound, name)
		}
		return nil, fmt.Errorf("read app %s: %w", name, err)
	}
	reg.Name = name
	return reg, nil
}

// WriteApp 覆盖写入应用注册信息
func (l *Layout) WriteApp(reg *model.AppRegistration) error {
	if err := ValidateName(reg.Name); err != nil {
		return err
	}
	if reg.Domains == nil {
		reg.Domains = []string{}
	}
	return WriteJSON(l.ConfigPath(reg.Name), reg)
}

// CreateApp 以种子域名创建新应用
func (l *Layout) CreateApp(name, domain string, now time.Time) (*model.AppRegistration, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	l.regMu.Lock()
	defer l.regMu.Unlock()
	if _, err := os.Stat(l.ConfigPath(name)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAppExists, name)
	}
	if err := l.EnsureAppDirs(name); err != nil {
		return nil, err
	}
	reg := &model.AppRegistration{
		Name:    name,
		Domains: []string{domain},
		Created: now.UTC().Format(time.RFC3339),
	}
	if err := l.WriteApp(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// UpdateApp 在同一把锁内读取、修改并写回注册信息；fn 返回 false 时不写盘
func (l *Layout) UpdateApp(name string, fn func(reg *model.AppRegistration) bool) (*model.AppRegistration, error) {
	l.regMu.Lock()
	defer l.regMu.Unlock()
	reg, err := l.ReadApp(name)
	if err != nil {
		return nil, err
	}
	if !fn(reg) {
		return reg, nil
	}
	return reg, l.WriteApp(reg)
}

// AddDomain 追加域名，已存在时返回 false
func (l *Layout) AddDomain(name, domain string) (bool, error) {
	var added bool
	_, err := l.UpdateApp(name, func(reg *model.AppRegistration) bool {
		if slices.Contains(reg.Domains, domain) {
			return false
		}
		reg.Domains = append(reg.Domains, domain)
		added = true
		return true
	})
	return added, err
}

// SetLastSession 记录最近一次会话时间戳
func (l *Layout) SetLastSession(name, session string) error {
	_, err := l.UpdateApp(name, func(reg *model.AppRegistration) bool {
		if reg.LastSession != nil && *reg.LastSession == session {
			return false
		}
		reg.LastSession = &session
		return true
	})
	return err
}

// Registrations 读取所有可解析的注册信息
func (l *Layout) Registrations() []*model.AppRegistration {
	var regs []*model.AppRegistration
	for _, name := range l.ListApps() {
		reg, err := l.ReadApp(name)
		if err != nil {
			continue
		}
		regs = append(regs, reg)
	}
	return regs
}

// AppDetails 应用名与域名列表
func (l *Layout) AppDetails() []model.AppDetail {
	regs := l.Registrations()
	out := make([]model.AppDetail, 0, len(regs))
	for _, reg := range regs {
		out = append(out, model.AppDetail{Name: reg.Name, Domains: reg.Domains})
	}
	return out
}
