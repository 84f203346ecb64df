package registry

import (
	"sort"
	"sync"

	"apiharvest/pkg/model"
)

// Registry 域名与应用名的双向关联，并记录当前浏览的应用
// 域名映射与当前应用各自独立加锁
type Registry struct {
	mu      sync.RWMutex
	domains map[string]string
	apps    map[string][]string

	curMu   sync.RWMutex
	current string
}

// New 创建空注册表
func New() *Registry {
	return &Registry{
		domains: make(map[string]string),
		apps:    make(map[string][]string),
	}
}

// Rebuild 由全部注册信息重建；同一域名出现在多个应用时以先出现者为准
func (r *Registry) Rebuild(regs []*model.AppRegistration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains = make(map[string]string)
	r.apps = make(map[string][]string)
	for _, reg := range regs {
		if _, ok := r.apps[reg.Name]; !ok {
			r.apps[reg.Name] = nil
		}
		for _, d := range reg.Domains {
			r.assignLocked(d, reg.Name)
		}
	}
}

// Lookup 查询域名所属应用
func (r *Registry) Lookup(domain string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.domains[domain]
	return app, ok
}

// Assign 将域名关联到应用；已属于其他应用时返回 false
func (r *Registry) Assign(domain, app string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assignLocked(domain, app)
}

func (r *Registry) assignLocked(domain, app string) bool {
	if owner, ok := r.domains[domain]; ok {
		return owner == app
	}
	r.domains[domain] = app
	r.apps[app] = append(r.apps[app], domain)
	return true
}

// Remove 解除域名关联
func (r *Registry) Remove(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.domains[domain]
	if !ok {
		return
	}
	delete(r.domains, domain)
	kept := r.apps[app][:0]
	for _, d := range r.apps[app] {
		if d != domain {
			kept = append(kept, d)
		}
	}
	r.apps[app] = kept
}

// Domains 应用当前关联的域名
func (r *Registry) Domains(app string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.apps[app]...)
}

// Apps 已知应用名（排序）
func (r *Registry) Apps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.apps))
	for name := range r.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetCurrent 设置当前浏览的应用，空串表示无
func (r *Registry) SetCurrent(app string) {
	r.curMu.Lock()
	r.current = app
	r.curMu.Unlock()
}

// Current 当前浏览的应用
func (r *Registry) Current() (string, bool) {
	r.curMu.RLock()
	defer r.curMu.RUnlock()
	return r.current, r.current != ""
}
