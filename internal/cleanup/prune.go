package cleanup

import (
	"slices"

	"apiharvest/internal/capture"
	"apiharvest/internal/logger"
	"apiharvest/internal/store"
	"apiharvest/pkg/model"
	"apiharvest/pkg/traffic"
)

// DomainRemover 域名被裁剪后同步内存映射
type DomainRemover interface {
	Remove(domain string)
}

// Pruner 移除从未出现鉴权流量的域名，种子域名始终保留
type Pruner struct {
	layout  *store.Layout
	known   *capture.CookieNames
	remover DomainRemover
	log     logger.Logger
}

// NewPruner known 与 remover 可为 nil
func NewPruner(layout *store.Layout, known *capture.CookieNames, remover DomainRemover, l logger.Logger) *Pruner {
	if l == nil {
		l = logger.NewNop()
	}
	return &Pruner{layout: layout, known: known, remover: remover, log: l}
}

// Prune 返回被移除的域名
func (p *Pruner) Prune(app string) []string {
	reg, err := p.layout.ReadApp(app)
	if err != nil || len(reg.Domains) <= 1 {
		return nil
	}
	files, err := p.layout.CaptureFiles(app)
	if err != nil {
		return nil
	}

	known := p.knownNames(app)
	authed := map[string]struct{}{reg.Seed(): {}}
	for _, f := range files {
		_ = store.ScanLines(f, func(line []byte) {
			ev, ok := capture.DecodeLine(line)
			if !ok || ev.Type.IsMeta() {
				return
			}
			host := capture.Host(ev.URL)
			if host == "" {
				return
			}
			if capture.HasAuthEvidence(traffic.Header(ev.RequestHeaders), known) {
				authed[host] = struct{}{}
			}
		})
	}

	var stale []string
	for _, d := range reg.Domains {
		if _, ok := authed[d]; !ok {
			stale = append(stale, d)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	// 重新读取后写回，扫描期间新增的域名不受影响
	var removed []string
	_, err = p.layout.UpdateApp(app, func(cur *model.AppRegistration) bool {
		seed := cur.Seed()
		cur.Domains = slices.DeleteFunc(slices.Clone(cur.Domains), func(d string) bool {
			if d == seed || !slices.Contains(stale, d) {
				return false
			}
			removed = append(removed, d)
			return true
		})
		return len(removed) > 0
	})
	if err != nil {
		p.log.Warn("写入应用配置失败", "app", app, "error", err)
		return nil
	}
	if len(removed) == 0 {
		return nil
	}
	if p.remover != nil {
		for _, d := range removed {
			p.remover.Remove(d)
		}
	}
	p.log.Info("已移除无鉴权流量的域名", "app", app, "domains", removed)
	return removed
}

// knownNames 进程内已知 Cookie 名并上会话快照中的 Cookie 名，离线运行时集合为空
func (p *Pruner) knownNames(app string) *capture.CookieNames {
	known := capture.NewCookieNames()
	snap := p.layout.ReadSession(app)
	for name := range snap.Cookies {
		known.Learn(name)
	}
	if p.known != nil {
		known.Merge(p.known)
	}
	return known
}
