package store

import "apiharvest/pkg/model"

// ReadSession 读取会话快照，缺失或损坏时返回空快照
func (l *Layout) ReadSession(app string) *model.SessionSnapshot {
	snap := model.NewSessionSnapshot()
	if err := ReadJSON(l.SessionPath(app), snap); err != nil {
		return model.NewSessionSnapshot()
	}
	if snap.Cookies == nil {
		snap.Cookies = make(map[string]string)
	}
	if snap.AuthHeaders == nil {
		snap.AuthHeaders = make(map[string]string)
	}
	if snap.CSRFTokens == nil {
		snap.CSRFTokens = make(map[string]string)
	}
	return snap
}

// WriteSession 整体覆盖会话快照
func (l *Layout) WriteSession(app string, snap *model.SessionSnapshot) error {
	return WriteJSON(l.SessionPath(app), snap)
}
