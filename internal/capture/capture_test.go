package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"apiharvest/internal/registry"
	"apiharvest/pkg/model"
	"apiharvest/pkg/traffic"
)

type memStore struct {
	mu    sync.Mutex
	lines map[string][]string
}

func (m *memStore) Append(app, session string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lines == nil {
		m.lines = make(map[string][]string)
	}
	key := app + "/" + session
	m.lines[key] = append(m.lines[key], string(raw))
	return nil
}

type recSessions struct {
	calls []string
}

func (r *recSessions) Update(app, domain string, ev *model.CaptureEvent) {
	r.calls = append(r.calls, app+"@"+domain)
}

type recNotifier struct {
	unknown []string
}

func (n *recNotifier) UnknownDomain(d string)                     { n.unknown = append(n.unknown, d) }
func (n *recNotifier) Captured(app string, ev *model.CaptureEvent) {}

func newTestRouter(reg *registry.Registry) (*Router, *memStore, *recSessions, *recNotifier) {
	st := &memStore{}
	ss := &recSessions{}
	nt := &recNotifier{}
	r := NewRouter(Config{
		Registry: reg,
		Store:    st,
		Sessions: ss,
		Notifier: nt,
		Session:  "s1",
		Now:      func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) },
	})
	return r, st, ss, nt
}

func TestShouldSkip(t *testing.T) {
	assert.True(t, ShouldSkip("https://www.google-analytics.com/collect?x=1"))
	assert.False(t, ShouldSkip("https://api.example.com/v1/users"))
	assert.True(t, ShouldSkip("https://cdn.example.com/static/app.js?v=3"))
	assert.False(t, ShouldSkip("https://api.example.com/v1/files?name=a.png"))
	assert.True(t, ShouldSkip("https://example.com/api/telemetry/batch"))
	assert.True(t, ShouldSkip("::not a url"))
}

func TestAuthEvidence(t *testing.T) {
	known := NewCookieNames()
	h := traffic.Header{"X-Requested-With": "XMLHttpRequest", "Cookie": "sid=1"}
	assert.False(t, HasAuthEvidence(h, known))

	known.Learn("sid")
	assert.True(t, HasAuthEvidence(h, known))
	assert.True(t, HasAuthEvidence(traffic.Header{"Authorization": "Bearer x"}, nil))
}

func TestAdmitDropRules(t *testing.T) {
	reg := registry.New()
	reg.Assign("api.example.com", "ex")
	r, st, _, _ := newTestRouter(reg)

	cases := map[string]string{
		`{"type":"xhr","method":"GET"}`: "no url",
		`{"type":"xhr-start","url":"https://api.example.com/a","requestHeaders":{"authorization":"x"}}`: "superseded",
		`{"type":"xhr","url":"https://www.google-analytics.com/collect","requestHeaders":{"authorization":"x"}}`: "noise",
		`{"type":"fetch","url":"https://api.example.com/v1/me","requestHeaders":{"x-requested-with":"XMLHttpRequest","cookie":"theme=dark"}}`: "no auth evidence",
		`not json`: "malformed",
	}
	for raw, reason := range cases {
		d := r.Admit([]byte(raw))
		assert.Equal(t, model.OutcomeDropped, d.Outcome, raw)
		assert.Equal(t, reason, d.Reason, raw)
	}
	assert.Empty(t, st.lines)
}

func TestAdmitMappedAndMeta(t *testing.T) {
	reg := registry.New()
	reg.Assign("api.example.com", "ex")
	r, st, ss, _ := newTestRouter(reg)

	d := r.Admit([]byte(`{"type":"fetch","url":"https://api.example.com/v1/me","timestamp":"t1","requestHeaders":{"Authorization":"Bearer a"}}`))
	assert.Equal(t, model.OutcomeAdmitted, d.Outcome)
	assert.Equal(t, "ex", d.App)

	d = r.Admit([]byte(`{"type":"navigation","url":"https://api.example.com/home"}`))
	assert.Equal(t, model.OutcomeAdmitted, d.Outcome)

	lines := st.lines["ex/s1"]
	require.Len(t, lines, 2)
	assert.Equal(t, "2026-05-01T00:00:00Z", gjson.Get(lines[1], "timestamp").String())
	assert.Equal(t, []string{"ex@api.example.com", "ex@api.example.com"}, ss.calls)
	assert.EqualValues(t, 2, r.Admitted())
}

func TestAutoRegisterToCurrentApp(t *testing.T) {
	reg := registry.New()
	reg.Assign("app.example.com", "ex")
	reg.SetCurrent("ex")
	r, st, _, nt := newTestRouter(reg)

	var persisted []string
	r.cfg.Persist = func(app, domain string) error {
		persisted = append(persisted, app+":"+domain)
		return nil
	}

	d := r.Admit([]byte(`{"type":"xhr","url":"https://auth.example.net/token","requestHeaders":{"x-csrf-token":"c"}}`))
	assert.Equal(t, model.OutcomeAdmitted, d.Outcome)
	assert.Equal(t, "ex", d.App)
	assert.Equal(t, []string{"ex:auth.example.net"}, persisted)

	app, ok := reg.Lookup("auth.example.net")
	assert.True(t, ok)
	assert.Equal(t, "ex", app)
	assert.Len(t, st.lines["ex/s1"], 1)
	assert.Empty(t, nt.unknown)
}

func TestBufferThenFlushInOrder(t *testing.T) {
	reg := registry.New()
	r, st, ss, nt := newTestRouter(reg)

	first := `{"type":"xhr","url":"https://new.example.org/a","timestamp":"1","requestHeaders":{"authorization":"x"}}`
	second := `{"type":"xhr","url":"https://new.example.org/b","timestamp":"2","requestHeaders":{"authorization":"x"}}`
	assert.Equal(t, model.OutcomeBuffered, r.Admit([]byte(first)).Outcome)
	assert.Equal(t, model.OutcomeBuffered, r.Admit([]byte(second)).Outcome)
	assert.Equal(t, []string{"new.example.org", "new.example.org"}, nt.unknown)
	assert.Equal(t, map[string]int{"new.example.org": 2}, r.Buffered())
	assert.Empty(t, st.lines)

	reg.Assign("new.example.org", "neo")
	assert.Equal(t, 2, r.Flush("new.example.org", "neo"))
	assert.Equal(t, []string{first, second}, st.lines["neo/s1"])
	assert.Len(t, ss.calls, 2)
	assert.Zero(t, r.Flush("new.example.org", "neo"))
}

func TestBatchTriggerEveryN(t *testing.T) {
	reg := registry.New()
	reg.Assign("api.example.com", "ex")
	r, _, _, _ := newTestRouter(reg)
	var fired int
	r.cfg.BatchEvery = 3
	r.cfg.OnBatch = func() { fired++ }

	for i := 0; i < 7; i++ {
		r.Admit([]byte(`{"type":"navigation","url":"https://api.example.com/"}`))
	}
	assert.Equal(t, 2, fired)
}

func TestRegisterDuringAdmissionLeavesNothingBuffered(t *testing.T) {
	reg := registry.New()
	st := &memStore{}
	r := NewRouter(Config{Registry: reg, Store: st, Session: "s1"})
	line := []byte(`{"type":"xhr","url":"https://race.example.org/a","timestamp":"1","requestHeaders":{"authorization":"x"}}`)

	const n = 200
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			r.Admit(line)
		}()
	}
	close(start)
	reg.Assign("race.example.org", "neo")
	r.Flush("race.example.org", "neo")
	wg.Wait()

	assert.Empty(t, r.Buffered())
	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Len(t, st.lines["neo/s1"], n)
}
