package cdp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"apiharvest/pkg/model"
)

func TestEventType(t *testing.T) {
	typ, ok := EventType("XHR")
	assert.True(t, ok)
	assert.Equal(t, model.EventXHR, typ)
	typ, ok = EventType("Fetch")
	assert.True(t, ok)
	assert.Equal(t, model.EventFetch, typ)
	for _, r := range []string{"Document", "Image", "Script", ""} {
		_, ok := EventType(r)
		assert.False(t, ok, r)
	}
}

func TestTrackerBuildsCapture(t *testing.T) {
	tr := NewTracker()
	body := `{"q":1}`
	ok := tr.OnRequest(Request{
		ID:       "1",
		Resource: "Fetch",
		URL:      "https://api.example.com/v1/items",
		Method:   "POST",
		Headers:  []byte(`{"Content-Type":"application/json"}`),
		PostData: &body,
		WallTime: 1767225600.5,
	})
	require.True(t, ok)
	tr.OnRequestExtra("1", []byte(`{":authority":"api.example.com","Cookie":"sid=abc","Authorization":"Bearer t"}`))
	tr.OnResponse("1", 201, []byte(`{"content-type":"application/json"}`))
	tr.OnResponseExtra("1", []byte(`{"set-cookie":"sid=def"}`))
	assert.True(t, tr.Tracked("1"))

	resp := `{"id":7}`
	raw, ok := tr.Finish("1", &resp)
	require.True(t, ok)
	assert.False(t, tr.Tracked("1"))
	assert.Equal(t, 0, tr.Pending())

	ev := gjson.ParseBytes(raw)
	assert.Equal(t, "fetch", ev.Get("type").String())
	assert.Equal(t, "https://api.example.com/v1/items", ev.Get("url").String())
	assert.Equal(t, "POST", ev.Get("method").String())
	assert.Equal(t, "2026-01-01T00:00:00.5Z", ev.Get("timestamp").String())
	assert.Equal(t, "sid=abc", ev.Get("requestHeaders.Cookie").String())
	assert.Equal(t, "Bearer t", ev.Get("requestHeaders.Authorization").String())
	assert.Equal(t, "application/json", ev.Get("requestHeaders.Content-Type").String())
	assert.False(t, ev.Get(`requestHeaders.\:authority`).Exists())
	assert.Equal(t, "sid=def", ev.Get("responseHeaders.set-cookie").String())
	assert.Equal(t, body, ev.Get("requestBody").String())
	assert.Equal(t, resp, ev.Get("responseBody").String())
	assert.Equal(t, int64(201), ev.Get("status").Int())
}

func TestTrackerIgnoresOtherResources(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.OnRequest(Request{ID: "2", Resource: "Image", URL: "https://cdn.example.com/a.png", Method: "GET"}))
	tr.OnResponse("2", 200, nil)
	_, ok := tr.Finish("2", nil)
	assert.False(t, ok)
}

func TestTrackerRedirectKeepsLatestURL(t *testing.T) {
	tr := NewTracker()
	tr.OnRequest(Request{ID: "3", Resource: "XHR", URL: "https://a.example.com/old", Method: "GET"})
	tr.OnRequest(Request{ID: "3", Resource: "XHR", URL: "https://a.example.com/new", Method: "GET"})
	raw, ok := tr.Finish("3", nil)
	require.True(t, ok)
	assert.Equal(t, "https://a.example.com/new", gjson.GetBytes(raw, "url").String())
	assert.False(t, gjson.GetBytes(raw, "responseBody").Exists())
	assert.False(t, gjson.GetBytes(raw, "requestBody").Exists())
}

func TestNavigationRecord(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw, ok := NavigationRecord([]byte(`{"id":"F1","url":"https://mail.example.com/inbox"}`), now)
	require.True(t, ok)
	assert.JSONEq(t, `{"type":"navigation","url":"https://mail.example.com/inbox","timestamp":"2026-01-01T00:00:00Z"}`, string(raw))

	_, ok = NavigationRecord([]byte(`{"id":"F2","parentId":"F1","url":"https://ads.example.net/"}`), now)
	assert.False(t, ok)
	_, ok = NavigationRecord([]byte(`{"id":"F1","url":"about:blank"}`), now)
	assert.False(t, ok)
}

func TestBrowserCookies(t *testing.T) {
	got := BrowserCookies([]byte(`{"cookies":[{"name":"sid","value":"1","domain":".example.com","path":"/","httpOnly":true,"secure":true,"size":4}]}`))
	assert.Equal(t, []model.BrowserCookie{{Name: "sid", Value: "1", Domain: ".example.com", Path: "/", HTTPOnly: true, Secure: true}}, got)
	assert.Empty(t, BrowserCookies([]byte(`{}`)))
}
