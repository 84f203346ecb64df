package traffic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderLookupIsCaseInsensitive(t *testing.T) {
	h := Header{"Authorization": "Bearer abc", "X-Trace": "1"}

	v, ok := h.Lookup("authorization")
	assert.True(t, ok)
	assert.Equal(t, "Bearer abc", v)
	assert.Equal(t, "", h.Get("cookie"))
	assert.True(t, h.HasAny("x-csrf-token", "AUTHORIZATION"))
	assert.False(t, Header(nil).HasAny("authorization"))
}

func TestParseCookie(t *testing.T) {
	got := ParseCookie(" sid = abc ; theme=dark;broken; token=a=b")
	assert.Equal(t, []Cookie{
		{Name: "sid", Value: "abc"},
		{Name: "theme", Value: "dark"},
		{Name: "token", Value: "a=b"},
	}, got)
}

func TestParseSetCookie(t *testing.T) {
	name, val := ParseSetCookie("sid=xyz; Path=/; HttpOnly")
	assert.Equal(t, "sid", name)
	assert.Equal(t, "xyz", val)

	name, _ = ParseSetCookie("garbage")
	assert.Empty(t, name)
}
