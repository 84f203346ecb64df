package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"apiharvest/pkg/model"
)

func TestRebuildAndLookup(t *testing.T) {
	r := New()
	r.Rebuild([]*model.AppRegistration{
		{Name: "gmail", Domains: []string{"mail.google.com", "accounts.google.com"}},
		{Name: "drive", Domains: []string{"drive.google.com", "accounts.google.com"}},
		{Name: "empty"},
	})

	app, ok := r.Lookup("accounts.google.com")
	assert.True(t, ok)
	assert.Equal(t, "gmail", app)
	assert.Equal(t, []string{"drive.google.com"}, r.Domains("drive"))
	assert.Equal(t, []string{"drive", "empty", "gmail"}, r.Apps())
}

func TestDomainMapsToOneApp(t *testing.T) {
	r := New()
	assert.True(t, r.Assign("api.x.com", "x"))
	assert.True(t, r.Assign("api.x.com", "x"))
	assert.False(t, r.Assign("api.x.com", "y"))

	r.Remove("api.x.com")
	_, ok := r.Lookup("api.x.com")
	assert.False(t, ok)
	assert.Empty(t, r.Domains("x"))
}

func TestCurrentApp(t *testing.T) {
	r := New()
	_, ok := r.Current()
	assert.False(t, ok)

	r.SetCurrent("slack")
	app, ok := r.Current()
	assert.True(t, ok)
	assert.Equal(t, "slack", app)
}
