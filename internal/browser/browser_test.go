package browser

import (
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/gomag/internal/session"
)

func TestCookieParams(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	s := &session.Session{Cookies: []session.Cookie{
		{Name: "auth_token", Value: "abc", Domain: ".x.com", Path: "/", Secure: true, HTTPOnly: true, SameSite: "None", Expires: float64(exp)},
		{Name: "ct0", Value: "csrf", Domain: ".x.com", Path: "/", Expires: -1},
	}}

	params := cookieParams(s)
	require.Len(t, params, 2)
	assert.Equal(t, "auth_token", params[0].Name)
	assert.True(t, params[0].HTTPOnly)
	assert.Equal(t, proto.NetworkCookieSameSiteNone, params[0].SameSite)
	assert.Equal(t, proto.TimeSinceEpoch(exp), params[0].Expires)
	assert.Equal(t, proto.TimeSinceEpoch(0), params[1].Expires)
	assert.Equal(t, proto.NetworkCookieSameSite(""), params[1].SameSite)
}
