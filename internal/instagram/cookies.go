package instagram

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

// SessionCookie is the cookie Instagram sets for a signed-in browser.
const SessionCookie = "sessionid"

// ErrNoCookies is returned when a cookies file holds no usable cookie.
var ErrNoCookies = errors.New("instagram: cookies file has no cookies")

// storedCookie matches one entry of a saved browser storage state.
type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// LoadCookies reads a saved browser storage state, either an object with a
// "cookies" array or a bare array, and returns the cookies to install before
// the first navigation. The boolean reports whether a session cookie is
// present.
func LoadCookies(path string) ([]*network.CookieParam, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("instagram: read cookies: %w", err)
	}
	return parseCookies(raw)
}

func parseCookies(raw []byte) ([]*network.CookieParam, bool, error) {
	var stored []storedCookie
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, false, fmt.Errorf("instagram: decode cookies: %w", err)
		}
	} else {
		var state struct {
			Cookies []storedCookie `json:"cookies"`
		}
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, false, fmt.Errorf("instagram: decode cookies: %w", err)
		}
		stored = state.Cookies
	}

	params := make([]*network.CookieParam, 0, len(stored))
	session := false
	for _, c := range stored {
		if c.Name == "" {
			continue
		}
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if param.Domain == "" {
			param.URL = baseURL
		}
		if param.Path == "" {
			param.Path = "/"
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = network.CookieSameSiteStrict
		case "lax":
			param.SameSite = network.CookieSameSiteLax
		case "none":
			param.SameSite = network.CookieSameSiteNone
		}
		// Session cookies are stored with expires -1.
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			expires := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)).UTC())
			param.Expires = &expires
		}
		if c.Name == SessionCookie && c.Value != "" {
			session = true
		}
		params = append(params, param)
	}
	if len(params) == 0 {
		return nil, false, ErrNoCookies
	}
	return params, session, nil
}
