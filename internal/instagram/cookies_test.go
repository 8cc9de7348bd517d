package instagram

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

const sampleStorageState = `{
  "cookies": [
    {"name": "csrftoken", "value": "abc", "domain": ".instagram.com", "path": "/", "expires": 1767225600.5, "httpOnly": false, "secure": true, "sameSite": "Lax"},
    {"name": "sessionid", "value": "42%3Axyz", "domain": ".instagram.com", "path": "/", "expires": -1, "httpOnly": true, "secure": true, "sameSite": "None"},
    {"name": "", "value": "dropped"}
  ],
  "origins": []
}`

func writeCookies(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write cookies: %v", err)
	}
	return path
}

func TestLoadCookies(t *testing.T) {
	t.Parallel()

	t.Run("storage state", func(t *testing.T) {
		t.Parallel()

		cookies, signedIn, err := LoadCookies(writeCookies(t, sampleStorageState))
		if err != nil {
			t.Fatalf("LoadCookies returned error: %v", err)
		}
		if !signedIn {
			t.Fatalf("expected the session cookie to be detected")
		}
		if len(cookies) != 2 {
			t.Fatalf("expected 2 cookies, got %d", len(cookies))
		}

		csrf := cookies[0]
		if csrf.Name != "csrftoken" || csrf.Domain != ".instagram.com" || !csrf.Secure || csrf.SameSite != network.CookieSameSiteLax {
			t.Fatalf("unexpected cookie %+v", csrf)
		}
		if csrf.Expires == nil {
			t.Fatalf("expected an expiry for csrftoken")
		}
		want := time.Unix(1767225600, 500_000_000).UTC()
		if got := csrf.Expires.Time(); !got.Equal(want) {
			t.Fatalf("expected expiry %s, got %s", want, got)
		}

		session := cookies[1]
		if session.Expires != nil {
			t.Fatalf("session cookies must not carry an expiry, got %v", session.Expires)
		}
		if !session.HTTPOnly || session.SameSite != network.CookieSameSiteNone {
			t.Fatalf("unexpected session cookie %+v", session)
		}
	})

	t.Run("bare array without a session", func(t *testing.T) {
		t.Parallel()

		cookies, signedIn, err := LoadCookies(writeCookies(t, `[{"name": "mid", "value": "m1"}]`))
		if err != nil {
			t.Fatalf("LoadCookies returned error: %v", err)
		}
		if signedIn {
			t.Fatalf("expected no session cookie")
		}
		if len(cookies) != 1 || cookies[0].URL != baseURL || cookies[0].Path != "/" {
			t.Fatalf("expected domainless cookie to be scoped to the site, got %+v", cookies)
		}
	})

	t.Run("empty state", func(t *testing.T) {
		t.Parallel()

		if _, _, err := LoadCookies(writeCookies(t, `{"cookies": []}`)); !errors.Is(err, ErrNoCookies) {
			t.Fatalf("expected ErrNoCookies, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		if _, _, err := LoadCookies(filepath.Join(t.TempDir(), "absent.json")); err == nil {
			t.Fatalf("expected an error for a missing file")
		}
	})
}
