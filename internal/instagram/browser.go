package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultAppID          = "936619743392459"
	defaultBrowserTimeout = 45 * time.Second
	profileMemoTTL        = 2 * time.Minute
	baseURL               = "https://www.instagram.com/"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._]{1,30}$`)

// BrowserConfig configures the headless Chromium session.
type BrowserConfig struct {
	// ExecPath points at a Chromium binary. Empty uses chromedp's lookup.
	ExecPath  string
	UserAgent string
	// AppID is sent as X-IG-App-ID with the profile query.
	AppID   string
	Timeout time.Duration
	Headful bool
	// CookiesFile is a saved browser storage state installed into every tab
	// so queries run as a signed-in account. Empty crawls anonymously.
	CookiesFile string
}

// BrowserScraper loads public profile data through headless Chromium. The
// profile page is opened first so the JSON query runs with the site's
// cookies and origin.
type BrowserScraper struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	cfg      BrowserConfig
	memo     *expirable.LRU[string, webUser]
	cookies  []*network.CookieParam
	logger   *slog.Logger
}

// NewBrowserScraper starts a Chromium allocator. Close releases it.
func NewBrowserScraper(ctx context.Context, cfg BrowserConfig, logger *slog.Logger) *BrowserScraper {
	if cfg.AppID == "" {
		cfg.AppID = defaultAppID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultBrowserTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !cfg.Headful),
		chromedp.WindowSize(1280, 900),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)

	return &BrowserScraper{
		allocCtx: allocCtx,
		cancel:   cancel,
		cfg:      cfg,
		memo:     expirable.NewLRU[string, webUser](64, nil, profileMemoTTL),
		cookies:  sessionCookies(cfg.CookiesFile, logger),
		logger:   logger,
	}
}

// sessionCookies loads the configured cookies file. A missing or broken file
// is logged and the crawl continues anonymously.
func sessionCookies(path string, logger *slog.Logger) []*network.CookieParam {
	if path == "" {
		return nil
	}
	cookies, signedIn, err := LoadCookies(path)
	if err != nil {
		logger.Error("crawling without saved cookies", "path", path, "error", err)
		return nil
	}
	if !signedIn {
		logger.Warn("saved cookies carry no session cookie; crawl may hit the login wall", "path", path)
	}
	logger.Info("loaded saved cookies", "path", path, "count", len(cookies))
	return cookies
}

// Close shuts the browser down.
func (b *BrowserScraper) Close() {
	if b != nil && b.cancel != nil {
		b.cancel()
	}
}

// FetchProfile returns the account's public profile fields.
func (b *BrowserScraper) FetchProfile(ctx context.Context, username string) (ProfileInfo, error) {
	user, err := b.load(ctx, username)
	if err != nil {
		return ProfileInfo{}, err
	}
	return user.profile(), nil
}

// ListPosts returns the posts visible on the account's first timeline page.
func (b *BrowserScraper) ListPosts(ctx context.Context, username string) ([]PostInfo, error) {
	user, err := b.load(ctx, username)
	if err != nil {
		return nil, err
	}
	return user.posts(), nil
}

type fetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

func (b *BrowserScraper) load(ctx context.Context, username string) (webUser, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !usernamePattern.MatchString(username) {
		return webUser{}, fmt.Errorf("instagram: invalid username %q", username)
	}
	key := strings.ToLower(username)
	if user, ok := b.memo.Get(key); ok {
		return user, nil
	}

	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.cfg.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	script, err := profileScript(username, b.cfg.AppID)
	if err != nil {
		return webUser{}, err
	}

	var res fetchResult
	actions := make([]chromedp.Action, 0, 4)
	if len(b.cookies) > 0 {
		actions = append(actions, network.SetCookies(b.cookies))
	}
	actions = append(actions,
		chromedp.Navigate(baseURL+username+"/"),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	err = chromedp.Run(tabCtx, actions...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return webUser{}, ctxErr
		}
		return webUser{}, fmt.Errorf("instagram: browser run for %s: %w", username, err)
	}
	b.logger.DebugContext(ctx, "profile query finished", "username", username, "status", res.Status)

	user, err := decodeProfile(res.Status, []byte(res.Body))
	if err != nil {
		return webUser{}, err
	}
	b.memo.Add(key, user)
	return user, nil
}

func profileScript(username, appID string) (string, error) {
	target, err := json.Marshal("/api/v1/users/web_profile_info/?username=" + username)
	if err != nil {
		return "", err
	}
	id, err := json.Marshal(appID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(async () => {
  const res = await fetch(%s, {headers: {"X-IG-App-ID": %s}, credentials: "include"});
  return {status: res.status, body: await res.text()};
})()`, target, id), nil
}

type webProfileResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		User *webUser `json:"user"`
	} `json:"data"`
}

type webUser struct {
	Username        string `json:"username"`
	FullName        string `json:"full_name"`
	Biography       string `json:"biography"`
	IsVerified      bool   `json:"is_verified"`
	IsPrivate       bool   `json:"is_private"`
	ProfilePicURL   string `json:"profile_pic_url"`
	ProfilePicURLHD string `json:"profile_pic_url_hd"`
	FollowedBy      struct {
		Count int `json:"count"`
	} `json:"edge_followed_by"`
	Timeline struct {
		Count int `json:"count"`
		Edges []struct {
			Node mediaNode `json:"node"`
		} `json:"edges"`
	} `json:"edge_owner_to_timeline_media"`
}

type mediaNode struct {
	Shortcode  string `json:"shortcode"`
	TakenAt    int64  `json:"taken_at_timestamp"`
	IsVideo    bool   `json:"is_video"`
	DisplayURL string `json:"display_url"`
	Caption    struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
	Children *struct {
		Edges []struct {
			Node struct {
				IsVideo    bool   `json:"is_video"`
				DisplayURL string `json:"display_url"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

func decodeProfile(status int, body []byte) (webUser, error) {
	switch {
	case status == http.StatusTooManyRequests:
		return webUser{}, ErrRateLimited
	case status == http.StatusNotFound:
		return webUser{}, ErrProfileNotFound
	}

	var resp webProfileResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if status != http.StatusOK {
			return webUser{}, fmt.Errorf("instagram: profile query status %d", status)
		}
		return webUser{}, fmt.Errorf("instagram: decode profile: %w", err)
	}
	if strings.Contains(strings.ToLower(resp.Message), "wait a few minutes") {
		return webUser{}, ErrRateLimited
	}
	if status != http.StatusOK {
		return webUser{}, fmt.Errorf("instagram: profile query status %d: %s", status, resp.Message)
	}
	if resp.Data.User == nil {
		return webUser{}, ErrProfileNotFound
	}
	return *resp.Data.User, nil
}

func (u webUser) profile() ProfileInfo {
	pic := u.ProfilePicURLHD
	if pic == "" {
		pic = u.ProfilePicURL
	}
	return ProfileInfo{
		Username:      u.Username,
		FullName:      u.FullName,
		Bio:           u.Biography,
		Followers:     u.FollowedBy.Count,
		IsVerified:    u.IsVerified,
		IsPrivate:     u.IsPrivate,
		MediaCount:    u.Timeline.Count,
		ProfilePicURL: pic,
	}
}

func (u webUser) posts() []PostInfo {
	posts := make([]PostInfo, 0, len(u.Timeline.Edges))
	for _, edge := range u.Timeline.Edges {
		node := edge.Node
		post := PostInfo{
			Shortcode: node.Shortcode,
			PostedAt:  time.Unix(node.TakenAt, 0).UTC(),
		}
		if len(node.Caption.Edges) > 0 {
			post.Caption = node.Caption.Edges[0].Node.Text
		}
		switch {
		case node.Children != nil:
			for _, child := range node.Children.Edges {
				if !child.Node.IsVideo && child.Node.DisplayURL != "" {
					post.ImageURLs = append(post.ImageURLs, child.Node.DisplayURL)
				}
			}
		case !node.IsVideo && node.DisplayURL != "":
			post.ImageURLs = []string{node.DisplayURL}
		}
		posts = append(posts, post)
	}
	return posts
}
