// Package extraction turns scraped Instagram posts into campus events with a
// multimodal chat model.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/calendar"
	"github.com/example/campus-events/internal/llm"
	"github.com/example/campus-events/internal/metrics"
	"github.com/example/campus-events/internal/persistence"
)

// Outcome summarises what happened to one post.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeNoEvent Outcome = "no_event"
	OutcomePast    Outcome = "past"
	OutcomeFailed  Outcome = "failed"
)

const (
	maxImages          = 3
	defaultBatchSize   = 10
	defaultTemperature = 0.1
	defaultMaxTokens   = 1200
)

// ChatClient sends chat-completion requests.
type ChatClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
}

// PostQueue yields posts awaiting extraction.
type PostQueue interface {
	ListUnprocessedPosts(ctx context.Context, limit int) ([]persistence.Post, error)
	MarkPostProcessed(ctx context.Context, id string) error
}

// ProfileReader loads the account a post belongs to.
type ProfileReader interface {
	GetProfile(ctx context.Context, id string) (persistence.Profile, error)
}

// ObjectReader loads stored captions and images.
type ObjectReader interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// EventCreator stores extracted events.
type EventCreator interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (application.Event, error)
}

// Result reports the outcome for one post.
type Result struct {
	PostID    string
	Shortcode string
	Username  string
	Outcome   Outcome
	EventIDs  []string
	Err       error
}

// Extractor runs extraction batches.
type Extractor struct {
	chat     ChatClient
	posts    PostQueue
	profiles ProfileReader
	objects  ObjectReader
	events   EventCreator
	now      func() time.Time
	logger   *slog.Logger

	temperature float64
	maxTokens   int
}

// New wires an extractor. now defaults to time.Now.
func New(chat ChatClient, posts PostQueue, profiles ProfileReader, objects ObjectReader, events EventCreator, now func() time.Time, logger *slog.Logger) *Extractor {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		chat:        chat,
		posts:       posts,
		profiles:    profiles,
		objects:     objects,
		events:      events,
		now:         now,
		logger:      logger,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
}

// SetSampling overrides the model temperature and reply token limit.
// Non-positive maxTokens keeps the current limit.
func (x *Extractor) SetSampling(temperature float64, maxTokens int) {
	if temperature >= 0 {
		x.temperature = temperature
	}
	if maxTokens > 0 {
		x.maxTokens = maxTokens
	}
}

// RunBatch processes up to n unprocessed posts, oldest first. Posts that fail
// with an upstream or storage error stay unprocessed for the next batch. The
// batch stops early once the model's daily request cap is reached.
func (x *Extractor) RunBatch(ctx context.Context, n int) ([]Result, error) {
	if n <= 0 {
		n = defaultBatchSize
	}
	posts, err := x.posts.ListUnprocessedPosts(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed posts: %w", err)
	}
	x.logger.InfoContext(ctx, "extraction batch started", "posts", len(posts))

	results := make([]Result, 0, len(posts))
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result := x.processPost(ctx, post)
		metrics.IncExtraction(string(result.Outcome))

		logger := x.logger.With("post_id", post.ID, "shortcode", post.Shortcode, "outcome", result.Outcome)
		if result.Outcome == OutcomeFailed {
			logger.WarnContext(ctx, "post extraction failed", "error", result.Err)
			if errors.Is(result.Err, llm.ErrDailyLimit) {
				results = append(results, result)
				x.logger.WarnContext(ctx, "daily model quota reached, stopping batch", "remaining", len(posts)-len(results))
				break
			}
		} else {
			if err := x.posts.MarkPostProcessed(ctx, post.ID); err != nil {
				result.Err = fmt.Errorf("mark processed: %w", err)
				logger.ErrorContext(ctx, "failed to mark post processed", "error", err)
			}
			logger.InfoContext(ctx, "post extracted", "events", len(result.EventIDs))
		}
		results = append(results, result)
	}
	return results, nil
}

func (x *Extractor) processPost(ctx context.Context, post persistence.Post) Result {
	result := Result{PostID: post.ID, Shortcode: post.Shortcode}
	fail := func(err error) Result {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}

	profile, err := x.profiles.GetProfile(ctx, post.ProfileID)
	if err != nil {
		return fail(fmt.Errorf("load profile: %w", err))
	}
	result.Username = profile.Username

	caption, err := x.loadObject(ctx, post.CaptionPath)
	if err != nil && !errors.Is(err, errNoObject) {
		x.logger.WarnContext(ctx, "caption unavailable", "post_id", post.ID, "error", err)
	}
	images := x.loadImages(ctx, post)

	now := x.now()
	req := buildRequest(now, string(caption), profile, images)
	req.Temperature = x.temperature
	req.MaxTokens = x.maxTokens
	reply, err := x.chat.Chat(ctx, req)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", application.ErrUpstream, err))
	}
	parsed, err := replyPayload(reply)
	if err != nil {
		return fail(err)
	}
	if parsed.noEvent() {
		result.Outcome = OutcomeNoEvent
		if strings.EqualFold(parsed.Reason, "past_event") {
			result.Outcome = OutcomePast
		}
		return result
	}

	past := 0
	for _, raw := range parsed.events() {
		input, verdict := validateEvent(raw, now)
		switch verdict {
		case verdictPast:
			past++
			continue
		case verdictInvalid:
			x.logger.DebugContext(ctx, "skipping event without name or description", "post_id", post.ID)
			continue
		}
		input.OrganizerID = post.ProfileID
		input.PostID = post.ID

		event, err := x.events.CreateEvent(ctx, application.CreateEventParams{Principal: application.SystemPrincipal, Input: input})
		if err != nil {
			var vErr *application.ValidationError
			if errors.As(err, &vErr) {
				x.logger.WarnContext(ctx, "extracted event rejected", "post_id", post.ID, "error", err)
				continue
			}
			return fail(fmt.Errorf("create event: %w", err))
		}
		result.EventIDs = append(result.EventIDs, event.ID)
	}

	switch {
	case len(result.EventIDs) > 0:
		result.Outcome = OutcomeCreated
	case past > 0:
		result.Outcome = OutcomePast
	default:
		result.Outcome = OutcomeNoEvent
	}
	return result
}

var errNoObject = errors.New("extraction: no object path")

func (x *Extractor) loadObject(ctx context.Context, objectPath string) ([]byte, error) {
	bucket, key, ok := splitObjectPath(objectPath)
	if !ok {
		return nil, errNoObject
	}
	return x.objects.Get(ctx, bucket, key)
}

// loadImages fetches up to maxImages images concurrently, keeping their order.
// Images that cannot be read are dropped.
func (x *Extractor) loadImages(ctx context.Context, post persistence.Post) [][]byte {
	paths := post.ImagePaths
	if len(paths) > maxImages {
		paths = paths[:maxImages]
	}
	loaded := make([][]byte, len(paths))
	var g errgroup.Group
	for i, objectPath := range paths {
		g.Go(func() error {
			data, err := x.loadObject(ctx, objectPath)
			if err != nil {
				x.logger.WarnContext(ctx, "image unavailable", "post_id", post.ID, "path", objectPath, "error", err)
				return nil
			}
			loaded[i] = data
			return nil
		})
	}
	_ = g.Wait()

	out := make([][]byte, 0, len(loaded))
	for _, data := range loaded {
		if len(data) > 0 {
			out = append(out, data)
		}
	}
	return out
}

func buildRequest(now time.Time, caption string, profile persistence.Profile, images [][]byte) llm.ChatRequest {
	var parts []llm.ContentPart
	if caption = strings.TrimSpace(caption); caption != "" {
		parts = append(parts, llm.TextPart("Post Caption: "+caption))
	}
	if bio := strings.TrimSpace(profile.Bio); bio != "" {
		parts = append(parts, llm.TextPart("User Bio: "+bio))
	}
	parts = append(parts, llm.TextPart("Username: "+profile.Username))
	for _, image := range images {
		parts = append(parts, llm.ImagePart("image/jpeg", image))
	}

	return llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt(now)},
			{Role: llm.RoleUser, Content: parts},
		},
		Tools: []llm.Tool{{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        toolName,
				Description: "Extract event details from an Instagram post. Only call this when the post announces an upcoming event.",
				Parameters:  toolParameters,
			},
		}},
		ToolChoice: "auto",
	}
}

// replyPayload reads tool-call arguments first and falls back to the message
// content, which is where NO_EVENT replies land.
func replyPayload(resp llm.ChatResponse) (payload, error) {
	if len(resp.Choices) == 0 {
		return payload{}, errNoPayload
	}
	message := resp.Choices[0].Message
	for _, call := range message.ToolCalls {
		if call.Function.Name == toolName || call.Function.Name == "" {
			return parsePayload(call.Function.Arguments)
		}
	}
	return parsePayload(message.Content)
}

type verdict int

const (
	verdictOK verdict = iota
	verdictPast
	verdictInvalid
)

// validateEvent converts a raw event into service input. Timed events that
// already started and all-day events dated before today are past.
func validateEvent(raw rawEvent, now time.Time) (application.EventInput, verdict) {
	name := strings.TrimSpace(raw.Name)
	description := strings.TrimSpace(raw.Description)

	start := toUTC(calendar.ParseTimestamp(raw.StartDatetime))
	end := toUTC(calendar.ParseTimestamp(raw.EndDatetime))
	if start == nil {
		end = nil
	} else if end != nil && end.Before(*start) {
		end = start
	}

	if start != nil {
		nowUTC := now.UTC()
		if raw.IsAllDay {
			if calendar.KeyOf(*start).Before(calendar.KeyOf(nowUTC)) {
				return application.EventInput{}, verdictPast
			}
		} else if start.Before(nowUTC) {
			return application.EventInput{}, verdictPast
		}
	}
	if name == "" && description == "" {
		return application.EventInput{}, verdictInvalid
	}

	return application.EventInput{
		Name:         name,
		Description:  description,
		Start:        start,
		End:          end,
		AllDay:       raw.IsAllDay,
		LocationName: strings.TrimSpace(raw.LocationName),
		Address:      strings.TrimSpace(raw.Address),
		URL:          cleanURL(raw.URL),
		Type:         string(application.NormalizeEventType(raw.Type)),
		Categories:   application.NormalizeCategories(raw.Categories),
		Tags:         application.NormalizeTags(raw.Tags),
	}, verdictOK
}

func toUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// cleanURL drops links the event service would reject.
func cleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ""
	}
	return parsed.String()
}

func splitObjectPath(objectPath string) (string, string, bool) {
	objectPath = strings.Trim(path.Clean("/"+strings.TrimSpace(objectPath)), "/")
	bucket, key, ok := strings.Cut(objectPath, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
