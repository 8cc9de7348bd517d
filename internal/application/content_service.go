package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// EventImagesBucket holds generated cover images.
const EventImagesBucket = "event_images"

const describeSystemPrompt = `You help high school students announce campus events.
Reply with a JSON object {"name": string, "description": string}.
The name is at most 60 characters. The description is two to four friendly sentences
that mention when and where the event happens if known. Do not invent details.`

// TextGenerator produces a chat completion for a system and user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ImageGenerator produces image bytes from a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// ObjectStore persists binary objects under a bucket and key.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
}

// ContentService drafts event text and cover images for organizers.
type ContentService struct {
	text        TextGenerator
	images      ImageGenerator
	store       ObjectStore
	idGenerator func() string
	logger      *slog.Logger
}

// NewContentService wires dependencies for the add-event assistant.
func NewContentService(text TextGenerator, images ImageGenerator, store ObjectStore, idGenerator func() string) *ContentService {
	return NewContentServiceWithLogger(text, images, store, idGenerator, nil)
}

// NewContentServiceWithLogger wires dependencies with a specific logger.
func NewContentServiceWithLogger(text TextGenerator, images ImageGenerator, store ObjectStore, idGenerator func() string, logger *slog.Logger) *ContentService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	return &ContentService{text: text, images: images, store: store, idGenerator: idGenerator, logger: defaultLogger(logger)}
}

// DescribeEvent asks the chat model for a title and description.
func (s *ContentService) DescribeEvent(ctx context.Context, params DescribeEventParams) (draft EventDraft, err error) {
	if s == nil {
		return EventDraft{}, fmt.Errorf("ContentService is nil")
	}
	if s.text == nil {
		return EventDraft{}, fmt.Errorf("text generator not configured")
	}

	logger := serviceLogger(ctx, s.logger, "ContentService", "DescribeEvent", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "description draft failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if params.Principal.UserID == "" && !params.Principal.IsAdmin {
		return EventDraft{}, ErrUnauthorized
	}
	name := strings.TrimSpace(params.Name)
	notes := strings.TrimSpace(params.Notes)
	if name == "" && notes == "" {
		return EventDraft{}, fieldError("notes", "name or notes are required")
	}

	var prompt strings.Builder
	if name != "" {
		fmt.Fprintf(&prompt, "Event name: %s\n", name)
	}
	if params.Start != nil {
		fmt.Fprintf(&prompt, "Starts: %s\n", params.Start.Format(time.RFC1123))
	}
	if location := strings.TrimSpace(params.LocationName); location != "" {
		fmt.Fprintf(&prompt, "Location: %s\n", location)
	}
	if notes != "" {
		fmt.Fprintf(&prompt, "Organizer notes: %s\n", notes)
	}

	reply, err := s.text.Generate(ctx, describeSystemPrompt, prompt.String())
	if err != nil {
		return EventDraft{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	var parsed EventDraft
	if jsonErr := json.Unmarshal([]byte(stripCodeFence(reply)), &parsed); jsonErr != nil {
		parsed = EventDraft{Description: strings.TrimSpace(reply)}
	}
	draft = EventDraft{Name: strings.TrimSpace(parsed.Name), Description: strings.TrimSpace(parsed.Description)}
	if draft.Name == "" {
		draft.Name = name
	}
	if draft.Description == "" {
		return EventDraft{}, fmt.Errorf("%w: empty description", ErrUpstream)
	}
	return draft, nil
}

// GenerateImage asks the image model for a cover image and stores it in the
// event images bucket.
func (s *ContentService) GenerateImage(ctx context.Context, params GenerateImageParams) (image GeneratedImage, err error) {
	if s == nil {
		return GeneratedImage{}, fmt.Errorf("ContentService is nil")
	}
	if s.images == nil || s.store == nil {
		return GeneratedImage{}, fmt.Errorf("image generation not configured")
	}

	logger := serviceLogger(ctx, s.logger, "ContentService", "GenerateImage", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "image generation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "cover image stored", "key", image.Key)
	}()

	if params.Principal.UserID == "" && !params.Principal.IsAdmin {
		return GeneratedImage{}, ErrUnauthorized
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return GeneratedImage{}, fieldError("name", "name is required")
	}

	prompt := fmt.Sprintf("A bright, friendly poster-style illustration for a high school event called %q. No text or lettering.", name)
	if description := strings.TrimSpace(params.Description); description != "" {
		prompt += " Event details: " + description
	}

	data, err := s.images.GenerateImage(ctx, prompt)
	if err != nil {
		return GeneratedImage{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(data) == 0 {
		return GeneratedImage{}, fmt.Errorf("%w: empty image", ErrUpstream)
	}

	key := s.idGenerator() + ".png"
	path, err := s.store.Put(ctx, EventImagesBucket, key, data, "image/png")
	if err != nil {
		return GeneratedImage{}, fmt.Errorf("store image: %w", err)
	}
	return GeneratedImage{Bucket: EventImagesBucket, Key: key, Path: path}, nil
}

// stripCodeFence removes a surrounding ``` block that chat models often add.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		trimmed = trimmed[newline+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(trimmed), "```"))
}
