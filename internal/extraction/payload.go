package extraction

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoPayload = errors.New("extraction: model reply carried no usable JSON")

// payload is the model's answer: either a NO_EVENT status or one or more events.
type payload struct {
	Status     string     `json:"status"`
	Reason     string     `json:"reason"`
	Events     []rawEvent `json:"events"`
	Categories labelList  `json:"categories"`
	Tags       labelList  `json:"event_tags"`

	// Flat single-event replies put the event fields at the top level.
	rawEvent
}

type rawEvent struct {
	Name          string    `json:"name"`
	StartDatetime string    `json:"start_datetime"`
	EndDatetime   string    `json:"end_datetime"`
	IsAllDay      bool      `json:"is_all_day"`
	LocationName  string    `json:"location_name"`
	Address       string    `json:"address"`
	Description   string    `json:"description"`
	Type          string    `json:"type"`
	URL           string    `json:"url"`
	Categories    labelList `json:"categories"`
	Tags          labelList `json:"event_tags"`
}

// labelList accepts a string, a list of strings, or a list of objects with a
// "name" or "tag" field.
type labelList []string

func (l *labelList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			*l = labelList{single}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make(labelList, 0, len(items))
	for _, item := range items {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			out = append(out, text)
			continue
		}
		var obj struct {
			Name string `json:"name"`
			Tag  string `json:"tag"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			if obj.Name != "" {
				out = append(out, obj.Name)
			} else if obj.Tag != "" {
				out = append(out, obj.Tag)
			}
		}
	}
	*l = out
	return nil
}

func (p payload) noEvent() bool {
	return strings.EqualFold(p.Status, "NO_EVENT")
}

// events returns the reply's events with top-level categories and tags
// applied to events that carry none of their own.
func (p payload) events() []rawEvent {
	events := p.Events
	if len(events) == 0 && (p.rawEvent.Name != "" || p.rawEvent.Description != "" || p.rawEvent.StartDatetime != "") {
		events = []rawEvent{p.rawEvent}
	}
	out := make([]rawEvent, len(events))
	for i, event := range events {
		if len(event.Categories) == 0 {
			event.Categories = p.Categories
		}
		if len(event.Tags) == 0 {
			event.Tags = p.Tags
		}
		out[i] = event
	}
	return out
}

func parsePayload(text string) (payload, error) {
	text = stripCodeFence(text)
	if start := strings.IndexByte(text, '{'); start > 0 {
		text = text[start:]
	}
	if end := strings.LastIndexByte(text, '}'); end >= 0 && end < len(text)-1 {
		text = text[:end+1]
	}
	if text == "" {
		return payload{}, errNoPayload
	}
	var p payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return payload{}, errors.Join(errNoPayload, err)
	}
	return p, nil
}

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
