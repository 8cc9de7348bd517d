package extraction

import (
	"encoding/json"
	"fmt"
	"time"
)

const toolName = "extract_event"

// systemPrompt frames the extraction task. The current date is injected so the
// model can resolve relative dates and drop past events itself.
func systemPrompt(now time.Time) string {
	today := now.UTC().Format("2006-01-02")
	return fmt.Sprintf(`You are an Event Intelligence Agent for a high school.

CURRENT DATE: %s
CURRENT YEAR: %d

Decide whether an Instagram post announces an upcoming event, deadline, meeting or
specific opportunity. Use the caption, the account bio and any text visible in the images.

If the post is unrelated to an event, reply with {"status":"NO_EVENT","reason":"irrelevant"}.
If it recaps something that already happened, reply with {"status":"NO_EVENT","reason":"past_event"}.
Otherwise call the %s function.

Rules:
- Events must be on or after %s. Dates without a year are in %d. Resolve relative dates
  such as "next Friday" from the current date. When unsure about a date, leave the event out.
- When different audiences (grades, levels, teams) have different dates or times, emit one
  event per audience and name the audience in each title.
- Titles are at most 8 words. Descriptions are 3-4 sentences naming the audience and
  practical details.
- Use the first relevant link in the caption, then the bio, for the url.
- Pick categories from: event, club, sport, deadline, meeting.
- Produce at least 10 tags mixing specific and broad terms, without '#'.`, today, now.Year(), toolName, today, now.Year())
}

var toolParameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "events": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "start_datetime": {"type": "string", "description": "ISO-8601 start, with offset when known"},
          "end_datetime": {"type": "string"},
          "is_all_day": {"type": "boolean"},
          "location_name": {"type": "string"},
          "address": {"type": "string"},
          "description": {"type": "string"},
          "type": {"type": "string", "enum": ["in-person", "virtual", "hybrid"]},
          "url": {"type": "string"}
        },
        "required": ["name"]
      }
    },
    "categories": {
      "type": ["array", "string"],
      "items": {"type": "object", "properties": {"name": {"type": "string", "enum": ["event", "club", "sport", "deadline", "meeting"]}}}
    },
    "event_tags": {
      "type": "array",
      "items": {"type": "object", "properties": {"tag": {"type": "string"}}}
    }
  },
  "required": ["events"]
}`)
