// Package http provides HTTP handlers and middleware for the campus events API.
//
// The router exposes the following endpoints:
//   - POST /sessions: signs in. Body: {"email","password"}. The token is returned
//     in the body, the `X-Session-Token` header and a `session_token` cookie.
//   - DELETE /sessions/current: revokes the caller's session and clears the cookie.
//   - POST /users: registers a student. GET /users lists accounts for administrators.
//   - GET /me, GET|PUT|DELETE /users/{id}: account lookup and maintenance.
//   - GET /events, GET /events/trending, GET /events/{id}: public event browsing.
//     POST /events, PUT|DELETE /events/{id} require a session.
//   - PUT|DELETE /events/{id}/rsvp and GET /me/rsvps: attendance. A going RSVP
//     answers with overlap warnings for the caller's other plans.
//   - GET /calendar: month or week grid. GET /calendar.ics: iCalendar feed.
//   - GET|PUT /me/schedule and GET /me/classmates: class schedules.
//   - POST /assist/description and POST /assist/image: the add-event assistant.
//   - GET /health, GET /metrics and GET /files/{bucket}/{key}.
//
// PublicRequest lists which of these are served without a session.
package http
