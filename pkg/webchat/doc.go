// Package webchat serves the tutor over HTTP.
//
// Every conversation owns a chatrunner.Runner whose timeline events are
// published on the "chat:<conv_id>" topic. A per-conversation reader fans
// those events out to the attached websocket clients through a
// ConnectionPool.
//
// Routes:
//   - POST /api/chat      submit a message, the reply streams over the websocket
//   - POST /api/reset     start a new session
//   - GET  /api/timeline  current message list
//   - GET  /ws            websocket, first frame is a timeline snapshot
//   - GET  /healthz
//   - GET  /              embedded single-page UI
//
// Conversations without clients are evicted after the idle timeout.
package webchat
