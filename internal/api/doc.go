// Package api exposes the HTTP surface: task dispatch and status
// endpoints, the SSE blog generation stream and the WebSocket task
// stream gateway. Handlers translate HTTP concerns into calls on the
// task and service layers and map their errors to safe responses.
package api
