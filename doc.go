// Package ripple is the module root for the Ripple real-time relay
// server. The implementation is organized into subpackages:
//
//   - internal/relay: WebSocket hub, connection gate, rooms, event router
//   - internal/identity: Credential verification against the user store
//   - internal/store: Message and notification persistence
//   - internal/models: Data models and database schemas
//   - internal/cache: Redis presence mirror
//   - internal/database: Database connection and migrations
//   - internal/middleware: HTTP middleware (request ids, logging)
//   - internal/relayerr: Error taxonomy shared by gate and router
//   - internal/metrics: Prometheus collectors
//   - internal/logger: Structured logging setup
//   - internal/config: Environment configuration
//
// See the individual package documentation for detailed reference.
package ripple
