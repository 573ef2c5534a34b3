// Package api provides the HTTP REST API for NanoBook.
//
// Endpoints:
//   - POST   /chat      - answer a question against the indexed corpus
//   - POST   /upload    - upload one or more documents (multipart)
//   - GET    /documents - list stored uploads
//   - DELETE /reset     - clear the vector collection and stored uploads
//   - GET    /health    - liveness probe
//   - GET    /ready     - readiness probe (database connectivity)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery, rate limiting)
//   - health.go: health check endpoints
//   - chat.go: question answering endpoint
//   - upload.go: document ingestion endpoint
//   - documents.go: stored-upload listing endpoint
//   - reset.go: collection reset endpoint
//   - response.go: JSON response helpers
package api
