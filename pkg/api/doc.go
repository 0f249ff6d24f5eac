/*
Package api exposes the control plane's HTTP surface: instance CRUD and
lifecycle verbs, routed with github.com/go-chi/chi/v5 (permissive dev CORS
via github.com/go-chi/cors), plus a Prometheus /metrics endpoint in the
teacher's own pkg/api/health.go style.

Routes:

	GET  /api/health
	GET  /api/instances
	GET  /api/instances/{name}
	POST /api/instances/{name}/start
	POST /api/instances/{name}/stop
	POST /api/instances/{name}/restart
	GET  /api/instances/{name}/logs?lines=N

Error responses are {"error": "<message>"}. This package is the only place
core errors get mapped to HTTP status codes: lifecycle.KindNotFound → 404,
KindAlreadyRunning/KindNotRunning/KindLockHeld → 409, everything else → 500.
The `lines` query parameter is clamped to [1, 10000].
*/
package api
