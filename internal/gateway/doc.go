// Package gateway wires the aicaller-gateway components and serves the HTTP API.
//
// # Overview
//
// New builds every long-lived component from a config.Config: the datastore
// (SQLite or MySQL), the background job queue, Prometheus collectors, the
// session token issuer and validator, and the login pipeline. Run serves the
// chi router until its context is canceled, then drains background jobs and
// closes the store.
//
// # HTTP API
//
//	POST /auth/login                 any principal, admin first
//	POST /auth/client-admin/login    client admins only
//	POST /auth/client-user/login     active client sub-users only
//	POST /auth/logout                clears the session cookies
//	GET  /auth/me                    validated claims of the caller
//	GET  /admin/login-audit          login audit log (super_admin, admin)
//	GET  /health                     liveness
//	GET  /health/ready               datastore ping
//	GET  /metrics                    Prometheus exposition, when enabled
//
// Successful logins answer {success, message, user, token[, expiresIn]} and
// set the auth_token, token and isAuthenticated cookies. Failures answer
// {success:false, message[, error]}; the error field carries a datastore
// cause outside production only. Unknown emails and wrong passwords produce
// byte-identical responses.
//
// # Lifecycle
//
// Serve runs the HTTP server and a shutdown watcher in an errgroup. When the
// context is canceled (or the server fails) Shutdown stops the listener,
// waits for queued credential upgrades and audit writes, and closes the store.
package gateway
