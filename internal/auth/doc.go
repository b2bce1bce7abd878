// Package auth provides login and session-token authentication for aicaller-gateway.
//
// # Principals
//
// Three kinds of principal can log in, each from its own table:
//
//   - admin: platform administrators (admin_users)
//   - client: a client company's admin login (clients)
//   - client_user: client sub-users with a role and permission set (client_users)
//
// The combined login looks an email up in that order and acts on the first
// match only. The kind-specific routes restrict the lookup to one table.
//
// # Credentials
//
// Stored passwords are bcrypt hashes (prefix "$2") or legacy plaintext.
// A plaintext match logs the user in and schedules a background job that
// replaces the column with a hash:
//
//	UPDATE clients SET adminPassword = ? WHERE id = ? AND adminPassword = ?
//
// The guard on the old value makes concurrent upgrades harmless. Upgrade
// failures are logged and never fail the login.
//
// A sub-user with no stored password is rejected unless
// auth.legacy_allow_empty_client_user_password is set (refused in production).
//
// # Session Tokens
//
// Tokens are HS256 JWTs signed with auth.jwt_secret:
//
//	issuer, err := auth.NewTokenIssuer(secret)
//	token, claims, err := issuer.Issue(principal)
//
//	validator, err := auth.NewTokenValidator(secret)
//	claims, err := validator.Validate(token)
//
// Admin and client tokens expire after 24 hours. Client sub-user tokens carry
// no expiry unless auth.client_user_token_ttl is set.
//
// # HTTP
//
// HTTPAuthMiddleware reads the token from the Authorization header, then the
// auth_token cookie, then the legacy token cookie, and (development only) the
// token query parameter. RequireRoles gates a route on the role claim.
// CookieBinder writes and clears the three session cookies.
package auth
