// Package config handles configuration loading for aicaller-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension)
// with environment variable expansion, then defaults are applied and the
// result is validated.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${AICALLER_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// Independently of the file, AICALLER_ENV (or NODE_ENV) overrides
// environment, and JWT_SECRET fills auth.jwt_secret when the file leaves
// it empty.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  session_ttl: "24h"
//	  client_user_token_ttl: "720h"
//	background:
//	  job_timeout: "10s"
//
// # Production Rules
//
// With environment set to production, Validate refuses a missing signing
// secret, the built-in default secret, a secret shorter than 32 bytes,
// auth.allow_query_token, and auth.legacy_allow_empty_client_user_password.
// All of these wrap ErrInsecureProductionConfig.
//
// # Example
//
//	environment: production
//	server:
//	  http_addr: "0.0.0.0:5000"
//	  trust_proxy: true
//	database:
//	  driver: mysql
//	  dsn: "${DATABASE_DSN}"
//	auth:
//	  jwt_secret: "${JWT_SECRET}"
//	cors:
//	  allowed_origins: ["https://app.example.com"]
//	metrics:
//	  enabled: true
package config
