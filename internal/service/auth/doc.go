// Package auth issues and validates the HMAC-signed JWT access tokens that
// guard the HTTP API. A token carries a role: user tokens act on the
// holder's own workspaces, admin tokens operate the orchestrator.
package auth
