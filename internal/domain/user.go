package domain

import "time"

// AuthKind distinguishes locally created accounts from federated principals
// materialized by the identity resolver.
type AuthKind string

const (
	AuthLocal     AuthKind = "local"
	AuthFederated AuthKind = "federated"
)

// User is a local account, possibly mirroring an external principal.
// Users are created lazily by the identity resolver and never deleted.
type User struct {
	ID          string   `json:"id"`
	Login       string   `json:"login"`
	Email       string   `json:"email,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	AuthKind    AuthKind `json:"auth_kind"`
	// ExternalObjectID is the source-side object id (Entra object-id or
	// GitHub login), the preferred lookup key for federated sources.
	ExternalObjectID string    `json:"external_object_id,omitempty"`
	Role             string    `json:"role"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

// UnknownUserLogin is the synthetic principal used when identity resolution
// conflicts and the pipeline must proceed anyway.
const UnknownUserLogin = "unknown"
