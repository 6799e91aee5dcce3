package guard

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Catalog scopes for single use tokens.
const (
	ScopePasswordReset  = "password_reset"
	ScopeUserRegistered = "user_registered"
)

// Action is an upper case verb of the permission catalog. Immutable once a
// permission references it.
type Action struct {
	bun.BaseModel `bun:"table:actions,alias:act"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull,unique" json:"name,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Resource is an upper case noun of the permission catalog.
type Resource struct {
	bun.BaseModel `bun:"table:resources,alias:res"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull,unique" json:"name,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// ResourcePermission is the cross product entry of (action, resource). Its
// derived name is "ACTION:RESOURCE" and is never mutated once created.
type ResourcePermission struct {
	bun.BaseModel `bun:"table:resource_permissions,alias:rp"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull,unique" json:"name,omitempty"`
	Action        string     `bun:"action,notnull" json:"action,omitempty"`
	Resource      string     `bun:"resource,notnull" json:"resource,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// PermissionName derives the canonical "ACTION:RESOURCE" permission name.
func PermissionName(action, resource string) string {
	return strings.ToUpper(action) + ":" + strings.ToUpper(resource)
}

// Role groups permission grants. Users reference roles through the
// user_roles join, never the other way around.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID         `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string            `bun:"name,notnull,unique" json:"name,omitempty"`
	Description   string            `bun:"description" json:"description,omitempty"`
	Grants        []*RolePermission `bun:"rel:has-many,join:id=role_id" json:"grants,omitempty"`
	CreatedAt     *time.Time        `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time        `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// RolePermission links a role to a permission with an explicit granted flag.
// Only granted links contribute to aggregation; granted=false behaves as
// absent so a future explicit deny does not change the contract.
type RolePermission struct {
	bun.BaseModel  `bun:"table:role_permissions,alias:rpj"`
	RoleID         uuid.UUID  `bun:"role_id,pk,type:uuid" json:"role_id,omitempty"`
	PermissionName string     `bun:"permission_name,pk" json:"permission_name,omitempty"`
	Granted        bool       `bun:"granted,notnull" json:"granted"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// UserRole assigns a role to a user.
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`
	UserID        uuid.UUID  `bun:"user_id,pk,type:uuid" json:"user_id,omitempty"`
	RoleID        uuid.UUID  `bun:"role_id,pk,type:uuid" json:"role_id,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// User is the user model. Username comparison is case insensitive; the
// column stores the lower cased form.
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username           string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email              string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Name               string     `bun:"name" json:"name,omitempty"`
	PasswordHash       string     `bun:"password_hash" json:"password_hash,omitempty"`
	Enabled            bool       `bun:"enabled,notnull" json:"enabled"`
	NotExpired         bool       `bun:"not_expired,notnull" json:"not_expired"`
	NotLocked          bool       `bun:"not_locked,notnull" json:"not_locked"`
	PasswordNotExpired bool       `bun:"password_not_expired,notnull" json:"password_not_expired"`
	LoginAttempts      int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt     *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt         *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt          *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// NormalizeUsername lower-cases and trims an identifier for comparison.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// UserToken is a scoped single use token row. Lifecycle is owned by the
// TokenStore; no other component mutates these rows.
type UserToken struct {
	bun.BaseModel  `bun:"table:user_tokens,alias:utk"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string     `bun:"username,notnull" json:"username,omitempty"`
	Scope          string     `bun:"scope,notnull" json:"scope,omitempty"`
	Token          string     `bun:"token,notnull,unique" json:"token,omitempty"`
	CreationDate   time.Time  `bun:"creation_date,notnull" json:"creation_date,omitempty"`
	ExpirationDate time.Time  `bun:"expiration_date,notnull" json:"expiration_date,omitempty"`
	Consumed       bool       `bun:"consumed,notnull" json:"consumed"`
	Revoked        bool       `bun:"revoked,notnull" json:"revoked"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Active reports whether the token is still in its non terminal state.
// Expiry is a derived condition checked against the clock, not stored.
func (t *UserToken) Active(now time.Time) bool {
	return !t.Consumed && !t.Revoked && t.ExpirationDate.After(now)
}
