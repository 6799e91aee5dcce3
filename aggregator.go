package guard

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// GrantedPermission is one (resource, action) pair reachable through a
// user's roles.
type GrantedPermission struct {
	Resource string `bun:"resource"`
	Action   string `bun:"action"`
}

// GrantReader is the narrow read surface the aggregator needs.
type GrantReader interface {
	GrantedPermissions(ctx context.Context, username string) ([]GrantedPermission, error)
	HasGrant(ctx context.Context, username, resource, action string) (bool, error)
}

// Aggregator computes effective permission sets. It only reads; safe for
// concurrent use.
type Aggregator struct {
	grants GrantReader
	logger Logger
}

func NewAggregator(grants GrantReader) *Aggregator {
	return &Aggregator{
		grants: grants,
		logger: defLogger{},
	}
}

func (a *Aggregator) WithLogger(logger Logger) *Aggregator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// PermissionsForUser returns the union of granted permissions across every
// role assigned to username, grouped by resource. A user with no roles or no
// grants yields an empty map, not an error.
func (a *Aggregator) PermissionsForUser(ctx context.Context, username string) (map[string][]string, error) {
	granted, err := a.grants.GrantedPermissions(ctx, username)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to aggregate user permissions")
	}

	byResource := map[string][]string{}
	seen := map[string]bool{}
	for _, g := range granted {
		key := g.Action + ":" + g.Resource
		if seen[key] {
			continue
		}
		seen[key] = true
		byResource[g.Resource] = append(byResource[g.Resource], g.Action)
	}

	return byResource, nil
}

// HasPermission answers "does username hold action on resource" with a
// direct existence query instead of a full aggregation.
func (a *Aggregator) HasPermission(ctx context.Context, username, resource, action string) (bool, error) {
	ok, err := a.grants.HasGrant(ctx, username, resource, action)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check user permission")
	}
	return ok, nil
}

const grantedPermissionsSQL = `
SELECT DISTINCT rp.resource AS resource, rp.action AS action
FROM resource_permissions AS rp
JOIN role_permissions AS rpj ON rpj.permission_name = rp.name AND rpj.granted = TRUE
JOIN user_roles AS ur ON ur.role_id = rpj.role_id
JOIN users AS usr ON usr.id = ur.user_id
WHERE LOWER(usr.username) = ? AND usr.deleted_at IS NULL`

const hasGrantSQL = grantedPermissionsSQL + ` AND rp.resource = ? AND rp.action = ?`

type grantReader struct {
	db *bun.DB
}

// NewGrantReader returns the bun backed GrantReader used in production.
func NewGrantReader(db *bun.DB) GrantReader {
	return &grantReader{db: db}
}

func (r *grantReader) GrantedPermissions(ctx context.Context, username string) ([]GrantedPermission, error) {
	var rows []GrantedPermission
	err := r.db.NewRaw(grantedPermissionsSQL, NormalizeUsername(username)).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *grantReader) HasGrant(ctx context.Context, username, resource, action string) (bool, error) {
	var rows []GrantedPermission
	err := r.db.NewRaw(hasGrantSQL, NormalizeUsername(username), resource, action).Scan(ctx, &rows)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}
