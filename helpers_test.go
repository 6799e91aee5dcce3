package guard_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	guard "github.com/quillworks/go-guard"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var testSchema = []string{
	`CREATE TABLE actions (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE resources (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE resource_permissions (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE roles (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE role_permissions (
		role_id TEXT NOT NULL,
		permission_name TEXT NOT NULL,
		granted BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (role_id, permission_name)
	);`,
	`CREATE TABLE users (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		name TEXT,
		password_hash TEXT,
		enabled BOOLEAN NOT NULL DEFAULT FALSE,
		not_expired BOOLEAN NOT NULL DEFAULT TRUE,
		not_locked BOOLEAN NOT NULL DEFAULT TRUE,
		password_not_expired BOOLEAN NOT NULL DEFAULT FALSE,
		login_attempts INTEGER DEFAULT 0,
		login_attempt_at TIMESTAMP,
		loggedin_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP
	);`,
	`CREATE TABLE user_roles (
		user_id TEXT NOT NULL,
		role_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, role_id)
	);`,
	`CREATE TABLE user_tokens (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		scope TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		creation_date TIMESTAMP NOT NULL,
		expiration_date TIMESTAMP NOT NULL,
		consumed BOOLEAN NOT NULL DEFAULT FALSE,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`,
}

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	for _, stmt := range testSchema {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		_ = sqldb.Close()
	})

	return db
}

func setupRepo(t *testing.T) (*bun.DB, guard.RepositoryManager) {
	t.Helper()
	db := setupDB(t)
	repo := guard.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())
	return db, repo
}

type testUserOpt func(*guard.User)

func disabled() testUserOpt {
	return func(u *guard.User) { u.Enabled = false }
}

func locked() testUserOpt {
	return func(u *guard.User) { u.NotLocked = false }
}

func expired() testUserOpt {
	return func(u *guard.User) { u.NotExpired = false }
}

func passwordExpired() testUserOpt {
	return func(u *guard.User) { u.PasswordNotExpired = false }
}

// insertUser writes a ready-to-authenticate user row directly.
func insertUser(t *testing.T, db *bun.DB, username, email string, opts ...testUserOpt) *guard.User {
	t.Helper()

	user := &guard.User{
		ID:                 uuid.New(),
		Username:           guard.NormalizeUsername(username),
		Email:              guard.NormalizeUsername(email),
		Name:               "Test User",
		PasswordHash:       "plain:secret",
		Enabled:            true,
		NotExpired:         true,
		NotLocked:          true,
		PasswordNotExpired: true,
	}
	for _, opt := range opts {
		opt(user)
	}

	_, err := db.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)

	return user
}

// assignRole links a user to a role by name, creating the role if needed.
func assignRole(t *testing.T, db *bun.DB, userID uuid.UUID, roleName string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	role := &guard.Role{ID: uuid.New(), Name: roleName}
	_, err := db.NewInsert().Model(role).On("CONFLICT (name) DO NOTHING").Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, db.NewSelect().Model(role).Where("?TableAlias.name = ?", roleName).Limit(1).Scan(ctx))

	link := &guard.UserRole{UserID: userID, RoleID: role.ID}
	_, err = db.NewInsert().Model(link).On("CONFLICT DO NOTHING").Exec(ctx)
	require.NoError(t, err)

	return role.ID
}
