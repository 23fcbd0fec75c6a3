package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	dsn := "file:users_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(NewRepository(conn))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestSyncFromClaimsUpserts(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	id := uuid.New()

	created, err := svc.SyncFromClaims(ctx, id, "Staff@School.EDU", "J. Staff", enums.UserRoleMember)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if created.Email != "staff@school.edu" {
		t.Fatalf("email not normalized: %q", created.Email)
	}

	// second sync with a new role updates in place
	updated, err := svc.SyncFromClaims(ctx, id, "staff@school.edu", "J. Staff", enums.UserRoleManager)
	if err != nil {
		t.Fatalf("re-sync: %v", err)
	}
	if updated.Role != enums.UserRoleManager {
		t.Fatalf("role not updated: %s", updated.Role)
	}

	loaded, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Role != enums.UserRoleManager {
		t.Fatalf("stored role %s", loaded.Role)
	}

	list, err := svc.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v (%d entries)", err, len(list))
	}
}

func TestSyncFromClaimsValidation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SyncFromClaims(ctx, uuid.Nil, "a@b.c", "A", enums.UserRoleMember); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.SyncFromClaims(ctx, uuid.New(), " ", "A", enums.UserRoleMember); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.SyncFromClaims(ctx, uuid.New(), "a@b.c", "A", "owner"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	if _, err := svc.Get(context.Background(), uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
