package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/pkg/db"
	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
)

// Service manages categories and areas. Deletion is blocked while items
// still reference the record.
type Service interface {
	CreateCategory(ctx context.Context, input UpsertInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, input UpsertInput) (*models.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	ListCategories(ctx context.Context) ([]models.Category, error)

	CreateArea(ctx context.Context, input UpsertInput) (*models.Area, error)
	UpdateArea(ctx context.Context, id uuid.UUID, input UpsertInput) (*models.Area, error)
	DeleteArea(ctx context.Context, id uuid.UUID) error
	ListAreas(ctx context.Context) ([]models.Area, error)
}

// UpsertInput covers both create and update for categories and areas.
type UpsertInput struct {
	Name        string
	Description *string
}

type service struct {
	repo Repository
	txr  db.TxRunner
}

// NewService wires a catalog service with the provided repository. A nil
// runner degrades the delete paths to autocommit.
func NewService(repo Repository, txr db.TxRunner) (Service, error) {
	if repo == nil {
		return nil, errors.New("catalog repository required")
	}
	if txr == nil {
		txr = db.NopTxRunner{}
	}
	return &service{repo: repo, txr: txr}, nil
}

func (s *service) CreateCategory(ctx context.Context, input UpsertInput) (*models.Category, error) {
	name, err := validateName(input.Name)
	if err != nil {
		return nil, err
	}

	category := &models.Category{Name: name, Description: input.Description}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "category %q already exists", name)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating category")
	}
	return category, nil
}

func (s *service) UpdateCategory(ctx context.Context, id uuid.UUID, input UpsertInput) (*models.Category, error) {
	name, err := validateName(input.Name)
	if err != nil {
		return nil, err
	}

	category, err := s.repo.FindCategoryByID(ctx, id)
	if err != nil {
		return nil, notFoundOrDependency(err, "category")
	}
	category.Name = name
	category.Description = input.Description

	if err := s.repo.SaveCategory(ctx, category); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "category %q already exists", name)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating category")
	}
	return category, nil
}

// DeleteCategory checks the reference count and deletes in one transaction
// so an item assigned concurrently cannot lose its category.
func (s *service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindCategoryByID(ctx, id); err != nil {
		return notFoundOrDependency(err, "category")
	}

	err := s.txr.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.CountItemsInCategory(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting category items")
		}
		if count > 0 {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "category is referenced by %d items", count)
		}
		return repo.DeleteCategory(ctx, id)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting category")
	}
	return nil
}

func (s *service) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *service) CreateArea(ctx context.Context, input UpsertInput) (*models.Area, error) {
	name, err := validateName(input.Name)
	if err != nil {
		return nil, err
	}

	area := &models.Area{Name: name, Description: input.Description}
	if err := s.repo.CreateArea(ctx, area); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "area %q already exists", name)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating area")
	}
	return area, nil
}

func (s *service) UpdateArea(ctx context.Context, id uuid.UUID, input UpsertInput) (*models.Area, error) {
	name, err := validateName(input.Name)
	if err != nil {
		return nil, err
	}

	area, err := s.repo.FindAreaByID(ctx, id)
	if err != nil {
		return nil, notFoundOrDependency(err, "area")
	}
	area.Name = name
	area.Description = input.Description

	if err := s.repo.SaveArea(ctx, area); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "area %q already exists", name)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating area")
	}
	return area, nil
}

func (s *service) DeleteArea(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindAreaByID(ctx, id); err != nil {
		return notFoundOrDependency(err, "area")
	}

	err := s.txr.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.CountItemsInArea(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting area items")
		}
		if count > 0 {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "area is referenced by %d items", count)
		}
		return repo.DeleteArea(ctx, id)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting area")
	}
	return nil
}

func (s *service) ListAreas(ctx context.Context) ([]models.Area, error) {
	return s.repo.ListAreas(ctx)
}

func validateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	return trimmed, nil
}

func notFoundOrDependency(err error, kind string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found", kind)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading "+kind)
}
