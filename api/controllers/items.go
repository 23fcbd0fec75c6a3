package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campuskit/schoolstock-backend/api/middleware"
	"github.com/campuskit/schoolstock-backend/api/responses"
	"github.com/campuskit/schoolstock-backend/api/validators"
	itemsvc "github.com/campuskit/schoolstock-backend/internal/items"
	"github.com/campuskit/schoolstock-backend/internal/stock"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
	"github.com/campuskit/schoolstock-backend/pkg/pagination"
)

type createItemRequest struct {
	Name          string           `json:"name" validate:"required"`
	Description   *string          `json:"description,omitempty"`
	SKU           string           `json:"sku" validate:"required"`
	SerialNumber  *string          `json:"serialNumber,omitempty"`
	Manufacturer  *string          `json:"manufacturer,omitempty"`
	Location      *string          `json:"location,omitempty"`
	CategoryID    *uuid.UUID       `json:"categoryId,omitempty"`
	AreaID        *uuid.UUID       `json:"areaId,omitempty"`
	Quantity      int              `json:"quantity" validate:"min=0"`
	MinStockLevel int              `json:"minStockLevel" validate:"min=0"`
	UnitPrice     *decimal.Decimal `json:"unitPrice,omitempty"`
	Status        string           `json:"status,omitempty"`
	Condition     string           `json:"condition,omitempty"`
}

type updateItemRequest struct {
	Name          *string          `json:"name,omitempty"`
	Description   *string          `json:"description,omitempty"`
	SKU           *string          `json:"sku,omitempty"`
	SerialNumber  *string          `json:"serialNumber,omitempty"`
	Manufacturer  *string          `json:"manufacturer,omitempty"`
	Location      *string          `json:"location,omitempty"`
	CategoryID    *uuid.UUID       `json:"categoryId,omitempty"`
	AreaID        *uuid.UUID       `json:"areaId,omitempty"`
	MinStockLevel *int             `json:"minStockLevel,omitempty" validate:"omitempty,min=0"`
	UnitPrice     *decimal.Decimal `json:"unitPrice,omitempty"`
	Status        *string          `json:"status,omitempty"`
	Condition     *string          `json:"condition,omitempty"`
}

type adjustItemRequest struct {
	Delta int     `json:"delta" validate:"required"`
	Notes *string `json:"notes,omitempty"`
}

// CreateItem registers a new inventory item.
func CreateItem(svc itemsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := itemsvc.CreateItemInput{
			Name:          payload.Name,
			Description:   payload.Description,
			SKU:           payload.SKU,
			SerialNumber:  payload.SerialNumber,
			Manufacturer:  payload.Manufacturer,
			Location:      payload.Location,
			CategoryID:    payload.CategoryID,
			AreaID:        payload.AreaID,
			Quantity:      payload.Quantity,
			MinStockLevel: payload.MinStockLevel,
		}
		if payload.UnitPrice != nil {
			input.UnitPrice = *payload.UnitPrice
		}
		if payload.Status != "" {
			status, err := enums.ParseItemStatus(strings.TrimSpace(payload.Status))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = status
		}
		if payload.Condition != "" {
			condition, err := enums.ParseItemCondition(strings.TrimSpace(payload.Condition))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid condition"))
				return
			}
			input.Condition = condition
		}

		item, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toItemView(*item))
	}
}

// GetItem returns a single item joined with its category and area.
func GetItem(svc itemsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "itemId"), "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toItemView(*item))
	}
}

// UpdateItem edits item metadata. Quantity is rejected at decode time: the
// DTO has no quantity field, and unknown fields fail validation, so stock
// corrections must go through the adjust endpoint.
func UpdateItem(svc itemsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "itemId"), "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := itemsvc.UpdateItemInput{
			Name:          payload.Name,
			Description:   payload.Description,
			SKU:           payload.SKU,
			SerialNumber:  payload.SerialNumber,
			Manufacturer:  payload.Manufacturer,
			Location:      payload.Location,
			CategoryID:    payload.CategoryID,
			AreaID:        payload.AreaID,
			MinStockLevel: payload.MinStockLevel,
			UnitPrice:     payload.UnitPrice,
		}
		if payload.Status != nil {
			status, err := enums.ParseItemStatus(strings.TrimSpace(*payload.Status))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}
		if payload.Condition != nil {
			condition, err := enums.ParseItemCondition(strings.TrimSpace(*payload.Condition))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid condition"))
				return
			}
			input.Condition = &condition
		}

		item, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toItemView(*item))
	}
}

// DeleteItem retires an item by default. ?hard=true performs a physical
// delete, which only succeeds for items with no transaction history and is
// restricted to admins at the routing layer.
func DeleteItem(svc itemsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "itemId"), "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		hard, err := validators.ParseQueryBool(r, "hard")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if hard {
			if middleware.RoleFromContext(r.Context()) != string(enums.UserRoleAdmin) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "hard delete requires admin role"))
				return
			}
			if err := svc.Delete(r.Context(), id); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]string{"status": "deleted"})
			return
		}

		item, err := svc.Retire(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toItemView(*item))
	}
}

// AdjustItem applies an operator stock correction through the stock engine.
func AdjustItem(engine stock.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "itemId"), "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		issuedBy, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := engine.Adjust(r.Context(), stock.AdjustInput{
			ItemID:   id,
			Delta:    payload.Delta,
			Notes:    payload.Notes,
			IssuedBy: issuedBy,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toTransactionView(*entry, false))
	}
}

// ListItems returns a filtered, cursor-paginated item page.
func ListItems(svc itemsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lowStock, err := validators.ParseQueryBool(r, "lowStock")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		categoryID, err := validators.ParseQueryUUID(r, "categoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		areaID, err := validators.ParseQueryUUID(r, "areaId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := itemsvc.ListQuery{
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
			Filters: itemsvc.ListFilters{
				CategoryID:   categoryID,
				AreaID:       areaID,
				LowStockOnly: lowStock,
				Query:        strings.TrimSpace(r.URL.Query().Get("q")),
			},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseItemStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			query.Filters.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("condition")); raw != "" {
			condition, err := enums.ParseItemCondition(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid condition"))
				return
			}
			query.Filters.Condition = &condition
		}

		page, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"items":      toItemViews(page.Items),
			"nextCursor": page.NextCursor,
		})
	}
}

func actorID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return id, nil
}
