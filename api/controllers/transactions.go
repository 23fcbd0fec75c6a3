package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campuskit/schoolstock-backend/api/responses"
	"github.com/campuskit/schoolstock-backend/api/validators"
	ledgersvc "github.com/campuskit/schoolstock-backend/internal/ledger"
	"github.com/campuskit/schoolstock-backend/internal/stock"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
	"github.com/campuskit/schoolstock-backend/pkg/pagination"
)

type issueRequest struct {
	ItemID             uuid.UUID  `json:"itemId" validate:"required"`
	Mode               string     `json:"mode" validate:"required,oneof=issue use"`
	Quantity           int        `json:"quantity" validate:"required,gt=0"`
	ExpectedReturnDate *time.Time `json:"expectedReturnDate,omitempty"`
	RecipientName      string     `json:"recipientName,omitempty"`
	RecipientContact   *string    `json:"recipientContact,omitempty"`
	Purpose            *string    `json:"purpose,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
}

type returnRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// IssueTransaction creates an issue (returnable loan) or use (permanent
// consumption) movement through the stock engine.
func IssueTransaction(engine stock.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuedBy, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload issueRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txType, err := enums.ParseTransactionType(strings.TrimSpace(payload.Mode))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid mode"))
			return
		}

		entry, err := engine.Issue(r.Context(), stock.IssueInput{
			ItemID:             payload.ItemID,
			Type:               txType,
			Quantity:           payload.Quantity,
			ExpectedReturnDate: payload.ExpectedReturnDate,
			RecipientName:      payload.RecipientName,
			RecipientContact:   payload.RecipientContact,
			Purpose:            payload.Purpose,
			Notes:              payload.Notes,
			IssuedBy:           issuedBy,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toTransactionView(*entry, false))
	}
}

// ReturnTransaction closes out a pending issue.
func ReturnTransaction(engine stock.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "txId"), "txId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload returnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := engine.Return(r.Context(), stock.ReturnInput{
			TransactionID: id,
			Notes:         payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionView(*entry, false))
	}
}

// GetTransaction returns one ledger entry with its derived overdue flag.
func GetTransaction(svc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "txId"), "txId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionView(view.InventoryTransaction, view.Overdue))
	}
}

// ListTransactions returns a filtered, cursor-paginated ledger page.
func ListTransactions(svc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		overdueOnly, err := validators.ParseQueryBool(r, "overdue")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseQueryUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		issuedBy, err := validators.ParseQueryUUID(r, "issuedBy")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := ledgersvc.Query{
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
			ItemID:      itemID,
			IssuedBy:    issuedBy,
			OverdueOnly: overdueOnly,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			txType, err := enums.ParseTransactionType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type"))
				return
			}
			query.Type = &txType
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseTransactionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			query.Status = &status
		}

		entries, nextCursor, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"transactions": toLedgerViews(entries),
			"nextCursor":   nextCursor,
		})
	}
}
