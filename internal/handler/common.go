package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-inventory/internal/booking"
	"github.com/iliyamo/ticket-inventory/internal/discount"
	"github.com/iliyamo/ticket-inventory/internal/ledger"
	"github.com/iliyamo/ticket-inventory/internal/lifecycle"
	"github.com/iliyamo/ticket-inventory/internal/middleware"
	"github.com/iliyamo/ticket-inventory/internal/repository"
	"github.com/iliyamo/ticket-inventory/internal/waitlist"
)

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator using the "json" tag names in messages.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	msgs := make([]string, len(fields))
	for k, f := range fields {
		msgs[k] = fmt.Sprintf("invalid '%s' with value '%v'", f.Namespace(), f.Value())
	}
	return echo.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, ", "))
}

// bind decodes the JSON body into req and validates it.  The returned error
// is already an *echo.HTTPError.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(req)
}

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// writeError turns a domain error into its HTTP response.  Business and
// precondition errors are answered directly; retry exhaustion becomes a 503
// with Retry-After and anything unexpected is logged as a 500.
func writeError(c echo.Context, logger logrus.FieldLogger, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := strings.ToLower(strings.ReplaceAll(http.StatusText(he.Code), " ", "_"))
		return c.JSON(he.Code, errorBody{Error: code, Message: fmt.Sprint(he.Message)})
	}

	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, repository.ErrTransientConflict):
		status, code = http.StatusServiceUnavailable, "transient_conflict"
		c.Response().Header().Set("Retry-After", "1")
	case errors.Is(err, repository.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrCapacityExceeded):
		status, code = http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, discount.ErrInvalid):
		return c.JSON(http.StatusUnprocessableEntity, errorBody{
			Error:   "discount_invalid",
			Message: err.Error(),
			Reason:  discount.Reason(err),
		})
	case errors.Is(err, ledger.ErrEventClosed):
		status, code = http.StatusConflict, "event_closed"
	case errors.Is(err, lifecycle.ErrNotOwner):
		status, code = http.StatusForbidden, "not_owner"
	case errors.Is(err, lifecycle.ErrNotTransferable):
		status, code = http.StatusConflict, "not_transferable"
	case errors.Is(err, lifecycle.ErrAlreadyCheckedIn):
		status, code = http.StatusConflict, "already_checked_in"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, waitlist.ErrAlreadyWaiting):
		status, code = http.StatusConflict, "already_waiting"
	case errors.Is(err, waitlist.ErrEmpty):
		status, code = http.StatusConflict, "waitlist_empty"
	case errors.Is(err, booking.ErrEventExists), errors.Is(err, booking.ErrDiscountExists):
		status, code = http.StatusConflict, "already_exists"
	case errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, ledger.ErrUnknownTicketType),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, lifecycle.ErrInvalidRecipient):
		status, code = http.StatusBadRequest, "invalid_request"
	}

	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error("request failed")
		if status == http.StatusInternalServerError {
			return c.JSON(status, errorBody{Error: code})
		}
	}
	return c.JSON(status, errorBody{Error: code, Message: err.Error()})
}

// currentUser returns the authenticated user id or a 401 error.
func currentUser(c echo.Context) (string, error) {
	uid := middleware.UserID(c)
	if uid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return uid, nil
}
