package router

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"

	"github.com/iliyamo/ticket-inventory/internal/booking"
	"github.com/iliyamo/ticket-inventory/internal/handler"
	"github.com/iliyamo/ticket-inventory/internal/lifecycle"
	"github.com/iliyamo/ticket-inventory/internal/notify"
	"github.com/iliyamo/ticket-inventory/internal/repository"
	"github.com/iliyamo/ticket-inventory/internal/repository/memory"
	"github.com/iliyamo/ticket-inventory/internal/utils"
	"github.com/iliyamo/ticket-inventory/internal/waitlist"
)

const secret = "router-secret"

type APISuite struct {
	suite.Suite
	e   *echo.Echo
	rec *notify.Recorder
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	logger, _ := logtest.NewNullLogger()
	runner := repository.NewRunner(memory.New(), 50, 50*time.Microsecond, logger)
	s.rec = &notify.Recorder{}
	engine := booking.NewEngine(runner, repository.NopCounter{}, s.rec, logger)
	wl := waitlist.NewManager(runner, repository.NopCounter{}, s.rec, logger, time.Now)
	ctrl := lifecycle.NewController(runner, repository.NopCounter{}, s.rec, wl, logger, time.Now)
	s.e = New(Deps{
		Events:    handler.NewEventHandler(engine, wl, logger),
		Tickets:   handler.NewTicketHandler(ctrl, logger),
		JWTSecret: secret,
		Logger:    logger,
	})
}

func (s *APISuite) token(sub, role string) string {
	tok, err := utils.NewAccessToken(secret, sub, role, time.Hour)
	s.Require().NoError(err)
	return tok.Token
}

func (s *APISuite) do(method, path, token, body string) (int, gjson.Result, http.Header) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec.Code, gjson.Parse(rec.Body.String()), rec.Header()
}

func (s *APISuite) publish(capacity int) {
	org := s.token("org-1", "ORGANIZER")
	code, res, _ := s.do(http.MethodPost, "/v1/events", org,
		`{"event_id":"ev-1","capacity":`+strconv.Itoa(capacity)+`,"ticket_types":[{"id":"ga","name":"General","unit_price":5000,"currency":"USD"}]}`)
	s.Require().Equal(http.StatusCreated, code, res.Raw)
}

func (s *APISuite) buy(user string) (int, gjson.Result) {
	code, res, _ := s.do(http.MethodPost, "/v1/events/ev-1/purchase", s.token(user, "CUSTOMER"),
		`{"line_items":[{"ticket_type_id":"ga","quantity":1}]}`)
	return code, res
}

func (s *APISuite) TestHealth() {
	code, _, _ := s.do(http.MethodGet, "/healthz", "", "")
	s.Equal(http.StatusOK, code)
	code, _, _ = s.do(http.MethodGet, "/readyz", "", "")
	s.Equal(http.StatusOK, code)
}

func (s *APISuite) TestStatsRequireOrganizerAndRedis() {
	code, _, _ := s.do(http.MethodGet, "/v1/events/ev-1/stats", s.token("u-1", "CUSTOMER"), "")
	s.Equal(http.StatusForbidden, code)

	code, res, _ := s.do(http.MethodGet, "/v1/events/ev-1/stats", s.token("org-1", "ORGANIZER"), "")
	s.Equal(http.StatusServiceUnavailable, code)
	s.Equal("stats_unavailable", res.Get("error").String())
}

func (s *APISuite) TestPublishRequiresOrganizer() {
	code, _, _ := s.do(http.MethodPost, "/v1/events", s.token("u-1", "CUSTOMER"), `{"capacity":5}`)
	s.Equal(http.StatusForbidden, code)

	code, res, _ := s.do(http.MethodPost, "/v1/events", s.token("org-1", "ORGANIZER"), `{"capacity":0}`)
	s.Equal(http.StatusBadRequest, code)
	s.Equal("bad_request", res.Get("error").String())
}

func (s *APISuite) TestPurchaseSellOutAndWaitlist() {
	s.publish(2)

	code, _, _ := s.do(http.MethodPost, "/v1/events/ev-1/purchase", "", `{"line_items":[{"quantity":1}]}`)
	s.Equal(http.StatusUnauthorized, code)

	code, res := s.buy("u-1")
	s.Require().Equal(http.StatusCreated, code, res.Raw)
	s.Equal(int64(5000), res.Get("purchase.total_price").Int())
	s.Regexp(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`, res.Get("tickets.0.ticket_number").String())

	code, _ = s.buy("u-2")
	s.Equal(http.StatusCreated, code)

	code, res = s.buy("u-3")
	s.Equal(http.StatusConflict, code)
	s.Equal("capacity_exceeded", res.Get("error").String())

	code, res, _ = s.do(http.MethodPost, "/v1/events/ev-1/waitlist", s.token("u-3", "CUSTOMER"), "")
	s.Equal(http.StatusCreated, code)
	s.Equal(int64(1), res.Get("position").Int())

	code, res, _ = s.do(http.MethodPost, "/v1/events/ev-1/waitlist", s.token("u-3", "CUSTOMER"), "")
	s.Equal(http.StatusConflict, code)
	s.Equal("already_waiting", res.Get("error").String())

	code, res, _ = s.do(http.MethodGet, "/v1/events/ev-1/availability", "", "")
	s.Equal(http.StatusOK, code)
	s.Equal(int64(2), res.Get("sold").Int())
	s.Equal(int64(0), res.Get("remaining").Int())
	s.Equal(int64(1), res.Get("waiting").Int())
}

func (s *APISuite) TestPurchaseValidation() {
	s.publish(5)
	tok := s.token("u-1", "CUSTOMER")

	code, res, _ := s.do(http.MethodPost, "/v1/events/ev-1/purchase", tok, `{"line_items":[{"ticket_type_id":"ga","quantity":0}]}`)
	s.Equal(http.StatusBadRequest, code)
	s.Contains(res.Get("message").String(), "quantity")

	code, _, _ = s.do(http.MethodPost, "/v1/events/ev-1/purchase", tok, `{"line_items":[]}`)
	s.Equal(http.StatusBadRequest, code)

	code, res, _ = s.do(http.MethodPost, "/v1/events/ev-1/purchase", tok, `{"line_items":[{"ticket_type_id":"vip","quantity":1}]}`)
	s.Equal(http.StatusBadRequest, code)
	s.Equal("invalid_request", res.Get("error").String())

	code, _, _ = s.do(http.MethodPost, "/v1/events/nope/purchase", tok, `{"line_items":[{"quantity":1}]}`)
	s.Equal(http.StatusNotFound, code)
}

func (s *APISuite) TestCheckInTransferRefund() {
	s.publish(2)
	_, res := s.buy("u-1")
	number := res.Get("tickets.0.ticket_number").String()
	ticketID := res.Get("tickets.0.id").String()
	_, res = s.buy("u-2")
	otherID := res.Get("tickets.0.id").String()
	s.do(http.MethodPost, "/v1/events/ev-1/waitlist", s.token("u-3", "CUSTOMER"), "")

	// another customer cannot read or move the ticket
	code, _, _ := s.do(http.MethodGet, "/v1/tickets/"+ticketID, s.token("u-2", "CUSTOMER"), "")
	s.Equal(http.StatusForbidden, code)
	code, res, _ = s.do(http.MethodPost, "/v1/tickets/"+ticketID+"/transfer", s.token("u-2", "CUSTOMER"), `{"to_user_id":"u-5"}`)
	s.Equal(http.StatusForbidden, code, res.Raw)
	code, _, _ = s.do(http.MethodPost, "/v1/tickets/"+ticketID+"/transfer", s.token("u-1", "CUSTOMER"), `{"to_user_id":"u-1"}`)
	s.Equal(http.StatusBadRequest, code)

	// transfer to u-9; the old number no longer admits
	code, res, _ = s.do(http.MethodPost, "/v1/tickets/"+ticketID+"/transfer", s.token("u-1", "CUSTOMER"), `{"to_user_id":"u-9"}`)
	s.Require().Equal(http.StatusCreated, code, res.Raw)
	s.Equal("u-9", res.Get("owner_id").String())
	newNumber := res.Get("ticket_number").String()
	s.Equal(number+"-T1", newNumber)

	staff := s.token("s-1", "STAFF")
	code, _, _ = s.do(http.MethodPost, "/v1/checkin", s.token("u-9", "CUSTOMER"), `{"ticket_number":"`+newNumber+`"}`)
	s.Equal(http.StatusForbidden, code)
	code, res, _ = s.do(http.MethodPost, "/v1/checkin", staff, `{"ticket_number":"`+number+`"}`)
	s.Equal(http.StatusConflict, code)
	s.Equal("invalid_transition", res.Get("error").String())

	code, res, _ = s.do(http.MethodPost, "/v1/checkin", staff, `{"ticket_number":"`+strings.ToLower(newNumber)+`"}`)
	s.Require().Equal(http.StatusOK, code, res.Raw)
	checkedAt := res.Get("checked_in_at").String()
	s.NotEmpty(checkedAt)

	code, res, _ = s.do(http.MethodPost, "/v1/checkin", staff, `{"ticket_number":"`+newNumber+`"}`)
	s.Equal(http.StatusConflict, code)
	s.Equal("already_checked_in", res.Get("error").String())
	s.Equal(checkedAt, res.Get("ticket.checked_in_at").String())

	code, _, _ = s.do(http.MethodPost, "/v1/checkin", staff, `{"ticket_number":"0000-0000-0000"}`)
	s.Equal(http.StatusNotFound, code)

	// refund u-2's ticket and hand the seat to the waitlist
	code, res, _ = s.do(http.MethodPost, "/v1/tickets/"+otherID+"/refund", s.token("u-2", "CUSTOMER"), `{"reason":"cannot attend"}`)
	s.Require().Equal(http.StatusAccepted, code, res.Raw)
	s.Equal("REFUND_REQUESTED", res.Get("status").String())

	org := s.token("org-1", "ORGANIZER")
	code, res, _ = s.do(http.MethodPost, "/v1/tickets/"+otherID+"/refund/approve", org, "")
	s.Require().Equal(http.StatusOK, code, res.Raw)
	s.Equal("REFUNDED", res.Get("status").String())

	code, res, _ = s.do(http.MethodGet, "/v1/events/ev-1/waitlist", org, "")
	s.Equal(http.StatusOK, code)
	s.Equal("u-3", res.Get("entries.0.user_id").String())
	s.Equal("PROMOTED", res.Get("entries.0.status").String())

	code, res, _ = s.do(http.MethodPost, "/v1/events/ev-1/waitlist/promote", org, "")
	s.Equal(http.StatusConflict, code)
	s.Equal("waitlist_empty", res.Get("error").String())

	code, res, _ = s.do(http.MethodGet, "/v1/my-tickets", s.token("u-1", "CUSTOMER"), "")
	s.Equal(http.StatusOK, code)
	s.Equal("TRANSFERRED_AWAY", res.Get("tickets.0.status").String())
}

func (s *APISuite) TestDiscountCodes() {
	s.publish(5)
	org := s.token("org-1", "ORGANIZER")
	from := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	to := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	body := `{"code":" save10 ","kind":"PERCENTAGE","value":10,"max_uses":1,"valid_from":"` + from + `","valid_to":"` + to + `"}`
	code, res, _ := s.do(http.MethodPost, "/v1/events/ev-1/discounts", org, body)
	s.Require().Equal(http.StatusCreated, code, res.Raw)
	s.Equal("SAVE10", res.Get("code").String())

	code, _, _ = s.do(http.MethodPost, "/v1/events/ev-1/discounts", org, body)
	s.Equal(http.StatusConflict, code)

	tok := s.token("u-1", "CUSTOMER")
	code, res, _ = s.do(http.MethodGet, "/v1/events/ev-1/discounts/save10", tok, "")
	s.Equal(http.StatusOK, code)
	s.True(res.Get("valid").Bool())
	s.Equal(int64(1), res.Get("remaining_uses").Int())

	code, res, _ = s.do(http.MethodGet, "/v1/events/ev-1/discounts/NOPE", tok, "")
	s.Equal(http.StatusUnprocessableEntity, code)
	s.Equal("discount_invalid", res.Get("error").String())
	s.Equal("not-found", res.Get("reason").String())

	code, res, _ = s.do(http.MethodPost, "/v1/events/ev-1/purchase", tok,
		`{"line_items":[{"ticket_type_id":"ga","quantity":2}],"discount_code":"SAVE10"}`)
	s.Require().Equal(http.StatusCreated, code, res.Raw)
	s.Equal(int64(9000), res.Get("purchase.total_price").Int())

	code, res, _ = s.do(http.MethodGet, "/v1/events/ev-1/discounts/SAVE10", tok, "")
	s.Equal(http.StatusUnprocessableEntity, code)
	s.Equal("exhausted", res.Get("reason").String())
}

func (s *APISuite) TestCancelEvent() {
	s.publish(3)
	_, res := s.buy("u-1")
	ticketID := res.Get("tickets.0.id").String()

	org := s.token("org-1", "ORGANIZER")
	code, res, _ := s.do(http.MethodPost, "/v1/events/ev-1/cancel", org, "")
	s.Require().Equal(http.StatusOK, code, res.Raw)
	s.Equal(int64(1), res.Get("cancelled").Int())

	code, res, _ = s.do(http.MethodGet, "/v1/tickets/"+ticketID, s.token("u-1", "CUSTOMER"), "")
	s.Equal(http.StatusOK, code)
	s.Equal("CANCELLED", res.Get("status").String())

	code, res = s.buy("u-2")
	s.Equal(http.StatusConflict, code)
	s.Equal("event_closed", res.Get("error").String())
}
