package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/iliyamo/ticket-inventory/internal/stats"
)

func statsRequest(h echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/events/ev-1/stats", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("ev-1")
	_ = h(c)
	return rec
}

func statsKeys() []string {
	keys := make([]string, len(stats.Names))
	for i, n := range stats.Names {
		keys[i] = stats.Key("ev-1", n)
	}
	return keys
}

func TestEventStats(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	db, mock := redismock.NewClientMock()
	vals := make([]interface{}, len(stats.Names))
	vals[0] = "12"
	mock.ExpectMGet(statsKeys()...).SetVal(vals)

	rec := statsRequest(EventStats(db, logger))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "ev-1", gjson.Get(body, "event_id").String())
	assert.Equal(t, int64(12), gjson.Get(body, "counters."+stats.TicketsSold).Int())
	assert.True(t, gjson.Get(body, "counters."+stats.WaitlistJoins).Exists())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStatsUnavailable(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	rec := statsRequest(EventStats(nil, logger))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "stats_unavailable", gjson.Get(rec.Body.String(), "error").String())

	db, mock := redismock.NewClientMock()
	mock.ExpectMGet(statsKeys()...).SetErr(errors.New("connection refused"))
	rec = statsRequest(EventStats(db, logger))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "stats snapshot failed", hook.LastEntry().Message)
}
