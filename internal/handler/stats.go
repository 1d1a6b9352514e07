package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-inventory/internal/stats"
)

// EventStats handles GET /v1/events/:id/stats (organizer) with the event's
// analytics counters.  Without Redis there is nothing to report and it
// answers 503.
func EventStats(rdb redis.Cmdable, logger logrus.FieldLogger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if rdb == nil {
			return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "stats_unavailable"})
		}
		eventID := c.Param("id")
		counters, err := stats.Snapshot(c.Request().Context(), rdb, eventID)
		if err != nil {
			logger.WithError(err).WithField("event_id", eventID).Error("stats snapshot failed")
			return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "stats_unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"event_id": eventID,
			"counters": counters,
		})
	}
}
