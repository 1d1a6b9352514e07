package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func whoami(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"user_id": UserID(c), "role": Role(c)})
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("valid token", func(t *testing.T) {
		tok := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "u-42", "role": "customer", "exp": exp})
		rec := serve(e, http.MethodGet, "/me", tok)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-42", gjson.Get(rec.Body.String(), "user_id").String())
		assert.Equal(t, RoleCustomer, gjson.Get(rec.Body.String(), "role").String())
	})

	t.Run("numeric subject", func(t *testing.T) {
		tok := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": 17, "role": "STAFF", "exp": exp})
		rec := serve(e, http.MethodGet, "/me", tok)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "17", gjson.Get(rec.Body.String(), "user_id").String())
	})

	t.Run("missing header", func(t *testing.T) {
		rec := serve(e, http.MethodGet, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "missing bearer token", gjson.Get(rec.Body.String(), "error").String())
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "u-1", "exp": exp})
		assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", tok).Code)
	})

	t.Run("expired", func(t *testing.T) {
		tok := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Minute).Unix()})
		assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", tok).Code)
	})

	t.Run("other algorithm", func(t *testing.T) {
		tok := sign(t, jwt.SigningMethodHS512, []byte(secret), jwt.MapClaims{"sub": "u-1", "exp": exp})
		assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", tok).Code)
	})

	t.Run("no subject", func(t *testing.T) {
		tok := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"role": "STAFF", "exp": exp})
		rec := serve(e, http.MethodGet, "/me", tok)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid claims", gjson.Get(rec.Body.String(), "error").String())
	})
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.POST("/checkin", whoami, JWTAuth(secret), RequireRole(RoleStaff, RoleOrganizer))
	exp := time.Now().Add(time.Hour).Unix()

	staff := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "s-1", "role": "STAFF", "exp": exp})
	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/checkin", staff).Code)

	customer := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "c-1", "role": "CUSTOMER", "exp": exp})
	rec := serve(e, http.MethodPost, "/checkin", customer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", gjson.Get(rec.Body.String(), "error").String())

	noRole := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "c-1", "exp": exp})
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodPost, "/checkin", noRole).Code)
}
