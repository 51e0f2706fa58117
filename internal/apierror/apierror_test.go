package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := map[string]int{
		"bad_request:api":              http.StatusBadRequest,
		"bad_request:activate_gateway": http.StatusBadRequest,
		"unauthorized:chat":            http.StatusUnauthorized,
		"forbidden:chat":               http.StatusForbidden,
		"not_found:chat":               http.StatusNotFound,
		"conflict:chat":                http.StatusConflict,
		"rate_limit:chat":              http.StatusTooManyRequests,
		"offline:chat":                 http.StatusServiceUnavailable,
	}
	for code, status := range cases {
		e := New(code)
		assert.Equal(t, code, e.Code())
		assert.Equal(t, status, e.Status(), code)
	}
}

func TestFromUpstream(t *testing.T) {
	gateway := FromUpstream(errors.New("provider: AI Gateway requires a valid credit card on file to service requests"))
	assert.Equal(t, "bad_request:activate_gateway", gateway.Code())

	other := FromUpstream(errors.New("dial tcp: connection refused"))
	assert.Equal(t, "offline:chat", other.Code())

	existing := New("rate_limit:chat")
	assert.Same(t, existing, FromUpstream(existing))
}

func TestRespondHidesDatabaseDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	Respond(c, Wrap("bad_request:database", errors.New("no such table: chats")))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "no such table")
}

func TestRespondBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	Respond(c, New("bad_request:api", "Parameter id is missing"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bad_request:api", body["code"])
	assert.Equal(t, "Parameter id is missing", body["cause"])
	assert.NotEmpty(t, body["message"])
}
