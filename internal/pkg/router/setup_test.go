package router

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterConstructors(t *testing.T) {
	// Both halves of the router split must satisfy the Router interface.
	var routers = []Router{NewHttpRouter(), NewApiRouter()}
	for i, r := range routers {
		require.NotNilf(t, r, "router %d", i)
	}
}

func TestHttpRouterHealthEndpoints(t *testing.T) {
	app := fiber.New()
	setup(app, NewHttpRouter())

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// No database handle in tests, so health reports degraded.
	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
