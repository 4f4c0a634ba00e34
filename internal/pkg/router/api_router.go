package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/sonerady/dires-server-sub002/app/controllers"
	"github.com/sonerady/dires-server-sub002/internal/pkg/cache"
	"github.com/sonerady/dires-server-sub002/internal/pkg/env"
	"github.com/sonerady/dires-server-sub002/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))

	v1 := api.Group("/v1")
	v1.Get("/ping", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"message": "pong"})
	})

	// Webhook authenticates with its own shared secret, not an API key.
	v1.Post("/webhooks/billing", controllers.HandleBillingWebhook)

	protected := v1.Group("", middleware.APIKeyAuthMiddleware())
	protected.Post("/generations", controllers.HandleCreateGeneration)
	protected.Get("/generations/:id", controllers.HandleGetGeneration)
	protected.Get("/credits", controllers.HandleGetCredits)
	protected.Get("/transactions", controllers.HandleListTransactions)
	protected.Post("/purchases", controllers.HandleCreatePurchase)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances. Uses database 1, the cache client uses 0.
func newLimiterStorage() fiber.Storage {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient := cache.GetClient(); cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
