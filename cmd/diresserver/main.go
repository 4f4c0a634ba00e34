package main

import (
	"fmt"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/sonerady/dires-server-sub002/app/controllers"
	"github.com/sonerady/dires-server-sub002/app/repository"
	"github.com/sonerady/dires-server-sub002/internal/pkg/billing"
	"github.com/sonerady/dires-server-sub002/internal/pkg/cache"
	"github.com/sonerady/dires-server-sub002/internal/pkg/database"
	"github.com/sonerady/dires-server-sub002/internal/pkg/env"
	"github.com/sonerady/dires-server-sub002/internal/pkg/generation"
	"github.com/sonerady/dires-server-sub002/internal/pkg/inflight"
	"github.com/sonerady/dires-server-sub002/internal/pkg/jobqueue"
	"github.com/sonerady/dires-server-sub002/internal/pkg/ledger"
	"github.com/sonerady/dires-server-sub002/internal/pkg/outputstore"
	"github.com/sonerady/dires-server-sub002/internal/pkg/router"
	"github.com/sonerady/dires-server-sub002/internal/pkg/settlement"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())
	cache.SetupCache()

	repos := repository.GetGlobalRepositories()
	ledgerSvc := ledger.NewService(database.GetDB(), repos.Account, repos.Transaction)

	// Output archival runs on the job queue when S3 is configured.
	var queue settlement.Enqueuer
	if storeCfg, err := outputstore.LoadConfig(); err == nil && storeCfg.IsEnabled() {
		storeClient, err := outputstore.NewClient(storeCfg)
		if err != nil {
			log.Warnf("[Main] output archival disabled: %v", err)
		} else {
			manager := jobqueue.Initialize(jobqueue.NewS3ArchiveProcessor(storeClient, repos.GenerationJob))
			manager.Start()
			queue = manager.GetQueue()
		}
	} else if err != nil {
		log.Warnf("[Main] output archival disabled: %v", err)
	}

	// Prefer the shared Redis for the in-flight guard so double-taps are
	// caught across instances.
	var guardStore inflight.Store = inflight.NewMemoryStore()
	if client := cache.GetClient(); client != nil {
		guardStore = inflight.NewRedisStore(client)
	}
	guard := inflight.NewGuard(guardStore, inflight.DefaultWindow)

	poller := generation.NewPoller(generation.NewHTTPProviderFromEnv(), generation.Config{})
	engine := settlement.NewEngine(ledgerSvc, guard, poller, repos.GenerationJob, queue)
	controllers.SetGenerationEngine(engine)
	controllers.SetBillingService(billing.NewService(ledgerSvc, repos.Account, repos.Transaction, repos.Team))

	app := fiber.New(fiber.Config{
		AppName:   "dires-server",
		BodyLimit: 10 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	if basePath := findBasePath(); basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app)

	return app
}

func findBasePath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "public/docs"); !os.IsNotExist(err) {
			return path
		}
	}
	return ""
}
