package main

import (
	"context"
	"fmt"
	"log"

	common_api "gamevault/internal/common/api"
	"gamevault/internal/catalog"
	"gamevault/internal/config"
	"gamevault/internal/database"
	"gamevault/internal/features/collection"
	"gamevault/internal/features/importsession"
	"gamevault/internal/features/maintenance"
	"gamevault/internal/features/matcher"
	"gamevault/internal/features/platform"
	"gamevault/internal/features/review"
	"gamevault/internal/logger"
	"gamevault/internal/middleware"
	"gamevault/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	utils.SetSecret(cfg.JWTSecret)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			NewFiberServer,
			database.NewDatabase,

			catalog.NewClient,

			importsession.NewSessionRepository,
			collection.NewEntryRepository,
			platform.NewIndexCache,

			matcher.NewMatcherService,
			platform.NewPlatformService,
			importsession.NewSessionService,
			collection.NewCollectionService,
			review.NewReviewService,
			maintenance.NewMaintenanceService,

			review.NewReviewController,
			collection.NewCollectionController,

			AsRoute(review.NewReviewApi),
			AsRoute(collection.NewCollectionApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(lc fx.Lifecycle, maintenanceService maintenance.MaintenanceService) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return maintenanceService.InitializeScheduler(ctx)
					},
					OnStop: func(ctx context.Context) error {
						return maintenanceService.StopScheduler()
					},
				})
			},
		),
	)

	app.Run()
}
