package review

import (
	"gamevault/internal/config"
	"gamevault/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ReviewApi struct {
	Controller *ReviewController
	Config     *config.Config
}

func NewReviewApi(controller *ReviewController, config *config.Config) *ReviewApi {
	return &ReviewApi{
		Controller: controller,
		Config:     config,
	}
}

func (api *ReviewApi) Setup(app *fiber.App) {
	group := app.Group("/api/import", middleware.AuthMiddleware(api.Config.SkipAuth))

	group.Post("/upload", api.Controller.Upload)
	group.Get("/sessions", api.Controller.ListSessions)
	group.Get("/sessions/:id", api.Controller.GetSession)
	group.Put("/sessions/:id/confirm", api.Controller.ConfirmMatches)
	group.Post("/sessions/:id/execute", api.Controller.ExecuteImport)
	group.Post("/sessions/:id/cancel", api.Controller.CancelSession)
	group.Get("/search", api.Controller.Search)
	group.Get("/platforms", api.Controller.Platforms)
}
