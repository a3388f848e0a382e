package collection

import (
	"gamevault/internal/config"
	"gamevault/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type CollectionApi struct {
	Controller *CollectionController
	Config     *config.Config
}

func NewCollectionApi(controller *CollectionController, config *config.Config) *CollectionApi {
	return &CollectionApi{
		Controller: controller,
		Config:     config,
	}
}

func (api *CollectionApi) Setup(app *fiber.App) {
	group := app.Group("/api/collection", middleware.AuthMiddleware(api.Config.SkipAuth))

	group.Get("/", api.Controller.ListEntries)
}
