package collection

import (
	"gamevault/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CollectionController struct {
	Service CollectionService
}

func NewCollectionController(service CollectionService) *CollectionController {
	return &CollectionController{Service: service}
}

// ListEntries returns the authenticated user's committed collection.
func (c *CollectionController) ListEntries(ctx *fiber.Ctx) error {
	claims, ok := ctx.Locals(utils.UserClaimsKey).(*utils.UserClaims)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}
	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	entries, err := c.Service.ListByUser(ctx.Context(), userID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"entries": entries, "total": len(entries)})
}
