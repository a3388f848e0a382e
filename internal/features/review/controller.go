package review

import (
	"errors"

	"gamevault/internal/catalog"
	"gamevault/internal/features/importsession"
	"gamevault/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReviewController struct {
	Service  ReviewService
	Sessions importsession.SessionService
}

func NewReviewController(service ReviewService, sessions importsession.SessionService) *ReviewController {
	return &ReviewController{Service: service, Sessions: sessions}
}

func requestUserID(ctx *fiber.Ctx) (primitive.ObjectID, error) {
	claims, ok := ctx.Locals(utils.UserClaimsKey).(*utils.UserClaims)
	if !ok {
		return primitive.NilObjectID, errors.New("User not found")
	}
	return primitive.ObjectIDFromHex(claims.UserID)
}

// Upload accepts an import file, creates a session and kicks off
// processing in the background.
func (c *ReviewController) Upload(ctx *fiber.Ctx) error {
	userID, err := requestUserID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to open file"})
	}
	defer file.Close()

	session, err := c.Service.Upload(ctx.UserContext(), userID, fileHeader.Filename, file)
	if err != nil {
		if errors.Is(err, importsession.ErrUnsupportedFileType) {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusCreated).JSON(session)
}

func (c *ReviewController) ListSessions(ctx *fiber.Ctx) error {
	userID, err := requestUserID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	sessions, err := c.Sessions.ListByUser(ctx.Context(), userID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"sessions": sessions, "total": len(sessions)})
}

// GetSession returns the session with its rows. With ?wait=true it
// blocks until processing settles or the request is cancelled.
func (c *ReviewController) GetSession(ctx *fiber.Ctx) error {
	userID, err := requestUserID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	sessionID, err := primitive.ObjectIDFromHex(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid session id"})
	}

	if ctx.Query("wait") == "true" {
		if _, err := c.Service.PollSession(ctx.UserContext(), userID, sessionID); err != nil {
			if errors.Is(err, ErrPollInFlight) {
				return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
			}
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	session, matches, err := c.Sessions.GetWithMatches(ctx.Context(), userID, sessionID)
	if err != nil {
		return sessionError(ctx, err)
	}
	return ctx.JSON(fiber.Map{"session": session, "matches": matches})
}

func (c *ReviewController) ConfirmMatches(ctx *fiber.Ctx) error {
	userID, err := requestUserID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	sessionID, err := primitive.ObjectIDFromHex(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid session id"})
	}

	var body struct {
		Edits []MatchEdit `json:"edits"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(body.Edits) == 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "edits are required"})
	}

	updated, err := c.Service.ConfirmMatches(ctx.Context(), userID, sessionID, body.Edits)
	if err != nil {
		return sessionError(ctx, err)
	}
	return ctx.JSON(fiber.Map{"matches": updated, "total": len(updated)})
}

func (c *ReviewController) ExecuteImport(ctx *fiber.Ctx) error {
	userID, err := requestUserID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	sessionID, err := primitive.ObjectIDFromHex(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid session id"})
	}

	result, err := c.Service.ExecuteImport(ctx.Context(), userID, sessionID)
	if err != nil {
		return sessionError(ctx, err)
	}
	return ctx.JSON(result)
}

func (c *ReviewController) CancelSession(ctx *fiber.Ctx) error {
	userID, err := requestUserID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	sessionID, err := primitive.ObjectIDFromHex(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid session id"})
	}

	session, err := c.Sessions.Cancel(ctx.Context(), userID, sessionID)
	if err != nil {
		return sessionError(ctx, err)
	}
	return ctx.JSON(session)
}

func (c *ReviewController) Search(ctx *fiber.Ctx) error {
	query := ctx.Query("q")
	if query == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "q is required"})
	}

	games, err := c.Service.SearchAlternatives(ctx.Context(), query)
	if err != nil {
		var unavailable *catalog.ErrUnavailable
		if errors.As(err, &unavailable) {
			return ctx.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"games": games, "total": len(games)})
}

func (c *ReviewController) Platforms(ctx *fiber.Ctx) error {
	options, err := c.Service.PlatformOptions(ctx.Context())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"platforms": options, "total": len(options)})
}

// sessionError maps domain errors onto HTTP statuses.
func sessionError(ctx *fiber.Ctx, err error) error {
	var stateErr *InvalidSessionStateError
	var transitionErr *importsession.InvalidTransitionError
	switch {
	case errors.As(err, &stateErr), errors.As(err, &transitionErr):
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrNoConfirmedRows),
		errors.Is(err, ErrPlatformRequired),
		errors.Is(err, ErrNoGameChosen):
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, importsession.ErrSessionNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	default:
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
