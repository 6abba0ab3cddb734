package controller

import (
	"strconv"

	"plant-diagnostics-web/internal/pkg/serverutils"
	"plant-diagnostics-web/internal/service"
	"plant-diagnostics-web/pkg/feed"
	"plant-diagnostics-web/pkg/predict"

	"github.com/gofiber/fiber/v2"
)

type IPredictionController interface {
	RegisterRoutes(r fiber.Router)
	Analyze(ctx *fiber.Ctx) error
	Feedback(ctx *fiber.Ctx) error
	Upload(ctx *fiber.Ctx) error
	Feed(ctx *fiber.Ctx) error
}

type predictionController struct {
	proxy service.IProxyService
	feed  *feed.Store
}

func NewPredictionController(proxy service.IProxyService, feedStore *feed.Store) IPredictionController {
	return &predictionController{proxy: proxy, feed: feedStore}
}

func (c *predictionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/predictions")
	h.Post("/analyze", c.Analyze)
	h.Post("/feedback", c.Feedback)
	h.Post("/upload", c.Upload)

	r.Get("/feed", c.Feed)
}

// Analyze validates the request shape, then relays it to the backend and
// passes the backend's answer through untouched.
func (c *predictionController) Analyze(ctx *fiber.Ctx) error {
	var req predict.DiagnosisRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	status, body, err := c.proxy.Analyze(ctx.Context(), ctx.Body())
	if err != nil {
		return ctx.Status(fiber.StatusBadGateway).JSON(serverutils.ErrorResponse(502, err.Error()))
	}
	return c.relay(ctx, status, body)
}

func (c *predictionController) Feedback(ctx *fiber.Ctx) error {
	var judgment predict.FeedbackJudgment
	if err := ctx.BodyParser(&judgment); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(judgment); err != nil {
		return err
	}

	status, body, err := c.proxy.Feedback(ctx.Context(), ctx.Body())
	if err != nil {
		return ctx.Status(fiber.StatusBadGateway).JSON(serverutils.ErrorResponse(502, err.Error()))
	}
	return c.relay(ctx, status, body)
}

// Upload accepts a multipart image and forwards it as a base64 analyze call.
func (c *predictionController) Upload(ctx *fiber.Ctx) error {
	file, err := ctx.FormFile("image")
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Image file is required"))
	}

	mode := predict.Mode(ctx.FormValue("mode", string(predict.ModeIdentify)))
	if mode != predict.ModeIdentify && mode != predict.ModeDisease {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Unknown mode"))
	}
	userID, err := strconv.Atoi(ctx.FormValue("userId", "0"))
	if err != nil || userID < 0 {
		userID = predict.GuestUserID
	}
	description := ctx.FormValue("description")

	status, body, err := c.proxy.AnalyzeUpload(ctx.Context(), file, mode, userID, description)
	if err != nil {
		return ctx.Status(fiber.StatusBadGateway).JSON(serverutils.ErrorResponse(502, err.Error()))
	}
	return c.relay(ctx, status, body)
}

// Feed returns the recent cross-user broadcast predictions.
func (c *predictionController) Feed(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 20)
	entries := c.feed.Recent(limit)
	return ctx.JSON(serverutils.SuccessResponse("Live feed", entries))
}

func (c *predictionController) relay(ctx *fiber.Ctx, status int, body []byte) error {
	ctx.Set("Content-Type", "application/json")
	return ctx.Status(status).Send(body)
}
