package device

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		devices, err := svc.ListForUser(c.Context(), userID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(devices)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req RegisterInput
		if err := c.BodyParser(&req); err != nil || req.DeviceID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device_id required")
		}
		userID, _ := c.Locals("user_id").(string)
		d, err := svc.Register(c.Context(), userID, req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(d)
	})

	r.Get("/:deviceID", authMiddleware, func(c *fiber.Ctx) error {
		d, err := svc.Get(c.Context(), c.Params("deviceID"))
		if errors.Is(err, pgx.ErrNoRows) {
			return fiber.NewError(fiber.StatusNotFound, "device not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		userID, _ := c.Locals("user_id").(string)
		if d.UserID == nil || *d.UserID != userID {
			return fiber.NewError(fiber.StatusForbidden, "not your device")
		}
		return c.JSON(d)
	})

	r.Delete("/:deviceID", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if err := svc.Unclaim(c.Context(), userID, c.Params("deviceID")); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
