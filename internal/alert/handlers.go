package alert

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/device/:deviceID", authMiddleware, func(c *fiber.Ctx) error {
		alerts, err := svc.ListForDevice(c.Context(), c.Params("deviceID"), c.QueryInt("limit"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(alerts)
	})

	r.Get("/trip/:tripID", authMiddleware, func(c *fiber.Ctx) error {
		alerts, err := svc.ListForTrip(c.Context(), c.Params("tripID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(alerts)
	})

	r.Post("/:id/ack", authMiddleware, func(c *fiber.Ctx) error {
		alertID := c.Params("id")
		if _, err := svc.Get(c.Context(), alertID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fiber.NewError(fiber.StatusNotFound, "alert not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		userID, _ := c.Locals("user_id").(string)
		if err := svc.Resolve(c.Context(), alertID, userID); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"status": "resolved", "alert_id": alertID})
	})
}
