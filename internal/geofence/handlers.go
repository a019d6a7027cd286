package geofence

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

// RegisterRoutes wires zone CRUD. The watcher is kept in sync so zone
// changes take effect on the live pipeline without a restart.
func RegisterRoutes(r fiber.Router, svc *Service, watcher *Watcher, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req Zone
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.DeviceID == "" || req.Name == "" || req.RadiusM <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "device_id, name and radius_m required")
		}
		req.CreatedBy, _ = c.Locals("user_id").(string)
		zone, err := svc.CreateZone(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if watcher != nil {
			watcher.AddZone(zone)
		}
		return c.Status(fiber.StatusCreated).JSON(zone)
	})

	r.Get("/device/:deviceID", authMiddleware, func(c *fiber.Ctx) error {
		zones, err := svc.ZonesForDevice(c.Context(), c.Params("deviceID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(zones)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		zone, err := svc.GetZone(c.Context(), c.Params("id"))
		if errors.Is(err, pgx.ErrNoRows) {
			return fiber.NewError(fiber.StatusNotFound, "zone not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if err := svc.DeleteZone(c.Context(), zone.ID); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if watcher != nil {
			watcher.RemoveZone(zone.DeviceID, zone.ID)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
