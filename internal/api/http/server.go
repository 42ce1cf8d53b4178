package http

import "github.com/gofiber/fiber/v2"

// NewApp builds the fiber app. Immutable copies params and bodies out of the
// pooled request buffer, so ids handed to the engine outlive the handler.
func NewApp(name string, quiet bool) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: quiet,
		Immutable:             true,
	})
}
