package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"docintake/internal/logging"
)

// Recover turns a panic in a handler into an error for the global error
// handler, which answers with a generic 500. The panic and its stack are logged.
func Recover() fiber.Handler {
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			rid, _ := c.Locals(RequestIDLocalKey).(string)
			logging.Error("panic_recovered", map[string]any{
				"request_id": rid,
				"method":     c.Method(),
				"path":       c.Path(),
				"panic":      fmt.Sprint(e),
				"stack":      string(debug.Stack()),
			})
		},
	})
}
