package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewApp creates the Fiber app with the service-wide error handler, JSON
// codec and middleware. Routes are added by RegisterRoutes.
func NewApp(bodyLimit int) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "stock-smart-kitchen",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          35 * time.Second,
		BodyLimit:             bodyLimit,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(CorrelationID())
	app.Use(RequestLogger())
	app.Use(cors.New())

	return app
}
