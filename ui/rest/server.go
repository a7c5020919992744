package rest

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/AzielCF/az-wacrm/ui/rest/middleware"
)

type ServerOptions struct {
	AppName            string
	BasePath           string
	BasicAuth          []string
	CorsAllowedOrigins []string
	Debug              bool
	// RateLimit is requests per minute per IP; 0 disables the limiter.
	RateLimit int
}

// NewServer builds the fiber app with the shared middleware and returns it
// together with the authenticated /api group.
func NewServer(opts ServerOptions) (*fiber.App, fiber.Router, error) {
	accounts, err := parseAccounts(opts.BasicAuth)
	if err != nil {
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:               opts.AppName,
		DisableStartupMessage: true,
		ServerHeader:          "Hidden",
	})

	app.Use(requestid.New())
	app.Use(middleware.Recovery())
	if len(opts.CorsAllowedOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(opts.CorsAllowedOrigins, ", "),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		}))
	}
	if opts.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
		}))
	}
	if opts.Debug {
		app.Use(logger.New())
	}

	apiGroup := app.Group(opts.BasePath + "/api")
	apiGroup.Use(basicauth.New(basicauth.Config{
		Users: accounts,
		Next: func(c *fiber.Ctx) bool {
			// Allow CORS preflight without credentials.
			return c.Method() == fiber.MethodOptions
		},
	}))

	return app, apiGroup, nil
}

func parseAccounts(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("APP_BASIC_AUTH is required, format <user>:<secret>[,<user2>:<secret2>]")
	}
	accounts := make(map[string]string, len(entries))
	for _, entry := range entries {
		user, secret, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || user == "" || secret == "" {
			return nil, fmt.Errorf("basic auth entry %q is not valid, expected <user>:<secret>", entry)
		}
		accounts[user] = secret
	}
	return accounts, nil
}

// NotFound answers unknown /api routes with JSON instead of fiber's text page.
func NotFound(apiGroup fiber.Router) {
	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})
}
