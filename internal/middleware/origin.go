package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/unichat-backend/internal/httpx"
)

// OriginAllowed rejects browser requests whose Origin is not in the
// comma-separated list. Requests without an Origin header (native clients)
// pass. An empty list or "*" allows every origin.
func OriginAllowed(origins string) fiber.Handler {
	allowed := make(map[string]struct{})
	for _, o := range SplitCSV(origins) {
		allowed[normalizeOrigin(o)] = struct{}{}
	}
	_, allowAll := allowed["*"]

	return func(c *fiber.Ctx) error {
		origin := normalizeOrigin(c.Get(fiber.HeaderOrigin))
		if origin == "" || allowAll || len(allowed) == 0 {
			return c.Next()
		}
		if _, ok := allowed[origin]; !ok {
			return httpx.Forbidden(c, "forbidden_origin", "Origin not allowed")
		}
		return c.Next()
	}
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}

// SplitCSV splits a comma-separated setting, dropping blanks.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
