package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// Let browsers from listed origins call API with cookies
// Preflight requests are answered here and never reach router
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	})

	return c.Handler
}
