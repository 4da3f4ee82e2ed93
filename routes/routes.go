package routes

import (
	"github.com/Dosada05/ladder-system/handlers"
	"github.com/Dosada05/ladder-system/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	sessionHandler *handlers.SessionHandler,
	matchHandler *handlers.MatchHandler,
	ratingHandler *handlers.RatingHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	router.Get("/swagger/*", httpSwagger.WrapHandler)

	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)

	router.Route("/users", func(r chi.Router) {
		r.Get("/{userID}", userHandler.GetUserByID)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/me", userHandler.GetCurrentUser)
			r.Post("/me/avatar", userHandler.UploadAvatar)
		})
	})

	router.Route("/sessions", func(r chi.Router) {
		// Публичные маршруты для просмотра сессий и матчей.
		r.Get("/", sessionHandler.List)
		r.Get("/{sessionID}", sessionHandler.GetByID)
		r.Get("/{sessionID}/matches", matchHandler.ListBySession)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/", sessionHandler.Create)
			r.Post("/{sessionID}/complete", sessionHandler.Complete)
			r.Post("/{sessionID}/matches/generate", sessionHandler.GenerateMatches)
			r.Put("/{sessionID}/matches/{matchID}/score", matchHandler.EditScore)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}/history", matchHandler.GetEloHistory)
	})

	router.Route("/ratings", func(r chi.Router) {
		r.Get("/singles", ratingHandler.TopSingles)
		r.Get("/doubles", ratingHandler.TopDoubles)
		r.Get("/teams", ratingHandler.TopTeams)
	})

	router.Get("/ws/sessions/{sessionID}", webSocketHandler.ServeWs)
}
