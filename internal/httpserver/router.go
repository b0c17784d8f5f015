package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"nexusstore/internal/auth"
	"nexusstore/internal/httpserver/handlers"
	"nexusstore/internal/models"
	"nexusstore/internal/ratelimit"
	"nexusstore/internal/validate"
)

const webhookPath = "/api/checkout/webhook"

func NewRouter(d *handlers.Deps, limiter ratelimit.Limiter) http.Handler {
	mw := auth.NewMiddleware(d.DB, d.Tokens, d.Resp, d.Cfg.DBAcquireWait)
	developer := mw.RequireRole(models.RoleDeveloper, models.RoleAdmin)
	admin := mw.RequireRole(models.RoleAdmin)
	ownsApp := mw.RequireOwnership(handlers.AppOwner(d))
	body := func(s validate.Schema) func(http.Handler) http.Handler { return validate.Body(s, d.Resp) }

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, AccessLog(d.Log), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.Cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(SecurityHeaders, middleware.Compress(5), LimitBody(validate.MaxBodyBytes))
	if d.Metrics != nil {
		r.Use(d.Metrics.Instrument)
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Get("/health", handlers.Health(d))
	r.Handle("/uploads/*", http.StripPrefix("/uploads", noDirListing(http.FileServer(http.Dir(d.Files.Root())))))

	r.Route("/api", func(api chi.Router) {
		if limiter != nil {
			api.Use(ratelimit.Middleware(limiter, d.Resp, d.Log, func(r *http.Request) bool {
				return r.URL.Path == webhookPath
			}))
		}
		api.Get("/", handlers.APIInfo(d))

		api.Route("/auth", func(a chi.Router) {
			a.With(body(validate.Register)).Post("/register", handlers.Register(d))
			a.With(body(validate.Login)).Post("/login", handlers.Login(d))
			a.Group(func(p chi.Router) {
				p.Use(mw.Authenticate)
				p.Get("/me", handlers.Me(d))
				p.With(body(validate.UpdateProfile)).Put("/me", handlers.UpdateProfile(d))
				p.With(body(validate.ChangePassword)).Put("/me/password", handlers.ChangePassword(d))
				p.Post("/logout", handlers.Logout(d))
			})
		})

		api.Route("/apps", func(a chi.Router) {
			a.With(mw.OptionalAuth).Get("/", handlers.ListApps(d))
			a.Get("/featured", handlers.FeaturedApps(d))
			a.Get("/categories", handlers.Categories(d))
			a.Group(func(dev chi.Router) {
				dev.Use(mw.Authenticate, developer)
				dev.With(body(validate.CreateApp)).Post("/", handlers.CreateApp(d))
				dev.Get("/developer/stats", handlers.DeveloperStats(d))
				dev.Get("/developer/apps", handlers.DeveloperApps(d))
			})
			a.With(mw.OptionalAuth).Get("/{id}", handlers.GetApp(d))
			a.With(mw.OptionalAuth).Get("/{id}/download", handlers.DownloadApp(d))
			a.Get("/{id}/reviews", handlers.ListReviews(d))
			a.With(mw.Authenticate, body(validate.Review)).Post("/{id}/reviews", handlers.SubmitReview(d))
			a.With(mw.Authenticate, ownsApp).Get("/{id}/downloads", handlers.AppDownloads(d))
			a.With(mw.Authenticate, ownsApp, body(validate.UpdateApp)).Put("/{id}", handlers.UpdateApp(d))
			a.With(mw.Authenticate, ownsApp).Delete("/{id}", handlers.DeleteApp(d))
		})

		api.Route("/upload", func(u chi.Router) {
			u.Use(mw.Authenticate, developer)
			u.Post("/app/{appId}", handlers.UploadPackage(d))
			u.Post("/icon/{appId}", handlers.UploadIcon(d))
			u.Post("/screenshots/{appId}", handlers.UploadScreenshots(d))
		})

		api.Route("/checkout", func(c chi.Router) {
			c.Post("/webhook", handlers.Webhook(d))
			c.Group(func(p chi.Router) {
				p.Use(mw.Authenticate)
				p.With(body(validate.Checkout)).Post("/", handlers.CreateCheckout(d))
				p.Get("/purchases", handlers.ListPurchases(d))
				p.Get("/owns/{appId}", handlers.CheckOwnership(d))
				p.With(admin, body(validate.Refund)).Post("/purchases/{id}/refund", handlers.RefundPurchase(d))
			})
		})

		api.Route("/admin", func(a chi.Router) {
			a.Use(mw.Authenticate, admin)
			a.Get("/users", handlers.ListUsers(d))
			a.With(body(validate.UpdateRole)).Patch("/users/{id}", handlers.UpdateUserRole(d))
			a.Delete("/users/{id}", handlers.DeleteUser(d))
		})
	})

	r.NotFound(handlers.NotFound(d))
	r.MethodNotAllowed(handlers.MethodNotAllowed(d))
	return r
}
