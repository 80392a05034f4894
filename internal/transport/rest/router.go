package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/institution-management/internal/auth"
	"github.com/frahmantamala/institution-management/internal/catalog"
	"github.com/frahmantamala/institution-management/internal/metrics"
	"github.com/frahmantamala/institution-management/internal/provisioning"
	"github.com/frahmantamala/institution-management/internal/transport/middleware"
	"github.com/frahmantamala/institution-management/internal/transport/swagger"
	"github.com/frahmantamala/institution-management/internal/user"
	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Health       *HealthHandler
	Auth         *auth.Handler
	RBAC         *auth.RBACAuthorization
	User         *user.Handler
	Provisioning *provisioning.Handler
}

type Options struct {
	Institutions    catalog.InstitutionRepository
	Validator       *middleware.OpenAPIValidator
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer
	MetricsPath     string
	OpenAPISpecPath string
	Logger          *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(opts.Logger))
	if opts.Metrics != nil {
		router.Use(middleware.Metrics(opts.Metrics))
	}
	router.Use(middleware.LoggingMiddleware(opts.Logger))

	if opts.OpenAPISpecPath != "" {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, opts.OpenAPISpecPath)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}
	if opts.Gatherer != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health.healthCheckHandler)
		r.Get("/ping", h.Health.pingHandler)

		r.Group(func(tr chi.Router) {
			tr.Use(middleware.TenantResolver(opts.Institutions, opts.Logger))
			tr.Use(h.Auth.AuthMiddleware)
			if opts.Validator != nil {
				tr.Use(opts.Validator.Middleware)
			}

			tr.Route("/users", func(ur chi.Router) {
				ur.With(h.RBAC.Middleware(auth.PermissionUsersView)).Get("/", h.User.ListUsers)
				ur.Get("/me", h.User.GetMe)
				ur.With(h.RBAC.Middleware(auth.PermissionUsersView)).Get("/{id:[0-9]+}", h.User.GetUser)
				ur.With(h.RBAC.Middleware(auth.PermissionUsersDeactivate)).Post("/{id:[0-9]+}/deactivate", h.User.DeactivateUser)

				ur.Group(func(pr chi.Router) {
					pr.Use(h.RBAC.Middleware(auth.PermissionUsersCreate))
					pr.Post("/{userType}", h.Provisioning.CreateUser)
					pr.Post("/{userType}/bulk", h.Provisioning.CreateUsersBulk)
				})
			})

			tr.With(h.RBAC.Middleware(auth.PermissionRolesManage)).
				Put("/roles/defaults/{userType}", h.Provisioning.ChangeDefaultRole)
		})
	})
}
