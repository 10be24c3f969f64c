package server

import (
	"net/http"

	"github.com/civium-ai/custodia/internal/api"
	"github.com/civium-ai/custodia/internal/api/handlers"
	"github.com/civium-ai/custodia/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	CredentialValidator middleware.CredentialValidator
	RetrievalHandler    *handlers.RetrievalHandler
	DocumentHandler     *handlers.DocumentHandler
	AuditHandler        *handlers.AuditHandler
	AdminHandler        *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.CredentialAuth(cfg.CredentialValidator))

		r.Post("/retrieve", cfg.RetrievalHandler.Retrieve)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Ingest)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Put("/{id}/content", cfg.DocumentHandler.ReplaceContent)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Post("/records", cfg.AuditHandler.Append)
			r.Get("/records", cfg.AuditHandler.List)
			r.Get("/verify", cfg.AuditHandler.Verify)
			r.Post("/export", cfg.AuditHandler.Export)
		})
	})

	r.Route("/tenants", func(r chi.Router) {
		r.Post("/", cfg.AdminHandler.CreateTenant)
		r.Get("/", cfg.AdminHandler.ListTenants)
		r.Get("/{id}", cfg.AdminHandler.GetTenant)
		r.Get("/{id}/credentials", cfg.AdminHandler.ListCredentials)
	})
	r.Post("/credentials", cfg.AdminHandler.IssueCredential)
	r.Delete("/credentials/{id}", cfg.AdminHandler.RevokeCredential)

	return r
}
