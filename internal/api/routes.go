package api

import (
	"net/http"

	"petadopt/internal/auth"
	"petadopt/internal/geo"
	"petadopt/internal/service"
	"petadopt/internal/storage"
	"petadopt/internal/ws"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Dependencies struct {
	Auth          *auth.Authenticator
	Users         *service.UserService
	Organizations *service.OrganizationService
	Animals       *service.AnimalService
	Procedures    *service.ProcedureService
	Adoptions     *service.AdoptionService
	Geo           *geo.Client
	Blobs         storage.Storage
	Hub           *ws.Hub
	Log           *zap.Logger
	// MaxUploadMB bounds the multipart body of photo uploads.
	MaxUploadMB int64
}

func Routes(d Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger(d.Log))
	// Anonymous requests pass; handlers that need a session check for one.
	r.Use(d.Auth.Middleware)
	r.Use(d.activeOrganization)

	// Identity
	r.Post("/auth/register", d.register)
	r.Post("/auth/login", d.login)
	r.Post("/auth/logout", d.logout)
	r.Get("/me", d.me)

	// Organizations
	r.Post("/organizations", d.createOrganization)
	r.Get("/organizations", d.listOrganizations)
	r.Get("/organizations/{id}", d.getOrganization)
	r.Put("/organizations/{id}", d.updateOrganization)
	r.Post("/organizations/{id}/members", d.addMember)
	r.Delete("/organizations/{id}/members/{userID}", d.removeMember)

	// Animals and procedures
	r.Get("/animals", d.searchAnimals)
	r.Post("/animals", d.createAnimal)
	r.Get("/animals/{id}", d.getAnimal)
	r.Put("/animals/{id}", d.updateAnimal)
	r.Patch("/animals/{id}/status", d.setAnimalStatus)
	r.Delete("/animals/{id}", d.deleteAnimal)
	r.Get("/animals/{id}/procedures", d.listProcedures)
	r.Post("/animals/{id}/procedures", d.createProcedure)
	r.Delete("/procedures/{id}", d.deleteProcedure)

	// Adoption requests
	r.Post("/adoption-requests", d.createAdoptionRequest)
	r.Get("/adoption-requests/mine", d.listMyAdoptionRequests)
	r.Get("/adoption-requests/organization", d.listOrganizationAdoptionRequests)
	r.Get("/adoption-requests/{id}", d.getAdoptionRequest)
	r.Post("/adoption-requests/{id}/decision", d.decideAdoptionRequest)
	r.Delete("/adoption-requests/{id}", d.withdrawAdoptionRequest)

	// Localities
	r.Get("/geo/states", d.listStates)
	r.Get("/geo/states/{id}/cities", d.listCities)

	// WebSocket endpoint
	r.Get("/ws", d.wsHandler)

	return otelhttp.NewHandler(r, "petadopt-api",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.Header.Get("Upgrade") != "websocket"
		}),
	)
}
