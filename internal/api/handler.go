package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/service"
)

// Handler serves the shipping records over HTTP.
type Handler struct {
	svc    *service.Shipping
	logger *slog.Logger
}

// NewHandler creates a Handler for svc.
func NewHandler(svc *service.Shipping, logger *slog.Logger) *Handler {
	if svc == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("shipping service cannot be nil for Handler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for Handler")
	}
	return &Handler{
		svc:    svc,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// Mount registers every route on r.
//
//	/destinations          CRUD, POST /meta counts
//	/destinations/{id}/items
//	/items                 CRUD, GET /{id}/destination, GET /{id}/shipment
//	/packages              CRUD, GET /{id}/destination
//	/packages/{id}/shipments
//	/shipments             CRUD, GET /{id}/package
//	/shipments/{id}/items
//
// Collection routes take GET to list, POST to connect, DELETE to disconnect
// and PATCH to replace the members.
func (h *Handler) Mount(r chi.Router) {
	s := h.svc

	r.Route("/destinations", func(r chi.Router) {
		registerResource(r, newResource[*domain.Destination,
			CreateDestinationRequest, UpdateDestinationRequest](s.Destinations, h.logger))
		registerCollection(r, newCollection(s.DestinationItems, h.logger))
	})

	r.Route("/items", func(r chi.Router) {
		registerResource(r, newResource[*domain.Item,
			CreateItemRequest, UpdateItemRequest](s.Items, h.logger))
		registerReference(r, "destination", s.ItemDestination)
		registerReference(r, "shipment", s.ItemShipment)
	})

	r.Route("/packages", func(r chi.Router) {
		registerResource(r, newResource[*domain.Package,
			CreatePackageRequest, UpdatePackageRequest](s.Packages, h.logger))
		registerCollection(r, newCollection(s.PackageShipments, h.logger))
		registerReference(r, "destination", s.PackageDestination)
	})

	r.Route("/shipments", func(r chi.Router) {
		registerResource(r, newResource[*domain.Shipment,
			CreateShipmentRequest, UpdateShipmentRequest](s.Shipments, h.logger))
		registerCollection(r, newCollection(s.ShipmentItems, h.logger))
		registerReference(r, "package", s.ShipmentPackage)
	})
}

// Routes returns a router serving every route below /.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}
