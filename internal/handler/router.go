package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-journal/backend/internal/auth"
	"github.com/zhouzirui/z-journal/backend/internal/handler/guided"
	"github.com/zhouzirui/z-journal/backend/internal/handler/relay"
	"github.com/zhouzirui/z-journal/backend/internal/handler/usage"
	middlewarePkg "github.com/zhouzirui/z-journal/backend/internal/middleware"
	guidedModel "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	"github.com/zhouzirui/z-journal/backend/pkg/utils"
)

// Services 汇总路由需要的服务。
type Services struct {
	Verifier    auth.Verifier
	Usage       usage.Reporter
	Definitions guidedModel.Store
	Router      relay.ModeResolver
	Relay       *relay.Handler
	CORSOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(svc.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// WebSocket relay
	if svc.Relay != nil {
		svc.Relay.RegisterRoutes(r)
	}

	r.Route("/api", func(api chi.Router) {
		usage.New(svc.Verifier, svc.Usage).RegisterRoutes(api)
		guided.New(svc.Definitions, svc.Router).RegisterRoutes(api)
	})

	return r
}
