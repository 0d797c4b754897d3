// Package api implements the downstream HTTP/JSON surface: a single Go
// 1.22 http.ServeMux with method-pattern routes, no third-party router.
// Mutation endpoints accept a UserContext already extracted by an external
// middleware; this core parses no cookies or CSRF tokens itself.
package api

import (
	"context"
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/eventbus"
	"github.com/meshmonitor/meshmonitor/internal/scheduler"
	"github.com/meshmonitor/meshmonitor/internal/session"
	"github.com/meshmonitor/meshmonitor/internal/store"
)

// LocalNode reports the current local node number, as last learned from a
// FromRadio MyInfo frame. Reads must never block on the ingest path.
type LocalNode func() uint32

// SessionControl is the subset of *session.Session the handlers drive,
// declared locally so tests can substitute a fake without standing up a
// transport.
type SessionControl interface {
	State() session.State
	Send(ctx context.Context, packetID uint32, payload []byte) error
	SendNoAck(ctx context.Context, payload []byte) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Reboot(ctx context.Context)
}

// Deps bundles everything the route handlers close over.
type Deps struct {
	DB          *store.DB
	Session     SessionControl
	Bus         *eventbus.Bus
	Scheduler   *scheduler.Scheduler
	LocalNode   LocalNode
	CORSOrigins []string
	Log         *zap.Logger
}

type handlers struct {
	deps Deps
}

// NewRouter wires every route onto a ServeMux and wraps it in CORS
// middleware, since this HTTP layer is consumed by a separately-deployed
// browser UI.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/config", h.getConfig)
	mux.HandleFunc("GET /api/connection", h.getConnection)
	mux.HandleFunc("POST /api/connection/disconnect", h.postDisconnect)
	mux.HandleFunc("POST /api/connection/reconnect", h.postReconnect)

	mux.HandleFunc("GET /api/nodes", h.listNodes)
	mux.HandleFunc("POST /api/nodes/refresh", h.refreshNodes)
	mux.HandleFunc("POST /api/nodes/{id}/favorite", h.setFavorite)
	mux.HandleFunc("GET /api/nodes/{id}/position-history", h.nodePositionHistory)

	mux.HandleFunc("GET /api/messages", h.listMessages)
	mux.HandleFunc("GET /api/messages/{id}/reactions", h.messageReactions)
	mux.HandleFunc("POST /api/messages/send", h.sendMessage)
	mux.HandleFunc("POST /api/messages/read", h.markRead)

	mux.HandleFunc("GET /api/channels", h.listChannels)
	mux.HandleFunc("POST /api/channels/{id}", h.setChannel)

	mux.HandleFunc("GET /api/traceroutes/recent", h.recentTraceroutes)
	mux.HandleFunc("POST /api/traceroute", h.requestTraceroute)

	mux.HandleFunc("GET /api/neighbor-info", h.neighborInfo)

	mux.HandleFunc("GET /api/telemetry/available/nodes", h.availableTelemetryNodes)

	mux.HandleFunc("GET /api/poll", h.poll)

	mux.HandleFunc("GET /api/scheduler/jobs", h.schedulerJobs)

	mux.HandleFunc("GET /api/settings", h.getSettings)
	mux.HandleFunc("POST /api/settings", h.postSettings)

	mux.HandleFunc("POST /api/purge/nodes", h.purgeNodes)
	mux.HandleFunc("POST /api/purge/messages", h.purgeMessages)
	mux.HandleFunc("POST /api/purge/telemetry", h.purgeTelemetry)

	mux.HandleFunc("POST /api/device/reboot", h.rebootDevice)
	mux.HandleFunc("POST /api/device/owner", h.setOwner)

	mux.HandleFunc("GET /api/events", h.events)

	c := cors.New(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-CSRF-Token"},
	})
	return c.Handler(mux)
}
