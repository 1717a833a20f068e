package telegram

import (
	"context"
	"log/slog"

	"github.com/amazo-world/amazo-bot/internal/interface/telegram/handler"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/middleware"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Maps commands, button callbacks and free text to handlers.
// ══════════════════════════════════════════════════════════════════════════════

// HandlerFunc handles one request.
type HandlerFunc func(ctx context.Context, req *handler.Request) error

// TextHandlerFunc handles a non-command message and reports whether it
// consumed it.
type TextHandlerFunc func(ctx context.Context, req *handler.Request) (bool, error)

type route struct {
	handler   HandlerFunc
	adminOnly bool
}

// Route labels used for metrics and logs.
const (
	routeUnknown         = "unknown"
	routeText            = "text"
	routeCallbackUnknown = "callback:unknown"
)

// RouterConfig contains configuration for the Router.
type RouterConfig struct {
	// Auth guards admin commands.
	Auth *middleware.AdminAuth

	Logger *slog.Logger
}

// Router dispatches requests.
type Router struct {
	commands  map[string]route
	callbacks map[string]route
	text      TextHandlerFunc
	unknown   HandlerFunc
	auth      *middleware.AdminAuth
	logger    *slog.Logger
}

// NewRouter creates an empty Router. Unknown commands get the command list
// until Unknown overrides it.
func NewRouter(config RouterConfig) *Router {
	if config.Auth == nil {
		config.Auth = middleware.NewAdminAuth(0)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Router{
		commands:  make(map[string]route),
		callbacks: make(map[string]route),
		unknown: func(ctx context.Context, req *handler.Request) error {
			return req.ReplyText(ctx, presenter.CommandList)
		},
		auth:   config.Auth,
		logger: config.Logger.With("component", "router"),
	}
}

// Command registers a command handler.
func (r *Router) Command(name string, h HandlerFunc) {
	r.commands[name] = route{handler: h}
}

// AdminCommand registers a command only the admin may run. Other users are
// ignored without a reply.
func (r *Router) AdminCommand(name string, h HandlerFunc) {
	r.commands[name] = route{handler: h, adminOnly: true}
}

// Callback registers a handler for an exact callback data value.
func (r *Router) Callback(data string, h HandlerFunc) {
	r.callbacks[data] = route{handler: h}
}

// Text registers the handler for non-command messages.
func (r *Router) Text(h TextHandlerFunc) {
	r.text = h
}

// Unknown replaces the handler for unregistered commands.
func (r *Router) Unknown(h HandlerFunc) {
	r.unknown = h
}

// Label returns a bounded name for the request, used in metrics.
func (r *Router) Label(req *handler.Request) string {
	switch {
	case req.IsCallback():
		if _, ok := r.callbacks[req.CallbackData]; ok {
			return "callback:" + req.CallbackData
		}
		return routeCallbackUnknown
	case req.Command != "":
		if _, ok := r.commands[req.Command]; ok {
			return req.Command
		}
		return routeUnknown
	default:
		return routeText
	}
}

// Dispatch routes the request to its handler.
func (r *Router) Dispatch(ctx context.Context, req *handler.Request) error {
	switch {
	case req.IsCallback():
		rt, ok := r.callbacks[req.CallbackData]
		if !ok {
			r.logger.Debug("unknown callback", "data", req.CallbackData)
			return req.Ack(ctx)
		}
		return rt.handler(ctx, req)

	case req.Command != "":
		rt, ok := r.commands[req.Command]
		if !ok {
			return r.unknown(ctx, req)
		}
		if rt.adminOnly && !r.auth.Authorize(int64(req.UserID), req.IsMessage()) {
			r.logger.Debug("admin command ignored",
				"command", req.Command,
				"telegram_id", req.UserID,
			)
			return nil
		}
		return rt.handler(ctx, req)

	default:
		if r.text == nil {
			return nil
		}
		_, err := r.text(ctx, req)
		return err
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Route table
// ─────────────────────────────────────────────────────────────────────────────

// Handlers groups the handlers wired into the route table.
type Handlers struct {
	Start   *handler.StartHandler
	Entry   *handler.EntryHandler
	Account *handler.AccountHandler
	Admin   *handler.AdminHandler
}

// RegisterRoutes installs the bot's commands and callbacks.
func RegisterRoutes(r *Router, h Handlers) {
	r.Command("start", h.Start.Handle)
	r.Command("enter", h.Entry.Enter)
	r.Command("cancel", h.Entry.Cancel)
	r.Command("balance", h.Account.Balance)
	r.Command("leaderboard", h.Account.Leaderboard)
	r.Command("history", h.Account.History)
	r.Command("help", h.Account.FAQ)
	r.Command("faq", h.Account.FAQ)

	r.AdminCommand("admin", h.Admin.Dashboard)
	r.AdminCommand("new_event", h.Admin.NewEvent)
	r.AdminCommand("pick", h.Admin.Pick)
	r.AdminCommand("broadcast", h.Admin.Broadcast)

	r.Callback(presenter.CallbackStartEntry, h.Entry.Enter)
	r.Callback(presenter.CallbackAcceptTerms, h.Entry.AcceptTerms)
	r.Callback(presenter.CallbackShowFAQ, h.Account.FAQ)
	r.Callback(presenter.CallbackShowBoard, h.Account.Leaderboard)

	r.Text(h.Entry.Wallet)
}
