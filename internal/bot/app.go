// Package bot wires the Telegram surface: user-facing commands, the contact
// entry conversation and the operator verdict buttons.
package bot

import (
	"context"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/promolabs/promobot/core/config"
	tg "github.com/promolabs/promobot/core/telegram"
	"github.com/promolabs/promobot/core/telegram/commands"
	"github.com/promolabs/promobot/core/telegram/helpers"
	"github.com/promolabs/promobot/core/telegram/router"
	"github.com/promolabs/promobot/core/telegram/state"
	"github.com/promolabs/promobot/internal/moderation"
	"github.com/promolabs/promobot/internal/notify"
	"github.com/promolabs/promobot/internal/users"
)

// App bundles the bot-side services and exposes the assembled run options.
type App struct {
	cfg      *coreconfig.Config
	store    *users.Store
	importer *moderation.Importer
	workflow *moderation.Workflow
	gate     *moderation.Gate
	notifier *notify.TelegramNotifier

	fsm state.Manager
}

func NewApp(
	cfg *coreconfig.Config,
	store *users.Store,
	importer *moderation.Importer,
	workflow *moderation.Workflow,
	gate *moderation.Gate,
	notifier *notify.TelegramNotifier,
) *App {
	a := &App{
		cfg:      cfg,
		store:    store,
		importer: importer,
		workflow: workflow,
		gate:     gate,
		notifier: notifier,
		fsm:      state.NewMemoryManager(),
	}
	a.registerConversations()
	return a
}

// RunOptions assembles the full transport configuration: registry, routes,
// middleware chain and the notifier binding hook.
func (a *App) RunOptions() tg.RunOptions {
	reg := tg.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Register and show current status",
	})
	reg.RegisterCommand("/status", commands.Command{
		Handler:     a.handleStatus,
		Description: "Show moderation status",
	})
	reg.RegisterCommand("/contacts", commands.Command{
		Handler:     a.handleContacts,
		Description: "Enter your contact list",
	})
	reg.RegisterCommand("/publish", commands.Command{
		Handler:     a.handlePublish,
		Description: "Request promo publication",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handleCancel,
		Description: "Abort the current operation",
		Hidden:      true,
	})
	reg.RegisterCommand("/pending", commands.Command{
		Handler:      a.handlePending,
		Description:  "List users waiting for review",
		OperatorOnly: true,
		Hidden:       true,
	})

	_ = reg.RegisterCallback(notify.CallbackApprove, a.handleVerdict(moderation.DecisionApprove))
	_ = reg.RegisterCallback(notify.CallbackReject, a.handleVerdict(moderation.DecisionReject))

	reg.SetTextFallback(func(c tele.Context) error {
		return helpers.SendText(c, "I did not get that. Try /contacts to submit your list or /status to check where you are.")
	})

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		OperatorIDs: a.cfg.Moderation.OperatorIDs,
		OnOperatorReject: func(c tele.Context) error {
			return helpers.SendText(c, "This command is for moderation operators.")
		},
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.fsm, reg, router.TextOptions{})...)

	return tg.RunOptions{
		Config:   a.cfg,
		Registry: reg,
		Routes:   routes,
		Middlewares: tg.DefaultMiddlewares(a.cfg, func(c tele.Context) error {
			return helpers.SendText(c, "Easy there. Give it a few seconds and try again.")
		}),
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.notifier.Bind(rt.Bot, rt.Dispatcher)
			return nil
		},
	}
}
