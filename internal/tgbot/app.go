// Package tgbot is the Telegram front end. It drives the same booking
// service as the web pages through a small per-user step flow.
package tgbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"basket-booking/internal/booking"
	"basket-booking/internal/config"
	"basket-booking/internal/logging"
	"basket-booking/internal/models"
	"basket-booking/internal/sheets"
)

// sender is the part of the bot API the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type App struct {
	cfg config.Config
	api *tgbotapi.BotAPI
	bot sender
	svc *booking.Service

	// per-user flow state; only touched from the update loop
	state map[int64]userState
}

type userState struct {
	Flow string
	Step int
	Data map[string]string
}

const flowBooking = "book"

// Connect logs in with the bot token.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	b, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	b.Debug = false
	return b, nil
}

func New(cfg config.Config, svc *booking.Service, api *tgbotapi.BotAPI) *App {
	a := newApp(cfg, svc, api)
	a.api = api
	return a
}

func newApp(cfg config.Config, svc *booking.Service, s sender) *App {
	return &App{cfg: cfg, bot: s, svc: svc, state: map[int64]userState{}}
}

func (a *App) Run(ctx context.Context) error {
	if a.api == nil {
		return errors.New("telegram bot: no api client")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.api.GetUpdatesChan(u)
	defer a.api.StopReceivingUpdates()
	logging.FromContext(ctx).Info("telegram bot started", "user", a.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			a.handleUpdate(ctx, upd)
		}
	}
}

func (a *App) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	log := logging.FromContext(ctx)
	switch {
	case upd.Message != nil:
		if err := a.handleMessage(ctx, upd.Message); err != nil {
			log.Error("handle telegram message", "err", err)
			a.reportError(upd.Message.Chat.ID, err)
		}
	case upd.CallbackQuery != nil:
		if err := a.handleCallback(ctx, upd.CallbackQuery); err != nil {
			log.Error("handle telegram callback", "err", err)
			a.reportError(upd.CallbackQuery.From.ID, err)
		}
	}
}

func (a *App) reportError(chatID int64, err error) {
	msg := "No se han podido leer o guardar los datos. Inténtalo de nuevo en unos minutos."
	switch {
	case sheets.IsConfig(err):
		msg = "Problema de configuración del servicio. Avisa a la organización."
	case errors.Is(err, booking.ErrInvalidSession), errors.Is(err, booking.ErrSessionNotFound):
		msg = "Sesión no válida."
	}
	_ = a.SendText(chatID, msg)
}

func (a *App) SendText(chatID int64, text string) error {
	_, err := a.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (a *App) sendDocument(chatID int64, name string, b []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: b})
	doc.Caption = caption
	_, err := a.bot.Send(doc)
	return err
}

func (a *App) isAdmin(tgID int64) bool {
	return a.cfg.AdminTGIDs[tgID]
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.From == nil || m.Chat == nil {
		return nil
	}
	tgID, chatID := m.From.ID, m.Chat.ID
	txt := strings.TrimSpace(m.Text)

	switch {
	case strings.HasPrefix(txt, "/start"):
		a.state[tgID] = userState{}
		return a.showSessions(ctx, chatID)
	case strings.HasPrefix(txt, "/admin"):
		if !a.isAdmin(tgID) {
			return a.SendText(chatID, "Acceso restringido.")
		}
		a.state[tgID] = userState{}
		return a.showAdminMenu(ctx, chatID)
	case strings.HasPrefix(txt, "/cancel"):
		a.state[tgID] = userState{}
		return a.SendText(chatID, "Reserva cancelada. Pulsa /start para empezar de nuevo.")
	}

	st := a.state[tgID]
	if st.Flow == flowBooking {
		return a.handleBookingInput(ctx, tgID, chatID, txt, st)
	}
	return a.SendText(chatID, "Pulsa /start para ver las próximas sesiones.")
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	// ack
	_, _ = a.bot.Request(tgbotapi.NewCallback(q.ID, ""))

	tgID := q.From.ID
	chatID := tgID
	if q.Message != nil && q.Message.Chat != nil {
		chatID = q.Message.Chat.ID
	}

	switch {
	case strings.HasPrefix(q.Data, "u:"):
		return a.handleUserCallback(ctx, tgID, chatID, strings.TrimPrefix(q.Data, "u:"))
	case strings.HasPrefix(q.Data, "a:"):
		if !a.isAdmin(tgID) {
			return a.SendText(chatID, "Acceso restringido.")
		}
		return a.handleAdminCallback(ctx, chatID, strings.TrimPrefix(q.Data, "a:"))
	}
	return nil
}

// Session keys travel in callback data as "YYYY-MM-DD|HH:MM".
func sessionData(date, tm string) string { return date + "|" + tm }

func parseSessionData(s string) (string, string, bool) {
	date, tm, ok := strings.Cut(s, "|")
	return date, tm, ok && date != "" && tm != ""
}

func scopeCategory(s string) (models.Category, bool) {
	switch models.Scope(s) {
	case models.ScopeMini:
		return models.CategoryMini, true
	case models.ScopeGrande:
		return models.CategoryGrande, true
	}
	return "", false
}
