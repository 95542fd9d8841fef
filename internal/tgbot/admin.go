package tgbot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"basket-booking/internal/booking"
	"basket-booking/internal/models"
	"basket-booking/internal/pdf"
)

func (a *App) showAdminMenu(ctx context.Context, chatID int64) error {
	sessions, err := a.svc.SessionsWithData(ctx)
	if err != nil {
		return err
	}
	today := a.svc.Today()
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, s := range sessions {
		if s.Date < today {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(pdf.DisplayDate(s.Date)+" "+s.Time, "a:s:"+sessionData(s.Date, s.Time)),
		))
	}
	if len(rows) == 0 {
		return a.SendText(chatID, "No hay sesiones próximas.")
	}
	msg := tgbotapi.NewMessage(chatID, "Administración. Elige una sesión:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = a.bot.Send(msg)
	return err
}

func (a *App) handleAdminCallback(ctx context.Context, chatID int64, data string) error {
	kind, rest, _ := strings.Cut(data, ":")
	switch kind {
	case "m":
		return a.showAdminMenu(ctx, chatID)
	case "s":
		date, tm, ok := parseSessionData(rest)
		if !ok {
			return nil
		}
		return a.showAdminSession(ctx, chatID, date, tm)
	case "t":
		// t:<scope>:<open|closed>:<date>|<time>
		parts := strings.SplitN(rest, ":", 3)
		if len(parts) != 3 {
			return nil
		}
		date, tm, ok := parseSessionData(parts[2])
		if !ok {
			return nil
		}
		st := models.StatusOpen
		if parts[1] == "closed" {
			st = models.StatusClosed
		}
		if _, err := a.svc.SetStatus(ctx, date, tm, models.Scope(parts[0]), st); err != nil {
			return err
		}
		return a.showAdminSession(ctx, chatID, date, tm)
	case "r":
		date, tm, ok := parseSessionData(rest)
		if !ok {
			return nil
		}
		return a.sendRoster(ctx, chatID, date, tm)
	}
	return nil
}

func statusWord(s models.Status) string {
	if s == models.StatusClosed {
		return "CERRADA"
	}
	return "ABIERTA"
}

func toggleButton(label string, scope models.Scope, cur models.Status, key string) tgbotapi.InlineKeyboardButton {
	next, verb := "closed", "Cerrar"
	if cur == models.StatusClosed {
		next, verb = "open", "Reabrir"
	}
	return tgbotapi.NewInlineKeyboardButtonData(verb+" "+label, "a:t:"+string(scope)+":"+next+":"+key)
}

func (a *App) showAdminSession(ctx context.Context, chatID int64, date, tm string) error {
	r, err := a.svc.Roster(ctx, date, tm)
	if err != nil {
		return err
	}
	key := sessionData(r.Date, r.Time)
	text := fmt.Sprintf("%s · %s\nSesión: %s\n%s: %s (%d confirmados, %d en espera)\n%s: %s (%d confirmados, %d en espera)",
		pdf.LongDate(r.Date), r.Time, statusWord(r.State.Global),
		models.CategoryMini, statusWord(r.State.Mini), len(r.Group(models.CategoryMini).Confirmed), len(r.Group(models.CategoryMini).Waitlist),
		models.CategoryGrande, statusWord(r.State.Grande), len(r.Group(models.CategoryGrande).Confirmed), len(r.Group(models.CategoryGrande).Waitlist),
	)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(toggleButton("sesión", models.ScopeGlobal, r.State.Global, key)),
		tgbotapi.NewInlineKeyboardRow(
			toggleButton("Mini", models.ScopeMini, r.State.Mini, key),
			toggleButton("Grande", models.ScopeGrande, r.State.Grande, key),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📄 Listado PDF", "a:r:"+key),
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Sesiones", "a:m"),
		),
	)
	_, err = a.bot.Send(msg)
	return err
}

func (a *App) sendRoster(ctx context.Context, chatID int64, date, tm string) error {
	r, err := a.svc.Roster(ctx, date, tm)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := pdf.Roster(&buf, pdf.FromRoster("Tecnificación Baloncesto", r)); err != nil {
		return fmt.Errorf("render roster: %w", err)
	}
	return a.sendDocument(chatID, pdf.RosterFilename(r.Date, r.Time), buf.Bytes(),
		fmt.Sprintf("Confirmados: %d · Lista de espera: %d", r.ConfirmedCount(), r.WaitlistCount()))
}

// Notifier posts every accepted registration to the organisers' chat.
type Notifier struct {
	bot    sender
	chatID int64
}

var _ booking.Notifier = (*Notifier)(nil)

func NewNotifier(api *tgbotapi.BotAPI, chatID int64) *Notifier {
	return &Notifier{bot: api, chatID: chatID}
}

func (n *Notifier) NotifyRegistration(_ context.Context, res *booking.Result) error {
	r := res.Registration
	list := "confirmada"
	if res.Outcome == booking.OutcomeWaitlisted {
		list = "lista de espera"
	}
	text := fmt.Sprintf("Nueva inscripción (%s)\n%s · %s\n%s · %s · %s", list,
		pdf.DisplayDate(r.Date), r.Time, r.Player, r.Category, r.Team)
	_, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text))
	return err
}
