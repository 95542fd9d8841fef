package tgbot

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"basket-booking/internal/booking"
	"basket-booking/internal/models"
	"basket-booking/internal/pdf"
)

const (
	stepPlayer = iota + 1
	stepCategory
	stepTeam
	stepTeamOther
	stepGuardian
	stepPhone
	stepEmail
)

// ---------- Sessions ----------

func (a *App) showSessions(ctx context.Context, chatID int64) error {
	snap, err := a.svc.Snapshot(ctx)
	if err != nil {
		return err
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, s := range snap.UpcomingSessions(a.svc.Today()) {
		av := snap.Availability(s.Date, s.Time)
		if !av.Bookable() {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(sessionButton(av), "u:s:"+sessionData(s.Date, s.Time)),
		))
	}
	if len(rows) == 0 {
		return a.SendText(chatID, "De momento no hay fechas futuras disponibles.")
	}
	text := "Próximas sesiones. Elige una para reservar:"
	if a.cfg.BasePublicURL != "" {
		text += "\nTambién en la web: " + a.cfg.BasePublicURL + "/"
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = a.bot.Send(msg)
	return err
}

var levelMark = map[string]string{"red": "🟥", "yellow": "🟨", "green": "🟩"}

func sessionButton(av booking.Availability) string {
	parts := []string{}
	for _, c := range av.Categories {
		if !c.Status.Open() {
			parts = append(parts, fmt.Sprintf("%s cerrada", shortName(c.Category)))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d/%d", shortName(c.Category), c.Free, av.Capacity))
	}
	return fmt.Sprintf("%s %s %s · %s", levelMark[av.Level()], pdf.DisplayDate(av.Date), av.Time, strings.Join(parts, " · "))
}

func shortName(c models.Category) string {
	if c == models.CategoryMini {
		return "Mini"
	}
	return "Grande"
}

// ---------- Callbacks ----------

func (a *App) handleUserCallback(ctx context.Context, tgID, chatID int64, data string) error {
	kind, rest, _ := strings.Cut(data, ":")
	switch kind {
	case "s":
		date, tm, ok := parseSessionData(rest)
		if !ok {
			return nil
		}
		a.state[tgID] = userState{Flow: flowBooking, Step: stepPlayer, Data: map[string]string{"date": date, "time": tm}}
		return a.SendText(chatID, fmt.Sprintf("Sesión del %s a las %s.\nEscribe el nombre del jugador/a (o /cancel):", pdf.DisplayDate(date), tm))
	case "c":
		st := a.state[tgID]
		cat, ok := scopeCategory(rest)
		if st.Flow != flowBooking || st.Step != stepCategory || !ok {
			return a.SendText(chatID, "Pulsa /start para empezar.")
		}
		st.Data["category"] = string(cat)
		st.Step = stepTeam
		a.state[tgID] = st
		return a.askTeam(chatID)
	case "t":
		st := a.state[tgID]
		i, err := strconv.Atoi(rest)
		if st.Flow != flowBooking || st.Step != stepTeam || err != nil || i < 0 || i >= len(models.TeamOptions) {
			return a.SendText(chatID, "Pulsa /start para empezar.")
		}
		team := models.TeamOptions[i]
		st.Data["team"] = team
		if team == models.OtherTeam {
			st.Step = stepTeamOther
			a.state[tgID] = st
			return a.SendText(chatID, "Escribe la categoría o equipo:")
		}
		st.Step = stepGuardian
		a.state[tgID] = st
		return a.SendText(chatID, "Nombre del tutor/a (o «-» si no aplica):")
	}
	return nil
}

// ---------- Flow ----------

func (a *App) handleBookingInput(ctx context.Context, tgID, chatID int64, txt string, st userState) error {
	switch st.Step {
	case stepPlayer:
		if txt == "" {
			return a.SendText(chatID, "El nombre no puede estar vacío. Escríbelo de nuevo:")
		}
		st.Data["player"] = txt
		st.Step = stepCategory
		a.state[tgID] = st
		return a.askCategory(ctx, chatID, st)
	case stepTeamOther:
		st.Data["team_other"] = txt
		st.Step = stepGuardian
		a.state[tgID] = st
		return a.SendText(chatID, "Nombre del tutor/a (o «-» si no aplica):")
	case stepGuardian:
		st.Data["guardian"] = dash(txt)
		st.Step = stepPhone
		a.state[tgID] = st
		return a.SendText(chatID, "Teléfono de contacto (máximo 9 dígitos):")
	case stepPhone:
		st.Data["phone"] = txt
		st.Step = stepEmail
		a.state[tgID] = st
		return a.SendText(chatID, "Email (o «-» para omitirlo):")
	case stepEmail:
		st.Data["email"] = dash(txt)
		a.state[tgID] = userState{}
		return a.submit(ctx, chatID, st)
	default:
		return a.SendText(chatID, "Usa los botones del mensaje anterior o pulsa /start.")
	}
}

func dash(s string) string {
	if strings.TrimSpace(s) == "-" {
		return ""
	}
	return s
}

func (a *App) askCategory(ctx context.Context, chatID int64, st userState) error {
	snap, err := a.svc.Snapshot(ctx)
	if err != nil {
		return err
	}
	av := snap.Availability(st.Data["date"], st.Data["time"])
	row := []tgbotapi.InlineKeyboardButton{}
	for _, c := range av.Categories {
		if !c.Status.Open() {
			continue
		}
		label := string(c.Category)
		if c.Free == 0 {
			label += " (lista de espera)"
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "u:c:"+string(models.ScopeFor(c.Category))))
	}
	if len(row) == 0 {
		return a.SendText(chatID, "Las inscripciones de esta sesión están cerradas.")
	}
	msg := tgbotapi.NewMessage(chatID, "Elige la canasta:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	_, err = a.bot.Send(msg)
	return err
}

func (a *App) askTeam(chatID int64) error {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for i := 0; i < len(models.TeamOptions); i += 2 {
		row := tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(models.TeamOptions[i], "u:t:"+strconv.Itoa(i)))
		if i+1 < len(models.TeamOptions) {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(models.TeamOptions[i+1], "u:t:"+strconv.Itoa(i+1)))
		}
		rows = append(rows, row)
	}
	msg := tgbotapi.NewMessage(chatID, "Elige la categoría o equipo:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err := a.bot.Send(msg)
	return err
}

var outcomeText = map[booking.Outcome]string{
	booking.OutcomeConfirmed:           "✅ Inscripción realizada correctamente.",
	booking.OutcomeWaitlisted:          "ℹ️ No hay plazas en esta categoría. Te hemos añadido a la lista de espera.",
	booking.OutcomeRejectedClosed:      "❌ Esta categoría está cerrada para esta sesión.",
	booking.OutcomeDuplicateConfirmed:  "❌ Este jugador ya está inscrito en esta sesión.",
	booking.OutcomeDuplicateWaitlisted: "ℹ️ Este jugador ya está en lista de espera para esta sesión.",
}

var fieldLabels = map[string]string{
	"date": "Fecha", "time": "Hora", "player": "Jugador", "category": "Canasta",
	"team": "Equipo", "guardian": "Tutor", "phone": "Teléfono", "email": "Email",
}

func (a *App) submit(ctx context.Context, chatID int64, st userState) error {
	d := st.Data
	res, err := a.svc.Register(ctx, booking.Request{
		Date: d["date"], Time: d["time"], Player: d["player"], Category: d["category"],
		Team: d["team"], TeamOther: d["team_other"], Guardian: d["guardian"],
		Phone: d["phone"], Email: d["email"],
	})
	if err != nil {
		return err
	}

	if res.Outcome == booking.OutcomeRejected {
		fields := make([]string, 0, len(res.Errors))
		for f := range res.Errors {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		lines := []string{"No se ha podido completar la reserva:"}
		for _, f := range fields {
			label := fieldLabels[f]
			if label == "" {
				label = f
			}
			lines = append(lines, fmt.Sprintf("• %s: %s", label, res.Errors[f]))
		}
		lines = append(lines, "Pulsa /start para intentarlo de nuevo.")
		return a.SendText(chatID, strings.Join(lines, "\n"))
	}

	if err := a.SendText(chatID, outcomeText[res.Outcome]); err != nil {
		return err
	}
	if !res.Outcome.Accepted() {
		return nil
	}
	if url := a.channelURL(res.Registration.Category); url != "" {
		if err := a.SendText(chatID, "Únete al canal de tu categoría para recibir avisos: "+url); err != nil {
			return err
		}
	}

	r := res.Registration
	var buf bytes.Buffer
	if err := pdf.Confirmation(&buf, pdf.FromRegistration(r, res.Outcome == booking.OutcomeWaitlisted)); err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}
	return a.sendDocument(chatID, pdf.ConfirmationFilename(r.Date, r.Player, r.Time), buf.Bytes(), "Justificante")
}

func (a *App) channelURL(category string) string {
	if category == string(models.CategoryMini) {
		return a.cfg.ChannelMiniURL
	}
	return a.cfg.ChannelGrandeURL
}
