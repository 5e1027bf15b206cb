package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dreamtalk/dreamtalk/internal/gateway"
	"github.com/dreamtalk/dreamtalk/internal/models"
)

// keywordCancel aborts any dialog in progress.
const keywordCancel = "отмена"

// dialog is one in-progress multi-step exchange (login or registration).
// step consumes one user input and returns the reply text plus whether the
// dialog is finished.
type dialog interface {
	step(ctx context.Context, b *Bot, from string, user *userState, input string) (reply string, done bool)
}

// continueDialog feeds one input into the active dialog.
func (b *Bot) continueDialog(ctx context.Context, from string, user *userState, input string) {
	if strings.EqualFold(strings.TrimSpace(input), keywordCancel) {
		user.dialog = nil
		b.reply(ctx, from, msgCancelled)
		return
	}

	reply, done := user.dialog.step(ctx, b, from, user, input)
	if done {
		user.dialog = nil
	}
	b.reply(ctx, from, reply)
}

// authDialog asks for a phone number and logs in.
type authDialog struct{}

func (d *authDialog) step(ctx context.Context, b *Bot, from string, user *userState, input string) (string, bool) {
	phone, err := gateway.NormalizePhone(input)
	if err != nil {
		// Invalid input keeps the dialog open for another attempt.
		return msgInvalidPhone, false
	}

	account, err := user.controller.Login(ctx, phone)
	if err != nil {
		slog.Debug("Bot login failed", "error", err, "from", from)
		return loginErrorText(err), true
	}
	return msgWelcomeBack(account), true
}

// registerDialog collects name, birth date, and phone, then registers.
type registerDialog struct {
	name      string
	birthDate string
}

func (d *registerDialog) step(ctx context.Context, b *Bot, from string, user *userState, input string) (string, bool) {
	switch {
	case d.name == "":
		if err := models.ValidateName(input); err != nil {
			return msgInvalidName, false
		}
		d.name = strings.TrimSpace(input)
		return msgAskBirthDate, false

	case d.birthDate == "":
		normalized, err := models.ParseBirthDate(input)
		if err != nil {
			return msgInvalidBirthDate, false
		}
		d.birthDate = normalized
		// The collected profile also enriches guest chat exchanges in case
		// registration is abandoned at the phone step.
		user.controller.SetGuestProfile(models.GuestProfile{Name: d.name, BirthDate: d.birthDate})
		return msgAskPhone, false

	default:
		phone, err := gateway.NormalizePhone(input)
		if err != nil {
			return msgInvalidPhone, false
		}

		account, err := user.controller.Register(ctx, phone, d.name, d.birthDate)
		if err != nil {
			slog.Debug("Bot registration failed", "error", err, "from", from)
			return loginErrorText(err), true
		}
		return msgRegistered(account), true
	}
}
