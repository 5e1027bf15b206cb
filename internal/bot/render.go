package bot

import (
	"fmt"
	"strings"

	"github.com/dreamtalk/dreamtalk/internal/models"
	"github.com/dreamtalk/dreamtalk/internal/session"
	"github.com/dreamtalk/dreamtalk/internal/stage"
)

// keywordSpeak voices the most recent bot reply.
const keywordSpeak = "озвучить"

const supportDescription = "Поддержка проекта «ИИ Сонник»"

// Static user-facing texts.
const (
	msgStart = "🌙 Здравствуйте! Я — ИИ Сонник, помогу разобраться, что значит ваш сон.\n\n" +
		"Просто опишите сон текстом или голосовым сообщением.\n\n" +
		"Команды:\n" +
		"/auth — войти по номеру телефона\n" +
		"/register — создать аккаунт\n" +
		"/profile — мой профиль\n" +
		"/clear — очистить историю\n" +
		"/support — поддержать проект\n" +
		"/logout — выйти"
	msgAskPhone            = "Введите номер телефона (например, +79001234567).\nДля отмены напишите «отмена»."
	msgAskName             = "Как вас зовут?\nДля отмены напишите «отмена»."
	msgAskBirthDate        = "Укажите дату рождения (ГГГГ-ММ-ДД или ДД.ММ.ГГГГ)."
	msgInvalidPhone        = "⚠️ Не похоже на номер телефона. Попробуйте ещё раз, например +79001234567."
	msgInvalidName         = "⚠️ Имя не может состоять только из цифр. Попробуйте ещё раз."
	msgInvalidBirthDate    = "⚠️ Не удалось разобрать дату. Форматы: ГГГГ-ММ-ДД или ДД.ММ.ГГГГ."
	msgUserNotFound        = "Аккаунт с таким номером не найден. Зарегистрируйтесь: /register"
	msgAlreadyRegistered   = "Этот номер уже зарегистрирован. Войдите: /auth"
	msgAuthFailed          = "⚠️ Не удалось выполнить вход. Попробуйте позже."
	msgCancelled           = "Хорошо, отменено."
	msgLoggedOut           = "Вы вышли из аккаунта. Продолжаем как гость — история начнётся заново."
	msgSessionExpired      = "⚠️ Сессия истекла, вы продолжаете как гость. Войдите снова: /auth"
	msgProfileGuest        = "Вы общаетесь как гость. Создайте аккаунт, чтобы сохранить историю: /register"
	msgHistoryCleared      = "🗑 История очищена."
	msgEmptyMessage        = "⚠️ Сообщение пустое. Опишите ваш сон."
	msgMessageTooLong      = "⚠️ Сообщение слишком длинное. Сократите его, пожалуйста."
	msgChatFailed          = "⚠️ Не удалось обработать сообщение. Попробуйте ещё раз."
	msgTranscribeFailed    = "⚠️ Не удалось распознать голосовое сообщение. Напишите текстом, пожалуйста."
	msgNothingToSpeak      = "Пока нечего озвучивать — сначала расскажите сон."
	msgSpeakFailed         = "⚠️ Не удалось озвучить ответ. Попробуйте позже."
	msgSupportNeedsAccount = "Поддержать проект могут зарегистрированные пользователи. Создайте аккаунт: /register"
	msgSupportFailed       = "⚠️ Не удалось создать ссылку на оплату. Попробуйте позже."
	msgRegisterNudge       = "ℹ️ Зарегистрируйтесь, чтобы сохранить историю толкований: /register"
)

func msgTranscribed(text string) string {
	return fmt.Sprintf("🎤 Вы сказали: «%s»", text)
}

func msgWelcomeBack(account models.User) string {
	return fmt.Sprintf("✅ С возвращением, %s! История ваших снов загружена.", account.Name)
}

func msgRegistered(account models.User) string {
	return fmt.Sprintf("✅ Аккаунт создан. Добро пожаловать, %s!", account.Name)
}

func msgSupportLink(url string) string {
	return fmt.Sprintf("💜 Спасибо, что поддерживаете проект!\nСсылка на оплату: %s", url)
}

// renderOutcome formats one chat exchange: the reply, the stage banner, the
// hint, and the guest registration nudge.
func renderOutcome(outcome session.ChatOutcome) string {
	var sb strings.Builder
	sb.WriteString(outcome.BotMessage.Text)

	if label := stage.Label(outcome.Stage); label != "" {
		sb.WriteString("\n\n📊 Этап: ")
		sb.WriteString(label)
	}
	if outcome.Hint != "" {
		sb.WriteString("\n💡 ")
		sb.WriteString(outcome.Hint)
	}
	if outcome.SuggestRegistration {
		sb.WriteString("\n\n")
		sb.WriteString(msgRegisterNudge)
	}
	return sb.String()
}

func renderProfile(account models.User) string {
	var sb strings.Builder
	sb.WriteString("👤 Ваш профиль:\n")
	fmt.Fprintf(&sb, "Имя: %s\n", account.Name)
	fmt.Fprintf(&sb, "Телефон: %s", account.Phone)
	if account.BirthDate != "" {
		fmt.Fprintf(&sb, "\nДата рождения: %s", account.BirthDate)
	}
	return sb.String()
}
