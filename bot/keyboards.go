package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tventura/livecastbot/conversation"
)

// keyboardFor maps an engine markup descriptor to its Telegram keyboard.
// Returns nil when the reply carries no keyboard change.
func keyboardFor(m conversation.Markup) any {
	switch m {
	case conversation.MarkupMainMenu:
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(conversation.LabelLogin),
				tgbotapi.NewKeyboardButton(conversation.LabelStartLive),
			),
		)
	case conversation.MarkupStartLiveMenu:
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(conversation.LabelStartLive),
			),
		)
	case conversation.MarkupLiveMenu:
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(conversation.LabelStopLive),
				tgbotapi.NewKeyboardButton(conversation.LabelLiveInfo),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(conversation.LabelGetComments),
				tgbotapi.NewKeyboardButton(conversation.LabelGetViewers),
			),
		)
	case conversation.MarkupRemoveKeyboard:
		return tgbotapi.NewRemoveKeyboard(true)
	case conversation.MarkupSaveChoice:
		return tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("💾 Save session", conversation.CallbackSaveSession),
				tgbotapi.NewInlineKeyboardButtonData("🚫 Don't save", conversation.CallbackDiscardSession),
			),
		)
	case conversation.MarkupChallengeChoice:
		return tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🤖 Try automatic resolution", conversation.CallbackAutoChallenge),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📱 I'll approve it manually", conversation.CallbackManualChallenge),
			),
		)
	case conversation.MarkupStreamReveal:
		return tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔗 Show URL", conversation.CallbackShowURL),
				tgbotapi.NewInlineKeyboardButtonData("🔑 Show Key", conversation.CallbackShowKey),
			),
		)
	}
	return nil
}
