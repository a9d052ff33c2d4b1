package bot

import (
	"fmt"
	"strconv"

	"essay-review-bot/model"

	"gopkg.in/telebot.v3"
)

// Messenger delivers workflow messages through the Bot API.
type Messenger struct {
	b *telebot.Bot
}

func NewMessenger(b *telebot.Bot) *Messenger {
	return &Messenger{b: b}
}

func ref(msg *telebot.Message) model.MessageRef {
	if msg == nil || msg.Chat == nil {
		return model.MessageRef{}
	}
	return model.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}
}

func stored(r model.MessageRef) *telebot.StoredMessage {
	return &telebot.StoredMessage{MessageID: strconv.Itoa(r.MessageID), ChatID: r.ChatID}
}

func (m *Messenger) SendText(chatID int64, text string) (model.MessageRef, error) {
	msg, err := m.b.Send(telebot.ChatID(chatID), text)
	if err != nil {
		return model.MessageRef{}, err
	}
	return ref(msg), nil
}

func (m *Messenger) SendVoice(chatID int64, voiceRef, caption string) (model.MessageRef, error) {
	voice := &telebot.Voice{File: telebot.File{FileID: voiceRef}, Caption: caption}
	msg, err := m.b.Send(telebot.ChatID(chatID), voice)
	if err != nil {
		return model.MessageRef{}, err
	}
	return ref(msg), nil
}

// SendReceipt forwards a receipt with approve and reject buttons.
func (m *Messenger) SendReceipt(chatID int64, p *model.Payment, caption string) (model.MessageRef, error) {
	menu := &telebot.ReplyMarkup{}
	menu.Inline(menu.Row(
		menu.Data("✅ Approve", btnApprove.Unique, p.PaymentID),
		menu.Data("❌ Reject", btnReject.Unique, p.PaymentID),
	))

	var what any
	switch p.ReceiptKind {
	case model.ReceiptImage:
		what = &telebot.Photo{File: telebot.File{FileID: p.ReceiptRef}, Caption: caption}
	case model.ReceiptFile:
		what = &telebot.Document{File: telebot.File{FileID: p.ReceiptRef}, Caption: caption}
	default:
		return model.MessageRef{}, fmt.Errorf("bot: unknown receipt kind %q", p.ReceiptKind)
	}

	msg, err := m.b.Send(telebot.ChatID(chatID), what, menu)
	if err != nil {
		return model.MessageRef{}, err
	}
	return ref(msg), nil
}

// EditCaption replaces the caption. Without a markup the inline buttons go away.
func (m *Messenger) EditCaption(r model.MessageRef, caption string) error {
	_, err := m.b.EditCaption(stored(r), caption)
	return err
}
