package bot

import (
	"errors"
	"fmt"
	"strings"

	"essay-review-bot/model"
	"essay-review-bot/workflow"

	"gopkg.in/telebot.v3"
)

// adminReply turns a workflow error into the text shown to the admin.
// ok is used when err is nil.
func adminReply(err error, essayID, ok string) string {
	switch {
	case err == nil:
		return ok
	case errors.Is(err, workflow.ErrForbidden):
		return "⛔ Not allowed."
	case errors.Is(err, workflow.ErrNotFound):
		return fmt.Sprintf("🔎 Essay %s not found or not in a suitable state. /resend needs an attached voice; /fix %s starts it over.", essayID, essayID)
	case errors.Is(err, workflow.ErrDeliveryQueued):
		return fmt.Sprintf("⏳ Delivery of %s is still scheduled. Use /cancel %s to stop it or wait.", essayID, essayID)
	case errors.Is(err, workflow.ErrVoiceAttached):
		return fmt.Sprintf("⚠️ A voice is already attached to %s. Use /cancel %s first.", essayID, essayID)
	}
	return "❌ Error: " + err.Error()
}

func essayArg(c telebot.Context) (string, bool) {
	args := c.Args()
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", false
	}
	return strings.TrimSpace(args[0]), true
}

// /fix <essay_id>
func (bot *Bot) handleFix(c telebot.Context) error {
	if !bot.Svc.IsEssayAdmin(c.Sender().ID) {
		return nil
	}
	essayID, ok := essayArg(c)
	if !ok {
		return c.Send("Usage: /fix <essay_id>")
	}
	ctx, cancel := bot.ctx()
	defer cancel()
	userID, err := bot.Svc.Reopen(ctx, c.Sender().ID, essayID)
	return c.Send(adminReply(err, essayID, fmt.Sprintf("♻️ Essay %s reopened, user %d unlocked. Reply to it with a new voice.", essayID, userID)))
}

// /resend <essay_id>
func (bot *Bot) handleResend(c telebot.Context) error {
	if !bot.Svc.IsEssayAdmin(c.Sender().ID) {
		return nil
	}
	essayID, ok := essayArg(c)
	if !ok {
		return c.Send("Usage: /resend <essay_id>")
	}
	ctx, cancel := bot.ctx()
	defer cancel()
	userID, err := bot.Svc.Resend(ctx, c.Sender().ID, essayID)
	return c.Send(adminReply(err, essayID, fmt.Sprintf("📤 Voice for %s sent again to %d.", essayID, userID)))
}

// /cancel <essay_id>
func (bot *Bot) handleCancel(c telebot.Context) error {
	if !bot.Svc.IsEssayAdmin(c.Sender().ID) {
		return nil
	}
	essayID, ok := essayArg(c)
	if !ok {
		return c.Send("Usage: /cancel <essay_id>")
	}
	ctx, cancel := bot.ctx()
	defer cancel()
	userID, err := bot.Svc.CancelVoice(ctx, c.Sender().ID, essayID)
	return c.Send(adminReply(err, essayID, fmt.Sprintf("🛑 Delivery of %s canceled, user %d unlocked.", essayID, userID)))
}

// handleVoice attaches an admin voice to the review it replies to.
func (bot *Bot) handleVoice(c telebot.Context) error {
	msg := c.Message()
	if msg.Voice == nil || !bot.Svc.IsEssayAdmin(c.Sender().ID) {
		return nil
	}
	var replyTo *model.MessageRef
	if msg.ReplyTo != nil {
		r := ref(msg.ReplyTo)
		replyTo = &r
	}

	ctx, cancel := bot.ctx()
	defer cancel()
	att, err := bot.Svc.AttachVoice(ctx, c.Sender().ID, replyTo, msg.Caption, msg.Voice.FileID)
	if err != nil {
		target := strings.TrimSpace(msg.Caption)
		if target == "" {
			target = "for this message"
		}
		return c.Send(adminReply(err, target, ""))
	}
	return c.Send(fmt.Sprintf("🎙 Voice for %s scheduled for %s.", att.EssayID, att.RunAt.Format("15:04")))
}
