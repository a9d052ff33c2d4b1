package bot

import (
	"errors"
	"fmt"
	"strings"

	"essay-review-bot/model"
	"essay-review-bot/workflow"

	"go.uber.org/zap"
	"gopkg.in/telebot.v3"
)

const (
	msgSubscribe = "To use the bot, please subscribe to our channel first, then press the button below."
	msgBusy      = "⏳ Your previous essay is still being reviewed. Please wait for the result."
	msgAskTopic  = "Send the *topic* of your essay:"
	msgAskEssay  = "Now send the essay text \\(%d to %d words\\)\\."
	msgAccepted  = "✅ Essay received\\! One check was used\\. The result will arrive in about %d minutes\\."
	msgTooShort  = "📉 Your essay has fewer than %d words\\.\nTotal: 2 / 24\n75\\-point scale: 6 / 75\nNo check was used\\."
	msgTooLong   = "❌ Your essay has more than %d words\\. Please shorten it and send again\\. No check was used\\."
	msgFailed    = "⚠️ Something went wrong, please try again later."
)

func (bot *Bot) sendMenu(c telebot.Context, text string) error {
	return c.Send(text, menuKeyboard, telebot.ModeMarkdownV2)
}

// gate replies with the subscribe prompt and reports false for non-members.
func (bot *Bot) gate(c telebot.Context) (bool, error) {
	ok, err := bot.subscribed(c.Sender())
	if err != nil {
		bot.log.Warn("membership check failed", zap.Int64("user_id", c.Sender().ID), zap.Error(err))
	}
	if ok {
		return true, nil
	}
	return false, c.Send(msgSubscribe, bot.subscribeMarkup())
}

func (bot *Bot) handleStart(c telebot.Context) error {
	bot.setState(c.Sender().ID, StateNone)
	if ok, err := bot.gate(c); !ok {
		return err
	}
	return bot.welcome(c)
}

func (bot *Bot) welcome(c telebot.Context) error {
	ctx, cancel := bot.ctx()
	defer cancel()

	granted, err := bot.Svc.ClaimFreeTrial(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	text := "Welcome\\! Send your essay and get an expert score with a voice review\\."
	if granted {
		text += "\n🎁 You got *1 free check*\\."
	}
	return bot.sendMenu(c, text)
}

func (bot *Bot) handleCheckSub(c telebot.Context) error {
	ok, err := bot.subscribed(c.Sender())
	if err != nil {
		bot.log.Warn("membership check failed", zap.Int64("user_id", c.Sender().ID), zap.Error(err))
	}
	if !ok {
		return c.Respond(&telebot.CallbackResponse{Text: "You are not subscribed yet.", ShowAlert: true})
	}
	_ = c.Respond(&telebot.CallbackResponse{Text: "Thank you!"})
	return bot.welcome(c)
}

// 📝 Check essay
func (bot *Bot) handleCheck(c telebot.Context) error {
	userID := c.Sender().ID
	bot.setState(userID, StateNone)
	if ok, err := bot.gate(c); !ok {
		return err
	}

	ctx, cancel := bot.ctx()
	defer cancel()
	res, err := bot.Svc.Begin(ctx, userID)
	if err != nil {
		return err
	}
	switch res {
	case workflow.Busy:
		return c.Send(msgBusy)
	case workflow.NoBalance:
		return bot.handlePay(c)
	}

	bot.setState(userID, StateEssay_WaitTopic)
	return c.Send(msgAskTopic, telebot.ModeMarkdownV2)
}

// 💰 Balance
func (bot *Bot) handleBalance(c telebot.Context) error {
	ctx, cancel := bot.ctx()
	defer cancel()
	balance, err := bot.Svc.Balance(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	return c.Send(fmt.Sprintf("💰 Your balance: `%d` check\\(s\\)", balance), telebot.ModeMarkdownV2)
}

// 💳 Buy checks
func (bot *Bot) handlePay(c telebot.Context) error {
	bot.setState(c.Sender().ID, StatePayment_WaitReceipt)
	msg := "💳 *Buy a check*\n\n"
	if bot.cfg.Price != "" {
		msg += fmt.Sprintf("Price: %s\n", escapeMarkdownV2(bot.cfg.Price))
	}
	if bot.cfg.CardInfo != "" {
		msg += fmt.Sprintf("Card: `%s`\n", escapeMarkdownV2Code(bot.cfg.CardInfo))
	}
	msg += "\nAfter paying, send a screenshot or a file of the receipt here\\."
	return c.Send(msg, telebot.ModeMarkdownV2)
}

// ℹ️ Help
func (bot *Bot) handleHelp(c telebot.Context) error {
	msg := "ℹ️ *How it works*\n\n" +
		"1\\. Press 📝 Check essay and send the topic\\.\n" +
		"2\\. Send the essay text\\.\n" +
		"3\\. You get the score report and an expert voice review\\.\n\n" +
		"One check is used per essay\\. Buy more with 💳 Buy checks\\."
	if bot.cfg.HelpContact != "" {
		msg += fmt.Sprintf("\n\nQuestions: %s", escapeMarkdownV2(bot.cfg.HelpContact))
	}
	return c.Send(msg, telebot.ModeMarkdownV2)
}

func submitReply(res workflow.SubmitResult, opts workflow.Options) string {
	switch res {
	case workflow.Accepted:
		return fmt.Sprintf(msgAccepted, int(opts.Delay.Minutes()))
	case workflow.Busy:
		return escapeMarkdownV2(msgBusy)
	case workflow.NoBalance:
		return "❌ You have no checks left\\. Press 💳 Buy checks\\."
	case workflow.TooShort:
		return fmt.Sprintf(msgTooShort, opts.MinWords)
	case workflow.TooLong:
		return fmt.Sprintf(msgTooLong, opts.MaxWords)
	}
	return escapeMarkdownV2(msgFailed)
}

// stateAfterSubmit keeps the user in the essay flow when they are asked to
// send the text again.
func stateAfterSubmit(res workflow.SubmitResult, err error) int {
	switch {
	case errors.Is(err, workflow.ErrEmptyTopic):
		return StateEssay_WaitTopic
	case err != nil:
		return StateNone
	case res == workflow.TooLong:
		return StateEssay_WaitText
	}
	return StateNone
}

// Global Text Handler (State Machine)
func (bot *Bot) handleText(c telebot.Context) error {
	userID := c.Sender().ID
	state := bot.getState(userID)

	switch state {
	case StateEssay_WaitTopic:
		topic := strings.TrimSpace(c.Text())
		if topic == "" {
			return c.Send(msgAskTopic, telebot.ModeMarkdownV2)
		}
		bot.setTempData(userID, "topic", topic)
		bot.setState(userID, StateEssay_WaitText)
		opts := bot.Svc.Options()
		return c.Send(fmt.Sprintf(msgAskEssay, opts.MinWords, opts.MaxWords), telebot.ModeMarkdownV2)

	case StateEssay_WaitText:
		topic := bot.getTempData(userID, "topic")
		ctx, cancel := bot.ctx()
		defer cancel()

		res, err := bot.Svc.SubmitEssay(ctx, userID, topic, c.Text())
		bot.setState(userID, stateAfterSubmit(res, err))
		if errors.Is(err, workflow.ErrEmptyTopic) {
			return c.Send(msgAskTopic, telebot.ModeMarkdownV2)
		}
		if err != nil {
			bot.log.Error("essay submission failed", zap.Int64("user_id", userID), zap.Error(err))
			return c.Send(msgFailed)
		}
		return bot.sendMenu(c, submitReply(res, bot.Svc.Options()))

	case StatePayment_WaitReceipt:
		return c.Send("Please send the receipt as a photo or a file.")
	}

	return nil
}

func (bot *Bot) handlePhoto(c telebot.Context) error {
	photo := c.Message().Photo
	if photo == nil {
		return nil
	}
	return bot.receipt(c, model.ReceiptImage, photo.FileID)
}

func (bot *Bot) handleDocument(c telebot.Context) error {
	doc := c.Message().Document
	if doc == nil {
		return nil
	}
	return bot.receipt(c, model.ReceiptFile, doc.FileID)
}

func (bot *Bot) receipt(c telebot.Context, kind, fileID string) error {
	userID := c.Sender().ID
	if bot.getState(userID) != StatePayment_WaitReceipt {
		return nil
	}
	ctx, cancel := bot.ctx()
	defer cancel()

	p, err := bot.Svc.SubmitReceipt(ctx, userID, c.Sender().Username, kind, fileID)
	bot.setState(userID, StateNone)
	if err != nil {
		bot.log.Error("receipt submission failed", zap.Int64("user_id", userID), zap.Error(err))
		return c.Send(msgFailed)
	}
	return bot.sendMenu(c, fmt.Sprintf("🧾 Receipt received\\. Payment `%s` is waiting for confirmation\\.", p.PaymentID))
}

func (bot *Bot) handleDecision(approve bool) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		ctx, cancel := bot.ctx()
		defer cancel()

		paymentID := strings.TrimSpace(c.Data())
		_, err := bot.Svc.DecidePayment(ctx, c.Sender().ID, paymentID, approve, ref(c.Message()))
		switch {
		case errors.Is(err, workflow.ErrForbidden):
			return c.Respond(&telebot.CallbackResponse{Text: "Not allowed.", ShowAlert: true})
		case errors.Is(err, workflow.ErrAlreadyDecided):
			return c.Respond(&telebot.CallbackResponse{Text: "Already decided."})
		case err != nil:
			_ = c.Respond(&telebot.CallbackResponse{Text: "Error, try again."})
			return err
		}
		if approve {
			return c.Respond(&telebot.CallbackResponse{Text: "Approved"})
		}
		return c.Respond(&telebot.CallbackResponse{Text: "Rejected"})
	}
}
