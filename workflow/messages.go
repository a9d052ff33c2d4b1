package workflow

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"essay-review-bot/model"
)

// maxAnchorRunes keeps the admin anchor message under the platform text limit.
const maxAnchorRunes = 3800

const (
	msgCheckFailed   = "❌ The essay could not be checked right now. Your credit has been returned, please try again later."
	msgCheckQueued   = "✅ Your essay has been scored. An expert is preparing a voice review, you will get both soon."
	msgPaymentOK     = "✅ Payment approved. %d check(s) added, balance: %d."
	msgPaymentDenied = "❌ Payment rejected. If this is a mistake, please contact support."
)

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

func anchorText(rec *model.EssayReview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 New essay\nID: %s\nUser: %d\nTopic: %s\n\n", rec.EssayID, rec.UserID, rec.Topic)
	fmt.Fprintf(&b, "%s\n\n--- Result ---\n%s\n\n", rec.EssayText, rec.AIResult)
	b.WriteString("Reply to this message with a voice to schedule delivery.")
	return clip(b.String(), maxAnchorRunes)
}

func receiptCaption(p *model.Payment) string {
	name := p.Username
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("💳 Payment %s\nUser: %d (@%s)\nAmount: %d\nStatus: %s", p.PaymentID, p.UserID, name, p.Amount, p.Status)
}

func decisionCaption(p *model.Payment) string {
	return receiptCaption(p) + fmt.Sprintf("\nDecided by: %d", *p.DecidedBy)
}

func voiceCaption(essayID string) string {
	return "🎧 Expert voice review for essay " + essayID
}
