package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"essay-review-bot/workflow"

	"go.uber.org/zap"
	"gopkg.in/telebot.v3"
)

// User States
const (
	StateNone = iota
	StateEssay_WaitTopic
	StateEssay_WaitText
	StatePayment_WaitReceipt
)

const requestTimeout = 30 * time.Second

type Settings struct {
	Channel     string // membership gate; empty disables
	ChannelURL  string
	HelpContact string
	CardInfo    string
	Price       string
}

type Bot struct {
	B   *telebot.Bot
	Svc *workflow.Service
	log *zap.Logger
	cfg Settings

	// State management
	states    map[int64]int
	tempData  map[int64]map[string]string
	stateLock sync.RWMutex
}

func escapeMarkdownV2(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func escapeMarkdownV2Code(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '`', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Keyboards
var (
	// Main Menu
	menuBtnCheck   = telebot.Btn{Text: "📝 Check essay"}
	menuBtnBalance = telebot.Btn{Text: "💰 Balance"}
	menuBtnPay     = telebot.Btn{Text: "💳 Buy checks"}
	menuBtnHelp    = telebot.Btn{Text: "ℹ️ Help"}
	menuKeyboard   = &telebot.ReplyMarkup{ResizeKeyboard: true}

	// Inline Buttons
	btnCheckSub = telebot.Btn{Text: "✅ I subscribed", Unique: "check_sub"}
	btnApprove  = telebot.Btn{Unique: "pay_ok"}
	btnReject   = telebot.Btn{Unique: "pay_no"}
)

// NewTelebot connects to the Bot API with long polling.
func NewTelebot(token string, pollTimeout time.Duration, log *zap.Logger) (*telebot.Bot, error) {
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: pollTimeout},
		OnError: func(err error, c telebot.Context) {
			fields := []zap.Field{zap.Error(err)}
			if c != nil && c.Sender() != nil {
				fields = append(fields, zap.Int64("user_id", c.Sender().ID))
			}
			log.Error("handler failed", fields...)
		},
	}
	return telebot.NewBot(pref)
}

func NewBot(b *telebot.Bot, svc *workflow.Service, cfg Settings, log *zap.Logger) *Bot {
	bot := &Bot{
		B:        b,
		Svc:      svc,
		log:      log.Named("bot"),
		cfg:      cfg,
		states:   make(map[int64]int),
		tempData: make(map[int64]map[string]string),
	}

	// Init keyboards
	menuKeyboard.Reply(
		menuKeyboard.Row(menuBtnCheck),
		menuKeyboard.Row(menuBtnBalance, menuBtnPay),
		menuKeyboard.Row(menuBtnHelp),
	)

	bot.registerHandlers()
	return bot
}

// Start polls until Stop is called.
func (bot *Bot) Start() {
	bot.B.Start()
}

func (bot *Bot) Stop() {
	bot.B.Stop()
}

func (bot *Bot) registerHandlers() {
	// Commands
	bot.B.Handle("/start", bot.handleStart)
	bot.B.Handle("/balance", bot.handleBalance)
	bot.B.Handle("/help", bot.handleHelp)
	bot.B.Handle("/fix", bot.handleFix)
	bot.B.Handle("/resend", bot.handleResend)
	bot.B.Handle("/cancel", bot.handleCancel)

	// Menu Buttons
	bot.B.Handle(&menuBtnCheck, bot.handleCheck)
	bot.B.Handle(&menuBtnBalance, bot.handleBalance)
	bot.B.Handle(&menuBtnPay, bot.handlePay)
	bot.B.Handle(&menuBtnHelp, bot.handleHelp)

	// Inline Buttons
	bot.B.Handle(&btnCheckSub, bot.handleCheckSub)
	bot.B.Handle(&btnApprove, bot.handleDecision(true))
	bot.B.Handle(&btnReject, bot.handleDecision(false))

	// Media
	bot.B.Handle(telebot.OnVoice, bot.handleVoice)
	bot.B.Handle(telebot.OnPhoto, bot.handlePhoto)
	bot.B.Handle(telebot.OnDocument, bot.handleDocument)

	// Generic Text Handler (for inputs)
	bot.B.Handle(telebot.OnText, bot.handleText)
}

func (bot *Bot) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// Helper to manage state
func (bot *Bot) setState(userID int64, state int) {
	bot.stateLock.Lock()
	defer bot.stateLock.Unlock()
	bot.states[userID] = state
	if state == StateNone {
		delete(bot.tempData, userID)
	}
}

func (bot *Bot) getState(userID int64) int {
	bot.stateLock.RLock()
	defer bot.stateLock.RUnlock()
	return bot.states[userID]
}

func (bot *Bot) setTempData(userID int64, key, value string) {
	bot.stateLock.Lock()
	defer bot.stateLock.Unlock()
	if bot.tempData[userID] == nil {
		bot.tempData[userID] = make(map[string]string)
	}
	bot.tempData[userID][key] = value
}

func (bot *Bot) getTempData(userID int64, key string) string {
	bot.stateLock.RLock()
	defer bot.stateLock.RUnlock()
	if bot.tempData[userID] == nil {
		return ""
	}
	return bot.tempData[userID][key]
}
