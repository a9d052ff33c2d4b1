package bot

import (
	"gopkg.in/telebot.v3"
)

// channel addresses a public channel by its @username.
type channel string

func (c channel) Recipient() string { return string(c) }

func isMember(m *telebot.ChatMember) bool {
	if m == nil {
		return false
	}
	switch m.Role {
	case telebot.Creator, telebot.Administrator, telebot.Member:
		return true
	case telebot.Restricted:
		return m.Member
	}
	return false
}

// subscribed asks the platform whether user joined the gate channel.
// Without a configured channel everyone passes.
func (bot *Bot) subscribed(user *telebot.User) (bool, error) {
	if bot.cfg.Channel == "" {
		return true, nil
	}
	m, err := bot.B.ChatMemberOf(channel(bot.cfg.Channel), user)
	if err != nil {
		return false, err
	}
	return isMember(m), nil
}

func (bot *Bot) subscribeMarkup() *telebot.ReplyMarkup {
	menu := &telebot.ReplyMarkup{}
	var rows []telebot.Row
	if bot.cfg.ChannelURL != "" {
		rows = append(rows, menu.Row(menu.URL("📢 Subscribe", bot.cfg.ChannelURL)))
	}
	rows = append(rows, menu.Row(btnCheckSub))
	menu.Inline(rows...)
	return menu
}
