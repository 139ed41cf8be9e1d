package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/eventbot/pkg/logger"
	"github.com/korjavin/eventbot/pkg/models"
	"github.com/korjavin/eventbot/pkg/storage"
)

const announcementPrefix = "announce:"

// KV is the key/value store used to remember pinned announcements
type KV interface {
	Set(key string, value interface{}) error
	Get(key string, value interface{}) error
	Delete(key string) error
}

// Bot represents a Telegram bot instance
type Bot struct {
	api    *tgbotapi.BotAPI
	kv     KV
	logger *logger.Logger
}

// HandlerFunc is a function that handles a Telegram update
type HandlerFunc func(update tgbotapi.Update)

// CommandHandler is a function that handles a Telegram command
type CommandHandler func(message *tgbotapi.Message)

// CallbackHandler is a function that handles a Telegram callback query
type CallbackHandler func(callback *tgbotapi.CallbackQuery)

// New creates a new Telegram bot instance
func New(token string, kv KV) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newBot(api, kv), nil
}

func newBot(api *tgbotapi.BotAPI, kv KV) *Bot {
	bot := &Bot{
		api:    api,
		kv:     kv,
		logger: logger.New("telegram"),
	}
	bot.logger.Info("Telegram bot created: @%s", api.Self.UserName)
	return bot
}

// Start listens for updates and dispatches them until Stop is called
func (b *Bot) Start(commandHandlers map[string]CommandHandler, callbackHandlers map[string]CallbackHandler, defaultHandler HandlerFunc) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		var chatID int64
		if update.Message != nil {
			chatID = update.Message.Chat.ID
		} else if update.CallbackQuery != nil && update.CallbackQuery.Message != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
		}
		log := b.logger
		if chatID != 0 {
			log = b.logger.With(strconv.FormatInt(chatID, 10))
		}

		if update.Message != nil && update.Message.IsCommand() {
			command := update.Message.Command()
			if handler, ok := commandHandlers[command]; ok {
				log.Info("Handling command: %s from user %d", command, update.Message.From.ID)
				handler(update.Message)
				continue
			}
		}

		if update.CallbackQuery != nil {
			data := update.CallbackQuery.Data
			for prefix, handler := range callbackHandlers {
				if strings.HasPrefix(data, prefix) {
					log.Info("Handling callback: %s from user %d", data, update.CallbackQuery.From.ID)
					handler(update.CallbackQuery)
					break
				}
			}
			continue
		}

		if defaultHandler != nil {
			defaultHandler(update)
		}
	}

	return nil
}

// Stop stops receiving updates, which makes Start return
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

// SendMessage sends a text message to a chat
func (b *Bot) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	return b.api.Send(msg)
}

// SendMessageWithKeyboard sends a text message with an inline keyboard
func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	return b.api.Send(msg)
}

// SendDocument uploads an in-memory file to a chat
func (b *Bot) SendDocument(chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	_, err := b.api.Send(doc)
	return err
}

// AnswerCallbackQuery answers a callback query
func (b *Bot) AnswerCallbackQuery(callbackID string, text string) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	_, err := b.api.Request(callback)
	return err
}

// EditMessage replaces the text of a message and drops its inline keyboard
func (b *Bot) EditMessage(chatID int64, messageID int, text string) (tgbotapi.Message, error) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	return b.api.Send(edit)
}

func parseChatID(id string) (int64, error) {
	chatID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", id, err)
	}
	return chatID, nil
}

func (b *Bot) sendHTML(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

// SendDirect sends a private message to a user. Users' private chats share their user ID.
func (b *Bot) SendDirect(ctx context.Context, userID, text string) error {
	chatID, err := parseChatID(userID)
	if err != nil {
		return err
	}
	return b.sendHTML(ctx, chatID, html.EscapeString(text))
}

// SendGroup sends a message to a group, mentioning a user when mentionUserID is set
func (b *Bot) SendGroup(ctx context.Context, groupID, text, mentionUserID string) error {
	chatID, err := parseChatID(groupID)
	if err != nil {
		return err
	}
	body := html.EscapeString(text)
	if mentionUserID != "" {
		if _, err := parseChatID(mentionUserID); err != nil {
			return err
		}
		body = fmt.Sprintf(`<a href="tg://user?id=%s">🔔</a> %s`, mentionUserID, body)
	}
	return b.sendHTML(ctx, chatID, body)
}

func announcementKey(eventID int64) string {
	return fmt.Sprintf("%s%d", announcementPrefix, eventID)
}

// Announce posts and pins the announcement of a group event and remembers
// it so ReleaseEvent can unpin it once the event is over.
func (b *Bot) Announce(ctx context.Context, ev models.Event, text string) error {
	if !ev.IsGroup() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := parseChatID(ev.GroupID)
	if err != nil {
		return err
	}

	msg, err := b.SendMessage(chatID, text)
	if err != nil {
		return fmt.Errorf("failed to send announcement: %w", err)
	}
	pin := tgbotapi.PinChatMessageConfig{ChatID: chatID, MessageID: msg.MessageID, DisableNotification: true}
	if _, err := b.api.Request(pin); err != nil {
		// the bot may lack pin rights; the message itself stays
		b.logger.Warn("Failed to pin announcement of event %d in chat %d: %v", ev.ID, chatID, err)
		return nil
	}

	ann := models.Announcement{EventID: ev.ID, ChatID: chatID, MessageID: msg.MessageID}
	if err := b.kv.Set(announcementKey(ev.ID), ann); err != nil {
		return fmt.Errorf("failed to store announcement: %w", err)
	}
	return nil
}

// ReleaseEvent unpins the announcement of an event, if one was pinned
func (b *Bot) ReleaseEvent(ctx context.Context, ev models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := announcementKey(ev.ID)
	var ann models.Announcement
	if err := b.kv.Get(key, &ann); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load announcement: %w", err)
	}

	unpin := tgbotapi.UnpinChatMessageConfig{ChatID: ann.ChatID, MessageID: ann.MessageID}
	if _, err := b.api.Request(unpin); err != nil {
		b.logger.Warn("Failed to unpin announcement of event %d: %v", ev.ID, err)
	}
	if err := b.kv.Delete(key); err != nil {
		return fmt.Errorf("failed to drop announcement: %w", err)
	}
	b.logger.Info("Released announcement of event %d", ev.ID)
	return nil
}
