// Package commands maps Telegram commands and button presses to the event,
// signup and timezone operations.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/eventbot/pkg/events"
	"github.com/korjavin/eventbot/pkg/ics"
	"github.com/korjavin/eventbot/pkg/logger"
	"github.com/korjavin/eventbot/pkg/messages"
	"github.com/korjavin/eventbot/pkg/models"
	"github.com/korjavin/eventbot/pkg/signup"
	"github.com/korjavin/eventbot/pkg/telegram"
	"github.com/korjavin/eventbot/pkg/timeconv"
)

const (
	confirmPrefix = "confirm:"
	cancelPrefix  = "cancel:"
	perPage       = 10

	genericFailure = "😢 Sorry, something went wrong. Please try again later."
)

// Messenger is the chat surface the handlers reply through
type Messenger interface {
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	EditMessage(chatID int64, messageID int, text string) (tgbotapi.Message, error)
	AnswerCallbackQuery(callbackID string, text string) error
	SendDocument(chatID int64, name string, data []byte, caption string) error
	Announce(ctx context.Context, ev models.Event, text string) error
	ReleaseEvent(ctx context.Context, ev models.Event) error
}

// Handler owns the command surface of the bot
type Handler struct {
	events   *events.Service
	signups  *signup.Registry
	chat     Messenger
	composer *messages.Service
	catalog  *timeconv.Catalog
	now      func() time.Time
	logger   *logger.Logger
}

// New creates a command handler
func New(eventService *events.Service, signups *signup.Registry, chat Messenger, composer *messages.Service, catalog *timeconv.Catalog) *Handler {
	return &Handler{
		events:   eventService,
		signups:  signups,
		chat:     chat,
		composer: composer,
		catalog:  catalog,
		now:      time.Now,
		logger:   logger.New("commands"),
	}
}

// Commands returns the handlers keyed by command name
func (h *Handler) Commands() map[string]telegram.CommandHandler {
	return map[string]telegram.CommandHandler{
		"start":                h.help,
		"help":                 h.help,
		"create_private_event": h.createPrivate,
		"create_group_event":   h.createGroup,
		"modify_event":         h.modify,
		"delete_event":         h.deleteEvent,
		"show_events":          h.showEvents,
		"show_server_events":   h.showGroupEvents,
		"get_notified":         h.getNotified,
		"cancel_notification":  h.cancelNotification,
		"remind_again":         h.remindAgain,
		"timezone":             h.timezone,
		"export_events":        h.export,
	}
}

// Callbacks returns the handlers keyed by callback data prefix
func (h *Handler) Callbacks() map[string]telegram.CallbackHandler {
	return map[string]telegram.CallbackHandler{
		confirmPrefix: h.confirm,
		cancelPrefix:  h.cancel,
	}
}

func userOf(from *tgbotapi.User) models.User {
	name := from.UserName
	if name == "" {
		name = strings.TrimSpace(from.FirstName + " " + from.LastName)
	}
	return models.User{ID: strconv.FormatInt(from.ID, 10), Name: name}
}

// groupOf returns the group ID and title of a group chat, or empty strings in private chats
func groupOf(chat *tgbotapi.Chat) (string, string) {
	if chat == nil || !(chat.IsGroup() || chat.IsSuperGroup()) {
		return "", ""
	}
	return strconv.FormatInt(chat.ID, 10), chat.Title
}

func (h *Handler) reply(chatID int64, text string) {
	if _, err := h.chat.SendMessage(chatID, text); err != nil {
		h.logger.Error("Failed to send reply to chat %d: %v", chatID, err)
	}
}

// replyError tells the user what went wrong. Storage and unknown failures are
// logged and reported generically.
func (h *Handler) replyError(chatID int64, op string, err error) {
	switch {
	case errors.Is(err, errUsage),
		errors.Is(err, events.ErrValidation),
		errors.Is(err, events.ErrOverlap):
		h.reply(chatID, "❌ "+err.Error())
	case errors.Is(err, events.ErrNotFoundOrForbidden),
		errors.Is(err, events.ErrProposalExpired),
		errors.Is(err, signup.ErrEventNotFound),
		errors.Is(err, signup.ErrNotSignedUp):
		h.reply(chatID, "❌ "+capitalize(errRoot(err).Error()))
	default:
		h.logger.Error("%s failed: %v", op, err)
		h.reply(chatID, genericFailure)
	}
}

func errRoot(err error) error {
	for _, sentinel := range []error{
		events.ErrNotFoundOrForbidden, events.ErrProposalExpired,
		signup.ErrEventNotFound, signup.ErrNotSignedUp,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (h *Handler) help(message *tgbotapi.Message) {
	h.reply(message.Chat.ID, messages.Help())
}

func (h *Handler) createPrivate(message *tgbotapi.Message) {
	h.propose(message, false)
}

func (h *Handler) createGroup(message *tgbotapi.Message) {
	h.propose(message, true)
}

func (h *Handler) propose(message *tgbotapi.Message, group bool) {
	ctx := context.Background()
	chatID := message.Chat.ID

	args, err := parseCreateArgs(message.CommandArguments())
	if err != nil {
		h.replyError(chatID, "create event", err)
		return
	}
	user := userOf(message.From)
	req := events.CreateRequest{
		OwnerID:   user.ID,
		OwnerName: user.Name,
		Name:      args.name,
		Location:  args.location,
		Start:     args.start,
		End:       args.end,
	}
	if group {
		req.GroupID, req.GroupName = groupOf(message.Chat)
		if req.GroupID == "" {
			h.reply(chatID, "❌ Group events can only be created in a group chat.")
			return
		}
	}

	p, err := h.events.ProposeEvent(ctx, req)
	if err != nil {
		h.replyError(chatID, "propose event", err)
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Create", confirmPrefix+p.ID),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", cancelPrefix+p.ID),
	))
	text := messages.Proposal(p.Draft, h.events.UserZone(ctx, user.ID))
	if _, err := h.chat.SendMessageWithKeyboard(chatID, text, keyboard); err != nil {
		h.logger.Error("Failed to send proposal %s: %v", p.ID, err)
		_ = h.events.CancelProposal(user.ID, p.ID)
	}
}

func (h *Handler) confirm(callback *tgbotapi.CallbackQuery) {
	ctx := context.Background()
	id := strings.TrimPrefix(callback.Data, confirmPrefix)
	user := userOf(callback.From)

	p, _ := h.events.Proposal(id)
	eventID, err := h.events.ConfirmProposal(ctx, user.ID, id)
	if err != nil {
		_ = h.chat.AnswerCallbackQuery(callback.ID, "")
		if callback.Message != nil {
			h.replyError(callback.Message.Chat.ID, "confirm proposal", err)
		}
		return
	}
	_ = h.chat.AnswerCallbackQuery(callback.ID, "Created")

	if callback.Message != nil {
		text := fmt.Sprintf("✅ Event #%d %s created. You will get a reminder when it starts.", eventID, p.Draft.Name)
		if _, err := h.chat.EditMessage(callback.Message.Chat.ID, callback.Message.MessageID, text); err != nil {
			h.logger.Warn("Failed to update proposal message: %v", err)
		}
	}

	if p.Draft.GroupID != "" {
		ev := models.Event{
			ID:       eventID,
			OwnerID:  p.Draft.OwnerID,
			GroupID:  p.Draft.GroupID,
			Name:     p.Draft.Name,
			Location: p.Draft.Location,
			Start:    p.Draft.Start,
			End:      p.Draft.End,
		}
		text := h.composer.Announcement(ctx, ev, h.events.UserZone(ctx, user.ID))
		if err := h.chat.Announce(ctx, ev, text); err != nil {
			h.logger.Warn("Failed to announce event %d: %v", eventID, err)
		}
	}
}

func (h *Handler) cancel(callback *tgbotapi.CallbackQuery) {
	id := strings.TrimPrefix(callback.Data, cancelPrefix)
	user := userOf(callback.From)

	if err := h.events.CancelProposal(user.ID, id); err != nil {
		_ = h.chat.AnswerCallbackQuery(callback.ID, "")
		if callback.Message != nil {
			h.replyError(callback.Message.Chat.ID, "cancel proposal", err)
		}
		return
	}
	_ = h.chat.AnswerCallbackQuery(callback.ID, "Cancelled")
	if callback.Message != nil {
		if _, err := h.chat.EditMessage(callback.Message.Chat.ID, callback.Message.MessageID, "✖️ Cancelled."); err != nil {
			h.logger.Warn("Failed to update proposal message: %v", err)
		}
	}
}

func (h *Handler) modify(message *tgbotapi.Message) {
	ctx := context.Background()
	chatID := message.Chat.ID

	id, changes, err := parseModifyArgs(message.CommandArguments())
	if err != nil {
		h.replyError(chatID, "modify event", err)
		return
	}
	outcome, err := h.events.ModifyEvent(ctx, userOf(message.From).ID, id, changes)
	if err != nil {
		h.replyError(chatID, "modify event", err)
		return
	}
	if outcome == events.NoChange {
		h.reply(chatID, "Nothing to change.")
		return
	}
	h.reply(chatID, fmt.Sprintf("✏️ Event #%d updated.", id))
}

func (h *Handler) deleteEvent(message *tgbotapi.Message) {
	ctx := context.Background()
	chatID := message.Chat.ID

	id, err := parseEventID(message.CommandArguments())
	if err != nil {
		h.replyError(chatID, "delete event", err)
		return
	}
	ev, err := h.events.DeleteEvent(ctx, userOf(message.From).ID, id)
	if err != nil {
		h.replyError(chatID, "delete event", err)
		return
	}
	if err := h.chat.ReleaseEvent(ctx, ev); err != nil {
		h.logger.Warn("Failed to release event %d: %v", id, err)
	}
	h.reply(chatID, fmt.Sprintf("🗑 Event #%d %s deleted.", ev.ID, ev.Name))
}

func (h *Handler) showEvents(message *tgbotapi.Message) {
	ctx := context.Background()
	chatID := message.Chat.ID
	user := userOf(message.From)
	group, _ := groupOf(message.Chat)

	list, err := h.events.ListEventsForUser(ctx, user.ID, group)
	if err != nil {
		h.replyError(chatID, "list events", err)
		return
	}
	page := parsePage(message.CommandArguments())
	items, total := events.Page(list, page, perPage)
	h.reply(chatID, messages.EventList("📅 Your events", items, h.events.UserZone(ctx, user.ID), page, total))
}

func (h *Handler) showGroupEvents(message *tgbotapi.Message) {
	ctx := context.Background()
	chatID := message.Chat.ID
	group, title := groupOf(message.Chat)
	if group == "" {
		h.reply(chatID, "❌ This command only works in a group chat.")
		return
	}

	list, err := h.events.ListGroupEvents(ctx, group)
	if err != nil {
		h.replyError(chatID, "list group events", err)
		return
	}
	page := parsePage(message.CommandArguments())
	items, total := events.Page(list, page, perPage)
	zone := h.events.UserZone(ctx, userOf(message.From).ID)
	h.reply(chatID, messages.EventList("📅 Events of "+title, items, zone, page, total))
}

func (h *Handler) getNotified(message *tgbotapi.Message) {
	ctx := context.Background()
	chatID := message.Chat.ID

	id, err := parseEventID(message.CommandArguments())
	if err != nil {
		h.replyError(chatID, "sign up", err)
		return
	}
	group, _ := groupOf(message.Chat)
	outcome, err := h.signups.SignUp(ctx, userOf(message.From), id, group)
	if err != nil {
		h.replyError(chatID, "sign up", err)
		return
	}
	if outcome == signup.AlreadySigned {
		h.reply(chatID, fmt.Sprintf("You are already signed up for event #%d.", id))
		return
	}
	h.reply(chatID, fmt.Sprintf("🔔 You will be reminded when event #%d starts.", id))
}

func (h *Handler) cancelNotification(message *tgbotapi.Message) {
	ctx := context.Background()
	chatID := message.Chat.ID

	id, err := parseEventID(message.CommandArguments())
	if err != nil {
		h.replyError(chatID, "cancel signup", err)
		return
	}
	outcome, err := h.signups.CancelSignup(ctx, userOf(message.From).ID, id)
	if err != nil {
		h.replyError(chatID, "cancel signup", err)
		return
	}
	if outcome == signup.NotSignedUp {
		h.reply(chatID, fmt.Sprintf("You were not signed up for event #%d.", id))
		return
	}
	h.reply(chatID, fmt.Sprintf("🔕 Reminder for event #%d cancelled.", id))
}

func (h *Handler) remindAgain(message *tgbotapi.Message) {
	ctx := context.Background()
	chatID := message.Chat.ID

	id, err := parseEventID(message.CommandArguments())
	if err != nil {
		h.replyError(chatID, "reset reminder", err)
		return
	}
	if err := h.signups.ResetNotified(ctx, userOf(message.From).ID, id); err != nil {
		h.replyError(chatID, "reset reminder", err)
		return
	}
	h.reply(chatID, fmt.Sprintf("🔔 Reminder for event #%d re-armed.", id))
}

// timezone shows or sets the user's zone. Offsets like "+02:00" are resolved
// to the first catalog zone with that offset right now.
func (h *Handler) timezone(message *tgbotapi.Message) {
	ctx := context.Background()
	chatID := message.Chat.ID
	user := userOf(message.From)
	arg := strings.TrimSpace(message.CommandArguments())

	if arg == "" {
		h.reply(chatID, fmt.Sprintf("🌍 Your timezone is %s.", h.events.UserZone(ctx, user.ID)))
		return
	}

	zone := arg
	if _, err := timeconv.LoadZone(arg); err != nil {
		offset, perr := timeconv.ParseOffset(arg)
		if perr != nil {
			h.reply(chatID, fmt.Sprintf("❌ Unknown timezone %q. Use a name like Europe/Berlin or an offset like +02:00.", arg))
			return
		}
		name, ok := h.catalog.InferZone(offset, h.now())
		if !ok {
			h.reply(chatID, fmt.Sprintf("❌ No known timezone has offset %s right now.", arg))
			return
		}
		zone = name
	}

	if err := h.events.SetUserZone(ctx, user, zone); err != nil {
		h.replyError(chatID, "set timezone", err)
		return
	}
	h.reply(chatID, fmt.Sprintf("🌍 Timezone set to %s.", zone))
}

func (h *Handler) export(message *tgbotapi.Message) {
	ctx := context.Background()
	chatID := message.Chat.ID
	user := userOf(message.From)
	group, _ := groupOf(message.Chat)

	list, err := h.events.ListEventsForUser(ctx, user.ID, group)
	if err != nil {
		h.replyError(chatID, "export events", err)
		return
	}
	if len(list) == 0 {
		h.reply(chatID, "📭 No events to export.")
		return
	}
	data, err := ics.Export(list, h.now())
	if err != nil {
		h.replyError(chatID, "export events", err)
		return
	}
	if err := h.chat.SendDocument(chatID, "events.ics", data, fmt.Sprintf("%d events", len(list))); err != nil {
		h.logger.Error("Failed to send export to chat %d: %v", chatID, err)
		h.reply(chatID, genericFailure)
	}
}
