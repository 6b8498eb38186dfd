package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"magicbag/internal/common"
	"magicbag/internal/models"
	"magicbag/internal/repositories"
	"magicbag/internal/services"
)

// Discord rejects message bodies longer than this many characters.
const maxMessageLength = 2000

const commandTimeout = 30 * time.Second

// messenger is the part of *discordgo.Session the bot talks through.
type messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Bot answers chat commands and delivers item notifications.
type Bot struct {
	session   *discordgo.Session
	api       messenger
	prefix    string
	channels  repositories.ChannelRepository
	locations services.LocationService
	logger    *slog.Logger
}

var _ services.Notifier = (*Bot)(nil)

// New creates a bot for token. Call Run to connect.
func New(token, prefix string, channels repositories.ChannelRepository, locations services.LocationService, logger *slog.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is empty: %w", common.ErrConfiguration)
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	b := newBot(session, prefix, channels, locations, logger)
	b.session = session
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	return b, nil
}

func newBot(api messenger, prefix string, channels repositories.ChannelRepository, locations services.LocationService, logger *slog.Logger) *Bot {
	if prefix == "" {
		prefix = "!"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:       api,
		prefix:    prefix,
		channels:  channels,
		locations: locations,
		logger:    logger,
	}
}

// Run connects to the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	<-ctx.Done()
	b.logger.Info("closing discord session")
	return b.session.Close()
}

// Send posts message to channelID, truncating it to the platform limit.
func (b *Bot) Send(ctx context.Context, channelID, message string) error {
	message = truncate(message, maxMessageLength)
	if _, err := b.api.ChannelMessageSend(channelID, message, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send to channel %s: %w", channelID, err)
	}
	if runID, ok := common.GetRunIDFromContext(ctx); ok {
		b.logger.Debug("notification sent", slog.String("channel_id", channelID), slog.String("run_id", runID.String()))
	}
	return nil
}

// truncate cuts s to at most limit characters, ending in "..." when cut.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("logged in", slog.String("user", r.User.String()))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	ctx = common.WithChannelID(ctx, m.ChannelID)

	reply, ok := b.handleCommand(ctx, m.ChannelID, m.Content)
	if !ok {
		return
	}
	if err := b.Send(ctx, m.ChannelID, reply); err != nil {
		b.logger.Error("failed to reply", slog.String("channel_id", m.ChannelID), slog.Any("error", err))
	}
}

// handleCommand executes a prefixed command and returns the reply. ok is
// false for messages that are not commands.
func (b *Bot) handleCommand(ctx context.Context, channelID, content string) (reply string, ok bool) {
	if !strings.HasPrefix(content, b.prefix) {
		return "", false
	}
	name, arg, _ := strings.Cut(strings.TrimPrefix(content, b.prefix), " ")
	arg = strings.TrimSpace(arg)

	logger := b.logger.With(slog.String("command", name), slog.String("channel_id", channelID))

	switch strings.ToLower(name) {
	case "here":
		return b.here(ctx, logger, channelID), true
	case "forget":
		return b.forget(ctx, logger, channelID), true
	case "watch":
		return b.watch(ctx, logger, arg), true
	case "locations":
		return b.listLocations(ctx, logger), true
	case "help":
		return b.help(), true
	default:
		return "", false
	}
}

func (b *Bot) channelName(channelID string) string {
	ch, err := b.api.Channel(channelID)
	if err != nil || ch.Name == "" {
		return channelID
	}
	return ch.Name
}

func (b *Bot) here(ctx context.Context, logger *slog.Logger, channelID string) string {
	name := b.channelName(channelID)

	created, err := b.channels.Add(ctx, &models.Channel{ID: channelID, Name: name})
	if err != nil {
		logger.Error("failed to register channel", slog.Any("error", err))
		return "Could not register this channel, try again later"
	}
	if !created {
		return fmt.Sprintf("%s is already registered", name)
	}

	logger.Info("channel registered", slog.String("name", name))
	return fmt.Sprintf("Target channel set to %s", name)
}

func (b *Bot) forget(ctx context.Context, logger *slog.Logger, channelID string) string {
	name := b.channelName(channelID)
	if err := b.channels.Remove(ctx, channelID); err != nil {
		logger.Error("failed to unregister channel", slog.Any("error", err))
		return "Could not unregister this channel, try again later"
	}
	logger.Info("channel unregistered", slog.String("name", name))
	return fmt.Sprintf("%s will no longer receive notifications", name)
}

func (b *Bot) watch(ctx context.Context, logger *slog.Logger, address string) string {
	if address == "" {
		return fmt.Sprintf("Usage: %swatch <address>", b.prefix)
	}

	loc, err := b.locations.Watch(ctx, address)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Sprintf("Could not find %q", address)
		}
		logger.Error("failed to watch location", slog.String("address", address), slog.Any("error", err))
		return "Could not add the location, try again later"
	}
	return fmt.Sprintf("Watching #%d %s", loc.ID, loc)
}

func (b *Bot) listLocations(ctx context.Context, logger *slog.Logger) string {
	locations, err := b.locations.List(ctx)
	if err != nil {
		logger.Error("failed to list locations", slog.Any("error", err))
		return "Could not list locations, try again later"
	}
	if len(locations) == 0 {
		return "No locations are being watched"
	}

	var sb strings.Builder
	sb.WriteString("Watched locations:")
	for _, loc := range locations {
		fmt.Fprintf(&sb, "\n#%d %s", loc.ID, loc)
	}
	return sb.String()
}

func (b *Bot) help() string {
	p := b.prefix
	return strings.Join([]string{
		p + "here: send notifications to this channel",
		p + "forget: stop sending notifications to this channel",
		p + "watch <address>: search for bags around an address",
		p + "locations: list watched addresses",
	}, "\n")
}
