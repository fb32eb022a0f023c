package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"staffduty/internal/activity"
	"staffduty/internal/database"
	"staffduty/internal/duty"
	"staffduty/internal/weekly"
)

// eventTimeout bounds the store and API work done for one gateway event
const eventTimeout = 15 * time.Second

// Observer counts manual duty events
type Observer interface {
	DutyEvent(event, outcome string)
}

type nopObserver struct{}

func (nopObserver) DutyEvent(string, string) {}

// Deps are the services the gateway handlers drive
type Deps struct {
	Repository *database.Repository
	Desk       *duty.Desk
	Activity   *activity.Aggregator
	Weekly     *weekly.Scheduler
	Observer   Observer
	Logger     *slog.Logger
	Now        func() time.Time
}

// Bot represents the Discord bot
type Bot struct {
	session    *discordgo.Session
	platform   *Platform
	repository *database.Repository
	desk       *duty.Desk
	activity   *activity.Aggregator
	weekly     *weekly.Scheduler
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
}

// NewSession creates a Discord session with the intents the tracker needs
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildVoiceStates |
		discordgo.IntentGuildMessages
	session.State.TrackVoice = true
	session.State.TrackMembers = true

	return session, nil
}

// New creates a new Discord bot and registers its event handlers
func New(session *discordgo.Session, platform *Platform, deps Deps) *Bot {
	bot := &Bot{
		session:    session,
		platform:   platform,
		repository: deps.Repository,
		desk:       deps.Desk,
		activity:   deps.Activity,
		weekly:     deps.Weekly,
		observer:   deps.Observer,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if bot.observer == nil {
		bot.observer = nopObserver{}
	}
	if bot.logger == nil {
		bot.logger = slog.Default()
	}
	if bot.now == nil {
		bot.now = time.Now
	}

	// Add event handlers
	session.AddHandler(bot.ready)
	session.AddHandler(bot.guildCreate)
	session.AddHandler(bot.voiceStateUpdate)
	session.AddHandler(bot.messageCreate)
	session.AddHandler(bot.interactionCreate)

	return bot
}

// Start opens the gateway connection
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	b.logger.Info("Bot is running")
	return nil
}

// Stop closes the gateway connection
func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), eventTimeout)
}

// ready registers the slash commands
func (b *Bot) ready(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("Logged in", slog.String("user", r.User.Username), slog.String("id", r.User.ID), slog.Int("guilds", len(r.Guilds)))

	registered, err := s.ApplicationCommandBulkOverwrite(r.User.ID, "", commands())
	if err != nil {
		b.logger.Error("Failed to register slash commands", slog.String("error", err.Error()))
		return
	}
	b.logger.Info("Synced slash commands", slog.Int("count", len(registered)))
}

// guildCreate makes sure every joined guild has a settings row so the
// periodic jobs see it.
func (b *Bot) guildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	ctx, cancel := b.eventContext()
	defer cancel()
	if err := b.repository.EnsureGuild(ctx, g.ID); err != nil {
		b.logger.Error("Failed to register guild", slog.String("guild", g.ID), slog.String("error", err.Error()))
	}
}
