package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"mcserver-backend/internal/metrics"
	"mcserver-backend/internal/notification"
)

const (
	colorInfo    = 0x58a6ff
	colorSuccess = 0x2ecc71
	colorFailure = 0xe74c3c
)

// Discord connects a Handler to a Discord session and announces lifecycle
// events in the broadcast channel.
type Discord struct {
	session   *discordgo.Session
	broadcast string
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu          sync.Mutex
	broadcastID string
}

// NewDiscord creates a session for the bot token. Call Attach and Open to
// start receiving events.
func NewDiscord(token, broadcastChannel string, logger *zap.Logger, m *metrics.Metrics) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent
	return &Discord{
		session:   s,
		broadcast: broadcastChannel,
		logger:    logger.With(zap.String("component", "discord")),
		metrics:   m,
	}, nil
}

// Attach routes message and reaction events to h. ctx bounds every
// command.
func (d *Discord) Attach(ctx context.Context, h *Handler) {
	d.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info("logged in", zap.String("user", r.User.String()))
	})
	d.session.AddHandler(func(s *discordgo.Session, mc *discordgo.MessageCreate) {
		if mc.Author == nil {
			return
		}
		msg := Message{
			ID:          mc.ID,
			ChannelID:   mc.ChannelID,
			AuthorID:    mc.Author.ID,
			AuthorIsBot: mc.Author.Bot,
			Content:     mc.Content,
		}
		if mc.Member != nil {
			msg.RoleIDs = mc.Member.Roles
		}
		h.HandleMessage(ctx, msg)
	})
	d.session.AddHandler(func(s *discordgo.Session, ra *discordgo.MessageReactionAdd) {
		isBot := s.State != nil && s.State.User != nil && ra.UserID == s.State.User.ID
		if ra.Member != nil && ra.Member.User != nil && ra.Member.User.Bot {
			isBot = true
		}
		h.HandleReaction(ctx, Reaction{
			MessageID: ra.MessageID,
			ChannelID: ra.ChannelID,
			UserID:    ra.UserID,
			IsBot:     isBot,
			Emoji:     ra.Emoji.Name,
		})
	})
}

// Open connects the gateway websocket.
func (d *Discord) Open() error {
	return d.session.Open()
}

// Close disconnects.
func (d *Discord) Close() error {
	return d.session.Close()
}

// Send implements Responder.
func (d *Discord) Send(ctx context.Context, channelID, replyTo string, r Reply) (string, error) {
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embedFor(r)}}
	if replyTo != "" {
		msg.Reference = &discordgo.MessageReference{MessageID: replyTo, ChannelID: channelID}
	}
	if r.File != "" {
		f, err := os.Open(r.File)
		if err != nil {
			return "", fmt.Errorf("opening attachment: %w", err)
		}
		defer f.Close()
		name := filepath.Base(r.File)
		msg.Files = []*discordgo.File{{Name: name, ContentType: "image/png", Reader: f}}
		msg.Embeds[0].Image = &discordgo.MessageEmbedImage{URL: "attachment://" + name}
	}

	sent, err := d.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return sent.ID, nil
}

// React implements Responder.
func (d *Discord) React(ctx context.Context, channelID, messageID, emoji string) error {
	return d.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

// Notify implements notification.Notifier by posting to the broadcast
// channel.
func (d *Discord) Notify(ctx context.Context, ev notification.Event) {
	channelID := d.broadcastChannelID()
	if channelID == "" {
		d.logger.Warn("broadcast channel not found", zap.String("channel", d.broadcast))
		d.metrics.NotifyFailure("discord")
		return
	}
	tone := ToneInfo
	switch {
	case ev.Failed():
		tone = ToneFailure
	case ev.Kind == notification.KindVMStopped || ev.Kind == notification.KindVMStarted:
		tone = ToneSuccess
	}
	if _, err := d.Send(ctx, channelID, "", Reply{Text: ev.Message, Tone: tone}); err != nil {
		d.logger.Warn("broadcast failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		d.metrics.NotifyFailure("discord")
	}
}

func (d *Discord) broadcastChannelID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.broadcastID == "" && d.session.State != nil {
		d.session.State.RLock()
		d.broadcastID = findTextChannel(d.session.State.Guilds, d.broadcast)
		d.session.State.RUnlock()
	}
	return d.broadcastID
}

// findTextChannel returns the id of the first text channel called name.
func findTextChannel(guilds []*discordgo.Guild, name string) string {
	for _, g := range guilds {
		for _, c := range g.Channels {
			if c.Type == discordgo.ChannelTypeGuildText && c.Name == name {
				return c.ID
			}
		}
	}
	return ""
}

func embedFor(r Reply) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       r.Title,
		Description: r.Text,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	switch r.Tone {
	case ToneSuccess:
		e.Color = colorSuccess
	case ToneFailure:
		e.Color = colorFailure
	default:
		e.Color = colorInfo
	}
	for _, f := range r.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return e
}
