// Package bot implements the chat command surface: start and stop with an
// admin check and a vote fallback, plus read-only stats, graphs and duels.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mcserver-backend/config"
	"mcserver-backend/internal/metrics"
	"mcserver-backend/internal/model"
	"mcserver-backend/internal/mw"
	"mcserver-backend/internal/orchestrator"
	"mcserver-backend/internal/parse"
	"mcserver-backend/internal/report"
	"mcserver-backend/internal/vote"
)

// Orchestrator is the lifecycle side the commands drive.
type Orchestrator interface {
	Start(ctx context.Context) error
	TriggerManualStop(ctx context.Context) error
}

// Reporter is the read side the commands query.
type Reporter interface {
	LatestSnapshot(ctx context.Context) (*model.MetricSnapshot, bool, error)
	PlayerLookup(ctx context.Context, name string) (*model.Player, bool, error)
	Duels(ctx context.Context, name string) (*report.Duel, bool, error)
	Graph(ctx context.Context, metric string, minutes int) (string, error)
	Minutes(requested int) int
}

// Tone distinguishes success from failure replies.
type Tone int

const (
	ToneInfo Tone = iota
	ToneSuccess
	ToneFailure
)

// Field is one labelled value of a reply.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Reply is an outgoing message. File, when set, is attached.
type Reply struct {
	Title  string
	Text   string
	Tone   Tone
	Fields []Field
	File   string
}

// Message is an incoming chat message.
type Message struct {
	ID          string
	ChannelID   string
	AuthorID    string
	AuthorIsBot bool
	RoleIDs     []string
	Content     string
}

// Reaction is an emoji added to a message.
type Reaction struct {
	MessageID string
	ChannelID string
	UserID    string
	IsBot     bool
	Emoji     string
}

// Responder delivers replies to the chat platform.
type Responder interface {
	// Send posts r to channelID, as a reply to replyTo when it is set, and
	// returns the new message id.
	Send(ctx context.Context, channelID, replyTo string, r Reply) (string, error)
	React(ctx context.Context, channelID, messageID, emoji string) error
}

// Handler dispatches commands. It is safe for concurrent use.
type Handler struct {
	cfg     config.BotConfig
	orch    Orchestrator
	reports Reporter
	gate    *vote.Gate
	out     Responder
	limiter *mw.KeyedLimiter
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a Handler.
func NewHandler(cfg config.BotConfig, orch Orchestrator, reports Reporter, gate *vote.Gate, out Responder, logger *zap.Logger, m *metrics.Metrics) *Handler {
	perMin := cfg.CommandsPerMin
	if perMin <= 0 {
		perMin = 12
	}
	return &Handler{
		cfg:     cfg,
		orch:    orch,
		reports: reports,
		gate:    gate,
		out:     out,
		limiter: mw.NewKeyedLimiter(rate.Every(time.Minute/time.Duration(perMin)), min(perMin, 3)),
		logger:  logger.With(zap.String("component", "bot")),
		metrics: m,
	}
}

// IsAdmin reports whether any of roleIDs is an admin role.
func (h *Handler) IsAdmin(roleIDs []string) bool {
	for _, id := range roleIDs {
		if slices.Contains(h.cfg.AdminRoleIDs, id) {
			return true
		}
	}
	return false
}

const unknownCommand = "unknown"

// HandleMessage parses and runs one command. Non-commands are ignored.
func (h *Handler) HandleMessage(ctx context.Context, m Message) {
	if m.AuthorIsBot {
		return
	}
	cmd, err := parse.ParseCommand(m.Content, h.cfg.Prefix)
	if errors.Is(err, parse.ErrNotCommand) {
		return
	}
	// Only recognised names become metric labels.
	label := cmd.Name
	if err != nil {
		label = unknownCommand
	}
	if !h.limiter.Allow(m.AuthorID) {
		h.metrics.Command(label, "rate_limited")
		h.reply(ctx, m, Reply{Text: "Slow down, try again in a moment.", Tone: ToneFailure})
		return
	}
	if err != nil {
		h.metrics.Command(label, "unknown")
		h.reply(ctx, m, Reply{Title: "Unknown command", Text: h.help(), Tone: ToneFailure})
		return
	}

	h.logger.Debug("command", zap.String("name", cmd.Name), zap.String("author", m.AuthorID))
	var result string
	switch cmd.Name {
	case parse.Start:
		result = h.start(ctx, m)
	case parse.Stop:
		result = h.stop(ctx, m)
	case parse.Stats:
		result = h.stats(ctx, m, cmd.Args)
	case parse.Graph:
		result = h.graph(ctx, m, cmd.Args)
	case parse.Duels:
		result = h.duels(ctx, m, cmd.Args)
	}
	h.metrics.Command(cmd.Name, result)
}

func (h *Handler) help() string {
	names := make([]string, 0, len(parse.Usage))
	for name := range parse.Usage {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "`%s%s`\n", h.cfg.Prefix, parse.Usage[name])
	}
	return b.String()
}

func (h *Handler) reply(ctx context.Context, m Message, r Reply) string {
	id, err := h.out.Send(ctx, m.ChannelID, m.ID, r)
	if err != nil {
		h.logger.Warn("reply failed", zap.String("channel", m.ChannelID), zap.Error(err))
	}
	return id
}

func (h *Handler) usage(ctx context.Context, m Message, err error) string {
	text := err.Error()
	var ue *parse.UsageError
	if errors.As(err, &ue) {
		text = fmt.Sprintf("`%s%s`", h.cfg.Prefix, parse.Usage[ue.Command])
	}
	h.reply(ctx, m, Reply{Title: "Usage", Text: text, Tone: ToneFailure})
	return "usage"
}

func (h *Handler) start(ctx context.Context, m Message) string {
	if !h.IsAdmin(m.RoleIDs) {
		return h.openVote(ctx, m)
	}
	h.reply(ctx, m, Reply{Text: "Starting Minecraft server", Tone: ToneInfo})
	return h.runStart(ctx, m.ChannelID, m.ID)
}

func (h *Handler) runStart(ctx context.Context, channelID, replyTo string) string {
	err := h.orch.Start(ctx)
	switch {
	case err == nil:
		h.send(ctx, channelID, replyTo, Reply{Text: "VM is up. The Minecraft server is starting.", Tone: ToneSuccess})
		return "ok"
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		h.send(ctx, channelID, replyTo, Reply{Text: "The server is already running.", Tone: ToneInfo})
		return "noop"
	case errors.Is(err, orchestrator.ErrShutdownInProgress):
		h.send(ctx, channelID, replyTo, Reply{Text: "A shutdown is in progress, try again once it finishes.", Tone: ToneFailure})
		return "busy"
	case errors.Is(err, orchestrator.ErrStartInProgress):
		h.send(ctx, channelID, replyTo, Reply{Text: "The server is already starting.", Tone: ToneInfo})
		return "busy"
	default:
		h.logger.Error("start failed", zap.Error(err))
		h.send(ctx, channelID, replyTo, Reply{Text: "Could not start the server.", Tone: ToneFailure})
		return "failed"
	}
}

func (h *Handler) send(ctx context.Context, channelID, replyTo string, r Reply) {
	if _, err := h.out.Send(ctx, channelID, replyTo, r); err != nil {
		h.logger.Warn("send failed", zap.String("channel", channelID), zap.Error(err))
	}
}

func (h *Handler) openVote(ctx context.Context, m Message) string {
	id := h.reply(ctx, m, Reply{
		Title: "Vote to start the server",
		Text:  fmt.Sprintf("React with %s to start the server. %d votes needed.", h.cfg.VoteEmoji, h.gate.Required),
		Tone:  ToneInfo,
	})
	if id == "" {
		return "failed"
	}
	h.gate.Open(id)
	if err := h.out.React(ctx, m.ChannelID, id, h.cfg.VoteEmoji); err != nil {
		h.logger.Warn("seeding vote reaction failed", zap.Error(err))
	}
	return "vote"
}

// HandleReaction counts a vote. Reaching the threshold starts the server.
func (h *Handler) HandleReaction(ctx context.Context, r Reaction) {
	if r.Emoji != h.cfg.VoteEmoji {
		return
	}
	result, n := h.gate.Vote(r.MessageID, r.UserID, r.IsBot)
	if result == vote.Ignored {
		return
	}
	h.logger.Debug("vote", zap.String("result", result.String()), zap.Int("votes", n))
	if result != vote.Reached {
		return
	}
	h.send(ctx, r.ChannelID, r.MessageID, Reply{Text: fmt.Sprintf("%d votes reached. Starting Minecraft server", n), Tone: ToneInfo})
	h.metrics.Command("vote", h.runStart(ctx, r.ChannelID, r.MessageID))
}

func (h *Handler) stop(ctx context.Context, m Message) string {
	if !h.IsAdmin(m.RoleIDs) {
		h.reply(ctx, m, Reply{Text: "You can’t use this command!", Tone: ToneFailure})
		return "denied"
	}
	h.reply(ctx, m, Reply{Text: "Stopping Minecraft server", Tone: ToneInfo})

	err := h.orch.TriggerManualStop(ctx)
	switch {
	case err == nil:
		h.reply(ctx, m, Reply{Text: "Server and VM are stopped.", Tone: ToneSuccess})
		return "ok"
	case errors.Is(err, orchestrator.ErrShutdownInProgress):
		h.reply(ctx, m, Reply{Text: "A shutdown is already in progress.", Tone: ToneInfo})
		return "busy"
	case errors.Is(err, orchestrator.ErrStartInProgress):
		h.reply(ctx, m, Reply{Text: "The server is starting, try again once it is up.", Tone: ToneFailure})
		return "busy"
	default:
		h.logger.Error("manual stop failed", zap.Error(err))
		h.reply(ctx, m, Reply{Text: "Shutdown failed. The server may still be running.", Tone: ToneFailure})
		return "failed"
	}
}

func (h *Handler) stats(ctx context.Context, m Message, args []string) string {
	q, err := parse.ParseStats(args)
	if err != nil {
		return h.usage(ctx, m, err)
	}
	if q.Player != "" {
		return h.playerStats(ctx, m, q.Player)
	}

	snap, ok, err := h.reports.LatestSnapshot(ctx)
	if err != nil {
		h.logger.Error("latest snapshot failed", zap.Error(err))
		h.reply(ctx, m, Reply{Text: "Stats are unavailable right now.", Tone: ToneFailure})
		return "failed"
	}
	if !ok {
		h.reply(ctx, m, Reply{Text: "No stats recorded yet.", Tone: ToneInfo})
		return "no_data"
	}
	if !snap.Online {
		h.reply(ctx, m, Reply{
			Title: "Server stats",
			Text:  fmt.Sprintf("The server is offline (as of %s).", time.UnixMilli(snap.Timestamp).UTC().Format(time.RFC1123)),
			Tone:  ToneFailure,
		})
		return "ok"
	}
	h.reply(ctx, m, Reply{Title: "Server stats", Tone: ToneSuccess, Fields: serverFields(snap)})
	return "ok"
}

func serverFields(s *model.MetricSnapshot) []Field {
	return []Field{
		{Name: "Players", Value: fmt.Sprint(s.PlayerCount), Inline: true},
		{Name: "CPU", Value: fmt.Sprintf("%.0f%%", s.CPULoad*100), Inline: true},
		{Name: "RAM", Value: fmt.Sprintf("%s / %s", report.FormatMB(s.RAMUsedMB), report.FormatMB(s.RAMMaxMB)), Inline: true},
		{Name: "Threads", Value: fmt.Sprint(s.Threads), Inline: true},
		{Name: "Loaded chunks", Value: fmt.Sprint(s.LoadedChunks), Inline: true},
		{Name: "Uptime", Value: report.FormatDuration(s.UptimeMS), Inline: true},
		{Name: "Total runtime", Value: s.TotalRuntimeHMS, Inline: true},
		{Name: "Joins", Value: fmt.Sprint(s.TotalJoins), Inline: true},
		{Name: "Deaths", Value: fmt.Sprint(s.TotalDeaths), Inline: true},
	}
}

func (h *Handler) playerStats(ctx context.Context, m Message, name string) string {
	p, ok, err := h.reports.PlayerLookup(ctx, name)
	if err != nil {
		h.logger.Error("player lookup failed", zap.String("name", name), zap.Error(err))
		h.reply(ctx, m, Reply{Text: "Stats are unavailable right now.", Tone: ToneFailure})
		return "failed"
	}
	if !ok {
		h.reply(ctx, m, Reply{Text: fmt.Sprintf("No stats for %s.", name), Tone: ToneInfo})
		return "no_data"
	}
	fields := []Field{
		{Name: "Joins", Value: fmt.Sprint(p.TotalJoins), Inline: true},
		{Name: "Deaths", Value: fmt.Sprint(p.TotalDeaths), Inline: true},
		{Name: "Playtime", Value: report.FormatDuration(p.TotalPlaytimeMS), Inline: true},
		{Name: "Player kills", Value: fmt.Sprint(p.PlayerKills), Inline: true},
		{Name: "Mob kills", Value: fmt.Sprint(p.MobKills), Inline: true},
		{Name: "Messages", Value: fmt.Sprint(p.MessagesSent), Inline: true},
		{Name: "Advancements", Value: fmt.Sprint(p.AdvancementCount), Inline: true},
	}
	if p.LastSeenTS > 0 {
		fields = append(fields, Field{Name: "Last seen", Value: time.UnixMilli(p.LastSeenTS).UTC().Format(time.RFC1123)})
	}
	h.reply(ctx, m, Reply{Title: p.Name, Tone: ToneSuccess, Fields: fields})
	return "ok"
}

func (h *Handler) graph(ctx context.Context, m Message, args []string) string {
	q, err := parse.ParseGraph(args)
	if err != nil {
		return h.usage(ctx, m, err)
	}
	if _, known := report.Metrics[q.Metric]; !known {
		h.reply(ctx, m, Reply{
			Title: "Unknown metric",
			Text:  "Available metrics: " + strings.Join(report.MetricKeys(), ", "),
			Tone:  ToneFailure,
		})
		return "unknown_metric"
	}

	minutes := h.reports.Minutes(q.Minutes)
	path, err := h.reports.Graph(ctx, q.Metric, minutes)
	switch {
	case errors.Is(err, report.ErrNoData):
		h.reply(ctx, m, Reply{Text: fmt.Sprintf("No data for %s in the last %d minutes.", q.Metric, minutes), Tone: ToneInfo})
		return "no_data"
	case err != nil:
		h.logger.Error("graph failed", zap.String("metric", q.Metric), zap.Error(err))
		h.reply(ctx, m, Reply{Text: "Could not render the graph.", Tone: ToneFailure})
		return "failed"
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			h.logger.Warn("removing chart file failed", zap.String("path", path), zap.Error(err))
		}
	}()

	spec := report.Metrics[q.Metric]
	h.reply(ctx, m, Reply{Title: fmt.Sprintf("%s: last %d min", spec.Label, minutes), Tone: ToneSuccess, File: path})
	return "ok"
}

func (h *Handler) duels(ctx context.Context, m Message, args []string) string {
	name, err := parse.ParseDuels(args)
	if err != nil {
		return h.usage(ctx, m, err)
	}
	d, ok, err := h.reports.Duels(ctx, name)
	if err != nil {
		h.logger.Error("duel lookup failed", zap.String("name", name), zap.Error(err))
		h.reply(ctx, m, Reply{Text: "Duel stats are unavailable right now.", Tone: ToneFailure})
		return "failed"
	}
	if !ok {
		h.reply(ctx, m, Reply{Text: fmt.Sprintf("No duel stats for %s.", name), Tone: ToneInfo})
		return "no_data"
	}

	ratio := float64(d.Wins)
	if d.Losses > 0 {
		ratio = float64(d.Wins) / float64(d.Losses)
	}
	fields := []Field{
		{Name: "Wins", Value: fmt.Sprint(d.Wins), Inline: true},
		{Name: "Losses", Value: fmt.Sprint(d.Losses), Inline: true},
		{Name: "W/L", Value: fmt.Sprintf("%.2f", ratio), Inline: true},
		{Name: "Rating", Value: fmt.Sprint(d.Rating), Inline: true},
	}
	kits := make([]string, 0, len(d.KitBreakdown))
	for kit := range d.KitBreakdown {
		kits = append(kits, kit)
	}
	slices.Sort(kits)
	for _, kit := range kits {
		k := d.KitBreakdown[kit]
		fields = append(fields, Field{Name: kit, Value: fmt.Sprintf("%dW / %dL", k.Wins, k.Losses), Inline: true})
	}

	title := d.DisplayName
	if title == "" {
		title = d.Name
	}
	h.reply(ctx, m, Reply{Title: title + " duels", Tone: ToneSuccess, Fields: fields})
	return "ok"
}
