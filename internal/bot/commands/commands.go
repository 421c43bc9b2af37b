package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aaafuria/furia-feed/internal/feed"
)

// maxMessageLen is Discord's content limit, in characters.
const maxMessageLen = 2000

// Feed is the read side of feed.Manager used by the commands.
type Feed interface {
	ListMain(ctx context.Context, viewerID string, page, pageSize int) ([]feed.Item, error)
	Open(ctx context.Context, id, viewerID string) (feed.Thread, error)
}

// Handlers process Discord interactions.
type Handlers struct {
	feed     Feed
	pageSize int
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(f Feed, pageSize int, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		feed:     f,
		pageSize: pageSize,
		logger:   logger,
		tracer:   tp.Tracer("github.com/aaafuria/furia-feed/internal/bot/commands"),
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	minPage := 1.0
	return []*discordgo.ApplicationCommand{
		{
			Name:        "feed",
			Description: "Mostra os posts mais recentes",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "pagina",
					Description: "Página do feed (padrão: 1)",
					Required:    false,
					MinValue:    &minPage,
				},
			},
		},
		{
			Name:        "post",
			Description: "Mostra um post e suas respostas",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "id",
					Description: "ID do post",
					Required:    true,
				},
			},
		},
	}
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	ctx, span := h.tracer.Start(context.Background(), "InteractionCreate",
		trace.WithAttributes(attribute.String("command", data.Name)),
	)
	defer span.End()

	respond(s, i, h.Handle(ctx, invoker(i), data))
}

// invoker is the Discord user behind an interaction, in a guild or a DM.
func invoker(i *discordgo.InteractionCreate) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	default:
		return ""
	}
}

// Handle runs one command for userID and returns the reply text.
func (h *Handlers) Handle(ctx context.Context, userID string, data discordgo.ApplicationCommandInteractionData) string {
	switch data.Name {
	case "feed":
		page := 1
		for _, opt := range data.Options {
			if opt.Name == "pagina" {
				page = int(opt.IntValue())
			}
		}
		return h.handleFeed(ctx, userID, page)
	case "post":
		if len(data.Options) == 0 {
			return "Informe o ID do post."
		}
		return h.handlePost(ctx, userID, data.Options[0].StringValue())
	default:
		return "Comando desconhecido."
	}
}

func (h *Handlers) handleFeed(ctx context.Context, userID string, page int) string {
	items, err := h.feed.ListMain(ctx, userID, page, h.pageSize)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing feed failed", slog.Any("error", err))
		return "Não foi possível carregar o feed."
	}
	return FeedMessage(items)
}

func (h *Handlers) handlePost(ctx context.Context, userID, id string) string {
	th, err := h.feed.Open(ctx, id, userID)
	if errors.Is(err, feed.ErrNotFound) {
		return fmt.Sprintf("Post `%s` não encontrado.", id)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "loading post failed", slog.String("post_id", id), slog.Any("error", err))
		return "Não foi possível carregar o post."
	}
	return PostMessage(th)
}

// FeedMessage renders a listing page, one summary line per post. Posts the
// reader has not opened yet have bold titles.
func FeedMessage(items []feed.Item) string {
	if len(items) == 0 {
		return "Nenhum post por aqui ainda."
	}
	var b strings.Builder
	b.WriteString("**Feed**\n")
	for _, it := range items {
		title := it.Title
		if !it.Viewed {
			title = "**" + title + "**"
		}
		fmt.Fprintf(&b, "%s (`%s`)\n%s\n", title, it.ID, feed.Summary(it))
	}
	return truncate(b.String())
}

// PostMessage renders a post followed by its replies, nested replies marked
// with one arrow per level below the first.
func PostMessage(th feed.Thread) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n%s\n%s\n", th.Title, th.Content, feed.Summary(th.Item))
	writeReplies(&b, th.Children, 0)
	return truncate(b.String())
}

func writeReplies(b *strings.Builder, replies []feed.Thread, depth int) {
	indent := strings.Repeat("↳ ", depth)
	for _, r := range replies {
		fmt.Fprintf(b, "> %s**%s** - %s\n> %s%s\n", indent, r.Nickname, r.Age, indent, r.Content)
		writeReplies(b, r.Children, depth+1)
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxMessageLen {
		return s
	}
	return string([]rune(s)[:maxMessageLen-1]) + "…"
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}
