package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedalert/internal/filter"
	"feedalert/internal/model"
	"feedalert/internal/pipeline"
	"feedalert/internal/scheduler"
	"feedalert/internal/storage"
)

const defaultIntervalMinutes = 5

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to FeedAlert!

Watch feeds and message threads and get a push notification for every new item.

Quick start:
1. /add <url> - watch an RSS/Atom feed
2. /addthread <url> [name] - watch a message-thread API
3. /exclude <word> - never notify items containing a word

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Sources:
/add <url> - add a feed
/addthread <url> [name] - add a message-thread API
/list - show your sources
/info <id> - source details
/remove <id> - delete a source
/rename <id> <name> - rename a source
/interval <id> <min> - set check interval (1-1440)
/pause <id> - pause checking
/resume <id> - resume checking
/check <id> - check now

Exclusion rules (apply to all sources):
/exclude <word>[, <word>...] - drop items containing a word
/excludeprefix <text> - drop items whose title starts with text
/rules - show rules
/rmrule <rule_id> - remove a rule`)
}

// ownedSource loads a source and checks that it belongs to chatID. It
// replies with a not-found message otherwise.
func (b *Bot) ownedSource(ctx context.Context, chatID, id int64) (*model.Source, bool) {
	src, err := b.store.GetSource(ctx, id)
	if err != nil || src.ChatID != chatID {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", id))
		return nil, false
	}
	return src, true
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /add <url>")
		return
	}

	feed, err := b.fetcher.FetchFeed(ctx, args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to fetch feed: %v", err))
		return
	}

	name := feed.Title
	if name == "" {
		name = args
	}
	b.createSource(ctx, chatID, model.SourceFeed, name, args)
}

func (b *Bot) handleAddThread(ctx context.Context, chatID int64, args string) {
	rawURL, name, err := ParseAddThreadArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	src := model.Source{Kind: model.SourceThread, URL: rawURL}
	if _, err := b.fetcher.Fetch(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to fetch threads: %v", err))
		return
	}

	if name == "" {
		name = rawURL
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			name = u.Host
		}
	}
	b.createSource(ctx, chatID, model.SourceThread, name, rawURL)
}

func (b *Bot) createSource(ctx context.Context, chatID int64, kind model.SourceKind, name, rawURL string) {
	src := &model.Source{
		Kind:            kind,
		ChatID:          chatID,
		Name:            name,
		URL:             rawURL,
		IntervalMinutes: defaultIntervalMinutes,
		IsActive:        true,
	}
	if err := b.store.CreateSource(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save source: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("Source added successfully!\n#%d %s [%s] (every %d min)\nURL: %s",
		src.ID, src.Name, src.Kind, src.IntervalMinutes, src.URL))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	sources, err := b.store.ListSources(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSourceList(sources))
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /info <id>")
		return
	}

	src, ok := b.ownedSource(ctx, chatID, id)
	if !ok {
		return
	}

	checkpoint, _, err := b.store.GetCheckpoint(ctx, src.ID)
	if err != nil {
		b.log.Warn("read checkpoint", "source_id", src.ID, "error", err)
	}

	msg := tgbotapi.NewMessage(chatID, FormatSourceInfo(src, checkpoint))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Check now", fmt.Sprintf("%s:%d", cmdCheck, src.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Delete", fmt.Sprintf("delete_confirm:%d", src.ID)),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send source info", "error", err)
	}
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <id>")
		return
	}

	src, ok := b.ownedSource(ctx, chatID, id)
	if !ok {
		return
	}

	if err := b.store.DeleteSource(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting source: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Source #%d \"%s\" deleted.", id, src.Name))
}

func (b *Bot) handleRename(ctx context.Context, chatID int64, args string) {
	id, name, err := ParseRenameArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	src, ok := b.ownedSource(ctx, chatID, id)
	if !ok {
		return
	}

	src.Name = name
	if err := b.store.UpdateSource(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Source #%d renamed to \"%s\".", id, name))
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	id, mins, err := ParseIntervalArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	src, ok := b.ownedSource(ctx, chatID, id)
	if !ok {
		return
	}

	src.IntervalMinutes = mins
	if err := b.store.UpdateSource(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Source #%d interval set to %d min.", id, mins))
}

func (b *Bot) handleSetActive(ctx context.Context, chatID int64, args string, active bool) {
	cmd, verb := "pause", "paused"
	if active {
		cmd, verb = "resume", "resumed"
	}

	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <id>", cmd))
		return
	}

	src, ok := b.ownedSource(ctx, chatID, id)
	if !ok {
		return
	}

	src.IsActive = active
	if err := b.store.UpdateSource(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Source #%d \"%s\" %s.", id, src.Name, verb))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /check <id>")
		return
	}

	src, ok := b.ownedSource(ctx, chatID, id)
	if !ok {
		return
	}

	if b.checker == nil {
		b.reply(chatID, "Checking is not available right now.")
		return
	}

	res, err := b.checker.CheckNow(ctx, *src)
	if errors.Is(err, scheduler.ErrBusy) {
		b.reply(chatID, fmt.Sprintf("Source #%d is already being checked.", id))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if errors.Is(res.Err, pipeline.ErrSourceUnavailable) {
		b.reply(chatID, fmt.Sprintf("Failed to fetch: %v", res.Err))
		return
	}
	b.reply(chatID, FormatCheckResult(src, res))
}

func (b *Bot) handleAddRules(ctx context.Context, chatID int64, args string, kind model.RuleKind) {
	patterns := []string{args}
	if kind == model.RuleKeyword {
		patterns = ParsePatterns(args)
	}
	if len(patterns) == 0 || strings.TrimSpace(patterns[0]) == "" {
		cmd := "exclude"
		if kind == model.RulePrefix {
			cmd = "excludeprefix"
		}
		b.reply(chatID, fmt.Sprintf("Usage: /%s <pattern>", cmd))
		return
	}

	var lines []string
	for _, p := range patterns {
		pattern, err := filter.NormalizePattern(p)
		if err != nil {
			continue
		}
		r := &model.Rule{Kind: kind, Pattern: pattern}
		switch err := b.store.CreateRule(ctx, r); {
		case errors.Is(err, storage.ErrRuleExists):
			lines = append(lines, fmt.Sprintf("%s %q already exists", kind, pattern))
		case err != nil:
			lines = append(lines, fmt.Sprintf("%s %q failed: %v", kind, pattern, err))
		default:
			lines = append(lines, fmt.Sprintf("Rule R%d added: %s %q", r.ID, kind, pattern))
		}
	}
	b.reply(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) handleRules(ctx context.Context, chatID int64) {
	rules, err := b.store.ListRules(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatRuleList(rules))
}

func (b *Bot) handleRmRule(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmrule <rule_id>")
		return
	}

	if err := b.store.DeleteRule(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Rule R%d not found.", id))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Rule R%d removed.", id))
}
