package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hrygo/mynah/chatconfig"
	"github.com/hrygo/mynah/internal/markdown"
	"github.com/hrygo/mynah/telegram"
)

// pendingSetTTL bounds how long a DM continuation for a private parameter
// stays valid.
const pendingSetTTL = 5 * time.Minute

// settingsSeparator divides the common group from the endpoint group in the
// settings listing.
const settingsSeparator = "============"

// pendingSet is a private-parameter set waiting for its value over DM.
type pendingSet struct {
	ChatID  int64
	Param   string
	Expires time.Time
}

// cmdSettings lists parameters, or shows one parameter in detail.
func (b *Bot) cmdSettings(ctx context.Context, m *telegram.Message) {
	endpoint, err := b.config.Endpoint(ctx, m.ChatID)
	if err != nil {
		slog.Error("failed to read endpoint", "chat_id", m.ChatID, "error", err)
		return
	}

	if m.CommandArgs != "" {
		b.showParam(ctx, m, endpoint, strings.Fields(m.CommandArgs)[0])
		return
	}

	showAdvanced, err := b.config.Bool(ctx, m.ChatID, "show_advanced_settings")
	if err != nil {
		slog.Error("failed to read show_advanced_settings", "chat_id", m.ChatID, "error", err)
	}

	lines := []string{"<b>Settings</b>", ""}
	lastGroup := chatconfig.GroupCommon
	for _, p := range chatconfig.Params(endpoint) {
		if p.Advanced && !showAdvanced {
			continue
		}
		if p.Group != lastGroup {
			lines = append(lines, settingsSeparator)
			lastGroup = p.Group
		}
		value, err := b.config.Display(ctx, m.ChatID, p)
		if err != nil {
			slog.Error("failed to display parameter", "chat_id", m.ChatID, "param", p.Name, "error", err)
			continue
		}
		lines = append(lines, fmt.Sprintf("<code>%s</code>: %s", p.Name, markdown.Escape(value)))
	}
	lines = append(lines, "", "<i>Details: /settings &lt;param&gt;. Change: /set &lt;param&gt; &lt;value&gt;.</i>")
	b.replyHTML(ctx, m, strings.Join(lines, "\n"))
}

func (b *Bot) showParam(ctx context.Context, m *telegram.Message, endpoint, name string) {
	p, err := chatconfig.Lookup(endpoint, name)
	if err != nil {
		b.replyHTML(ctx, m, "❌ "+markdown.Escape(err.Error()))
		return
	}

	value, err := b.config.Display(ctx, m.ChatID, p)
	if err != nil {
		slog.Error("failed to display parameter", "chat_id", m.ChatID, "param", p.Name, "error", err)
		return
	}

	lines := []string{
		fmt.Sprintf("<b>%s</b>", p.Name),
		markdown.Escape(p.Description),
		fmt.Sprintf("Current: <code>%s</code>", markdown.Escape(value)),
	}
	if accepted := p.AcceptedValues(); accepted != "" {
		lines = append(lines, fmt.Sprintf("Accepted: <code>%s</code>", markdown.Escape(accepted)))
	}
	if p.Default != "" {
		lines = append(lines, fmt.Sprintf("Default: <code>%s</code>", markdown.Escape(p.Default)))
	}
	if p.Protected {
		lines = append(lines, "<i>Changing this parameter needs a bot administrator.</i>")
	}
	if p.Private {
		lines = append(lines, "<i>This parameter is set over DM and never displayed.</i>")
	}
	b.replyHTML(ctx, m, strings.Join(lines, "\n"))
}

// cmdSet applies one parameter change. Admins may prefix the arguments with a
// chat id to target another chat; force admits out-of-range values.
func (b *Bot) cmdSet(ctx context.Context, m *telegram.Message, force bool) {
	fields := strings.Fields(m.CommandArgs)

	targetChat := m.ChatID
	if len(fields) >= 1 && b.profile.IsAdmin(m.UserID) {
		if id, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			targetChat = id
			fields = fields[1:]
		}
	}
	if len(fields) < 1 {
		b.replyHTML(ctx, m, "Usage: <code>/set &lt;param&gt; &lt;value&gt;</code>")
		return
	}

	endpoint, err := b.config.Endpoint(ctx, targetChat)
	if err != nil {
		slog.Error("failed to read endpoint", "chat_id", targetChat, "error", err)
		return
	}
	p, err := chatconfig.Lookup(endpoint, fields[0])
	if err != nil {
		b.replyHTML(ctx, m, "❌ "+markdown.Escape(err.Error()))
		return
	}

	if p.Protected && !b.profile.IsAdmin(m.UserID) {
		b.replyHTML(ctx, m, fmt.Sprintf(
			"❌ <b>Only bot administrators can change</b> <code>%s</code>.", p.Name))
		return
	}

	// Private values never transit a group chat; the value is collected
	// over DM instead.
	if p.Private && !m.IsDM() {
		b.beginPendingSet(ctx, m, targetChat, p)
		return
	}

	if len(fields) < 2 {
		b.replyHTML(ctx, m, fmt.Sprintf("Usage: <code>/set %s &lt;value&gt;</code>", p.Name))
		return
	}
	value := strings.Join(fields[1:], " ")

	b.applySet(ctx, m, targetChat, p, value, force)
}

func (b *Bot) applySet(ctx context.Context, m *telegram.Message, targetChat int64, p *chatconfig.Param, value string, force bool) {
	canonical, overrode, err := b.config.Set(ctx, targetChat, p.Name, value, force)
	if err != nil {
		b.replyHTML(ctx, m, "❌ "+markdown.Escape(err.Error()))
		return
	}

	display := canonical
	if p.Private {
		display = chatconfig.Obfuscate(canonical)
	}
	msg := fmt.Sprintf("✅ <code>%s</code> = <code>%s</code>", p.Name, markdown.Escape(display))
	if overrode {
		msg += " <i>(validation overridden)</i>"
	}
	if targetChat != m.ChatID {
		msg += fmt.Sprintf(" <i>(chat %d)</i>", targetChat)
	}
	b.replyHTML(ctx, m, msg)
}

// beginPendingSet starts the DM continuation for a private parameter.
func (b *Bot) beginPendingSet(ctx context.Context, m *telegram.Message, targetChat int64, p *chatconfig.Param) {
	b.pendingSets.Store(m.UserID, &pendingSet{
		ChatID:  targetChat,
		Param:   p.Name,
		Expires: time.Now().Add(pendingSetTTL),
	})

	_, err := b.tg.Send(ctx, m.UserID, fmt.Sprintf(
		"Send me the new value for <code>%s</code> (chat %d). This request expires in %d minutes.",
		p.Name, targetChat, int(pendingSetTTL.Minutes())), telegram.ModeHTML)
	if err != nil {
		b.pendingSets.Delete(m.UserID)
		b.replyHTML(ctx, m, fmt.Sprintf(
			"🔐 <code>%s</code> is private. DM me /set %s &lt;value&gt; — I could not message you first.",
			p.Name, p.Name))
		return
	}
	b.replyHTML(ctx, m, "🔐 <b>That parameter is private — check your DMs.</b>")
}

// handlePendingSet consumes a DM as the value of an in-flight private set.
// Returns true when the message was part of the flow.
func (b *Bot) handlePendingSet(ctx context.Context, m *telegram.Message) bool {
	v, ok := b.pendingSets.Load(m.UserID)
	if !ok {
		return false
	}
	pending := v.(*pendingSet)
	b.pendingSets.Delete(m.UserID)

	if time.Now().After(pending.Expires) {
		b.replyHTML(ctx, m, "⌛ <i>That settings request expired. Run /set again.</i>")
		return true
	}
	if m.Command != "" || m.Text == "" {
		// A command or empty payload cancels the flow instead of being
		// swallowed as a value.
		b.replyHTML(ctx, m, "🚫 <i>Cancelled the pending settings change.</i>")
		return m.Command == ""
	}

	p, ok := chatconfig.LookupAny(pending.Param)
	if !ok {
		return true
	}
	b.applySet(ctx, m, pending.ChatID, p, strings.TrimSpace(m.Text), false)
	return true
}

// cmdPreset lists presets or applies one.
func (b *Bot) cmdPreset(ctx context.Context, m *telegram.Message) {
	if m.CommandArgs == "" {
		lines := []string{"<b>Presets</b>"}
		for _, p := range chatconfig.Presets() {
			lines = append(lines, fmt.Sprintf("<code>%s</code> — %s", p.Name, markdown.Escape(p.Description)))
		}
		lines = append(lines, "", "<i>Apply with /preset &lt;name&gt;.</i>")
		b.replyHTML(ctx, m, strings.Join(lines, "\n"))
		return
	}

	allowed, err := b.canReset(ctx, m)
	if err != nil {
		slog.Error("failed to check preset permission", "chat_id", m.ChatID, "error", err)
		return
	}
	if !allowed {
		b.replyHTML(ctx, m, "❌ <b>You are not allowed to change this chat's settings in bulk.</b>")
		return
	}

	name := strings.Fields(m.CommandArgs)[0]
	preset, ok := chatconfig.LookupPreset(name)
	if !ok {
		b.replyHTML(ctx, m, fmt.Sprintf("❌ <b>Unknown preset</b> <code>%s</code>. See /preset.", markdown.Escape(name)))
		return
	}

	endpoint, err := b.config.Endpoint(ctx, m.ChatID)
	if err != nil {
		slog.Error("failed to read endpoint", "chat_id", m.ChatID, "error", err)
		return
	}

	assignments := preset.Assignments
	if preset.Name == "default" {
		assignments = chatconfig.DefaultAssignments(endpoint)
	}

	// Endpoint switches stay admin-only even inside a preset.
	applied := assignments[:0:0]
	for _, a := range assignments {
		if a.Name == "endpoint" && !b.profile.IsAdmin(m.UserID) {
			b.replyHTML(ctx, m, fmt.Sprintf(
				"❌ <b>Preset</b> <code>%s</code> <b>switches the endpoint, which needs a bot administrator.</b>", preset.Name))
			return
		}
		applied = append(applied, a)
	}

	if err := b.config.SetMany(ctx, m.ChatID, applied); err != nil {
		b.replyHTML(ctx, m, "❌ "+markdown.Escape(err.Error()))
		return
	}
	b.replyHTML(ctx, m, fmt.Sprintf(
		"✅ <b>Applied preset</b> <code>%s</code> <i>(%d parameters)</i>.", preset.Name, len(applied)))
}
