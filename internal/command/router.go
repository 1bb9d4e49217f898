// Package command dispatches inbound chat messages. An ordered route
// table maps command prefixes to handlers; match precedence is the
// table order, so specific routes (".list show") sit above the general
// ones (".list"). Anything no route claims is forwarded to the answer
// resolver as a free-form question.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/durkdan/messenger-gpt/internal/answer"
	"github.com/durkdan/messenger-gpt/internal/events"
	"github.com/durkdan/messenger-gpt/internal/ledger"
	"github.com/durkdan/messenger-gpt/internal/platform"
	"github.com/durkdan/messenger-gpt/internal/registry"
	"github.com/durkdan/messenger-gpt/internal/reminder"
)

// reachProbe is the fixed prompt .reach sends to verify the provider
// responds at all.
const reachProbe = "Reply with the single word: pong"

// noticeTimeout bounds the fire-and-forget "thinking" notice so it can
// outlive the request without leaking a goroutine forever.
const noticeTimeout = 5 * time.Second

// Answerer resolves a free-form prompt into a reply. *answer.Resolver
// satisfies it.
type Answerer interface {
	Resolve(ctx context.Context, prompt string) answer.Result
}

// TimeSource resolves the current wall time for .time replies.
// *timeapi.Client satisfies it.
type TimeSource interface {
	Now(ctx context.Context) (time.Time, error)
}

// JobRegistrar registers weekly reminder jobs. *reminder.Scheduler
// satisfies it.
type JobRegistrar interface {
	RegisterWeekly(weekday, payload, createdBy string) (reminder.Job, error)
}

// Deps are the collaborators a Router dispatches into. Notifier is
// optional; when set, fallback questions get an immediate transient
// notice to mask resolver latency.
type Deps struct {
	Ledger   *ledger.Ledger
	Senders  *registry.Registry
	Resolver Answerer
	Clock    TimeSource
	Jobs     JobRegistrar
	Notifier platform.Sender
	Bus      *events.Bus
}

// route pairs a match predicate with its handler. The predicate sees
// the lower-cased trimmed message; the handler sees the original
// trimmed message so payload casing survives.
type route struct {
	name   string
	match  func(lower string) bool
	handle func(ctx context.Context, senderID, msg string) []string
}

// Router turns one inbound message into one or more reply strings. It
// holds no per-conversation state; everything lives in the ledger and
// the registries it was given.
type Router struct {
	logger *slog.Logger
	deps   Deps
	routes []route
}

// NewRouter builds the dispatch table.
func NewRouter(logger *slog.Logger, deps Deps) *Router {
	r := &Router{logger: logger, deps: deps}
	r.routes = []route{
		{"greeting", matchExact(greetingPhrases), r.handleGreeting},
		{"online_check", matchExact(onlinePhrases), r.handleOnline},
		{"reach", matchPrefix(".reach"), r.handleReach},
		{"help", matchPrefix(".help"), r.handleHelp},
		{"time", matchPrefix(".time"), r.handleTime},
		{"chores_show", matchPrefix(".chores show"), r.handleChoresShow},
		{"chores_clear", matchPrefix(".chores clear"), r.handleChoresClear},
		{"chores_add", matchPrefix(".chores"), r.handleChoresAdd},
		{"list_export", matchAnyPrefix(".list show id", ".list base64", ".list export"), r.handleListExport},
		{"list_import", matchPrefix(".list import"), r.handleListImport},
		{"list_show", matchPrefix(".list show"), r.handleListShow},
		{"list_clear_all", matchPrefix(".list clear all"), r.handleListClearAll},
		{"list_clear", matchPrefix(".list clear"), r.handleListClear},
		{"list_add", matchPrefix(".list add"), r.handleListAdd},
		{"list_add_short", matchPrefix(".list"), r.handleListAddShort},
		{"schedule", matchPrefix(".schedule"), r.handleSchedule},
		{"write", matchPrefix(".write"), r.handleWrite},
		{"rewrite", matchPrefix(".rewrite"), r.handleRewrite},
		{"fallback", func(string) bool { return true }, r.handleFallback},
	}
	return r
}

// Dispatch routes one inbound message and returns the replies for it.
// The sender is registered before dispatch so even a first message's
// sender receives future reminders. Every path returns at least one
// reply.
func (r *Router) Dispatch(ctx context.Context, senderID, text string) []string {
	msg := strings.TrimSpace(text)
	lower := strings.ToLower(msg)

	if r.deps.Senders.Touch(senderID) {
		r.logger.Info("new sender registered", "sender", senderID)
	}
	r.deps.Bus.Publish(events.Event{
		Source: events.SourceRouter,
		Kind:   events.KindMessageReceived,
		Data:   map[string]any{"sender": senderID, "length": len(msg)},
	})

	for _, rt := range r.routes {
		if !rt.match(lower) {
			continue
		}
		r.logger.Debug("command matched", "route", rt.name, "sender", senderID)
		r.deps.Bus.Publish(events.Event{
			Source: events.SourceRouter,
			Kind:   events.KindCommandMatched,
			Data:   map[string]any{"route": rt.name, "sender": senderID},
		})

		replies := rt.handle(ctx, senderID, msg)
		r.deps.Bus.Publish(events.Event{
			Source: events.SourceRouter,
			Kind:   events.KindReplySent,
			Data:   map[string]any{"route": rt.name, "sender": senderID, "replies": len(replies)},
		})
		return replies
	}

	// The fallback route matches everything, so this is unreachable.
	return []string{"⚠️ Invalid format."}
}

var greetingPhrases = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
}

var onlinePhrases = []string{
	"are you online", "are you online?", "you online", "you online?", "online?",
}

func matchPrefix(prefix string) func(string) bool {
	return func(lower string) bool { return strings.HasPrefix(lower, prefix) }
}

func matchAnyPrefix(prefixes ...string) func(string) bool {
	return func(lower string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(lower, p) {
				return true
			}
		}
		return false
	}
}

func matchExact(phrases []string) func(string) bool {
	return func(lower string) bool {
		for _, p := range phrases {
			if lower == p {
				return true
			}
		}
		return false
	}
}

func (r *Router) handleGreeting(_ context.Context, _, _ string) []string {
	return []string{"👋 Hello! Type .help to see what I can do."}
}

func (r *Router) handleOnline(_ context.Context, _, _ string) []string {
	return []string{"✅ I'm online and ready."}
}

func (r *Router) handleReach(ctx context.Context, _, _ string) []string {
	res := r.deps.Resolver.Resolve(ctx, reachProbe)
	if res.Status == answer.StatusOK {
		return []string{"✅ Gemini is reachable."}
	}
	return []string{r.replyForResult(res)}
}

func (r *Router) handleHelp(_ context.Context, _, _ string) []string {
	return []string{
		".help - shows this help command",
		".reach - checks whether Gemini is reachable",
		".time - shows the current time",
		".chores [task] - adds a chore",
		".chores show - shows chores",
		".chores clear [nums] - clears chores by number",
		".list [subject] [task type] [task] - adds a task",
		".list show - show all lists",
		".list clear [subject] - clears tasks for a subject",
		".list clear all - clears every task and chore",
		".list base64 - convert your current list to base64",
		".list import [base64] - import base64 list",
		".schedule [weekday] [message] - weekly 07:30 reminder",
		".write [subject] [task type] [topic] - draft text with Gemini",
		".rewrite [text] - rewrite text with Gemini",
	}
}

func (r *Router) handleTime(ctx context.Context, _, _ string) []string {
	now, err := r.deps.Clock.Now(ctx)
	if err != nil {
		r.logger.Warn("time lookup failed", "error", err)
		return []string{"⚠️ Could not fetch the time."}
	}
	return []string{"🕒 Current time: " + now.Format("2006-01-02 15:04:05")}
}

func (r *Router) handleChoresShow(_ context.Context, _, _ string) []string {
	return []string{r.deps.Ledger.RenderChores()}
}

func (r *Router) handleChoresClear(_ context.Context, _, msg string) []string {
	fields := strings.Fields(msg)
	if len(fields) < 3 {
		return []string{"⚠️ Usage: .chores clear [nums]"}
	}
	var indices []int
	for _, tok := range strings.Split(fields[2], ",") {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			continue
		}
		indices = append(indices, n)
	}
	r.deps.Ledger.ClearChores(indices)
	return []string{"✅ Cleared specified chores."}
}

func (r *Router) handleChoresAdd(_ context.Context, _, msg string) []string {
	text := strings.TrimSpace(strings.TrimPrefix(msg, ".chores"))
	if text == "" {
		return []string{"⚠️ Usage: .chores [task]"}
	}
	r.deps.Ledger.AddChore(text)
	return []string{"🧹 Chore added."}
}

func (r *Router) handleListExport(_ context.Context, _, _ string) []string {
	token, err := r.deps.Ledger.Export()
	if err != nil {
		r.logger.Error("ledger export failed", "error", err)
		return []string{"⚠️ Could not export the list."}
	}
	return []string{"🔐 Base64: " + token}
}

func (r *Router) handleListImport(_ context.Context, _, msg string) []string {
	parts := strings.SplitN(msg, " ", 3)
	if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
		return []string{"⚠️ Usage: .list import [base64]"}
	}
	if err := r.deps.Ledger.Import(strings.TrimSpace(parts[2])); err != nil {
		r.logger.Warn("list import failed", "error", err)
		return []string{"⚠️ Failed to import base64."}
	}
	return []string{"✅ Imported list successfully."}
}

func (r *Router) handleListShow(_ context.Context, _, _ string) []string {
	return []string{r.deps.Ledger.RenderSubjects()}
}

func (r *Router) handleListClearAll(_ context.Context, _, _ string) []string {
	r.deps.Ledger.ClearAll()
	return []string{"✅ Cleared all tasks and chores."}
}

func (r *Router) handleListClear(_ context.Context, _, msg string) []string {
	fields := strings.Fields(msg)
	if len(fields) < 3 {
		return []string{"⚠️ Invalid format."}
	}
	if !r.deps.Ledger.ClearSubject(fields[2]) {
		return []string{"⚠️ Nothing to clear for that subject."}
	}
	return []string{"✅ Cleared tasks for subject."}
}

func (r *Router) handleListAdd(_ context.Context, _, msg string) []string {
	parts := strings.SplitN(msg, " ", 5)
	if len(parts) < 5 {
		return []string{"⚠️ Invalid list format."}
	}
	r.deps.Ledger.AddTask(parts[2], parts[3], parts[4])
	return []string{"✅ Task added."}
}

func (r *Router) handleListAddShort(_ context.Context, _, msg string) []string {
	parts := strings.SplitN(msg, " ", 4)
	if len(parts) < 4 {
		return []string{"⚠️ Invalid list format."}
	}
	r.deps.Ledger.AddTask(parts[1], parts[2], parts[3])
	return []string{"✅ Task added."}
}

func (r *Router) handleSchedule(_ context.Context, senderID, msg string) []string {
	parts := strings.SplitN(msg, " ", 3)
	if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
		return []string{"⚠️ Usage: .schedule [weekday] [message]"}
	}
	job, err := r.deps.Jobs.RegisterWeekly(parts[1], parts[2], senderID)
	if err != nil {
		return []string{"⚠️ Weekday must be Monday to Friday. No reminder scheduled."}
	}
	return []string{fmt.Sprintf("🕒 Reminder scheduled for %s at 07:30.", job.Weekday)}
}

func (r *Router) handleWrite(ctx context.Context, _, msg string) []string {
	parts := strings.SplitN(msg, " ", 4)
	if len(parts) < 4 {
		return []string{"⚠️ Usage: .write [subject] [task type] [topic]"}
	}
	prompt := fmt.Sprintf("Write a short %s for the subject %s about: %s", parts[2], parts[1], parts[3])
	return []string{r.replyForResult(r.deps.Resolver.Resolve(ctx, prompt))}
}

func (r *Router) handleRewrite(ctx context.Context, _, msg string) []string {
	text := strings.TrimSpace(strings.TrimPrefix(msg, ".rewrite"))
	if text == "" {
		return []string{"⚠️ Usage: .rewrite [text]"}
	}
	prompt := "Rewrite the following text so it is clearer and more polite: " + text
	return []string{r.replyForResult(r.deps.Resolver.Resolve(ctx, prompt))}
}

// handleFallback treats the message as a free-form question. The
// transient notice goes out on its own context so it survives the
// request finishing first.
func (r *Router) handleFallback(ctx context.Context, senderID, msg string) []string {
	if msg == "" {
		return []string{"⚠️ Invalid format."}
	}
	if r.deps.Notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), noticeTimeout)
			defer cancel()
			if err := r.deps.Notifier.Send(nctx, senderID, "⏳ Let me think about that..."); err != nil {
				r.logger.Debug("processing notice failed", "sender", senderID, "error", err)
			}
		}()
	}
	return []string{r.replyForResult(r.deps.Resolver.Resolve(ctx, msg))}
}

// replyForResult maps every resolver outcome to exactly one reply.
func (r *Router) replyForResult(res answer.Result) string {
	switch res.Status {
	case answer.StatusOK:
		return res.Text
	case answer.StatusProviderError:
		return "❌ Gemini error: " + res.Message
	default:
		return "⏳ Waiting for Gemini response... (Request may have timed out)"
	}
}
