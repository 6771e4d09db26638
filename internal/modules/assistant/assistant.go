// Package assistant is the built-in assistant module. It manages personas,
// the conversation log and model settings. When a reply generator is wired
// in, every sent message gets an answer appended in the background.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/ai"
	"github.com/xelth-com/modspace/internal/api"
	"github.com/xelth-com/modspace/internal/modules/markup"
	"github.com/xelth-com/modspace/internal/registry"
	"github.com/xelth-com/modspace/internal/schema"
)

var ErrUnknownAction = errors.New("unknown action")

const (
	// maxMessages bounds the stored conversation
	maxMessages     = 200
	maxUsageHistory = 30
	replyTimeout    = 60 * time.Second
)

// Descriptor registers the module. replier may be nil.
func Descriptor(ws api.Workspace, replier ai.Replier, log *zap.Logger) registry.Descriptor {
	return registry.Descriptor{
		ID:          schema.AssistantID,
		Name:        "Assistant",
		Icon:        "🤖",
		Description: "Conversation log with switchable assistant personas",
		Version:     "1.0.0",
		Load: func(ctx context.Context) (registry.Instance, error) {
			return Load(ctx, ws, replier, log)
		},
	}
}

type Module struct {
	mu        sync.Mutex
	ws        api.Workspace
	replier   ai.Replier
	log       *zap.Logger
	now       func() time.Time
	destroyed bool
	thinking  int
	wg        sync.WaitGroup
}

func Load(ctx context.Context, ws api.Workspace, replier ai.Replier, log *zap.Logger) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Module{ws: ws, replier: replier, log: log.Named("assistant"), now: time.Now}
	if err := m.render(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return nil
	}
	return m.render(ctx)
}

func (m *Module) Destroy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	return nil
}

type actionPayload struct {
	ContextID string `json:"contextId"`
	Content   string `json:"content"`
	Model     string `json:"model"`
}

func (m *Module) HandleAction(ctx context.Context, action string, payload json.RawMessage) error {
	var p actionPayload
	if err := markup.Decode(payload, &p); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return errors.New("assistant module is not active")
	}

	switch action {
	case "select-context":
		doc, err := api.ReadAs[schema.AssistantDocument](ctx, m.ws, schema.AssistantID)
		if err != nil {
			return err
		}
		if _, ok := doc.Contexts[p.ContextID]; !ok {
			return fmt.Errorf("unknown assistant context %q", p.ContextID)
		}
		doc.CurrentContext = p.ContextID
		if err := api.WriteAs(ctx, m.ws, schema.AssistantID, doc); err != nil {
			return err
		}

	case "send-message":
		content := strings.TrimSpace(p.Content)
		if content == "" {
			return errors.New("message is empty")
		}
		msgs, err := m.messages(ctx)
		if err != nil {
			return err
		}
		msgs = append(msgs, schema.ChatMessage{
			Role:      "user",
			Content:   content,
			Timestamp: m.now().UTC().Format(time.RFC3339),
		})
		if len(msgs) > maxMessages {
			msgs = msgs[len(msgs)-maxMessages:]
		}
		if err := api.WriteAs(ctx, m.ws, schema.AssistantMessagesID, msgs); err != nil {
			return err
		}
		if err := m.countQuery(ctx); err != nil {
			return err
		}
		if m.replier != nil {
			req, err := m.request(ctx, msgs)
			if err != nil {
				return err
			}
			m.thinking++
			m.wg.Add(1)
			go m.generate(req)
		}

	case "clear-messages":
		if err := api.WriteAs(ctx, m.ws, schema.AssistantMessagesID, []schema.ChatMessage{}); err != nil {
			return err
		}
		m.ws.ShowMessage("🗑️ Conversation cleared")

	case "set-model":
		model := strings.TrimSpace(p.Model)
		if model == "" {
			return errors.New("model is required")
		}
		cfg, err := api.ReadAs[schema.AIConfig](ctx, m.ws, schema.AssistantAIConfigID)
		if err != nil {
			return err
		}
		cfg.Model = model
		if err := api.WriteAs(ctx, m.ws, schema.AssistantAIConfigID, cfg); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	return m.render(ctx)
}

// Wait blocks until every background reply has been stored
func (m *Module) Wait() {
	m.wg.Wait()
}

// request builds the generation request for the last message of msgs
func (m *Module) request(ctx context.Context, msgs []schema.ChatMessage) (ai.Request, error) {
	doc, err := api.ReadAs[schema.AssistantDocument](ctx, m.ws, schema.AssistantID)
	if err != nil {
		return ai.Request{}, err
	}
	cfg, err := api.ReadAs[schema.AIConfig](ctx, m.ws, schema.AssistantAIConfigID)
	if err != nil {
		return ai.Request{}, err
	}
	last := msgs[len(msgs)-1]
	return ai.Request{
		SystemPrompt: doc.Contexts[doc.CurrentContext].SystemPrompt,
		History:      ai.Trim(msgs[:len(msgs)-1], cfg.HistoryLimit),
		Message:      last.Content,
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	}, nil
}

// generate asks the replier and appends its answer. The conversation is
// updated even if the module was unloaded meanwhile.
func (m *Module) generate(req ai.Request) {
	defer m.wg.Done()

	rctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	reply, err := m.replier.Reply(rctx, req)
	cancel()

	ctx := context.Background()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thinking--

	if err != nil {
		m.log.Warn("❌ reply failed", zap.String("model", req.Model), zap.Error(err))
		m.ws.ShowMessage("❌ Assistant error: " + err.Error())
	} else if err := m.storeReply(ctx, reply); err != nil {
		m.log.Error("failed to store reply", zap.Error(err))
	}

	if !m.destroyed {
		if err := m.render(ctx); err != nil {
			m.log.Warn("render after reply failed", zap.Error(err))
		}
	}
}

func (m *Module) storeReply(ctx context.Context, reply ai.Reply) error {
	msgs, err := m.messages(ctx)
	if err != nil {
		return err
	}
	msgs = append(msgs, schema.ChatMessage{
		Role:      "assistant",
		Content:   reply.Text,
		Timestamp: m.now().UTC().Format(time.RFC3339),
	})
	if len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	if err := api.WriteAs(ctx, m.ws, schema.AssistantMessagesID, msgs); err != nil {
		return err
	}

	stats, err := api.ReadAs[schema.AIStats](ctx, m.ws, schema.AssistantAIStatsID)
	if err != nil {
		return err
	}
	stats.TotalTokens += reply.Tokens
	if reply.Model != "" {
		stats.CurrentModel = reply.Model
	}
	stats.UsageHistory = append(stats.UsageHistory, schema.UsageEntry{
		Date:   m.now().UTC().Format(time.RFC3339),
		Tokens: reply.Tokens,
	})
	if len(stats.UsageHistory) > maxUsageHistory {
		stats.UsageHistory = stats.UsageHistory[len(stats.UsageHistory)-maxUsageHistory:]
	}
	return api.WriteAs(ctx, m.ws, schema.AssistantAIStatsID, stats)
}

// messages tolerates a missing or non-array log
func (m *Module) messages(ctx context.Context) ([]schema.ChatMessage, error) {
	raw, err := m.ws.Read(ctx, schema.AssistantMessagesID)
	if err != nil {
		return nil, err
	}
	var msgs []schema.ChatMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		m.log.Debug("resetting unreadable message log", zap.Error(err))
		return []schema.ChatMessage{}, nil
	}
	return msgs, nil
}

// countQuery bumps the daily query counter, resetting it on a new day
func (m *Module) countQuery(ctx context.Context) error {
	stats, err := api.ReadAs[schema.AIStats](ctx, m.ws, schema.AssistantAIStatsID)
	if err != nil {
		return err
	}
	today := m.now().Format("Mon Jan 02 2006")
	if stats.LastResetDate != today {
		stats.TodayQueries = 0
		stats.LastResetDate = today
	}
	stats.TodayQueries++
	if stats.UsageHistory == nil {
		stats.UsageHistory = []schema.UsageEntry{}
	}
	return api.WriteAs(ctx, m.ws, schema.AssistantAIStatsID, stats)
}

var (
	navTmpl = template.Must(template.New("assistant-nav").Parse(`<ul class="contexts">
{{- range .Contexts}}
<li><button class="nav-item{{if .Active}} active{{end}}" data-action="select-context" data-context-id="{{.ID}}" title="{{.Description}}">{{.Icon}} {{.Name}}</button></li>
{{- end}}
</ul>`))

	actionsTmpl = template.Must(template.New("assistant-actions").Parse(`<form class="inline-form" data-action="set-model">
<input name="model" value="{{.Model}}" placeholder="Model">
<button type="submit">Use model</button>
</form>
<span class="stats">{{.Queries}} queries today</span>
<button data-action="clear-messages">Clear conversation</button>`))

	containerTmpl = template.Must(template.New("assistant-container").Parse(`<section class="assistant">
<h2>{{.Context}}</h2>
<div class="messages">
{{- if not .Messages}}
<p class="empty">Start a conversation.</p>
{{- end}}
{{- range .Messages}}
<div class="message {{.Role}}"><p>{{.Content}}</p></div>
{{- end}}
{{- if .Thinking}}
<div class="message assistant thinking"><p>…</p></div>
{{- end}}
</div>
<form class="chat-form" data-action="send-message">
<textarea name="content" placeholder="Type a message..." required></textarea>
<button type="submit">Send</button>
</form>
</section>`))
)

type contextView struct {
	schema.AssistantContext
	Active bool
}

func (m *Module) render(ctx context.Context) error {
	doc, err := api.ReadAs[schema.AssistantDocument](ctx, m.ws, schema.AssistantID)
	if err != nil {
		return err
	}
	msgs, err := m.messages(ctx)
	if err != nil {
		return err
	}
	cfg, err := api.ReadAs[schema.AIConfig](ctx, m.ws, schema.AssistantAIConfigID)
	if err != nil {
		return err
	}
	stats, err := api.ReadAs[schema.AIStats](ctx, m.ws, schema.AssistantAIStatsID)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(doc.Contexts))
	for id := range doc.Contexts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	contexts := make([]contextView, 0, len(ids))
	current := "Assistant"
	for _, id := range ids {
		c := doc.Contexts[id]
		active := id == doc.CurrentContext
		if active {
			current = c.Icon + " " + c.Name
		}
		contexts = append(contexts, contextView{AssistantContext: c, Active: active})
	}

	nav, err := markup.Render(navTmpl, struct{ Contexts []contextView }{contexts})
	if err != nil {
		return err
	}
	actions, err := markup.Render(actionsTmpl, struct {
		Model   string
		Queries int
	}{cfg.Model, stats.TodayQueries})
	if err != nil {
		return err
	}
	container, err := markup.Render(containerTmpl, struct {
		Context  string
		Messages []schema.ChatMessage
		Thinking bool
	}{current, msgs, m.thinking > 0})
	if err != nil {
		return err
	}

	m.ws.UpdateNavigation(nav)
	m.ws.UpdateActions(actions)
	m.ws.UpdateContainer(container)
	return nil
}
