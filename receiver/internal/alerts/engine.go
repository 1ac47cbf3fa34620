package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/phimon/receiver/internal/config"
	"github.com/obsidianstack/phimon/receiver/internal/monitor"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Peer       string     `json:"peer"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"

	// Peer status when the alert last changed state.
	PeerState string  `json:"peer_state"`
	Phi       float64 `json:"phi"`
	Threshold float64 `json:"threshold"`
}

// alertKey identifies one rule on one peer session.
type alertKey struct {
	rule string
	peer string
}

// Engine evaluates alert rules against peer statuses and delivers webhook
// notifications when rules fire or resolve. It implements monitor.Observer.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	active   map[alertKey]*Alert
	lastFire map[alertKey]time.Time // cooldown bookkeeping, dropped when the session ends
	history  []*Alert               // recently resolved alerts

	client *http.Client
	now    func() time.Time // injectable for deterministic tests
	send   func(*Alert)     // delivery hook; defaults to async webhook delivery
}

// New creates an Engine from the receiver alert configuration.
// An Engine with empty rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		active:   make(map[alertKey]*Alert),
		lastFire: make(map[alertKey]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	e.send = func(a *Alert) { go e.deliver(a) }
	e.Update(cfg)
	return e
}

// Update swaps rules and webhooks after a config reload. Rules with a
// condition that cannot be parsed are skipped with a warning. Active alerts
// for rules that no longer exist are dropped.
func (e *Engine) Update(cfg config.AlertsConfig) {
	rules := make([]config.AlertRule, 0, len(cfg.Rules))
	names := make(map[string]bool, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if !validCondition(r.Condition) {
			slog.Warn("alerts: skipping rule with unparseable condition",
				"rule", r.Name, "condition", r.Condition)
			continue
		}
		rules = append(rules, r)
		names[r.Name] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	e.webhooks = append([]config.WebhookConfig(nil), cfg.Webhooks...)
	for key := range e.active {
		if !names[key.rule] {
			delete(e.active, key)
		}
	}
	for key := range e.lastFire {
		if !names[key.rule] {
			delete(e.lastFire, key)
		}
	}
}

// Observe implements monitor.Observer.
func (e *Engine) Observe(st monitor.Status) {
	e.Evaluate(st)
}

// Evaluate tests all configured rules against st.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
// A final status (closed or abandoned) ends the session: every alert still
// firing for the peer is resolved and its cooldown state is dropped.
func (e *Engine) Evaluate(st monitor.Status) {
	e.mu.Lock()
	rules := e.rules
	e.mu.Unlock()
	if len(rules) == 0 {
		return
	}

	now := e.now()
	fired := make(map[alertKey]bool)
	for _, rule := range rules {
		key := alertKey{rule: rule.Name, peer: st.Peer}
		fires, value := evalCondition(rule.Condition, st)

		e.mu.Lock()
		if fires {
			a := e.fire(rule, key, st, value, now)
			e.mu.Unlock()
			if a != nil {
				fired[key] = true
				slog.Warn("alerts: alert fired",
					"rule", rule.Name,
					"peer", st.Peer,
					"value", value,
					"severity", a.Severity,
				)
				e.send(a)
			}
			continue
		}

		a := e.resolve(key, st, now)
		e.mu.Unlock()
		if a != nil {
			slog.Info("alerts: alert resolved", "rule", rule.Name, "peer", st.Peer)
			e.send(a)
		}
	}

	if st.Final() {
		e.endSession(st, now, fired)
	}
}

// endSession resolves the peer's remaining alerts and forgets its cooldowns.
// Alerts fired by the final status itself (in fired) were already delivered
// and are filed as resolved without a second notification.
func (e *Engine) endSession(st monitor.Status, now time.Time, fired map[alertKey]bool) {
	var notify []*Alert

	e.mu.Lock()
	for key := range e.active {
		if key.peer != st.Peer {
			continue
		}
		if r := e.resolve(key, st, now); r != nil && !fired[key] {
			notify = append(notify, r)
		}
	}
	for key := range e.lastFire {
		if key.peer == st.Peer {
			delete(e.lastFire, key)
		}
	}
	e.mu.Unlock()

	for _, a := range notify {
		slog.Info("alerts: alert resolved, session ended", "rule", a.RuleName, "peer", st.Peer, "state", st.State)
		e.send(a)
	}
}

// fire records a firing alert unless one is active or the rule is cooling
// down. It returns a copy for delivery, or nil. Must be called with e.mu held.
func (e *Engine) fire(rule config.AlertRule, key alertKey, st monitor.Status, value float64, now time.Time) *Alert {
	if _, ok := e.active[key]; ok {
		return nil
	}
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
		return nil
	}
	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:       fmt.Sprintf("%s:%s:%d", rule.Name, st.Peer, now.UnixNano()),
		RuleName: rule.Name,
		Peer:     st.Peer,
		Severity: sev,
		Value:    value,
		Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)",
			sev, rule.Name, st.Peer, rule.Condition, value),
		FiredAt:   now,
		State:     StateFiring,
		PeerState: st.State,
		Phi:       st.Phi,
		Threshold: st.Threshold,
	}
	e.active[key] = a
	e.lastFire[key] = now
	cp := *a
	return &cp
}

// resolve moves an active alert to history, recording the peer status that
// resolved it. Must be called with e.mu held.
func (e *Engine) resolve(key alertKey, st monitor.Status, now time.Time) *Alert {
	a, ok := e.active[key]
	if !ok {
		return nil
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	a.PeerState = st.State
	a.Phi = st.Phi
	a.Threshold = st.Threshold
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	cp := *a
	return &cp
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
