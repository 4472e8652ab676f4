// Package notify evaluates notification rules against metric snapshots and
// delivers alerts through Discord, Telegram and Pushover webhooks.
package notify

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"go.uber.org/zap"
)

// ErrRuleNotFound is returned by TestRule for unknown ids.
var ErrRuleNotFound = errors.New("notification rule not found")

// Sender delivers a rendered notification to a webhook.
type Sender interface {
	Dispatch(ctx context.Context, webhookID int64, n models.Notification) models.DeliveryResult
}

// RuleSource supplies rules and templates to the evaluator.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]models.NotificationRule, error)
	GetRule(ctx context.Context, id int64) (*models.NotificationRule, error)
	GetTemplate(ctx context.Context, id int64) (*models.NotificationTemplate, error)
	GetDefaultTemplate(ctx context.Context) (*models.NotificationTemplate, error)
}

// CardSource resolves card-scoped rules to integrations.
type CardSource interface {
	GetCard(ctx context.Context, id int64) (*models.Card, error)
}

// Clock supplies the current time for cooldown and aggregation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type statusKey struct {
	ruleID        int64
	integrationID int64
}

// window collapses repeated firings of one rule.
type window struct {
	rule    models.NotificationRule
	opened  time.Time
	pending int
	last    vars
}

// outgoing is a notification decided under the state lock and delivered
// after it is released.
type outgoing struct {
	rule   models.NotificationRule
	vars   vars
	prefix string
	log    *zap.Logger
}

// windowSweepInterval is how often an idle worker closes expired
// aggregation windows.
const windowSweepInterval = time.Second

// Evaluator matches snapshots against active rules. Snapshots from the bus
// are queued and evaluated one at a time by a single worker, so the cooldown
// check and update for a rule never interleave.
type Evaluator struct {
	rules  RuleSource
	cards  CardSource
	sender Sender
	clock  Clock
	logger *zap.Logger

	queue chan models.MetricSnapshot

	mu         sync.Mutex
	lastFired  map[int64]time.Time
	lastStatus map[statusKey]string
	windows    map[int64]*window

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// EvaluatorOption customizes an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithClock replaces the system clock.
func WithClock(c Clock) EvaluatorOption {
	return func(e *Evaluator) { e.clock = c }
}

// NewEvaluator creates a stopped evaluator. cards may be nil, in which case
// card-scoped rules never match.
func NewEvaluator(rules RuleSource, cards CardSource, sender Sender, cfg Config, logger *zap.Logger, opts ...EvaluatorOption) *Evaluator {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultConfig().QueueSize
	}
	e := &Evaluator{
		rules:      rules,
		cards:      cards,
		sender:     sender,
		clock:      systemClock{},
		logger:     logger,
		queue:      make(chan models.MetricSnapshot, size),
		lastFired:  make(map[int64]time.Time),
		lastStatus: make(map[statusKey]string),
		windows:    make(map[int64]*window),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start launches the evaluation worker.
func (e *Evaluator) Start() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		sweep := time.NewTicker(windowSweepInterval)
		defer sweep.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-e.queue:
				e.Evaluate(ctx, snap)
			case <-sweep.C:
				e.Flush(ctx)
			}
		}
	}(e.done)
}

// Stop halts the worker, waits for the in-flight evaluation and sends the
// summaries of aggregation windows that have expired by now.
func (e *Evaluator) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel = nil
	e.Flush(context.Background())
}

// Flush closes expired aggregation windows and delivers their summaries
// without waiting for another snapshot.
func (e *Evaluator) Flush(ctx context.Context) {
	e.mu.Lock()
	out := e.flushWindows(e.clock.Now())
	e.mu.Unlock()
	e.deliver(ctx, out)
}

// HandleSnapshot is the event bus subscriber. It never blocks: when the
// queue is full the snapshot is dropped.
func (e *Evaluator) HandleSnapshot(_ context.Context, snap models.MetricSnapshot) {
	select {
	case e.queue <- snap:
	default:
		evaluatorDropped.Inc()
		e.logger.Warn("evaluation queue full, dropping snapshot",
			zap.Int64("integration_id", snap.IntegrationID),
		)
	}
}

// ResetRule forgets cooldown, status and aggregation state for a rule.
// Called when a rule is edited or deleted.
func (e *Evaluator) ResetRule(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lastFired, id)
	delete(e.windows, id)
	for k := range e.lastStatus {
		if k.ruleID == id {
			delete(e.lastStatus, k)
		}
	}
}

// Evaluate checks snap against every active rule and dispatches the rules
// that fire. Failures are logged per rule and never returned.
func (e *Evaluator) Evaluate(ctx context.Context, snap models.MetricSnapshot) {
	e.deliver(ctx, e.decide(ctx, snap))
}

// decide updates cooldown, status and aggregation state for snap and returns
// the notifications to send. Webhooks are never called while e.mu is held.
func (e *Evaluator) decide(ctx context.Context, snap models.MetricSnapshot) []outgoing {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	out := e.flushWindows(now)

	rules, err := e.rules.ListActiveRules(ctx)
	if err != nil {
		e.logger.Error("failed to load notification rules", zap.Error(err))
		return out
	}

	cards := make(map[int64]*models.Card)
	for i := range rules {
		if o, ok := e.evaluateRule(ctx, &rules[i], snap, now, cards); ok {
			out = append(out, o)
		}
	}
	return out
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule *models.NotificationRule, snap models.MetricSnapshot, now time.Time, cards map[int64]*models.Card) (o outgoing, ok bool) {
	log := e.logger.With(zap.Int64("rule_id", rule.ID), zap.Int64("integration_id", snap.IntegrationID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("rule evaluation panicked", zap.Any("panic", r))
		}
	}()

	card, matched := e.matchScope(ctx, rule, snap, cards)
	if !matched {
		return o, false
	}
	md, found := snap.Metric(models.MetricCapability(rule.MetricType))
	if !found {
		return o, false
	}

	v := baseVars(rule, snap, md, card)
	switch rule.ConditionType {
	case models.ConditionThreshold:
		if !thresholdHolds(rule, md) {
			return o, false
		}
	case models.ConditionStatusChange:
		if !e.statusChanged(rule, snap.IntegrationID, md, v) {
			return o, false
		}
	default:
		log.Warn("unknown condition type", zap.String("condition_type", string(rule.ConditionType)))
		return o, false
	}

	return e.fire(rule, v, now, log)
}

// matchScope reports whether rule applies to snap and returns the card for
// card-scoped rules.
func (e *Evaluator) matchScope(ctx context.Context, rule *models.NotificationRule, snap models.MetricSnapshot, cards map[int64]*models.Card) (*models.Card, bool) {
	switch rule.TargetType {
	case models.TargetAll:
		return nil, true
	case models.TargetIntegration:
		return nil, rule.TargetID != nil && *rule.TargetID == snap.IntegrationID
	case models.TargetCard:
		if rule.TargetID == nil || e.cards == nil {
			return nil, false
		}
		card, cached := cards[*rule.TargetID]
		if !cached {
			var err error
			card, err = e.cards.GetCard(ctx, *rule.TargetID)
			if err != nil {
				e.logger.Warn("failed to load card", zap.Int64("card_id", *rule.TargetID), zap.Error(err))
				return nil, false
			}
			cards[*rule.TargetID] = card
		}
		if card == nil || card.IntegrationID == nil || *card.IntegrationID != snap.IntegrationID {
			return nil, false
		}
		return card, true
	}
	return nil, false
}

func thresholdHolds(rule *models.NotificationRule, md models.MetricData) bool {
	if rule.Operator == nil || rule.Threshold == nil {
		return false
	}
	n, ok := numericValue(md.Value)
	if !ok {
		return false
	}
	return compare(*rule.Operator, n, *rule.Threshold)
}

// statusChanged records the observed status and reports whether it is a
// transition matching the rule. The first observation only records.
func (e *Evaluator) statusChanged(rule *models.NotificationRule, integrationID int64, md models.MetricData, v vars) bool {
	cur, ok := statusValue(md.Value)
	if !ok {
		return false
	}
	key := statusKey{ruleID: rule.ID, integrationID: integrationID}
	prev, seen := e.lastStatus[key]
	e.lastStatus[key] = cur

	if !seen || strings.EqualFold(prev, cur) {
		return false
	}
	if rule.FromStatus != nil && !strings.EqualFold(*rule.FromStatus, prev) {
		return false
	}
	if rule.ToStatus != nil && !strings.EqualFold(*rule.ToStatus, cur) {
		return false
	}
	v["oldStatus"] = prev
	v["newStatus"] = cur
	return true
}

// fire applies aggregation or cooldown and reports whether the rule should
// be sent now.
func (e *Evaluator) fire(rule *models.NotificationRule, v vars, now time.Time, log *zap.Logger) (outgoing, bool) {
	if rule.AggregationWindow() > 0 {
		if w, open := e.windows[rule.ID]; open {
			w.pending++
			w.last = v
			ruleFiringsTotal.WithLabelValues("aggregated").Inc()
			log.Debug("rule firing aggregated", zap.Int("pending", w.pending))
			return outgoing{}, false
		}
		e.windows[rule.ID] = &window{rule: *rule, opened: now, last: v}
		ruleFiringsTotal.WithLabelValues("fired").Inc()
		return outgoing{rule: *rule, vars: v, log: log}, true
	}

	if last, ok := e.lastFired[rule.ID]; ok && now.Sub(last) < rule.Cooldown() {
		ruleFiringsTotal.WithLabelValues("suppressed").Inc()
		log.Debug("rule firing suppressed by cooldown", zap.Duration("since_last", now.Sub(last)))
		return outgoing{}, false
	}
	e.lastFired[rule.ID] = now
	ruleFiringsTotal.WithLabelValues("fired").Inc()
	return outgoing{rule: *rule, vars: v, log: log}, true
}

// flushWindows closes expired aggregation windows and returns one summary
// for each window that collected further firings. Callers hold e.mu.
func (e *Evaluator) flushWindows(now time.Time) []outgoing {
	var out []outgoing
	for id, w := range e.windows {
		if now.Sub(w.opened) < w.rule.AggregationWindow() {
			continue
		}
		delete(e.windows, id)
		if w.pending == 0 {
			continue
		}
		w.last["count"] = strconv.Itoa(w.pending)
		ruleFiringsTotal.WithLabelValues("summary").Inc()
		out = append(out, outgoing{
			rule:   w.rule,
			vars:   w.last,
			prefix: aggregateSummaryPrefix,
			log:    e.logger.With(zap.Int64("rule_id", id)),
		})
	}
	return out
}

// deliver sends each notification in turn. A panic while sending one is
// logged and does not stop the rest.
func (e *Evaluator) deliver(ctx context.Context, out []outgoing) {
	for i := range out {
		func(o *outgoing) {
			defer func() {
				if r := recover(); r != nil {
					o.log.Error("notification delivery panicked", zap.Any("panic", r))
				}
			}()
			e.send(ctx, &o.rule, o.vars, o.prefix, o.log)
		}(&out[i])
	}
}

// send renders the rule's notification and dispatches it. prefix is a
// template prepended to the message body.
func (e *Evaluator) send(ctx context.Context, rule *models.NotificationRule, v vars, prefix string, log *zap.Logger) models.DeliveryResult {
	title, message := renderNotification(e.template(ctx, rule), rule, v)
	if prefix != "" {
		message = render(prefix, v) + message
	}
	n := models.Notification{
		Title:     title,
		Message:   message,
		Severity:  rule.Severity,
		Timestamp: e.clock.Now(),
	}
	res := e.sender.Dispatch(ctx, rule.WebhookID, n)
	if !res.Success {
		log.Warn("notification not delivered", zap.Int64("webhook_id", rule.WebhookID), zap.String("reason", res.Message))
	}
	return res
}

// template resolves the rule's template, then the default. nil means the
// built-in fallback.
func (e *Evaluator) template(ctx context.Context, rule *models.NotificationRule) *models.NotificationTemplate {
	if rule.TemplateID != nil {
		t, err := e.rules.GetTemplate(ctx, *rule.TemplateID)
		if err != nil {
			e.logger.Warn("failed to load rule template", zap.Int64("template_id", *rule.TemplateID), zap.Error(err))
		} else if t != nil && t.IsActive {
			return t
		}
	}
	t, err := e.rules.GetDefaultTemplate(ctx)
	if err != nil {
		e.logger.Warn("failed to load default template", zap.Error(err))
		return nil
	}
	return t
}

// TestRule renders the rule with sample values and dispatches it. Cooldown,
// status and aggregation state are left untouched.
func (e *Evaluator) TestRule(ctx context.Context, id int64) (models.DeliveryResult, error) {
	rule, err := e.rules.GetRule(ctx, id)
	if err != nil {
		return models.DeliveryResult{}, err
	}
	if rule == nil {
		return models.DeliveryResult{}, ErrRuleNotFound
	}

	v := sampleVars(rule, e.clock.Now())
	title, message := renderNotification(e.template(ctx, rule), rule, v)
	n := models.Notification{
		Title:     "[TEST] " + title,
		Message:   message,
		Severity:  rule.Severity,
		Timestamp: e.clock.Now(),
	}
	return e.sender.Dispatch(ctx, rule.WebhookID, n), nil
}

func baseVars(rule *models.NotificationRule, snap models.MetricSnapshot, md models.MetricData, card *models.Card) vars {
	cardName := snap.IntegrationName
	if card != nil {
		cardName = card.Name
	}
	op := ""
	if rule.Operator != nil {
		op = rule.Operator.Symbol()
	}
	return vars{
		"metricName":        rule.MetricType,
		"metricDisplayName": models.MetricCapability(rule.MetricType).DisplayName(),
		"metricValue":       formatValue(md.Value),
		"threshold":         formatThreshold(rule.Threshold),
		"operator":          op,
		"unit":              md.Unit,
		"integrationName":   snap.IntegrationName,
		"integrationType":   string(snap.IntegrationType),
		"cardName":          cardName,
		"severity":          strings.ToUpper(string(rule.Severity)),
		"timestamp":         snap.Timestamp.UTC().Format(time.RFC3339),
		"ruleName":          rule.Name,
		"count":             "1",
	}
}

func sampleVars(rule *models.NotificationRule, now time.Time) vars {
	snap := models.MetricSnapshot{
		IntegrationName: "Test Integration",
		IntegrationType: models.ServiceNetdata,
		Timestamp:       now,
	}
	md := models.MetricData{Timestamp: now, Value: "95", Unit: "%"}
	if rule.Threshold != nil {
		md.Value = *rule.Threshold
	}
	v := baseVars(rule, snap, md, nil)
	v["oldStatus"], v["newStatus"] = "online", "offline"
	if rule.FromStatus != nil {
		v["oldStatus"] = *rule.FromStatus
	}
	if rule.ToStatus != nil {
		v["newStatus"] = *rule.ToStatus
	}
	return v
}
