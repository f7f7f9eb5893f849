// Package notify implements the engine's notification collaborator: trigger
// kinds raised by the workflow orchestrators are rendered through templates
// and dispatched to configured recipients. Delivery is best-effort and
// always happens after the triggering transaction has committed; failures
// are recorded and logged, never surfaced as operation failures.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TriggerKind identifies a workflow event that produces notifications.
type TriggerKind string

const (
	TriggerSubmissionReceived   TriggerKind = "IRB_SUBMISSION_RECEIVED"
	TriggerSubmissionWithdrawn  TriggerKind = "IRB_SUBMISSION_WITHDRAWN"
	TriggerReviewAssigned       TriggerKind = "IRB_REVIEW_ASSIGNED"
	TriggerDecisionIssued       TriggerKind = "IRB_DECISION_ISSUED"
	TriggerSAEImmediate         TriggerKind = "SAE_IMMEDIATE_REPORT"
	TriggerRegulatoryFDA        TriggerKind = "REGULATORY_REPORT_FDA"
	TriggerRegulatorySponsor    TriggerKind = "REGULATORY_REPORT_SPONSOR"
	TriggerRegulatoryIRB        TriggerKind = "REGULATORY_REPORT_IRB"
	TriggerFollowUpReminder     TriggerKind = "AE_FOLLOWUP_REMINDER"
	TriggerDeviationReported    TriggerKind = "PROTOCOL_DEVIATION_REPORTED"
	TriggerDeviationUrgent      TriggerKind = "PROTOCOL_DEVIATION_URGENT"
	TriggerContinuingReviewDue  TriggerKind = "CONTINUING_REVIEW_DUE"
	TriggerDocumentExpiring     TriggerKind = "DOCUMENT_EXPIRING"
	TriggerReviewOverdue        TriggerKind = "REVIEW_OVERDUE"
	TriggerComplianceAlert      TriggerKind = "COMPLIANCE_ALERT"
)

// Notifier is the interface the workflow orchestrators depend on.
type Notifier interface {
	// Trigger fans a workflow event out to the recipients routed for its kind.
	Trigger(ctx context.Context, kind TriggerKind, data map[string]string) error
	// TriggerUser sends a templated notification to a single user.
	TriggerUser(ctx context.Context, userID, template string, data map[string]string) error
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// Template defines a reusable notification template. Placeholders use
// {{key}} syntax and are replaced from the trigger's data map.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine stores templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates an engine with the built-in IRB templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "submission-received",
			Subject: "IRB submission received: {{submission_id}}",
			Body:    "Submission {{submission_id}} for study {{study_id}} has been received and is awaiting reviewer assignment.",
		},
		{
			ID:      "submission-withdrawn",
			Subject: "IRB submission withdrawn: {{submission_id}}",
			Body:    "Submission {{submission_id}} was withdrawn. Reason: {{reason}}",
		},
		{
			ID:      "review-assigned",
			Subject: "Review assignment: submission {{submission_id}}",
			Body:    "You have been assigned as {{role}} reviewer for submission {{submission_id}}. Review due {{due_date}}.",
		},
		{
			ID:      "decision-issued",
			Subject: "IRB decision for submission {{submission_id}}: {{decision}}",
			Body:    "The IRB has issued a decision of {{decision}} for submission {{submission_id}}.",
		},
		{
			ID:      "sae-immediate",
			Subject: "URGENT: serious adverse event {{sae_report_id}}",
			Body:    "A serious adverse event requiring immediate reporting was recorded for study {{study_id}}. Severity: {{severity}}. Outcome: {{outcome}}.",
		},
		{
			ID:      "regulatory-report",
			Subject: "Regulatory report required: adverse event {{adverse_event_id}}",
			Body:    "Adverse event {{adverse_event_id}} in study {{study_id}} is reportable ({{timeline}} timeline).",
		},
		{
			ID:      "followup-reminder",
			Subject: "Follow-up report due for {{sae_report_id}}",
			Body:    "A follow-up report for adverse event {{adverse_event_id}} is due on {{due_date}}.",
		},
		{
			ID:      "deviation-reported",
			Subject: "Protocol deviation reported for study {{study_id}}",
			Body:    "A {{severity}} protocol deviation ({{deviation_type}}) was reported for study {{study_id}}.",
		},
		{
			ID:      "deviation-urgent",
			Subject: "URGENT: protocol deviation for study {{study_id}}",
			Body:    "A {{severity}} protocol deviation affecting participant safety was reported for study {{study_id}}. Deviation: {{deviation_id}}.",
		},
		{
			ID:      "continuing-review-due",
			Subject: "Continuing review due for study {{study_id}}",
			Body:    "Continuing review of submission {{submission_id}} is due on {{due_date}}.",
		},
		{
			ID:      "document-expiring",
			Subject: "Study document expiring: {{document_name}}",
			Body:    "Document {{document_name}} for study {{study_id}} expires on {{expires_at}}.",
		},
		{
			ID:      "review-overdue",
			Subject: "Overdue review for submission {{submission_id}}",
			Body:    "The review assigned to {{reviewer_id}} for submission {{submission_id}} was due {{due_date}} and is still open.",
		},
		{
			ID:      "compliance-alert",
			Subject: "Compliance alert for study {{study_id}}: {{metric_type}}",
			Body:    "Compliance metric {{metric_type}} for study {{study_id}} is {{status}}. {{detail}}",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement. Keys
// present in the template but absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}
	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// triggerTemplates maps a trigger kind to its template.
var triggerTemplates = map[TriggerKind]string{
	TriggerSubmissionReceived:  "submission-received",
	TriggerSubmissionWithdrawn: "submission-withdrawn",
	TriggerReviewAssigned:      "review-assigned",
	TriggerDecisionIssued:      "decision-issued",
	TriggerSAEImmediate:        "sae-immediate",
	TriggerRegulatoryFDA:       "regulatory-report",
	TriggerRegulatorySponsor:   "regulatory-report",
	TriggerRegulatoryIRB:       "regulatory-report",
	TriggerFollowUpReminder:    "followup-reminder",
	TriggerDeviationReported:   "deviation-reported",
	TriggerDeviationUrgent:     "deviation-urgent",
	TriggerContinuingReviewDue: "continuing-review-due",
	TriggerDocumentExpiring:    "document-expiring",
	TriggerReviewOverdue:       "review-overdue",
	TriggerComplianceAlert:     "compliance-alert",
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// EmailSender delivers a rendered message to one address.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// Record is a stored delivery attempt.
type Record struct {
	ID        string      `json:"id"`
	Kind      TriggerKind `json:"kind,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	Recipient string      `json:"recipient"`
	Subject   string      `json:"subject"`
	Body      string      `json:"body"`
	Status    string      `json:"status"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	SentAt    *time.Time  `json:"sent_at,omitempty"`
}

// UserDirectory resolves a user ID to a deliverable address. The identity
// system lives outside the engine; dev wiring uses StaticDirectory.
type UserDirectory interface {
	AddressFor(ctx context.Context, userID string) (string, error)
}

// StaticDirectory is a fixed userID -> address map with a fallthrough
// convention of "<userID>@<domain>" when the map has no entry.
type StaticDirectory struct {
	Domain    string
	Addresses map[string]string
}

func (d *StaticDirectory) AddressFor(_ context.Context, userID string) (string, error) {
	if addr, ok := d.Addresses[userID]; ok {
		return addr, nil
	}
	if d.Domain == "" {
		return "", fmt.Errorf("no address for user %q", userID)
	}
	return userID + "@" + d.Domain, nil
}

// Manager implements Notifier: it renders templates, resolves recipients,
// dispatches through the EmailSender, and keeps an in-memory record of every
// attempt for the operations endpoints.
type Manager struct {
	sender    EmailSender
	templates *TemplateEngine
	directory UserDirectory
	logger    zerolog.Logger

	mu      sync.RWMutex
	routes  map[TriggerKind][]string
	records map[string]*Record
}

// NewManager constructs a Manager.
func NewManager(sender EmailSender, tpl *TemplateEngine, dir UserDirectory, logger zerolog.Logger) *Manager {
	return &Manager{
		sender:    sender,
		templates: tpl,
		directory: dir,
		logger:    logger,
		routes:    make(map[TriggerKind][]string),
		records:   make(map[string]*Record),
	}
}

// RegisterRoute sets the recipient addresses for a trigger kind.
func (m *Manager) RegisterRoute(kind TriggerKind, addresses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[kind] = append(m.routes[kind], addresses...)
}

// Trigger renders the template for kind and delivers it to every routed
// recipient. The first delivery error is returned after all recipients have
// been attempted; callers treat it as advisory.
func (m *Manager) Trigger(ctx context.Context, kind TriggerKind, data map[string]string) error {
	tplID, ok := triggerTemplates[kind]
	if !ok {
		return fmt.Errorf("unknown trigger kind %q", kind)
	}
	subject, body, err := m.templates.Render(tplID, data)
	if err != nil {
		return err
	}

	m.mu.RLock()
	recipients := m.routes[kind]
	m.mu.RUnlock()
	if len(recipients) == 0 {
		// No route configured: record intent only.
		m.store(&Record{Kind: kind, Subject: subject, Body: body, Status: "unrouted"})
		m.logger.Debug().Str("kind", string(kind)).Msg("no notification route configured")
		return nil
	}

	var firstErr error
	for _, to := range recipients {
		if err := m.deliver(ctx, &Record{Kind: kind, Recipient: to, Subject: subject, Body: body}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TriggerUser renders the named template and delivers it to one user.
func (m *Manager) TriggerUser(ctx context.Context, userID, template string, data map[string]string) error {
	subject, body, err := m.templates.Render(template, data)
	if err != nil {
		return err
	}
	addr, err := m.directory.AddressFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	return m.deliver(ctx, &Record{UserID: userID, Recipient: addr, Subject: subject, Body: body})
}

func (m *Manager) deliver(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()

	err := m.sender.SendEmail(ctx, rec.Recipient, rec.Subject, rec.Body)
	if err != nil {
		rec.Status = "failed"
		rec.Error = err.Error()
		m.logger.Error().Err(err).
			Str("kind", string(rec.Kind)).
			Str("recipient", rec.Recipient).
			Msg("notification delivery failed")
	} else {
		rec.Status = "sent"
		sentAt := time.Now().UTC()
		rec.SentAt = &sentAt
	}
	m.store(rec)
	return err
}

func (m *Manager) store(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.records[rec.ID] = rec
	m.mu.Unlock()
}

// Get retrieves a delivery record by ID.
func (m *Manager) Get(id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return rec, nil
}

// Stats returns counts of delivery records grouped by status.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[string]int)
	for _, rec := range m.records {
		stats[rec.Status]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// Mock Notifier (test double for the domain services)
// ---------------------------------------------------------------------------

// TriggerCall records one Trigger invocation.
type TriggerCall struct {
	Kind TriggerKind
	Data map[string]string
}

// UserCall records one TriggerUser invocation.
type UserCall struct {
	UserID   string
	Template string
	Data     map[string]string
}

// MockNotifier records trigger calls for assertions.
type MockNotifier struct {
	mu         sync.Mutex
	triggers   []TriggerCall
	userCalls  []UserCall
	ShouldFail bool
}

func (m *MockNotifier) Trigger(_ context.Context, kind TriggerKind, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, TriggerCall{Kind: kind, Data: data})
	if m.ShouldFail {
		return errors.New("notifier unavailable")
	}
	return nil
}

func (m *MockNotifier) TriggerUser(_ context.Context, userID, template string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userCalls = append(m.userCalls, UserCall{UserID: userID, Template: template, Data: data})
	if m.ShouldFail {
		return errors.New("notifier unavailable")
	}
	return nil
}

// Triggers returns a copy of recorded Trigger calls.
func (m *MockNotifier) Triggers() []TriggerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TriggerCall, len(m.triggers))
	copy(out, m.triggers)
	return out
}

// UserCalls returns a copy of recorded TriggerUser calls.
func (m *MockNotifier) UserCalls() []UserCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UserCall, len(m.userCalls))
	copy(out, m.userCalls)
	return out
}

// TriggersOf returns recorded Trigger calls matching kind.
func (m *MockNotifier) TriggersOf(kind TriggerKind) []TriggerCall {
	var out []TriggerCall
	for _, tc := range m.Triggers() {
		if tc.Kind == kind {
			out = append(out, tc)
		}
	}
	return out
}
