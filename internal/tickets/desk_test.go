package tickets

import (
	"context"
	"errors"
	"testing"
	"time"

	"helpdesk/internal/categorizer"
	"helpdesk/internal/database"
	"helpdesk/internal/email"
	"helpdesk/internal/events"
	"helpdesk/internal/models"
	"helpdesk/internal/sla"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type fakeStore struct {
	tickets   map[string]*models.Ticket
	createErr error
	reasons   []string
}

func newFakeStore(existing ...models.Ticket) *fakeStore {
	store := &fakeStore{tickets: map[string]*models.Ticket{}}
	for i := range existing {
		ticket := existing[i]
		store.tickets[ticket.ID] = &ticket
	}
	return store
}

func (f *fakeStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if f.createErr != nil {
		return f.createErr
	}
	ticket.ID = "t-new"
	stored := *ticket
	f.tickets[ticket.ID] = &stored
	return nil
}

func (f *fakeStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *ticket
	return &copied, nil
}

func (f *fakeStore) UpdateTicket(ctx context.Context, id string, update models.TicketUpdate, changedBy *string, reason string) (*models.Ticket, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	if update.Status != nil {
		ticket.Status = *update.Status
	}
	if update.Subject != nil {
		ticket.Subject = *update.Subject
	}
	if update.Category != nil {
		ticket.Category = *update.Category
	}
	if update.Department != nil {
		ticket.Department = *update.Department
	}
	if update.Priority != nil {
		ticket.Priority = *update.Priority
	}
	if update.Summary != nil {
		ticket.Summary = *update.Summary
	}
	if update.NeedOnSite != nil {
		ticket.NeedOnSite = *update.NeedOnSite
	}
	if update.AutoResolved != nil {
		ticket.AutoResolved = *update.AutoResolved
	}
	f.reasons = append(f.reasons, reason)
	copied := *ticket
	return &copied, nil
}

func (f *fakeStore) ChangeStatus(ctx context.Context, id string, status models.TicketStatus, changedBy *string, reason string) (*models.Ticket, error) {
	return f.UpdateTicket(ctx, id, models.TicketUpdate{Status: &status}, changedBy, reason)
}

func (f *fakeStore) Assign(ctx context.Context, id string, department, assignee string, changedBy *string) (*models.Ticket, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	ticket.Status = models.StatusAccepted
	ticket.Department = department
	ticket.AssignedTo = &assignee
	copied := *ticket
	return &copied, nil
}

type fakeAnalyzer struct {
	analysis *models.TicketAnalysis
	err      error
	analyzed []string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, ticket *models.Ticket) (*models.TicketAnalysis, error) {
	f.analyzed = append(f.analyzed, ticket.ID)
	return f.analysis, f.err
}

type fakePublisher struct {
	events []events.Event
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, event events.Event) error {
	f.events = append(f.events, event)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) Enabled() bool        { return true }
func (f *fakeNotifier) SupportEmail() string { return "desk@example.kz" }

func (f *fakeNotifier) SendTicketCreatedNotice(ticket *models.Ticket) error {
	f.sent = append(f.sent, ticket.ID)
	return nil
}

type fakeTracker struct {
	created []string
	emails  []string
}

func (f *fakeTracker) TrackTicketCreated(ctx context.Context, ticket *models.Ticket) error {
	f.created = append(f.created, ticket.ID)
	return nil
}

func (f *fakeTracker) TrackEmailSent(ctx context.Context, emailType string, recipient string) error {
	f.emails = append(f.emails, emailType)
	return nil
}

type fixture struct {
	desk      *Desk
	store     *fakeStore
	publisher *fakePublisher
	notifier  *fakeNotifier
	tracker   *fakeTracker
}

func newFixture(existing ...models.Ticket) *fixture {
	f := &fixture{
		store:     newFakeStore(existing...),
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		tracker:   &fakeTracker{},
	}
	policy := sla.Policy{AcceptAfter: 15 * time.Minute, RemoteAfter: time.Hour}
	f.desk = NewDesk(f.store, policy, f.publisher, f.notifier, f.tracker, zerolog.Nop())
	f.desk.now = func() time.Time { return fixedNow }
	return f
}

func TestDesk_Open(t *testing.T) {
	f := newFixture()
	ticket := &models.Ticket{Source: models.SourceChat, Priority: models.PriorityCritical, Department: "TechSupport"}

	require.NoError(t, f.desk.Open(context.Background(), ticket))

	assert.Equal(t, "t-new", ticket.ID)
	assert.Equal(t, models.StatusOpen, ticket.Status)
	assert.Equal(t, fixedNow, ticket.CreatedAt)
	require.NotNil(t, ticket.SLAAcceptDeadline)
	assert.Equal(t, fixedNow.Add(15*time.Minute), *ticket.SLAAcceptDeadline)
	assert.Equal(t, fixedNow.Add(time.Hour), *ticket.SLARemoteDeadline)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeTicketCreated, f.publisher.events[0].Type)
	assert.Equal(t, []string{"t-new"}, f.tracker.created)
	assert.Equal(t, []string{"t-new"}, f.notifier.sent)
	assert.Equal(t, []string{email.TypeTicketCreated}, f.tracker.emails)
}

func TestDesk_OpenNonCriticalSkipsNotice(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.desk.Open(context.Background(), &models.Ticket{Priority: models.PriorityMedium}))
	assert.Empty(t, f.notifier.sent)
}

func TestDesk_OpenStoreFailure(t *testing.T) {
	f := newFixture()
	f.store.createErr = errors.New("db down")

	err := f.desk.Open(context.Background(), &models.Ticket{Priority: models.PriorityCritical})
	assert.EqualError(t, err, "db down")
	assert.Empty(t, f.publisher.events)
	assert.Empty(t, f.tracker.created)
}

func TestDesk_OpenPublishFailureIsLogged(t *testing.T) {
	f := newFixture()
	f.publisher.err = errors.New("bus down")

	assert.NoError(t, f.desk.Open(context.Background(), &models.Ticket{}))
}

func TestDesk_Create(t *testing.T) {
	f := newFixture()

	ticket, err := f.desk.Create(context.Background(), models.CreateTicketRequest{
		ClientType: models.ClientCorporate,
		Source:     models.SourceCallAgent,
		Content:    "Как оплатить тариф",
	})
	require.NoError(t, err)

	assert.Equal(t, "anonymous", ticket.UserID)
	assert.Equal(t, models.SourceCallAgent, ticket.Source)
	assert.Equal(t, "Как оплатить тариф", ticket.Subject)
	assert.Equal(t, categorizer.CategoryBilling, ticket.Category)
	assert.Equal(t, categorizer.DepartmentBilling, ticket.Department)
	assert.Equal(t, models.PriorityHigh, ticket.Priority)
	assert.Equal(t, "ru", ticket.Language)

	_, err = f.desk.Create(context.Background(), models.CreateTicketRequest{Content: "  "})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestDesk_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		status   models.TicketStatus
		action   func(d *Desk, id string) (*models.Ticket, error)
		expected models.TicketStatus
		err      error
	}{
		{
			name:     "accept open",
			status:   models.StatusOpen,
			action:   func(d *Desk, id string) (*models.Ticket, error) { return d.Accept(context.Background(), id, nil) },
			expected: models.StatusAccepted,
		},
		{
			name:   "accept resolved is refused",
			status: models.StatusResolved,
			action: func(d *Desk, id string) (*models.Ticket, error) { return d.Accept(context.Background(), id, nil) },
			err:    ErrInvalidTransition,
		},
		{
			name:     "complete remote",
			status:   models.StatusInProgress,
			action:   func(d *Desk, id string) (*models.Ticket, error) { return d.CompleteRemote(context.Background(), id, nil, "") },
			expected: models.StatusResolved,
		},
		{
			name:     "request on site",
			status:   models.StatusAccepted,
			action:   func(d *Desk, id string) (*models.Ticket, error) { return d.RequestOnSite(context.Background(), id, nil, "") },
			expected: models.StatusOnSite,
		},
		{
			name:     "close resolved",
			status:   models.StatusResolved,
			action:   func(d *Desk, id string) (*models.Ticket, error) { return d.Close(context.Background(), id, nil, "") },
			expected: models.StatusClosed,
		},
		{
			name:   "close closed is refused",
			status: models.StatusClosed,
			action: func(d *Desk, id string) (*models.Ticket, error) { return d.Close(context.Background(), id, nil, "") },
			err:    ErrInvalidTransition,
		},
		{
			name:     "assign accepts",
			status:   models.StatusEscalated,
			action:   func(d *Desk, id string) (*models.Ticket, error) { return d.Assign(context.Background(), id, "Network", "eng-1", nil) },
			expected: models.StatusAccepted,
		},
		{
			name:   "assign closed is refused",
			status: models.StatusClosed,
			action: func(d *Desk, id string) (*models.Ticket, error) { return d.Assign(context.Background(), id, "Network", "eng-1", nil) },
			err:    ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(models.Ticket{ID: "t-1", Status: tt.status})

			ticket, err := tt.action(f.desk, "t-1")
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Empty(t, f.publisher.events)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, ticket.Status)
			require.Len(t, f.publisher.events, 1)
			event := f.publisher.events[0]
			assert.Equal(t, events.TypeTicketStatusChanged, event.Type)
			assert.Equal(t, tt.status, event.OldStatus)
			assert.Equal(t, tt.expected, event.Status)
		})
	}
}

func TestDesk_UpdateWithoutStatusChangePublishesNothing(t *testing.T) {
	f := newFixture(models.Ticket{ID: "t-1", Status: models.StatusOpen})
	subject := "Новая тема"

	ticket, err := f.desk.Update(context.Background(), "t-1", models.TicketUpdate{Subject: &subject}, nil, "edit")
	require.NoError(t, err)
	assert.Equal(t, subject, ticket.Subject)
	assert.Empty(t, f.publisher.events)
}

func TestDesk_UpdateRejectsUnknownStatus(t *testing.T) {
	f := newFixture(models.Ticket{ID: "t-1", Status: models.StatusOpen})
	status := models.TicketStatus("done")

	_, err := f.desk.Update(context.Background(), "t-1", models.TicketUpdate{Status: &status}, nil, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDesk_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.desk.Accept(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func analysisOf(autoResolve, needOnSite bool) *models.TicketAnalysis {
	return &models.TicketAnalysis{
		Classification: models.TicketClassification{
			Language:             "ru",
			Category:             categorizer.CategoryNetwork,
			Subcategory:          "wifi",
			Department:           categorizer.DepartmentNetwork,
			Priority:             models.PriorityHigh,
			AutoResolveCandidate: autoResolve,
			Confidence:           0.9,
		},
		Summary:     "Клиент сообщает, что не работает Wi-Fi.",
		Answer:      models.SuggestedAnswer{Answer: "Перезагрузите роутер.", NeedOnSite: needOnSite, Confidence: 0.9},
		AutoResolve: autoResolve,
	}
}

func TestDesk_Process(t *testing.T) {
	t.Run("confident answer auto-resolves", func(t *testing.T) {
		f := newFixture(models.Ticket{ID: "t-1", Status: models.StatusOpen, Department: categorizer.DepartmentTechSupport})
		analyzer := &fakeAnalyzer{analysis: analysisOf(true, false)}
		f.desk.WithAnalyzer(analyzer)

		ticket, analysis, err := f.desk.Process(context.Background(), "t-1", nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"t-1"}, analyzer.analyzed)
		assert.True(t, analysis.AutoResolve)
		assert.Equal(t, models.StatusAutoResolved, ticket.Status)
		assert.True(t, ticket.AutoResolved)
		assert.Equal(t, categorizer.DepartmentNetwork, ticket.Department)
		assert.Equal(t, models.PriorityHigh, ticket.Priority)
		assert.Equal(t, "Клиент сообщает, что не работает Wi-Fi.", ticket.Summary)
		assert.Equal(t, []string{"ai_processed"}, f.store.reasons)

		require.Len(t, f.publisher.events, 1)
		assert.Equal(t, events.TypeTicketStatusChanged, f.publisher.events[0].Type)
		assert.Equal(t, models.StatusAutoResolved, f.publisher.events[0].Status)
	})

	t.Run("on-site need keeps the ticket open", func(t *testing.T) {
		f := newFixture(models.Ticket{ID: "t-1", Status: models.StatusOpen})
		f.desk.WithAnalyzer(&fakeAnalyzer{analysis: analysisOf(false, true)})

		ticket, _, err := f.desk.Process(context.Background(), "t-1", nil)
		require.NoError(t, err)

		assert.Equal(t, models.StatusOpen, ticket.Status)
		assert.True(t, ticket.NeedOnSite)
		assert.False(t, ticket.AutoResolved)
		assert.Empty(t, f.publisher.events)
	})

	t.Run("closed tickets are refused", func(t *testing.T) {
		f := newFixture(models.Ticket{ID: "t-1", Status: models.StatusClosed})
		analyzer := &fakeAnalyzer{analysis: analysisOf(true, false)}
		f.desk.WithAnalyzer(analyzer)

		_, _, err := f.desk.Process(context.Background(), "t-1", nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Empty(t, analyzer.analyzed)
	})

	t.Run("analyzer failure leaves the ticket untouched", func(t *testing.T) {
		f := newFixture(models.Ticket{ID: "t-1", Status: models.StatusOpen})
		f.desk.WithAnalyzer(&fakeAnalyzer{err: context.DeadlineExceeded})

		_, _, err := f.desk.Process(context.Background(), "t-1", nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Empty(t, f.store.reasons)
	})

	t.Run("missing ticket", func(t *testing.T) {
		f := newFixture()
		f.desk.WithAnalyzer(&fakeAnalyzer{analysis: analysisOf(true, false)})

		_, _, err := f.desk.Process(context.Background(), "missing", nil)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("no analyzer", func(t *testing.T) {
		f := newFixture(models.Ticket{ID: "t-1", Status: models.StatusOpen})

		_, _, err := f.desk.Process(context.Background(), "t-1", nil)
		assert.ErrorIs(t, err, ErrAnalyzerUnavailable)
	})
}
