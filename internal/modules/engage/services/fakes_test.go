package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/audit"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/events"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

// memDB is one in-memory database behind every fake repository. A single
// mutex plays the role of the unique indexes and row locks.
type memDB struct {
	mu            sync.Mutex
	customers     map[uuid.UUID]models.Customer
	conversations map[uuid.UUID]models.Conversation
	participants  map[[2]uuid.UUID]models.Participant
	messages      map[uuid.UUID]models.Message
	campaigns     map[uuid.UUID]models.Campaign
	contacts      map[uuid.UUID]models.CampaignContact
	unread        map[[2]uuid.UUID]models.UnreadCount

	// failMessageCreate fails the next message insert once.
	failMessageCreate error
	// beforeCountUnread runs once at the start of the next unread count.
	beforeCountUnread func()
}

func newMemDB() *memDB {
	return &memDB{
		customers:     map[uuid.UUID]models.Customer{},
		conversations: map[uuid.UUID]models.Conversation{},
		participants:  map[[2]uuid.UUID]models.Participant{},
		messages:      map[uuid.UUID]models.Message{},
		campaigns:     map[uuid.UUID]models.Campaign{},
		contacts:      map[uuid.UUID]models.CampaignContact{},
		unread:        map[[2]uuid.UUID]models.UnreadCount{},
	}
}

func notFound(op string) error {
	return apperrors.New(apperrors.NotFound, op, "record not found")
}

// --- customers

type fakeCustomers struct{ db *memDB }

func (f fakeCustomers) FindByPhone(_ context.Context, tenantID uuid.UUID, phone string) (*models.Customer, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, c := range f.db.customers {
		if c.TenantID == tenantID && c.Phone == phone {
			return &c, nil
		}
	}
	return nil, notFound("customers.FindByPhone")
}

func (f fakeCustomers) FindByID(_ context.Context, tenantID, id uuid.UUID) (*models.Customer, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.customers[id]
	if !ok || c.TenantID != tenantID {
		return nil, notFound("customers.FindByID")
	}
	return &c, nil
}

func (f fakeCustomers) Create(_ context.Context, c *models.Customer) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.customers {
		if existing.TenantID == c.TenantID && existing.Phone == c.Phone {
			return repositories.ErrDuplicate
		}
	}
	f.db.customers[c.ID] = *c
	return nil
}

func (f fakeCustomers) UpdateDisplayName(_ context.Context, tenantID, id uuid.UUID, name string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.customers[id]
	if ok && c.TenantID == tenantID {
		c.DisplayName = name
		f.db.customers[id] = c
	}
	return nil
}

// --- conversations

type fakeConversations struct{ db *memDB }

func (f fakeConversations) findOpenLocked(tenantID, customerID uuid.UUID, channel string) (models.Conversation, bool) {
	for _, c := range f.db.conversations {
		if c.TenantID == tenantID && c.CustomerID == customerID && c.Channel == channel && c.Status != models.ConversationClosed {
			return c, true
		}
	}
	return models.Conversation{}, false
}

func (f fakeConversations) FindOpen(_ context.Context, tenantID, customerID uuid.UUID, channel string) (*models.Conversation, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if c, ok := f.findOpenLocked(tenantID, customerID, channel); ok {
		return &c, nil
	}
	return nil, notFound("conversations.FindOpen")
}

func (f fakeConversations) FindByID(_ context.Context, tenantID, id uuid.UUID) (*models.Conversation, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.conversations[id]
	if !ok || c.TenantID != tenantID {
		return nil, notFound("conversations.FindByID")
	}
	return &c, nil
}

func (f fakeConversations) CreateOpen(_ context.Context, conv *models.Conversation) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.findOpenLocked(conv.TenantID, conv.CustomerID, conv.Channel); ok {
		return repositories.ErrDuplicate
	}
	f.db.conversations[conv.ID] = *conv
	return nil
}

func (f fakeConversations) UpdateStatus(_ context.Context, tenantID, id uuid.UUID, from, to models.ConversationStatus, at time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.conversations[id]
	if !ok || c.TenantID != tenantID || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = at
	if to == models.ConversationClosed {
		c.ClosedAt = &at
	}
	f.db.conversations[id] = c
	return true, nil
}

func (f fakeConversations) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.conversations[id]
	if ok && (c.LastMessageAt == nil || c.LastMessageAt.Before(at)) {
		c.LastMessageAt = &at
		f.db.conversations[id] = c
	}
	return nil
}

func (f fakeConversations) UpsertParticipant(_ context.Context, p *models.Participant) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.participants[[2]uuid.UUID{p.ConversationID, p.UserID}] = *p
	return nil
}

func (f fakeConversations) DeactivateParticipant(_ context.Context, conversationID, userID uuid.UUID, at time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	key := [2]uuid.UUID{conversationID, userID}
	p, ok := f.db.participants[key]
	if !ok || !p.Active {
		return false, nil
	}
	p.Active = false
	p.LeftAt = &at
	f.db.participants[key] = p
	return true, nil
}

func (f fakeConversations) IsActiveParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.participants[[2]uuid.UUID{conversationID, userID}]
	return ok && p.Active, nil
}

func (f fakeConversations) ActiveParticipants(_ context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var ids []uuid.UUID
	for _, p := range f.db.participants {
		if p.ConversationID == conversationID && p.Active {
			ids = append(ids, p.UserID)
		}
	}
	return ids, nil
}

// --- messages

type fakeMessages struct{ db *memDB }

func (f fakeMessages) Create(_ context.Context, m *models.Message) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.failMessageCreate; err != nil {
		f.db.failMessageCreate = nil
		return err
	}
	if m.ExternalID != nil {
		for _, existing := range f.db.messages {
			if existing.TenantID == m.TenantID && existing.ExternalID != nil && *existing.ExternalID == *m.ExternalID {
				return repositories.ErrDuplicate
			}
		}
	}
	f.db.messages[m.ID] = *m
	return nil
}

func (f fakeMessages) FindByID(_ context.Context, tenantID, id uuid.UUID) (*models.Message, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	m, ok := f.db.messages[id]
	if !ok || m.TenantID != tenantID {
		return nil, notFound("messages.FindByID")
	}
	return &m, nil
}

func (f fakeMessages) FindByExternalID(_ context.Context, tenantID uuid.UUID, externalID string) (*models.Message, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, m := range f.db.messages {
		if m.TenantID == tenantID && m.ExternalID != nil && *m.ExternalID == externalID {
			return &m, nil
		}
	}
	return nil, notFound("messages.FindByExternalID")
}

func (f fakeMessages) UpdateStatus(_ context.Context, id uuid.UUID, from models.MessageStatus, change repositories.StatusChange) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	m, ok := f.db.messages[id]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = change.Status
	if change.SentAt != nil {
		m.SentAt = change.SentAt
	}
	if change.DeliveredAt != nil {
		m.DeliveredAt = change.DeliveredAt
	}
	if change.ReadAt != nil {
		m.ReadAt = change.ReadAt
	}
	if change.FailedAt != nil {
		m.FailedAt = change.FailedAt
	}
	if change.ErrorMessage != "" {
		m.ErrorMessage = change.ErrorMessage
	}
	f.db.messages[id] = m
	return true, nil
}

func (f fakeMessages) SetMedia(_ context.Context, id uuid.UUID, path, mime string, size int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	m, ok := f.db.messages[id]
	if !ok {
		return notFound("messages.SetMedia")
	}
	m.MediaPath, m.MediaMime, m.MediaSize = path, mime, size
	f.db.messages[id] = m
	return nil
}

func (f fakeMessages) ListRecent(_ context.Context, tenantID, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Message
	for _, m := range f.db.messages {
		if m.TenantID == tenantID && m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f fakeMessages) CountUnread(_ context.Context, conversationID uuid.UUID, since time.Time, userID uuid.UUID) (int64, error) {
	f.db.mu.Lock()
	hook := f.db.beforeCountUnread
	f.db.beforeCountUnread = nil
	f.db.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for _, m := range f.db.messages {
		if m.ConversationID != conversationID || !m.CreatedAt.After(since) {
			continue
		}
		if m.SenderUserID != nil && *m.SenderUserID == userID {
			continue
		}
		n++
	}
	return n, nil
}

// --- campaigns

type fakeCampaigns struct{ db *memDB }

func (f fakeCampaigns) CreateCampaign(_ context.Context, c *models.Campaign) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.campaigns[c.ID] = *c
	return nil
}

func (f fakeCampaigns) FindCampaign(_ context.Context, tenantID, id uuid.UUID) (*models.Campaign, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return nil, notFound("campaigns.Find")
	}
	return &c, nil
}

func (f fakeCampaigns) SetCampaignStatus(_ context.Context, tenantID, id uuid.UUID, status models.CampaignStatus) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.campaigns[id]
	if ok && c.TenantID == tenantID {
		c.Status = status
		f.db.campaigns[id] = c
	}
	return nil
}

func (f fakeCampaigns) ListCampaignsByStatus(_ context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Campaign
	for _, c := range f.db.campaigns {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f fakeCampaigns) EnrollContact(_ context.Context, cc *models.CampaignContact) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.contacts {
		if existing.CampaignID == cc.CampaignID && existing.CustomerID == cc.CustomerID {
			return false, nil
		}
	}
	if cc.CreatedAt.IsZero() {
		cc.CreatedAt = time.Now().UTC()
	}
	f.db.contacts[cc.ID] = *cc
	return true, nil
}

func (f fakeCampaigns) FindContact(_ context.Context, tenantID, id uuid.UUID) (*models.CampaignContact, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	cc, ok := f.db.contacts[id]
	if !ok || cc.TenantID != tenantID {
		return nil, notFound("campaigns.FindContact")
	}
	return &cc, nil
}

func (f fakeCampaigns) FindContactByExternalID(_ context.Context, tenantID uuid.UUID, externalID string) (*models.CampaignContact, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, cc := range f.db.contacts {
		if cc.TenantID == tenantID && cc.ExternalMessageID != nil && *cc.ExternalMessageID == externalID {
			return &cc, nil
		}
	}
	return nil, notFound("campaigns.FindContactByExternalID")
}

func (f fakeCampaigns) FindLatestActiveContact(_ context.Context, tenantID, customerID uuid.UUID) (*models.CampaignContact, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var candidates []models.CampaignContact
	for _, cc := range f.db.contacts {
		if cc.TenantID == tenantID && cc.CustomerID == customerID && cc.Status.Active() {
			candidates = append(candidates, cc)
		}
	}
	if len(candidates) == 0 {
		return nil, notFound("campaigns.FindLatestActiveContact")
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch {
		case a.SentAt != nil && b.SentAt == nil:
			return true
		case a.SentAt == nil && b.SentAt != nil:
			return false
		case a.SentAt != nil && !a.SentAt.Equal(*b.SentAt):
			return a.SentAt.After(*b.SentAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return &candidates[0], nil
}

func (f fakeCampaigns) ListContacts(_ context.Context, tenantID, campaignID uuid.UUID, filter repositories.ContactFilter) ([]models.CampaignContact, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.CampaignContact
	for _, cc := range f.db.contacts {
		if cc.TenantID == tenantID && cc.CampaignID == campaignID && (filter.Status == "" || cc.Status == filter.Status) {
			out = append(out, cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f fakeCampaigns) TransitionContact(_ context.Context, tenantID, id uuid.UUID, from []models.ContactStatus, change repositories.ContactChange) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	cc, ok := f.db.contacts[id]
	if !ok || cc.TenantID != tenantID {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if cc.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return false, nil
	}

	cc.Status = change.Status
	if change.ExternalMessageID != nil {
		cc.ExternalMessageID = change.ExternalMessageID
	}
	if change.ErrorMessage != nil {
		cc.ErrorMessage = *change.ErrorMessage
	}
	if change.ExclusionReason != nil {
		cc.ExclusionReason = *change.ExclusionReason
	}
	for dst, src := range map[**time.Time]*time.Time{
		&cc.SentAt:       change.SentAt,
		&cc.DeliveredAt:  change.DeliveredAt,
		&cc.ReadAt:       change.ReadAt,
		&cc.RespondedAt:  change.RespondedAt,
		&cc.FailedAt:     change.FailedAt,
		&cc.ExcludedAt:   change.ExcludedAt,
		&cc.ReincludedAt: change.ReincludedAt,
		&cc.LastRetryAt:  change.LastRetryAt,
	} {
		if src != nil {
			*dst = src
		}
	}
	if change.IncrementRetry {
		cc.RetryCount++
	}
	if change.ClearQueued {
		cc.QueuedAt = nil
	}
	f.db.contacts[id] = cc
	return true, nil
}

func (f fakeCampaigns) ClaimPending(_ context.Context, tenantID, campaignID uuid.UUID, staleBefore time.Time, limit int) ([]uuid.UUID, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var ids []uuid.UUID
	now := time.Now().UTC()
	for id, cc := range f.db.contacts {
		if cc.TenantID != tenantID || cc.CampaignID != campaignID || cc.Status != models.ContactPending {
			continue
		}
		if cc.QueuedAt != nil && !cc.QueuedAt.Before(staleBefore) {
			continue
		}
		cc.QueuedAt = &now
		f.db.contacts[id] = cc
		ids = append(ids, id)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (f fakeCampaigns) CountByStatus(_ context.Context, tenantID, campaignID uuid.UUID) (map[models.ContactStatus]int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	counts := map[models.ContactStatus]int64{}
	for _, cc := range f.db.contacts {
		if cc.TenantID == tenantID && cc.CampaignID == campaignID {
			counts[cc.Status]++
		}
	}
	return counts, nil
}

// --- unread

type fakeUnread struct{ db *memDB }

func (f fakeUnread) Get(_ context.Context, userID, conversationID uuid.UUID) (*models.UnreadCount, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	uc, ok := f.db.unread[[2]uuid.UUID{userID, conversationID}]
	if !ok {
		return nil, notFound("unread.Get")
	}
	return &uc, nil
}

func (f fakeUnread) Reset(_ context.Context, uc *models.UnreadCount) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	row := *uc
	row.Count = 0
	f.db.unread[[2]uuid.UUID{uc.UserID, uc.ConversationID}] = row
	return nil
}

func (f fakeUnread) Increment(_ context.Context, conversationID uuid.UUID, userIDs []uuid.UUID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, userID := range userIDs {
		key := [2]uuid.UUID{userID, conversationID}
		if uc, ok := f.db.unread[key]; ok {
			uc.Count++
			f.db.unread[key] = uc
		}
	}
	return nil
}

func (f fakeUnread) MarkRead(_ context.Context, userID, conversationID uuid.UUID, at time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	key := [2]uuid.UUID{userID, conversationID}
	uc, ok := f.db.unread[key]
	if !ok {
		return false, nil
	}
	uc.Count = 0
	uc.LastReadAt = at
	f.db.unread[key] = uc
	return true, nil
}

func (f fakeUnread) SetCount(_ context.Context, observed *models.UnreadCount, count int64) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	key := [2]uuid.UUID{observed.UserID, observed.ConversationID}
	uc, ok := f.db.unread[key]
	if !ok || uc.Count != observed.Count || !uc.LastReadAt.Equal(observed.LastReadAt) {
		return false, nil
	}
	uc.Count = count
	f.db.unread[key] = uc
	return true, nil
}

func (f fakeUnread) Delete(_ context.Context, userID, conversationID uuid.UUID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	delete(f.db.unread, [2]uuid.UUID{userID, conversationID})
	return nil
}

func (f fakeUnread) List(_ context.Context, limit, offset int) ([]models.UnreadCount, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	rows := make([]models.UnreadCount, 0, len(f.db.unread))
	for _, uc := range f.db.unread {
		rows = append(rows, uc)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].UserID != rows[j].UserID {
			return rows[i].UserID.String() < rows[j].UserID.String()
		}
		return rows[i].ConversationID.String() < rows[j].ConversationID.String()
	})
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// --- collaborators

type fakeTenants map[string]uuid.UUID

func (f fakeTenants) ResolveInstance(_ context.Context, provider, instanceID string) (uuid.UUID, error) {
	if id, ok := f[provider+"/"+instanceID]; ok {
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("%w: %s/%s", tenant.ErrUnknownInstance, provider, instanceID)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAudit) LogChange(_ context.Context, e audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Action
	}
	return out
}

type enqueued struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Type     string
	Payload  interface{}
	DedupKey string
	Done     bool
}

// fakeJobs reserves a dedup key while its job is active, like the partial
// unique index on queued and running jobs.
type fakeJobs struct {
	mu   sync.Mutex
	jobs []enqueued
	keys map[string]bool
}

func (f *fakeJobs) Enqueue(_ context.Context, tenantID uuid.UUID, jobType string, payload interface{}, opts ...jobs.EnqueueOptions) (*jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ""
	if len(opts) > 0 {
		key = opts[0].DedupKey
	}
	if key != "" {
		if f.keys[key] {
			return nil, jobs.ErrAlreadyQueued
		}
		if f.keys == nil {
			f.keys = map[string]bool{}
		}
		f.keys[key] = true
	}
	j := enqueued{ID: uuid.New(), TenantID: tenantID, Type: jobType, Payload: payload, DedupKey: key}
	f.jobs = append(f.jobs, j)
	return &jobs.Job{ID: j.ID, TenantID: tenantID, Type: jobType}, nil
}

// finish marks a job done and frees its dedup key.
func (f *fakeJobs) finish(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.jobs {
		if f.jobs[i].ID == id && !f.jobs[i].Done {
			f.jobs[i].Done = true
			delete(f.keys, f.jobs[i].DedupKey)
		}
	}
}

// active returns the jobs of jobType not finished yet.
func (f *fakeJobs) active(jobType string) []enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []enqueued
	for _, j := range f.jobs {
		if j.Type == jobType && !j.Done {
			out = append(out, j)
		}
	}
	return out
}

func (f *fakeJobs) ofType(jobType string) []enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []enqueued
	for _, j := range f.jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}
	return out
}

type fakeSender struct {
	mu    sync.Mutex
	err   error
	sent  []string
	count int
}

func (f *fakeSender) Send(_ context.Context, _, phone, _ string) (*whatsapp.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.count++
	f.sent = append(f.sent, phone)
	return &whatsapp.SendResult{Success: true, ProviderMessageID: fmt.Sprintf("wamid.%d", f.count)}, nil
}

func (f *fakeSender) GetProviderName() string { return "fake" }

// clock hands out strictly increasing times.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

// recorder collects published events by type.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) ofType(eventType string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

const (
	testInstance = "inst-1"
	testRegion   = "BR"
)

// harness wires every service over one memDB, the real event bus and the
// unread subscriber.
type harness struct {
	tenantID uuid.UUID
	db       *memDB
	clock    *clock
	bus      *events.Bus
	events   *recorder
	audit    *fakeAudit
	jobs     *fakeJobs
	sender   *fakeSender

	identity  *IdentityService
	router    *ConversationRouter
	campaigns *CampaignService
	ingest    *IngestionService
	status    *DeliveryStatusService
	unread    *UnreadService
	dispatch  *DispatchService
}

func newHarness(secrets WebhookSecrets) *harness {
	h := &harness{
		tenantID: uuid.New(),
		db:       newMemDB(),
		clock:    newClock(),
		bus:      events.NewBus(nil),
		events:   &recorder{},
		audit:    &fakeAudit{},
		jobs:     &fakeJobs{},
		sender:   &fakeSender{},
	}
	tenants := fakeTenants{
		string(whatsapp.ProviderZAPI) + "/" + testInstance: h.tenantID,
		string(whatsapp.ProviderWAHA) + "/default":         h.tenantID,
	}
	for _, t := range []string{events.MessageCreated, events.MessageStatusChanged, events.ConversationStatusChanged, events.CampaignContactChanged} {
		h.bus.Subscribe(t, h.events.handle)
	}

	customers := fakeCustomers{h.db}
	conversations := fakeConversations{h.db}
	messages := fakeMessages{h.db}
	campaigns := fakeCampaigns{h.db}
	unread := fakeUnread{h.db}

	h.identity = NewIdentityService(customers, testRegion)
	h.router = NewConversationRouter(conversations, unread, h.audit, h.bus)
	h.router.now = h.clock.Now
	h.campaigns = NewCampaignService(campaigns, h.identity, h.audit, h.bus, nil)
	h.campaigns.now = h.clock.Now
	h.ingest = NewIngestionService(IngestionDeps{
		Tenants:   tenants,
		Secrets:   secrets,
		Identity:  h.identity,
		Router:    h.router,
		Messages:  messages,
		Campaigns: h.campaigns,
		Jobs:      h.jobs,
		Bus:       h.bus,
	})
	h.ingest.now = h.clock.Now
	h.status = NewDeliveryStatusService(tenants, secrets, messages, h.campaigns, h.bus, nil)
	h.status.now = h.clock.Now
	h.unread = NewUnreadService(unread, conversations, messages)
	h.unread.now = h.clock.Now
	h.unread.Subscribe(h.bus)
	h.dispatch = NewDispatchService(DispatchDeps{
		Campaigns:   campaigns,
		CampaignSvc: h.campaigns,
		Customers:   customers,
		Router:      h.router,
		Messages:    messages,
		Sender:      h.sender,
		Jobs:        h.jobs,
		Bus:         h.bus,
	})
	h.dispatch.now = h.clock.Now
	return h
}

func (h *harness) countMessages() int {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	return len(h.db.messages)
}

func (h *harness) countConversations() int {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	return len(h.db.conversations)
}

func (h *harness) countCustomers() int {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	return len(h.db.customers)
}

func (h *harness) contact(id uuid.UUID) models.CampaignContact {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	return h.db.contacts[id]
}

func (h *harness) message(id uuid.UUID) models.Message {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	return h.db.messages[id]
}

// seedContact stores a campaign with one contact in the given status.
func (h *harness) seedContact(customerID uuid.UUID, status models.ContactStatus, mutate func(*models.CampaignContact)) (models.Campaign, models.CampaignContact) {
	campaign := models.Campaign{
		ID:       uuid.New(),
		TenantID: h.tenantID,
		Name:     "June drive",
		Channel:  models.ChannelWhatsApp,
		Content:  "Doe sangue neste sábado!",
		Status:   models.CampaignSending,
	}
	cc := models.CampaignContact{
		ID:         uuid.New(),
		TenantID:   h.tenantID,
		CampaignID: campaign.ID,
		CustomerID: customerID,
		Status:     status,
		CreatedAt:  h.clock.Now(),
	}
	if mutate != nil {
		mutate(&cc)
	}

	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	h.db.campaigns[campaign.ID] = campaign
	h.db.contacts[cc.ID] = cc
	return campaign, cc
}

// jobFor builds the job a worker would hand to a handler for payload.
func jobFor(tenantID uuid.UUID, jobType string, payload interface{}) *jobs.Job {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return &jobs.Job{ID: uuid.New(), TenantID: tenantID, Type: jobType, Payload: raw}
}
