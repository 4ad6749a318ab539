package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/automation"
	"subscriptionOpsAPI/internal/client"
	"subscriptionOpsAPI/internal/communication"
	"subscriptionOpsAPI/internal/payment"
	"subscriptionOpsAPI/internal/subscription"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errBoom = errors.New("boom")

// memSubscriptions is an in-memory SubscriptionStore.
type memSubscriptions struct {
	mu        sync.Mutex
	seq       int
	items     map[string]*subscription.Subscription
	dueErr    map[string]error
	statusErr map[string]error
	setCalls  int
}

func newMemSubscriptions(subs ...*subscription.Subscription) *memSubscriptions {
	m := &memSubscriptions{
		items:     map[string]*subscription.Subscription{},
		dueErr:    map[string]error{},
		statusErr: map[string]error{},
	}
	for _, s := range subs {
		cp := *s
		m.items[s.ID] = &cp
	}
	return m
}

func (m *memSubscriptions) get(id string) *subscription.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.items[id]
	return &cp
}

func (m *memSubscriptions) Get(_ context.Context, id string) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFoundf("subscription %s not found", id)
	}
	cp := *s
	return &cp, nil
}

func (m *memSubscriptions) Create(_ context.Context, s *subscription.Subscription) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	cp := *s
	cp.ID = fmt.Sprintf("sub-%d", m.seq)
	m.items[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memSubscriptions) Patch(_ context.Context, id string, req *subscription.UpdateRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return apperrors.NotFoundf("subscription %s not found", id)
	}
	if req.CutDate != nil {
		s.CutDate = *req.CutDate
	}
	if req.Plan != nil {
		s.Plan = *req.Plan
	}
	if req.Amount != nil {
		s.Amount = *req.Amount
	}
	if req.Status != nil {
		s.Status = *req.Status
	}
	return nil
}

func (m *memSubscriptions) SetStatus(_ context.Context, id string, status subscription.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if err := m.statusErr[id]; err != nil {
		return err
	}
	s, ok := m.items[id]
	if !ok {
		return apperrors.NotFoundf("subscription %s not found", id)
	}
	s.Status = status
	return nil
}

func (m *memSubscriptions) Advance(_ context.Context, id, cutDate string, status subscription.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return apperrors.NotFoundf("subscription %s not found", id)
	}
	s.CutDate, s.Status = cutDate, status
	return nil
}

func (m *memSubscriptions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperrors.NotFoundf("subscription %s not found", id)
	}
	delete(m.items, id)
	return nil
}

func (m *memSubscriptions) sorted() []*subscription.Subscription {
	out := make([]*subscription.Subscription, 0, len(m.items))
	for _, s := range m.items {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memSubscriptions) List(_ context.Context, _ int, _ string) (*subscription.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &subscription.Page{Items: m.sorted()}, nil
}

func (m *memSubscriptions) FindDue(_ context.Context, q subscription.DueQuery) ([]*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.dueErr[q.CutDate]; err != nil {
		return nil, err
	}
	var out []*subscription.Subscription
	for _, s := range m.sorted() {
		if q.Status != "" && s.Status != q.Status {
			continue
		}
		if q.OnOrBefore && s.CutDate > q.CutDate || !q.OnOrBefore && s.CutDate != q.CutDate {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memSubscriptions) ListByClient(_ context.Context, keys ...string) ([]*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*subscription.Subscription
	for _, s := range m.sorted() {
		for _, k := range keys {
			if s.ClientID == k {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *memSubscriptions) LatestForClient(ctx context.Context, keys ...string) (*subscription.Subscription, error) {
	subs, _ := m.ListByClient(ctx, keys...)
	if len(subs) == 0 {
		return nil, nil
	}
	return subs[len(subs)-1], nil
}

// memPayments is an in-memory PaymentStore. Settle writes through to subs
// when it is set.
type memPayments struct {
	mu        sync.Mutex
	seq       int
	items     map[string]*payment.Payment
	subs      *memSubscriptions
	settleErr error
}

func newMemPayments() *memPayments {
	return &memPayments{items: map[string]*payment.Payment{}}
}

func (m *memPayments) Get(_ context.Context, id string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFoundf("payment %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) Create(_ context.Context, p *payment.Payment) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	cp := *p
	cp.ID = fmt.Sprintf("pay-%d", m.seq)
	m.items[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memPayments) sorted() []*payment.Payment {
	out := make([]*payment.Payment, 0, len(m.items))
	for _, p := range m.items {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memPayments) ListBySubscription(_ context.Context, subscriptionID string, statuses ...payment.Status) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Payment
	for _, p := range m.sorted() {
		if p.SubscriptionID != subscriptionID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				match = match || p.Status == st
			}
			if !match {
				continue
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memPayments) Settle(_ context.Context, st payment.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settleErr != nil {
		return m.settleErr
	}
	p, ok := m.items[st.PaymentID]
	if !ok {
		return apperrors.NotFoundf("payment %s not found", st.PaymentID)
	}
	if err := payment.CheckTransition(p.Status, payment.StatusVerified); err != nil {
		return err
	}
	if m.subs != nil {
		m.subs.mu.Lock()
		sub, ok := m.subs.items[st.SubscriptionID]
		if ok {
			sub.Status = subscription.Status(st.SubscriptionStatus)
			if st.CutDate != "" {
				sub.CutDate = st.CutDate
			}
		}
		m.subs.mu.Unlock()
		if !ok {
			return apperrors.NotFoundf("subscription %s not found", st.SubscriptionID)
		}
	}
	at := st.VerifiedAt
	p.Status, p.VerifiedBy, p.VerifiedAt = payment.StatusVerified, st.VerifiedBy, &at
	if st.Notes != "" {
		p.Notes = st.Notes
	}
	return nil
}

func (m *memPayments) SetStatus(_ context.Context, id string, status payment.Status, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return apperrors.NotFoundf("payment %s not found", id)
	}
	p.Status = status
	if notes != "" {
		p.Notes = notes
	}
	return nil
}

func (m *memPayments) List(_ context.Context, f payment.Filter) (*payment.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	return &payment.Page{Payments: all, Total: len(all), Page: f.Page, Limit: f.Limit}, nil
}

func (m *memPayments) PendingByMethod(_ context.Context, method payment.Method) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Payment
	for _, p := range m.sorted() {
		if p.Method == method && p.Status == payment.StatusPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPayments) All(_ context.Context) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), nil
}

// memClients is an in-memory ClientStore.
type memClients struct {
	mu           sync.Mutex
	seq          int
	items        map[string]*client.Client
	promoted     []string
	relinked     []string
	deleted      []string
	relatedKeys  []string
	relatedCount int
	relatedErr   error
}

func newMemClients(clients ...*client.Client) *memClients {
	m := &memClients{items: map[string]*client.Client{}}
	for _, c := range clients {
		cp := *c
		m.items[c.ID] = &cp
	}
	return m
}

func (m *memClients) Get(_ context.Context, id string) (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFoundf("client %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (m *memClients) find(match func(*client.Client) bool) []*client.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*client.Client
	for _, c := range m.items {
		if match(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memClients) FindByUID(_ context.Context, uid string) (*client.Client, error) {
	found := m.find(func(c *client.Client) bool { return c.UID == uid })
	if len(found) == 0 {
		return nil, apperrors.NotFoundf("client with uid %s not found", uid)
	}
	return found[0], nil
}

func (m *memClients) FindByPhone(_ context.Context, phone string) (*client.Client, error) {
	found := m.find(func(c *client.Client) bool { return c.Phone == phone })
	if len(found) == 0 {
		return nil, apperrors.NotFoundf("client with phone %s not found", phone)
	}
	return found[0], nil
}

func (m *memClients) ListByUID(_ context.Context, uid string) ([]*client.Client, error) {
	return m.find(func(c *client.Client) bool { return c.UID == uid }), nil
}

func (m *memClients) Create(_ context.Context, c *client.Client) (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	cp := *c
	cp.ID = fmt.Sprintf("client-%d", m.seq)
	m.items[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memClients) Patch(_ context.Context, id string, req *client.UpdateRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return apperrors.NotFoundf("client %s not found", id)
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.Address != nil {
		c.Address = *req.Address
	}
	return nil
}

func (m *memClients) Promote(_ context.Context, id string, req *client.CreateRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return apperrors.NotFoundf("client %s not found", id)
	}
	c.UID, c.Name, c.Roles = req.UID, req.Name, []string{client.RoleClient}
	m.promoted = append(m.promoted, id)
	return nil
}

func (m *memClients) Relink(_ context.Context, id, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return apperrors.NotFoundf("client %s not found", id)
	}
	c.UID = uid
	m.relinked = append(m.relinked, id)
	return nil
}

func (m *memClients) DeleteMany(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.items, id)
		m.deleted = append(m.deleted, id)
	}
	return nil
}

func (m *memClients) List(_ context.Context, _ int, _ string) ([]*client.Client, string, error) {
	return m.find(func(*client.Client) bool { return true }), "", nil
}

func (m *memClients) DeleteRelated(_ context.Context, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relatedKeys = append(m.relatedKeys, keys...)
	return m.relatedCount, m.relatedErr
}

// memMessages is an in-memory MessageStore.
type memMessages struct {
	mu    sync.Mutex
	seq   int
	items map[string]*communication.Message
}

func newMemMessages() *memMessages {
	return &memMessages{items: map[string]*communication.Message{}}
}

func (m *memMessages) Create(_ context.Context, msg *communication.Message) (*communication.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	cp := *msg
	cp.ID = fmt.Sprintf("msg-%d", m.seq)
	m.items[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memMessages) SetDelivery(_ context.Context, id string, status communication.MessageStatus, externalID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.items[id]
	if !ok {
		return apperrors.NotFoundf("message %s not found", id)
	}
	msg.Status, msg.ExternalID, msg.Error = status, externalID, errMsg
	return nil
}

func (m *memMessages) ListByClient(_ context.Context, clientID string, _ int, _ string) (*communication.MessagePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page := &communication.MessagePage{}
	for _, msg := range m.items {
		if msg.ClientID == clientID {
			cp := *msg
			page.Messages = append(page.Messages, &cp)
		}
	}
	return page, nil
}

func (m *memMessages) get(id string) *communication.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.items[id]
	return &cp
}

// memConversations records conversation updates.
type memConversations struct {
	mu        sync.Mutex
	updates   []communication.ConversationUpdate
	read      []string
	deleted   []string
	deleteErr error
}

func (m *memConversations) Record(_ context.Context, u communication.ConversationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, u)
	return nil
}

func (m *memConversations) List(_ context.Context, _ int, _ string) ([]*communication.Conversation, string, error) {
	return nil, "", nil
}

func (m *memConversations) MarkRead(_ context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.read = append(m.read, phone)
	return nil
}

func (m *memConversations) Delete(_ context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, phone)
	return m.deleteErr
}

// memAutomation is an in-memory AutomationStore.
type memAutomation struct {
	mu     sync.Mutex
	config *automation.Config
	getErr error
	logs   []automation.RunLog
}

func (m *memAutomation) GetConfig(_ context.Context) (*automation.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.config == nil {
		return nil, nil
	}
	cp := *m.config
	return &cp, nil
}

func (m *memAutomation) SaveConfig(_ context.Context, c automation.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.LastUpdated = time.Now()
	m.config = &c
	return nil
}

func (m *memAutomation) DeleteConfig(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = nil
	return nil
}

func (m *memAutomation) InsertLog(_ context.Context, entry automation.RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memAutomation) logCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

// fakeSender records template requests and fails for the listed clients.
type fakeSender struct {
	mu       sync.Mutex
	requests []communication.SendTemplateRequest
	failFor  map[string]bool
}

func (f *fakeSender) SendTemplate(_ context.Context, req communication.SendTemplateRequest) (*communication.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.failFor[req.ClientID] {
		return nil, apperrors.Unavailablef("message delivery failed: %v", errBoom)
	}
	return &communication.Message{ClientID: req.ClientID, Template: req.TemplateName}, nil
}

type sentTemplate struct {
	to         string
	contentSID string
	variables  map[string]string
}

// fakeGateway records what would have reached the provider.
type fakeGateway struct {
	mu        sync.Mutex
	templates []sentTemplate
	texts     []string
	err       error
}

func (g *fakeGateway) SendTemplate(_ context.Context, to, contentSID string, variables map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.templates = append(g.templates, sentTemplate{to: to, contentSID: contentSID, variables: variables})
	return fmt.Sprintf("SM%d", len(g.templates)), nil
}

func (g *fakeGateway) SendText(_ context.Context, to, body string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.texts = append(g.texts, to+": "+body)
	return fmt.Sprintf("SMtext%d", len(g.texts)), nil
}

type fakeLock struct {
	mu      sync.Mutex
	granted bool
	err     error
	keys    []string
}

func (l *fakeLock) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return l.granted, l.err
}

type fakeIdentities struct {
	removed []string
	err     error
}

func (f *fakeIdentities) DeleteIdentity(_ context.Context, uid string) error {
	f.removed = append(f.removed, uid)
	return f.err
}
