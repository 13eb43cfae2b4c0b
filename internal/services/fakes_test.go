package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"storehere/internal/infra"
	"storehere/internal/models/billing_models"
	"storehere/internal/models/db_models"
	"storehere/internal/repositories"
	mem "storehere/pkg/memcache"
	"storehere/pkg/resilience"
	"storehere/pkg/utils"
)

// memContainers is an in-memory container table with the same conditional
// write rules as the DynamoDB repository.
type memContainers struct {
	mu    sync.Mutex
	items map[string]*db_models.Container
}

func newMemContainers() *memContainers {
	return &memContainers{items: map[string]*db_models.Container{}}
}

func containerKey(siteID, number string) string { return siteID + "/" + number }

func cloneContainer(c *db_models.Container) *db_models.Container {
	cp := *c
	return &cp
}

func (m *memContainers) seed(c *db_models.Container) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Version = 1
	c.Refresh()
	m.items[containerKey(c.SiteID, c.Number)] = cloneContainer(c)
}

func (m *memContainers) stored(siteID, number string) *db_models.Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.items[containerKey(siteID, number)]; ok {
		return cloneContainer(c)
	}
	return nil
}

func (m *memContainers) Get(_ context.Context, siteID, number string) (*db_models.Container, error) {
	return m.stored(siteID, number), nil
}

func (m *memContainers) ListBySite(_ context.Context, siteID string) ([]*db_models.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db_models.Container
	for _, c := range m.items {
		if c.SiteID == siteID {
			out = append(out, cloneContainer(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memContainers) ListAll(_ context.Context) ([]*db_models.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db_models.Container
	for _, c := range m.items {
		out = append(out, cloneContainer(c))
	}
	sort.Slice(out, func(i, j int) bool { return containerKey(out[i].SiteID, out[i].Number) < containerKey(out[j].SiteID, out[j].Number) })
	return out, nil
}

func (m *memContainers) Create(_ context.Context, c *db_models.Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := containerKey(c.SiteID, c.Number)
	if _, ok := m.items[k]; ok {
		return utils.ErrAlreadyExists
	}
	c.Version = 1
	c.Refresh()
	m.items[k] = cloneContainer(c)
	return nil
}

func (m *memContainers) Claim(_ context.Context, c *db_models.Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := containerKey(c.SiteID, c.Number)
	stored, ok := m.items[k]
	if !ok || stored.Status != db_models.StatusAvailable || stored.Version != c.Version {
		return utils.ErrContainerUnavailable
	}
	c.Refresh()
	c.Version++
	m.items[k] = cloneContainer(c)
	return nil
}

func (m *memContainers) Save(_ context.Context, c *db_models.Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := containerKey(c.SiteID, c.Number)
	stored, ok := m.items[k]
	if !ok || stored.Version != c.Version {
		return utils.ErrConflict
	}
	c.Refresh()
	c.Version++
	m.items[k] = cloneContainer(c)
	return nil
}

func (m *memContainers) find(match func(*db_models.Container) bool) *db_models.Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if match(c) {
			return cloneContainer(c)
		}
	}
	return nil
}

func (m *memContainers) FindByBillingCustomer(_ context.Context, id string) (*db_models.Container, error) {
	if id == "" {
		return nil, nil
	}
	return m.find(func(c *db_models.Container) bool { return c.BillingCustomerID == id }), nil
}

func (m *memContainers) FindBySubscription(_ context.Context, id string) (*db_models.Container, error) {
	if id == "" {
		return nil, nil
	}
	return m.find(func(c *db_models.Container) bool { return c.BillingSubscriptionID == id }), nil
}

func (m *memContainers) FindByEmail(_ context.Context, email string) (*db_models.Container, error) {
	email = db_models.NormalizeEmail(email)
	return m.find(func(c *db_models.Container) bool { return email != "" && c.CustomerEmail == email }), nil
}

func (m *memContainers) claimedBy(customerID string) []*db_models.Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db_models.Container
	for _, c := range m.items {
		if c.BillingCustomerID == customerID {
			out = append(out, cloneContainer(c))
		}
	}
	return out
}

type memSites struct {
	mu    sync.Mutex
	sites []*db_models.Site
}

func (m *memSites) Get(_ context.Context, id string) (*db_models.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sites {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSites) List(_ context.Context) ([]*db_models.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*db_models.Site, len(m.sites))
	copy(out, m.sites)
	return out, nil
}

func (m *memSites) Create(_ context.Context, site *db_models.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sites {
		if s.ID == site.ID {
			return utils.ErrAlreadyExists
		}
	}
	m.sites = append(m.sites, site)
	return nil
}

func (m *memSites) Save(_ context.Context, site *db_models.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sites {
		if s.ID == site.ID {
			m.sites[i] = site
			return nil
		}
	}
	m.sites = append(m.sites, site)
	return nil
}

type memWaitlist struct {
	mu      sync.Mutex
	entries map[string]*db_models.WaitingListEntry
	order   []string
}

func newMemWaitlist() *memWaitlist {
	return &memWaitlist{entries: map[string]*db_models.WaitingListEntry{}}
}

func (m *memWaitlist) Add(_ context.Context, e *db_models.WaitingListEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.Email]; ok {
		return false, nil
	}
	cp := *e
	m.entries[e.Email] = &cp
	m.order = append(m.order, e.Email)
	return true, nil
}

func (m *memWaitlist) Save(_ context.Context, e *db_models.WaitingListEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.Email]; !ok {
		m.order = append(m.order, e.Email)
	}
	cp := *e
	m.entries[e.Email] = &cp
	return nil
}

func (m *memWaitlist) Get(_ context.Context, email string) (*db_models.WaitingListEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[db_models.NormalizeEmail(email)]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *memWaitlist) List(_ context.Context) ([]*db_models.WaitingListEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db_models.WaitingListEntry
	for _, email := range m.order {
		cp := *m.entries[email]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedDate.Before(out[j].JoinedDate) })
	return out, nil
}

func (m *memWaitlist) OldestWaiting(ctx context.Context) (*db_models.WaitingListEntry, error) {
	entries, _ := m.List(ctx)
	for _, e := range entries {
		if e.Status == db_models.WaitingStatusWaiting {
			return e, nil
		}
	}
	return nil, nil
}

type memEvents struct {
	mu      sync.Mutex
	records map[string]*db_models.ProcessedEvent
	failAll bool
}

func newMemEvents() *memEvents {
	return &memEvents{records: map[string]*db_models.ProcessedEvent{}}
}

func (m *memEvents) Begin(_ context.Context, id, eventType string, now time.Time) (repositories.BeginResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return 0, errors.New("ledger down")
	}
	if rec, ok := m.records[id]; ok {
		if rec.State == db_models.EventStateCompleted {
			return repositories.BeginDuplicate, nil
		}
		return repositories.BeginInFlight, nil
	}
	m.records[id] = &db_models.ProcessedEvent{EventID: id, EventType: eventType, State: db_models.EventStateProcessing, ReceivedAt: now}
	return repositories.BeginAcquired, nil
}

func (m *memEvents) Complete(_ context.Context, id, outcome string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		rec.State = db_models.EventStateCompleted
		rec.Outcome = outcome
	}
	return nil
}

func (m *memEvents) outcome(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		return rec.Outcome
	}
	return ""
}

// fakeBilling mimics the provider, including idempotency-keyed subscription
// creation.
type fakeBilling struct {
	mu            sync.Mutex
	customers     map[string]*billing_models.Customer
	invoices      map[string]*billing_models.Invoice
	paidInvoices  map[string][]billing_models.Invoice
	subsByKey     map[string]*billing_models.Subscription
	subs          map[string]*billing_models.Subscription
	subParams     []billing_models.SubscriptionParams
	sessions      []billing_models.CheckoutSessionParams
	createdCust   int
	attachErr     error
	cards         []billing_models.PaymentMethod
	invoiceErr    error
	verifyErr     error
	intentMethods map[string]string
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{
		customers:     map[string]*billing_models.Customer{},
		invoices:      map[string]*billing_models.Invoice{},
		paidInvoices:  map[string][]billing_models.Invoice{},
		subsByKey:     map[string]*billing_models.Subscription{},
		subs:          map[string]*billing_models.Subscription{},
		intentMethods: map[string]string{},
	}
}

func (f *fakeBilling) FindCustomerByEmail(_ context.Context, email string) (*billing_models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.customers {
		if c.Email == email {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeBilling) CreateCustomer(_ context.Context, email, name string, md map[string]string) (*billing_models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdCust++
	c := &billing_models.Customer{ID: fmt.Sprintf("cus_new%d", f.createdCust), Email: email, Name: name, Metadata: md}
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeBilling) GetCustomer(_ context.Context, id string) (*billing_models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.customers[id]; ok {
		return c, nil
	}
	return nil, errors.New("no such customer")
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, p billing_models.CheckoutSessionParams) (*billing_models.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, p)
	return &billing_models.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil
}

func (f *fakeBilling) PaymentMethodForIntent(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intentMethods[id], nil
}

func (f *fakeBilling) AttachPaymentMethod(context.Context, string, string) error {
	return f.attachErr
}

func (f *fakeBilling) ListCardPaymentMethods(context.Context, string) ([]billing_models.PaymentMethod, error) {
	return f.cards, nil
}

func (f *fakeBilling) CreateSubscription(_ context.Context, p billing_models.SubscriptionParams) (*billing_models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subsByKey[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return sub, nil
	}
	f.subParams = append(f.subParams, p)
	end := p.TrialEnd
	sub := &billing_models.Subscription{ID: fmt.Sprintf("sub_%d", len(f.subParams)), CustomerID: p.CustomerID, Status: "trialing", TrialEnd: &end}
	f.subsByKey[p.IdempotencyKey] = sub
	f.subs[sub.ID] = sub
	return sub, nil
}

func (f *fakeBilling) GetSubscription(_ context.Context, id string) (*billing_models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		return sub, nil
	}
	return nil, errors.New("no such subscription")
}

func (f *fakeBilling) GetInvoice(_ context.Context, id string) (*billing_models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	if inv, ok := f.invoices[id]; ok {
		return inv, nil
	}
	return nil, errors.New("no such invoice")
}

func (f *fakeBilling) LatestInvoice(_ context.Context, customerID string) (*billing_models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invoices {
		if inv.CustomerID == customerID {
			return inv, nil
		}
	}
	return nil, nil
}

func (f *fakeBilling) ListPaidInvoices(_ context.Context, subID string) ([]billing_models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paidInvoices[subID], nil
}

func (f *fakeBilling) VerifyWebhook([]byte, string) error { return f.verifyErr }

func (f *fakeBilling) subscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subParams)
}

type sentMail struct {
	Kind string
	To   string
	Data any
}

type fakeMail struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMail) record(kind, to string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{Kind: kind, To: to, Data: data})
	return f.err
}

func (f *fakeMail) SendWelcome(_ context.Context, m WelcomeMail) error {
	return f.record("welcome", m.To, m)
}

func (f *fakeMail) SendPaymentConfirmation(_ context.Context, m PaymentMail) error {
	return f.record("confirmation", m.To, m)
}

func (f *fakeMail) SendPaymentFailed(_ context.Context, m PaymentMail) error {
	return f.record("failed", m.To, m)
}

func (f *fakeMail) SendWaitlistPaid(_ context.Context, to, _ string) error {
	return f.record("waitlist_paid", to, nil)
}

func (f *fakeMail) SendContainerAvailable(_ context.Context, to, _ string) error {
	return f.record("container_available", to, nil)
}

func (f *fakeMail) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		out = append(out, m.Kind)
	}
	return out
}

func (f *fakeMail) count(kind string) int {
	n := 0
	for _, k := range f.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type storedObject struct {
	Bucket      string
	Key         string
	Body        []byte
	ContentType string
	Metadata    map[string]string
	Modified    time.Time
}

type fakeStore struct {
	mu      sync.Mutex
	objects []storedObject
	putErr  error
}

func (f *fakeStore) Put(_ context.Context, bucket, key string, body []byte, contentType string, md map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects = append(f.objects, storedObject{bucket, key, body, contentType, md, time.Now()})
	return nil
}

func (f *fakeStore) List(_ context.Context, bucket, prefix string) ([]infra.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []infra.ObjectInfo
	for _, o := range f.objects {
		if o.Bucket == bucket && strings.HasPrefix(o.Key, prefix) {
			out = append(out, infra.ObjectInfo{Key: o.Key, Size: int64(len(o.Body)), LastModified: o.Modified})
		}
	}
	return out, nil
}

func (f *fakeStore) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://" + bucket + ".example/" + key + "?signed", nil
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, o := range f.objects {
		out = append(out, o.Key)
	}
	return out
}

type fakeDownloader struct {
	mu    sync.Mutex
	body  []byte
	err   error
	calls int
}

func (f *fakeDownloader) Download(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.body, f.err
}

func testRunner(t *testing.T) *resilience.Runner {
	return resilience.New(resilience.Config{
		MaxAttempts:      2,
		InitialInterval:  time.Millisecond,
		MaxInterval:      time.Millisecond,
		FailureThreshold: 100,
		OpenTimeout:      time.Second,
	}, zaptest.NewLogger(t))
}

func testBillingConfig() BillingConfig {
	return BillingConfig{
		Currency:          "aud",
		PrepaidRentCents:  34000,
		SecurityBondCents: 30000,
		PrepaidWeeks:      4,
		PriceIDs: map[string]string{
			"weekly":      "price_weekly",
			"fortnightly": "price_fortnightly",
			"monthly":     "price_monthly",
		},
		SuccessURL: "https://storehere.example/success",
		CancelURL:  "https://storehere.example/cancel",
		AppBaseURL: "https://storehere.example",
	}
}

// harness wires the real reconciliation services over in-memory fakes.
type harness struct {
	containers *memContainers
	sites      *memSites
	waitRepo   *memWaitlist
	events     *memEvents
	billing    *fakeBilling
	mail       *fakeMail
	store      *fakeStore
	downloader *fakeDownloader

	assignment IAssignmentService
	archive    IInvoiceArchiveService
	waitlist   IWaitingListService
	initial    IInitialPaymentService
	recurring  IRecurringPaymentService
	webhook    IWebhookService
}

func newHarness(t *testing.T) *harness {
	logger := zaptest.NewLogger(t)
	h := &harness{
		containers: newMemContainers(),
		sites:      &memSites{},
		waitRepo:   newMemWaitlist(),
		events:     newMemEvents(),
		billing:    newFakeBilling(),
		mail:       &fakeMail{},
		store:      &fakeStore{},
		downloader: &fakeDownloader{body: []byte("%PDF-1.7 invoice")},
	}
	runner := testRunner(t)
	cfg := testBillingConfig()

	h.assignment = NewAssignmentService(h.sites, h.containers, logger)
	h.archive = NewInvoiceArchiveService(h.billing, h.store, h.downloader, runner, "storehere-invoices", logger)
	h.waitlist = NewWaitingListService(h.waitRepo, h.mail, logger)
	h.initial = NewInitialPaymentService(h.assignment, h.billing, h.archive, h.mail, h.sites, h.containers, h.waitRepo, cfg, logger)
	h.recurring = NewRecurringPaymentService(h.billing, h.archive, h.mail, h.containers, h.waitlist, logger)
	h.webhook = NewWebhookService(h.events, mem.NewProcessedEvents(100), h.billing, h.initial, h.recurring,
		WebhookConfig{Deadline: 5 * time.Second, Retention: time.Hour}, logger)
	return h
}

func (h *harness) addSite(t *testing.T, name string, created time.Time, numbers ...string) *db_models.Site {
	site := db_models.NewSite(name, "1 Test Rd", created)
	require.NoError(t, h.sites.Create(context.Background(), site))
	for _, n := range numbers {
		h.containers.seed(db_models.NewContainer(site.ID, n))
	}
	return site
}

func newSiteWithPrices(prices map[string]string) *db_models.Site {
	site := db_models.NewSite("Edwardstown", "1 Test Rd", time.Now())
	site.PriceIDs = prices
	return site
}
