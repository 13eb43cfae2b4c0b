package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"storehere/internal/models/billing_models"
	"storehere/internal/models/db_models"
	"storehere/internal/models/request_models"
	"storehere/internal/models/response_models"
	"storehere/internal/services"
	"storehere/pkg/middleware"
	"storehere/pkg/utils"
)

var jwtSecret = []byte("controller-test-secret")

type stubPayments struct {
	resp *response_models.CreateCustomerResponse
	err  error
	got  request_models.CreateCustomerRequest
}

func (s *stubPayments) CreateCheckout(_ context.Context, req request_models.CreateCustomerRequest) (*response_models.CreateCustomerResponse, error) {
	s.got = req
	return s.resp, s.err
}

type stubWebhooks struct {
	verifyErr  error
	dispatched []*billing_models.Event
	err        error
}

func (s *stubWebhooks) Verify([]byte, string) error { return s.verifyErr }

func (s *stubWebhooks) Dispatch(_ context.Context, e *billing_models.Event) (services.WebhookResult, error) {
	s.dispatched = append(s.dispatched, e)
	return services.WebhookResult{EventID: e.ID, Type: e.Type, Outcome: services.OutcomeFailed}, s.err
}

type stubContainers struct {
	services.IContainerService
	mine      *db_models.Container
	available *response_models.AvailabilityResponse
	released  string
}

func (s *stubContainers) MyContainer(context.Context, string) (*db_models.Container, error) {
	if s.mine == nil {
		return nil, utils.ErrContainerNotFound
	}
	return s.mine, nil
}

func (s *stubContainers) Availability(context.Context) (*response_models.AvailabilityResponse, error) {
	return s.available, nil
}

func (s *stubContainers) Release(_ context.Context, siteID, number string) (*db_models.Container, error) {
	s.released = siteID + "/" + number
	return db_models.NewContainer(siteID, number), nil
}

type stubDocuments struct {
	uploadedBy string
	listedFor  string
}

func (s *stubDocuments) UploadAgreement(_ context.Context, userID string, body []byte) (string, error) {
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		return "", utils.ErrInvalidInput
	}
	s.uploadedBy = userID
	return "agreements/" + userID + "_1.pdf", nil
}

func (s *stubDocuments) ListAgreements(context.Context) ([]response_models.DocumentResponse, error) {
	return nil, nil
}

func (s *stubDocuments) ListInvoices(_ context.Context, customerID string) ([]response_models.DocumentResponse, error) {
	s.listedFor = customerID
	return []response_models.DocumentResponse{{Key: "invoices/" + customerID + "/2025-07-14_SH-1.pdf"}}, nil
}

type stubWaitingList struct {
	joined map[string]bool
}

func (s *stubWaitingList) Join(_ context.Context, email, name string) (*db_models.WaitingListEntry, bool, error) {
	if s.joined == nil {
		s.joined = map[string]bool{}
	}
	added := !s.joined[email]
	s.joined[email] = true
	return db_models.NewWaitingListEntry(email, name, db_models.WaitingStatusWaiting, time.Now()), added, nil
}

func (s *stubWaitingList) List(context.Context) ([]*db_models.WaitingListEntry, error) { return nil, nil }

func (s *stubWaitingList) NotifyNext(context.Context) error { return nil }

type testDeps struct {
	payments   *stubPayments
	webhooks   *stubWebhooks
	containers *stubContainers
	documents  *stubDocuments
	waitlist   *stubWaitingList
}

func newTestRouter(t *testing.T) (*gin.Engine, *testDeps) {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)
	deps := &testDeps{
		payments:   &stubPayments{},
		webhooks:   &stubWebhooks{},
		containers: &stubContainers{},
		documents:  &stubDocuments{},
		waitlist:   &stubWaitingList{},
	}
	r := gin.New()
	r.Use(middleware.TraceIDMiddleware())
	RegisterRoutes(r, jwtSecret, Handlers{
		Payment:     NewPaymentController(deps.payments, logger),
		Webhook:     NewWebhookController(deps.webhooks, logger),
		Container:   NewContainerController(deps.containers, logger),
		WaitingList: NewWaitingListController(deps.waitlist, logger),
		Document:    NewDocumentController(deps.documents, deps.containers, logger),
	})
	return r, deps
}

func token(t *testing.T, userID, email, role string) string {
	tok, err := utils.CreateToken(jwtSecret, userID, email, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateCustomer(t *testing.T) {
	valid := `{"billingFrequency":"weekly","userEmail":"jo@example.com","userName":"Jo","containerId":"A01","siteId":"edwardstown","userAttributes":{"sub":"u-1"}}`

	t.Run("returns session url", func(t *testing.T) {
		r, deps := newTestRouter(t)
		deps.payments.resp = &response_models.CreateCustomerResponse{SessionURL: "https://checkout.stripe.com/c/cs_1", CustomerID: "cus_1"}

		w := do(r, jsonRequest(http.MethodPost, "/create-customer", valid))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"sessionUrl":"https://checkout.stripe.com/c/cs_1","customerId":"cus_1"}`, w.Body.String())
		assert.Equal(t, "u-1", deps.payments.got.UserID())
	})

	t.Run("validation", func(t *testing.T) {
		r, _ := newTestRouter(t)
		w := do(r, jsonRequest(http.MethodPost, "/create-customer", `{"billingFrequency":"daily","userEmail":"nope"}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"error"`)
	})

	t.Run("billing failure", func(t *testing.T) {
		r, deps := newTestRouter(t)
		deps.payments.err = errors.New("stripe: connection refused")

		w := do(r, jsonRequest(http.MethodPost, "/create-customer", valid))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"stripe: connection refused"}`, w.Body.String())
	})
}

func TestHandleWebhook(t *testing.T) {
	event := `{"id":"evt_123","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`

	t.Run("acknowledges even when processing fails", func(t *testing.T) {
		r, deps := newTestRouter(t)
		deps.webhooks.err = errors.New("dynamo throttled")

		w := do(r, jsonRequest(http.MethodPost, "/webhook", event))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":true}`, w.Body.String())
		require.Len(t, deps.webhooks.dispatched, 1)
		assert.Equal(t, "evt_123", deps.webhooks.dispatched[0].ID)
	})

	t.Run("bad signature", func(t *testing.T) {
		r, deps := newTestRouter(t)
		deps.webhooks.verifyErr = utils.ErrInvalidInput

		w := do(r, jsonRequest(http.MethodPost, "/webhook", event))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, deps.webhooks.dispatched)
	})

	t.Run("malformed payload", func(t *testing.T) {
		r, deps := newTestRouter(t)
		for _, body := range []string{`{not json`, `{"type":"invoice.paid"}`} {
			w := do(r, jsonRequest(http.MethodPost, "/webhook", body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		}
		assert.Empty(t, deps.webhooks.dispatched)
	})
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	r, deps := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sites/edwardstown/containers/A01/release", nil)
	req.Header.Set("Authorization", token(t, "u-1", "jo@example.com", utils.RoleCustomer))
	assert.Equal(t, http.StatusForbidden, do(r, req).Code)
	assert.Empty(t, deps.containers.released)

	req = httptest.NewRequest(http.MethodPost, "/api/sites/edwardstown/containers/A01/release", nil)
	req.Header.Set("Authorization", token(t, "ops", "ops@example.com", utils.RoleAdmin))
	assert.Equal(t, http.StatusOK, do(r, req).Code)
	assert.Equal(t, "edwardstown/A01", deps.containers.released)

	req = httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)
}

func TestAvailabilityIsPublic(t *testing.T) {
	r, deps := newTestRouter(t)
	deps.containers.available = &response_models.AvailabilityResponse{WaitingList: true}

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/availability", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data response_models.AvailabilityResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.WaitingList)
}

func TestMyContainer(t *testing.T) {
	r, deps := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/me/container", nil)
	req.Header.Set("Authorization", token(t, "u-1", "jo@example.com", utils.RoleCustomer))
	assert.Equal(t, http.StatusNotFound, do(r, req).Code)

	deps.containers.mine = db_models.NewContainer("edwardstown", "A01")
	req = httptest.NewRequest(http.MethodGet, "/api/me/container", nil)
	req.Header.Set("Authorization", token(t, "u-1", "jo@example.com", utils.RoleCustomer))
	w := do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"number":"A01"`)
}

func TestListInvoices_OwnerOrAdmin(t *testing.T) {
	r, deps := newTestRouter(t)
	mine := db_models.NewContainer("edwardstown", "A01")
	mine.BillingCustomerID = "cus_1"
	deps.containers.mine = mine

	tests := []struct {
		name   string
		role   string
		query  string
		status int
	}{
		{"owner", utils.RoleCustomer, "cus_1", http.StatusOK},
		{"other customer", utils.RoleCustomer, "cus_2", http.StatusForbidden},
		{"admin", utils.RoleAdmin, "cus_2", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/documents/invoices?customerId="+tt.query, nil)
			req.Header.Set("Authorization", token(t, "u-1", "jo@example.com", tt.role))
			assert.Equal(t, tt.status, do(r, req).Code)
		})
	}
}

func TestUploadAgreement(t *testing.T) {
	r, deps := newTestRouter(t)

	upload := func(content string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "agreement.pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/upload-agreement", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", token(t, "u-7", "jo@example.com", utils.RoleCustomer))
		return do(r, req)
	}

	w := upload("%PDF-1.4 signed")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u-7", deps.documents.uploadedBy)
	assert.Contains(t, w.Body.String(), "agreements/u-7_1.pdf")

	assert.Equal(t, http.StatusBadRequest, upload("hello").Code)
}

func TestJoinWaitingList(t *testing.T) {
	r, _ := newTestRouter(t)
	body := `{"email":"sam@example.com","name":"Sam"}`

	assert.Equal(t, http.StatusCreated, do(r, jsonRequest(http.MethodPost, "/api/waiting-list", body)).Code)
	assert.Equal(t, http.StatusOK, do(r, jsonRequest(http.MethodPost, "/api/waiting-list", body)).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, jsonRequest(http.MethodPost, "/api/waiting-list", `{"email":"x"}`)).Code)
}
