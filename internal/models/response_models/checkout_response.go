package response_models

type CreateCustomerResponse struct {
	SessionURL string `json:"sessionUrl"`
	CustomerID string `json:"customerId"`
}

type WebhookAck struct {
	Received bool `json:"received"`
}
