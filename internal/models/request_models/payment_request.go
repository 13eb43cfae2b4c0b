package request_models

type CreateCustomerRequest struct {
	BillingFrequency string            `json:"billingFrequency" binding:"required,oneof=weekly fortnightly monthly"`
	UserEmail        string            `json:"userEmail" binding:"required,email"`
	UserName         string            `json:"userName"`
	ContainerID      string            `json:"containerId"`
	SiteID           string            `json:"siteId"`
	UserAttributes   map[string]string `json:"userAttributes"`
}

// UserID prefers the identity provider's subject attribute.
func (r *CreateCustomerRequest) UserID() string {
	if r.UserAttributes == nil {
		return ""
	}
	if sub := r.UserAttributes["sub"]; sub != "" {
		return sub
	}
	return r.UserAttributes["userId"]
}
