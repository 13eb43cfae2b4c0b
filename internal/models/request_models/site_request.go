package request_models

type CreateSiteRequest struct {
	Name    string `json:"name" binding:"required,min=2,max=80"`
	Address string `json:"address" binding:"required"`
}

type CreateContainerRequest struct {
	Number string `json:"number" binding:"required,alphanum,max=10"`
	Notes  string `json:"notes"`
}

type JoinWaitingListRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
}
