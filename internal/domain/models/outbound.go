package models

// OutboundMessageRequest is an operator message pushed through the API. An
// empty To addresses the farm manager.
type OutboundMessageRequest struct {
	To         string `json:"to"`
	Message    string `json:"message" binding:"required"`
	PreviewURL bool   `json:"preview_url"`
}
