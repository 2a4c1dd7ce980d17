package handler

import "github.com/erp/shopsync/internal/interfaces/http/dto"

// APIResponse documents the envelope every JSON endpoint of the sync API
// returns. Handlers build it through dto.NewSuccessResponse; the generic
// form only exists so annotations can name the payload type.
// @Description Sync API envelope with a typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success" example:"true"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse documents a failed call. Webhook deliveries get the same
// shape so the shop sees the request id on 401 and 503 replies.
// @Description Sync API error envelope
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error"`
}
