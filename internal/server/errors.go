// internal/server/errors.go
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"mcp-meal-vision/internal/analysis"
	"mcp-meal-vision/internal/quota"
)

// errorBody is the JSON shape of every failed tool call.
type errorBody struct {
	Error          string        `json:"error"`
	Kind           string        `json:"kind,omitempty"`
	Status         int           `json:"status"`
	Message        string        `json:"message"`
	ProviderStatus int           `json:"provider_status,omitempty"`
	Attempts       int           `json:"attempts,omitempty"`
	Quota          *quota.Status `json:"quota,omitempty"`
}

// invalidParams marks bad tool arguments.
type invalidParams struct {
	msg string
}

func (e *invalidParams) Error() string {
	return e.msg
}

func paramError(format string, args ...interface{}) error {
	return &invalidParams{msg: fmt.Sprintf(format, args...)}
}

// quotaError carries the user's quota alongside ErrDailyLimitReached.
type quotaError struct {
	status quota.Status
}

func (e *quotaError) Error() string {
	return quota.ErrDailyLimitReached.Error()
}

func (e *quotaError) Unwrap() error {
	return quota.ErrDailyLimitReached
}

var kindStatus = map[analysis.Kind]int{
	analysis.KindInvalidRequest:     http.StatusBadRequest,
	analysis.KindRejected:           http.StatusUnprocessableEntity,
	analysis.KindInvalidSchema:      http.StatusUnprocessableEntity,
	analysis.KindTruncated:          http.StatusUnprocessableEntity,
	analysis.KindMalformed:          http.StatusUnprocessableEntity,
	analysis.KindProvider:           http.StatusBadGateway,
	analysis.KindNetwork:            http.StatusBadGateway,
	analysis.KindTimeout:            http.StatusGatewayTimeout,
	analysis.KindMissingCredentials: http.StatusServiceUnavailable,
	analysis.KindCanceled:           499,
}

var kindGuidance = map[analysis.Kind]string{
	analysis.KindTimeout:            "The analysis took too long. Please try again.",
	analysis.KindNetwork:            "Could not reach the analysis service. Check your connection and try again.",
	analysis.KindProvider:           "The analysis service returned an error. Please try again later.",
	analysis.KindTruncated:          "The analysis was incomplete. Try a photo with fewer items.",
	analysis.KindRejected:           "This photo could not be analyzed. Please use a photo of food.",
	analysis.KindMalformed:          "The analysis result could not be read. Please try again.",
	analysis.KindInvalidSchema:      "No food could be recognized in this photo. Try a clearer, well-lit photo.",
	analysis.KindMissingCredentials: "Photo analysis is not configured on this server.",
	analysis.KindInvalidRequest:     "The request is invalid.",
	analysis.KindCanceled:           "The analysis was canceled.",
}

// StatusFor maps an analysis error kind to the HTTP status returned to clients.
func StatusFor(kind analysis.Kind) int {
	if code, ok := kindStatus[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func (s *MealVisionServer) writeError(c *gin.Context, toolName string, err error) {
	body := s.logToolError(toolName, err)
	c.JSON(body.Status, body)
}

// errorResult reports a failed MCP tool call in-band, so the client sees the
// same body as the JSON endpoint instead of a bare JSON-RPC error.
func (s *MealVisionServer) errorResult(toolName string, err error) *protocol.CallToolResult {
	body := s.logToolError(toolName, err)
	text, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		text = []byte(body.Message)
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{protocol.TextContent{Type: "text", Text: string(text)}},
		IsError: true,
	}
}

func (s *MealVisionServer) logToolError(toolName string, err error) errorBody {
	body := errorFor(err)
	entry := s.logger.WithFields(log.Fields{
		"tool":   toolName,
		"error":  body.Error,
		"status": body.Status,
	})
	if body.Status >= http.StatusInternalServerError {
		entry.WithError(err).Error("tool.failed")
	} else {
		entry.WithError(err).Warn("tool.failed")
	}
	return body
}

func errorFor(err error) errorBody {
	var (
		params      *invalidParams
		quotaErr    *quotaError
		analysisErr *analysis.Error
	)
	switch {
	case errors.As(err, &params):
		return errorBody{
			Error:   "invalid_params",
			Status:  http.StatusBadRequest,
			Message: params.msg,
		}
	case errors.As(err, &quotaErr):
		st := quotaErr.status
		return errorBody{
			Error:   "daily_limit_reached",
			Status:  http.StatusTooManyRequests,
			Message: fmt.Sprintf("You have used all %d free analyses for today. Upgrade to premium for unlimited analyses.", st.Limit),
			Quota:   &st,
		}
	case errors.As(err, &analysisErr):
		body := errorBody{
			Error:    "analysis_failed",
			Kind:     string(analysisErr.Kind),
			Status:   StatusFor(analysisErr.Kind),
			Message:  kindGuidance[analysisErr.Kind],
			Attempts: analysisErr.Attempts,
		}
		if analysisErr.Kind == analysis.KindProvider {
			body.ProviderStatus = analysisErr.Status
		}
		if analysisErr.Kind == analysis.KindInvalidRequest {
			body.Error = "invalid_params"
			body.Message = analysisErr.Message
		}
		return body
	default:
		return errorBody{
			Error:   "internal_error",
			Status:  http.StatusInternalServerError,
			Message: "Something went wrong. Please try again.",
		}
	}
}
