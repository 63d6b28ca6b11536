package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/campaign"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/charter"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/registry"
)

type instructionPayload struct {
	Kind   string              `json:"kind"`
	Detail hostenv.Instruction `json:"detail"`
}

type resultPayload struct {
	Status       hostenv.ResponseStatus `json:"status"`
	Message      string                 `json:"message"`
	Data         map[string]any         `json:"data,omitempty"`
	Instructions []instructionPayload   `json:"instructions,omitempty"`
}

func newResultPayload(result hostenv.Result) resultPayload {
	payload := resultPayload{Status: result.Status, Message: result.Message, Data: result.Data}
	for _, instruction := range result.Instructions {
		payload.Instructions = append(payload.Instructions, instructionPayload{Kind: instruction.Kind(), Detail: instruction})
	}
	return payload
}

type codedError interface {
	Code() string
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, campaign.ErrUnauthorized), errors.Is(err, registry.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, campaign.ErrCampaignNotFound), errors.Is(err, registry.ErrRegistryNotFound), errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, charter.ErrValidation),
		errors.Is(err, registry.ErrInvalidConfig),
		errors.Is(err, campaign.ErrInvalidCommand),
		errors.Is(err, ledger.ErrInvalidPageSize),
		errors.Is(err, amount.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrCreationInFlight),
		errors.Is(err, campaign.ErrCampaignExists),
		errors.Is(err, campaign.ErrTokenConflict),
		errors.Is(err, campaign.ErrUnknownTokenRequest):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	status := statusForError(err)
	code := "internal_error"
	var coded codedError
	if errors.As(err, &coded) {
		code = coded.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("operation", operation), zap.String("code", code), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.String("operation", operation), zap.String("code", code), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code})
}

func (h *httpHandler) respondResult(c *gin.Context, operation string, result hostenv.Result, err error) {
	if err != nil {
		h.respondError(c, operation, err)
		return
	}
	c.JSON(http.StatusOK, newResultPayload(result))
}
