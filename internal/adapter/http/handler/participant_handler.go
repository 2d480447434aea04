package handler

import (
	"wallet-settlement/internal/adapter/http/dto"
	"wallet-settlement/internal/core/ports"
	"wallet-settlement/pkg/apperror"
	"wallet-settlement/pkg/response"

	"github.com/gin-gonic/gin"
)

// ParticipantHandler serves the participant directory.
type ParticipantHandler struct {
	directory ports.ParticipantDirectory
}

// NewParticipantHandler creates a new ParticipantHandler.
func NewParticipantHandler(directory ports.ParticipantDirectory) *ParticipantHandler {
	return &ParticipantHandler{directory: directory}
}

// List handles GET /api/v1/participants. Secrets and endpoints are not exposed.
func (h *ParticipantHandler) List(c *gin.Context) {
	participants, err := h.directory.List(c.Request.Context())
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	out := make([]dto.ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		caps := p.Capabilities
		if caps == nil {
			caps = []string{}
		}
		out = append(out, dto.ParticipantResponse{
			ParticipantID: p.ID,
			Name:          p.Name,
			Capabilities:  caps,
		})
	}
	response.OK(c, out)
}
