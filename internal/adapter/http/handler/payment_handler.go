package handler

import (
	"time"

	"wallet-settlement/internal/adapter/http/dto"
	"wallet-settlement/internal/adapter/http/middleware"
	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports"
	"wallet-settlement/pkg/apperror"
	"wallet-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles instant payment endpoints.
type PaymentHandler struct {
	client ports.PaymentClient
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(client ports.PaymentClient) *PaymentHandler {
	return &PaymentHandler{client: client}
}

// Initiate handles POST /api/v1/payments. Party names, when present, are
// carried on the initiation message.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	payment := domain.PaymentRequest{
		RequestID:  req.RequestID,
		Debtor:     domain.AccountRef{ParticipantID: req.Debtor.ParticipantID, AccountID: req.Debtor.AccountID},
		Creditor:   domain.AccountRef{ParticipantID: req.Creditor.ParticipantID, AccountID: req.Creditor.AccountID},
		Amount:     req.Amount,
		Currency:   req.Currency,
		EndToEndID: req.EndToEndID,
		Reference:  req.Reference,
	}

	var (
		result *domain.PaymentResult
		err    error
	)
	if req.Debtor.Name != "" || req.Creditor.Name != "" {
		result, err = h.client.SendPayment(c.Request.Context(), payment, req.Debtor.Name, req.Creditor.Name)
	} else {
		result, err = h.client.InitiatePayment(c.Request.Context(), payment)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := toPaymentResponse(result.Record)
	resp.Duplicate = result.Duplicate
	if result.Duplicate {
		response.OK(c, resp)
		return
	}
	response.Created(c, resp)
}

// GetStatus handles GET /api/v1/payments/:id.
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("payment id must be a UUID"))
		return
	}

	rec, err := h.client.GetPaymentStatus(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toPaymentResponse(rec))
}

// Callback handles POST /api/v1/payments/callbacks. The request has already
// been authenticated by the callback middleware.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req dto.StatusCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	ack, err := h.client.ReceivePayment(c.Request.Context(), domain.StatusMessage{
		MessageID:         req.MessageID,
		OriginalMessageID: req.OriginalMessageID,
		PaymentID:         req.PaymentID,
		EndToEndID:        req.EndToEndID,
		Status:            req.Status,
		Reason:            req.Reason,
		ReasonCode:        req.ReasonCode,
		SenderID:          c.GetString(middleware.CtxParticipantID),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ack)
}

func toPaymentResponse(rec *domain.PaymentRecord) dto.PaymentResponse {
	resp := dto.PaymentResponse{
		PaymentID:             rec.PaymentID.String(),
		RequestID:             rec.RequestID,
		EndToEndID:            rec.EndToEndID,
		MessageID:             rec.MessageID,
		DebtorParticipantID:   rec.DebtorParticipantID,
		DebtorAccountID:       rec.DebtorAccountID,
		CreditorParticipantID: rec.CreditorParticipantID,
		CreditorAccountID:     rec.CreditorAccountID,
		Amount:                rec.Amount,
		Currency:              rec.Currency,
		Reference:             rec.Reference,
		Route:                 string(rec.Route),
		Status:                string(rec.Status),
		StatusReason:          rec.StatusReason,
		StatusReasonCode:      rec.StatusReasonCode,
		CreatedAt:             rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.CompletedAt != nil {
		s := rec.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}
