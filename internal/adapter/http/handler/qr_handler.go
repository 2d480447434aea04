package handler

import (
	"net/http"
	"time"

	"wallet-settlement/internal/adapter/http/dto"
	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports"
	"wallet-settlement/pkg/apperror"
	"wallet-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// QRHandler exposes the QR settlement engine to merchant and payer channels.
type QRHandler struct {
	qrSvc ports.QRService
}

// NewQRHandler creates a new QRHandler.
func NewQRHandler(qrSvc ports.QRService) *QRHandler {
	return &QRHandler{qrSvc: qrSvc}
}

// Generate handles POST /api/v1/qr.
func (h *QRHandler) Generate(c *gin.Context) {
	var req dto.GenerateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		response.Error(c, apperror.Validation("merchant_id must be a UUID"))
		return
	}

	qr, err := h.qrSvc.Generate(c.Request.Context(), ports.GenerateQRRequest{
		MerchantID:    merchantID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Reference:     req.Reference,
		ExpiryMinutes: req.ExpiryMinutes,
		Offline:       req.Offline,
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toQRResponse(qr))
}

// Validate handles POST /api/v1/qr/validate. A refused payload is a normal
// result, not an error.
func (h *QRHandler) Validate(c *gin.Context) {
	var req dto.ValidateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	response.OK(c, h.qrSvc.Validate(c.Request.Context(), req.Payload))
}

// Redeem handles POST /api/v1/qr/:id/redeem.
func (h *QRHandler) Redeem(c *gin.Context) {
	qrID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("qr id must be a UUID"))
		return
	}

	var req dto.RedeemQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	payerID, err := uuid.Parse(req.PayerID)
	if err != nil {
		response.Error(c, apperror.Validation("payer_id must be a UUID"))
		return
	}
	walletID, err := uuid.Parse(req.PayerWalletID)
	if err != nil {
		response.Error(c, apperror.Validation("payer_wallet_id must be a UUID"))
		return
	}

	channel := domain.ChannelApp
	if req.Channel != "" {
		channel = dto.ParseChannel(req.Channel)
	}

	result, err := h.qrSvc.Redeem(c.Request.Context(), ports.RedeemRequest{
		QRID:          qrID,
		PayerID:       payerID,
		PayerWalletID: walletID,
		PIN:           req.PIN,
		DeviceID:      req.DeviceID,
		Channel:       channel,
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Status(c, redemptionStatus(result.Outcome), result)
}

// ChannelPolicy handles GET /api/v1/qr/channels/:channel.
func (h *QRHandler) ChannelPolicy(c *gin.Context) {
	channel := dto.ParseChannel(c.Param("channel"))
	if !channel.Valid() {
		response.Error(c, apperror.ErrInvalidChannel())
		return
	}

	response.OK(c, dto.ChannelPolicyResponse{
		Channel:    string(channel),
		Redeemable: h.qrSvc.IsRedeemableFromChannel(channel),
	})
}

func redemptionStatus(outcome domain.RedemptionOutcome) int {
	switch outcome {
	case domain.RedemptionOutcomeSuccess:
		return http.StatusOK
	case domain.RedemptionOutcomeConflict:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func toQRResponse(qr *domain.QRCode) dto.QRResponse {
	return dto.QRResponse{
		QRID:       qr.ID.String(),
		MerchantID: qr.MerchantID.String(),
		Amount:     qr.Amount,
		Currency:   qr.Currency,
		Reference:  qr.Reference,
		Payload:    qr.Payload,
		Offline:    qr.Offline,
		IssuedAt:   qr.IssuedAt.UTC().Format(time.RFC3339),
		ExpiresAt:  qr.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
