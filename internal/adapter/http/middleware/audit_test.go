package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestSecurityAudit_RejectedCallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	done := make(chan struct{})
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) {
			assert.Equal(t, domain.AuditActionCallbackRejected, log.Action)
			assert.Equal(t, "participant", log.ResourceType)
			if assert.NotNil(t, log.ActorID) {
				assert.Equal(t, "BANKB", *log.ActorID)
			}
			assert.Contains(t, log.Details, `"status":401`)
			close(done)
		},
	)

	r := gin.New()
	r.Use(SecurityAudit(mockAudit))
	r.POST("/api/v1/payments/callbacks", func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"error_code": "SEC_002"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callbacks", nil)
	req.Header.Set(HeaderParticipantID, "BANKB")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("audit not called")
	}
}

func TestSecurityAudit_RateLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(
		func(ctx context.Context, log *domain.AuditLog) {
			assert.Equal(t, domain.AuditActionRateLimited, log.Action)
			assert.Nil(t, log.ActorID)
		},
	)

	r := gin.New()
	r.Use(SecurityAudit(mockAudit))
	r.POST("/api/v1/qr", func(c *gin.Context) {
		c.Status(http.StatusTooManyRequests)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/qr", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSecurityAudit_IgnoresOrdinaryTraffic(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)
	// no Log expected

	r := gin.New()
	r.Use(SecurityAudit(mockAudit))
	r.POST("/api/v1/payments/callbacks", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/v1/qr/:id/redeem", func(c *gin.Context) { c.Status(http.StatusConflict) })

	for _, path := range []string{"/api/v1/payments/callbacks", "/api/v1/qr/x/redeem"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	}
}
