package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	paymentdomain "github.com/adpilot-io/adpilot/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

// HandlePaymentWebhook accepts one provider delivery. Rejections map to 4xx
// so the provider stops redelivering; processing failures map to 500 so it
// retries, which is safe because applied events are recorded and deduped.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header); err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
