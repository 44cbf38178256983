package server

import (
	"net/http"
	"strconv"
	"strings"

	notificationdomain "github.com/adpilot-io/adpilot/internal/notification/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListNotifications(c *gin.Context) {
	req := notificationdomain.ListNotificationRequest{
		PageToken: strings.TrimSpace(c.Query("page_token")),
	}

	if raw := strings.TrimSpace(c.Query("account_id")); raw != "" {
		accountID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.AccountID = &accountID
	}
	if raw := strings.TrimSpace(c.Query("unread_only")); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.UnreadOnly = unread
	}
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.PageSize = size
	}

	resp, err := s.notificationSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.notificationSvc.MarkRead(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
