package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/adpilot-io/adpilot/internal/providers/pdf"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const defaultInvoicePageSize = 50

func (s *Server) ListAccountInvoices(c *gin.Context) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	limit := defaultInvoicePageSize
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	invoices, err := s.invoiceRepo.ListByAccount(c.Request.Context(), s.db, accountID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	item, err := s.invoiceRepo.FindByID(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if item == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	data := pdf.InvoiceData{
		InvoiceNumber: item.Number,
		IssueDate:     item.CreatedAt.UTC().Format("January 2, 2006"),
		Status:        string(item.Status),
		Amount:        fmt.Sprintf("%.2f", item.Amount),
		Currency:      item.Currency,
	}
	if acct, err := s.accountRepo.FindByID(c.Request.Context(), s.db, item.AccountID); err == nil && acct != nil {
		data.AccountName = acct.Name
		data.AccountEmail = acct.Email
	}
	if sub, err := s.subscriptionSvc.GetByID(c.Request.Context(), item.SubscriptionID); err == nil {
		data.PlanID = sub.PlanID
		if sub.CurrentPeriodStart != nil && sub.CurrentPeriodEnd != nil {
			data.ServicePeriod = fmt.Sprintf("%s to %s",
				sub.CurrentPeriodStart.UTC().Format("2006-01-02"),
				sub.CurrentPeriodEnd.UTC().Format("2006-01-02"),
			)
		}
	}

	doc, err := s.pdfProvider.GenerateInvoice(c.Request.Context(), data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", item.Number))
	c.DataFromReader(http.StatusOK, -1, "application/pdf", doc, nil)
}
