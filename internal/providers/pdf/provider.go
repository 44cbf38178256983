// Package pdf renders invoice documents for download. Rendering is pure; the
// HTTP layer resolves the invoice and account rows and hands the data over.
package pdf

import (
	"context"
	"io"
)

type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error)
}

// InvoiceData carries everything the invoice document shows.
type InvoiceData struct {
	InvoiceNumber string
	IssueDate     string
	Status        string

	AccountName  string
	AccountEmail string

	PlanID        string
	ServicePeriod string

	Amount   string
	Currency string
}
