package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

var billingTemplates = template.Must(template.ParseFS(embeddedTemplates, "templates/*.html"))

// Render executes one of the embedded billing templates by name
// (payment_confirmation, billing_reminder, account_suspended,
// subscription_cancelled) and returns the HTML body.
func Render(name string, data any) (string, error) {
	var body bytes.Buffer
	if err := billingTemplates.ExecuteTemplate(&body, name+".html", data); err != nil {
		return "", fmt.Errorf("render email template %s: %w", name, err)
	}
	return body.String(), nil
}
