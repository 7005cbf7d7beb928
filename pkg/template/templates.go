package template

import (
	"bytes"
	"fmt"
	"html/template"
	texttmpl "text/template"
	"time"
)

// TemplateService renders channel-specific bodies for outbound messages.
// Templates are compiled once at construction; email gets an HTML shell,
// SMS a terse text line.
type TemplateService struct {
	email *template.Template
	sms   *texttmpl.Template
}

const emailTemplate = `<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #222;">
    <h2>{{.Title}}</h2>
    <p>Dear {{if .UserName}}{{.UserName}}{{else}}user{{end}},</p>
    <p>{{.Message}}</p>
    <hr/>
    <p style="font-size: 12px; color: #777;">
      This is an automated {{.Type}} notification from your school. &copy; {{.Year}}
    </p>
  </body>
</html>`

const smsTemplate = `{{.Title}}: {{.Message}}`

func NewTemplateService() (*TemplateService, error) {
	email, err := template.New("email").Parse(emailTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse email template: %w", err)
	}
	sms, err := texttmpl.New("sms").Parse(smsTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse sms template: %w", err)
	}
	return &TemplateService{email: email, sms: sms}, nil
}

// Data carries the fields available to message templates
type Data struct {
	Title    string
	Message  string
	Type     string
	UserName string
	Year     int
}

func NewData(title, message, typ, userName string) Data {
	return Data{
		Title:    title,
		Message:  message,
		Type:     typ,
		UserName: userName,
		Year:     time.Now().Year(),
	}
}

func (t *TemplateService) RenderEmail(data Data) (string, error) {
	var buf bytes.Buffer
	if err := t.email.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute email template: %w", err)
	}
	return buf.String(), nil
}

func (t *TemplateService) RenderSMS(data Data) (string, error) {
	var buf bytes.Buffer
	if err := t.sms.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute sms template: %w", err)
	}
	return buf.String(), nil
}
