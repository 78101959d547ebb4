package templates

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
)

type definition struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type source struct {
	subject string
	text    string
	html    string
}

const htmlLayout = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;color:#222">{{template "content" .}}</body></html>`

var sources = map[Name]source{
	WelcomeEmail: {
		subject: `Welcome, {{.Name}}!`,
		text:    "Hi {{.Name}},\n\nWelcome aboard. Your account is ready to use.",
		html:    `<h2>Welcome, {{.Name}}!</h2><p>Your account is ready to use.</p>`,
	},
	PasswordUpdate: {
		subject: `Your password was changed`,
		text:    "Hi {{.Name}},\n\nYour password was updated at {{.Timestamp}}. If this was not you, reset it immediately.",
		html:    `<p>Hi {{.Name}},</p><p>Your password was updated at <strong>{{.Timestamp}}</strong>. If this was not you, reset it immediately.</p>`,
	},
	ProfileUpdate: {
		subject: `Your profile was updated`,
		text:    "Hi {{.Name}},\n\nYour profile details were updated at {{.Timestamp}}.",
		html:    `<p>Hi {{.Name}},</p><p>Your profile details were updated at <strong>{{.Timestamp}}</strong>.</p>`,
	},
	AccountDeletion: {
		subject: `Your account was deleted`,
		text:    "Hi {{.Name}},\n\nYour account was deleted at {{.Timestamp}}. We are sorry to see you go.",
		html:    `<p>Hi {{.Name}},</p><p>Your account was deleted at <strong>{{.Timestamp}}</strong>. We are sorry to see you go.</p>`,
	},
	CourierAssignment: {
		subject: `New delivery assigned: order {{.OrderID}}`,
		text: "Hi {{.Name}},\n\nOrder {{.OrderID}} was assigned to you at {{.Timestamp}}.\n" +
			"Pickup: {{.PickupAddress}}\nDelivery: {{.DeliveryAddress}}",
		html: `<p>Hi {{.Name}},</p><p>Order <strong>{{.OrderID}}</strong> was assigned to you at {{.Timestamp}}.</p>` +
			`<ul><li>Pickup: {{.PickupAddress}}</li><li>Delivery: {{.DeliveryAddress}}</li></ul>`,
	},
	OrderStatusUpdate: {
		subject: `Order {{.OrderID}} is now {{.Status}}`,
		text:    "Hi {{.Name}},\n\nThe status of order {{.OrderID}} changed to {{.Status}} at {{.Timestamp}}.",
		html:    `<p>Hi {{.Name}},</p><p>The status of order <strong>{{.OrderID}}</strong> changed to <strong>{{.Status}}</strong> at {{.Timestamp}}.</p>`,
	},
	CourseCreation: {
		subject: `Course created: {{.CourseName}}`,
		text:    "Hi {{.Name}},\n\nYour course \"{{.CourseName}}\"{{if .CourseID}} ({{.CourseID}}){{end}} was created.",
		html:    `<p>Hi {{.Name}},</p><p>Your course <strong>{{.CourseName}}</strong>{{if .CourseID}} ({{.CourseID}}){{end}} was created.</p>`,
	},
	CourseUpdate: {
		subject: `Course updated: {{.CourseName}}`,
		text:    "Hi {{.Name}},\n\nThe course \"{{.CourseName}}\"{{if .CourseID}} ({{.CourseID}}){{end}} was updated.",
		html:    `<p>Hi {{.Name}},</p><p>The course <strong>{{.CourseName}}</strong>{{if .CourseID}} ({{.CourseID}}){{end}} was updated.</p>`,
	},
	CourseDeletion: {
		subject: `Course deleted: {{.CourseName}}`,
		text:    "Hi {{.Name}},\n\nThe course \"{{.CourseName}}\"{{if .CourseID}} ({{.CourseID}}){{end}} was deleted.",
		html:    `<p>Hi {{.Name}},</p><p>The course <strong>{{.CourseName}}</strong>{{if .CourseID}} ({{.CourseID}}){{end}} was deleted.</p>`,
	},
	CourseEnrollment: {
		subject: `You are enrolled in {{.CourseName}}`,
		text:    "Hi {{.Name}},\n\nYou are now enrolled in \"{{.CourseName}}\"{{if .CourseID}} ({{.CourseID}}){{end}}.",
		html:    `<p>Hi {{.Name}},</p><p>You are now enrolled in <strong>{{.CourseName}}</strong>{{if .CourseID}} ({{.CourseID}}){{end}}.</p>`,
	},
}

// Resolver renders named templates into email content. Rendering is pure: equal inputs give equal output.
type Resolver struct {
	definitions map[Name]definition
}

func NewResolver() (*Resolver, error) {
	definitions := make(map[Name]definition, len(sources))
	for name, src := range sources {
		subject, err := texttemplate.New(string(name) + ".subject").Option("missingkey=error").Parse(src.subject)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s subject: %w", name, err)
		}
		text, err := texttemplate.New(string(name) + ".text").Option("missingkey=error").Parse(src.text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s text: %w", name, err)
		}
		html, err := htmltemplate.New(string(name) + ".html").Parse(htmlLayout)
		if err == nil {
			_, err = html.New("content").Parse(src.html)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s html: %w", name, err)
		}

		definitions[name] = definition{subject: subject, text: text, html: html}
	}

	return &Resolver{definitions: definitions}, nil
}

// MustNewResolver panics when a built-in template fails to parse.
func MustNewResolver() *Resolver {
	r, err := NewResolver()
	if err != nil {
		panic(err)
	}
	return r
}

// Render resolves templateName against data. Unknown names fail with domain.ErrTemplateNotFound,
// missing fields with domain.ErrInvalidPayload.
func (r *Resolver) Render(templateName string, data map[string]any) (domain.EmailContent, error) {
	v, err := Parse(templateName, data)
	if err != nil {
		return domain.EmailContent{}, err
	}
	return r.RenderVariant(v)
}

func (r *Resolver) RenderVariant(v Variant) (domain.EmailContent, error) {
	if r == nil || v == nil {
		return domain.EmailContent{}, fmt.Errorf("resolver is not initialized")
	}

	def, ok := r.definitions[v.TemplateName()]
	if !ok {
		return domain.EmailContent{}, fmt.Errorf("%w: %q", domain.ErrTemplateNotFound, v.TemplateName())
	}

	var subject, text, html bytes.Buffer
	if err := def.subject.Execute(&subject, v); err != nil {
		return domain.EmailContent{}, fmt.Errorf("failed to render %s subject: %w", v.TemplateName(), err)
	}
	if err := def.text.Execute(&text, v); err != nil {
		return domain.EmailContent{}, fmt.Errorf("failed to render %s text: %w", v.TemplateName(), err)
	}
	if err := def.html.Execute(&html, v); err != nil {
		return domain.EmailContent{}, fmt.Errorf("failed to render %s html: %w", v.TemplateName(), err)
	}

	return domain.EmailContent{
		Subject: strings.TrimSpace(subject.String()),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
