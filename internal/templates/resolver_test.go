package templates

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
)

func TestResolverRenderWelcomeIsDeterministic(t *testing.T) {
	t.Parallel()

	r := MustNewResolver()

	first, err := r.Render("welcome_email", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	second, err := r.Render("welcome_email", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if first != second {
		t.Fatalf("Render() not deterministic: %+v != %+v", first, second)
	}
	if first.Subject != "Welcome, Ada!" {
		t.Fatalf("subject = %q, want %q", first.Subject, "Welcome, Ada!")
	}
	if !strings.Contains(first.Text, "Hi Ada") {
		t.Fatalf("text = %q, want greeting", first.Text)
	}
	if !strings.Contains(first.HTML, "<h2>Welcome, Ada!</h2>") {
		t.Fatalf("html = %q, want heading", first.HTML)
	}
}

func TestResolverRenderUnknownTemplate(t *testing.T) {
	t.Parallel()

	_, err := MustNewResolver().Render("not_a_template", map[string]any{})
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("Render() error = %v, want ErrTemplateNotFound", err)
	}
}

func TestResolverRenderMissingField(t *testing.T) {
	t.Parallel()

	_, err := MustNewResolver().Render("courier_assignment", map[string]any{
		"name":    "Ada",
		"orderId": "o-1",
	})
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("Render() error = %v, want ErrInvalidPayload", err)
	}
	for _, key := range []string{"pickupAddress", "deliveryAddress", "timestamp"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q should mention %s", err.Error(), key)
		}
	}
}

func TestResolverRenderEscapesHTML(t *testing.T) {
	t.Parallel()

	content, err := MustNewResolver().Render("welcome_email", map[string]any{"name": "<b>Ada</b>"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(content.HTML, "<b>Ada</b>") {
		t.Fatalf("html should escape user data: %q", content.HTML)
	}
	if !strings.Contains(content.Text, "<b>Ada</b>") {
		t.Fatalf("text should keep user data verbatim: %q", content.Text)
	}
}

func TestResolverRenderEveryTemplate(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"name":            "Ada",
		"timestamp":       "2026-01-02T03:04:05Z",
		"orderId":         1042,
		"pickupAddress":   "1 Main St",
		"deliveryAddress": "2 Side St",
		"status":          "DELIVERED",
		"courseName":      "Go Basics",
		"courseId":        "c-7",
	}

	r := MustNewResolver()
	for _, name := range Names() {
		name := name
		t.Run(string(name), func(t *testing.T) {
			t.Parallel()

			content, err := r.Render(string(name), data)
			if err != nil {
				t.Fatalf("Render(%s) error = %v", name, err)
			}
			if content.Subject == "" || content.Text == "" || content.HTML == "" {
				t.Fatalf("Render(%s) returned empty content: %+v", name, content)
			}
			if !strings.Contains(content.Text, "Ada") {
				t.Fatalf("Render(%s) text = %q, want name", name, content.Text)
			}
		})
	}
}

func TestParseCourseIDIsOptional(t *testing.T) {
	t.Parallel()

	v, err := Parse("course_enrollment", map[string]any{"name": "Ada", "courseName": "Go Basics"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	notice, ok := v.(CourseNotice)
	if !ok {
		t.Fatalf("Parse() = %T, want CourseNotice", v)
	}
	if notice.TemplateName() != CourseEnrollment {
		t.Fatalf("TemplateName() = %s, want %s", notice.TemplateName(), CourseEnrollment)
	}

	content, err := MustNewResolver().RenderVariant(v)
	if err != nil {
		t.Fatalf("RenderVariant() error = %v", err)
	}
	if strings.Contains(content.Text, "()") {
		t.Fatalf("text should omit empty course id: %q", content.Text)
	}
}

func TestParseNumericValues(t *testing.T) {
	t.Parallel()

	v, err := Parse("order_status_update", map[string]any{
		"name":      "Ada",
		"orderId":   1042,
		"status":    "SHIPPED",
		"timestamp": 1.5,
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	order := v.(OrderStatusChanged)
	if order.OrderID != "1042" {
		t.Fatalf("OrderID = %q, want 1042", order.OrderID)
	}
	if order.Timestamp != "1.5" {
		t.Fatalf("Timestamp = %q, want 1.5", order.Timestamp)
	}
}

func TestParseKeepsLargeIntegers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		orderID any
	}{
		{name: "int64", orderID: int64(1790000000000000001)},
		{name: "json number", orderID: json.Number("1790000000000000001")},
		{name: "string", orderID: "1790000000000000001"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			content, err := MustNewResolver().Render("order_status_update", map[string]any{
				"name":      "Ada",
				"orderId":   tt.orderID,
				"status":    "shipped",
				"timestamp": "2024-05-01T10:00:00Z",
			})
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if content.Subject != "Order 1790000000000000001 is now shipped" {
				t.Fatalf("subject = %q, want full order id", content.Subject)
			}
		})
	}
}
