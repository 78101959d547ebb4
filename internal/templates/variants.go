package templates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
)

// Name identifies a known email template.
type Name string

const (
	WelcomeEmail      Name = "welcome_email"
	PasswordUpdate    Name = "password_update"
	ProfileUpdate     Name = "profile_update"
	AccountDeletion   Name = "account_deletion"
	CourierAssignment Name = "courier_assignment"
	OrderStatusUpdate Name = "order_status_update"
	CourseCreation    Name = "course_creation"
	CourseUpdate      Name = "course_update"
	CourseDeletion    Name = "course_deletion"
	CourseEnrollment  Name = "course_enrollment"
)

// Names returns every known template name.
func Names() []Name {
	return []Name{
		WelcomeEmail,
		PasswordUpdate,
		ProfileUpdate,
		AccountDeletion,
		CourierAssignment,
		OrderStatusUpdate,
		CourseCreation,
		CourseUpdate,
		CourseDeletion,
		CourseEnrollment,
	}
}

// Variant is a template together with exactly the fields it renders.
// The interface is sealed; Parse is the only way to build one from untyped data.
type Variant interface {
	TemplateName() Name
	validate() error
}

// Value accepts any JSON scalar and keeps its textual form. Numbers are kept digit for digit.
type Value string

func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch x := raw.(type) {
	case nil:
		*v = ""
	case string:
		*v = Value(x)
	case json.Number:
		*v = Value(x.String())
	case bool:
		*v = Value(strconv.FormatBool(x))
	default:
		return fmt.Errorf("unsupported value of type %T", raw)
	}
	return nil
}

func (v Value) String() string { return string(v) }

type Welcome struct {
	Name Value `json:"name"`
}

func (Welcome) TemplateName() Name { return WelcomeEmail }
func (w Welcome) validate() error  { return require(WelcomeEmail, field{"name", w.Name}) }

// AccountChange covers password, profile, and deletion notices which share their fields.
type AccountChange struct {
	Kind      Name  `json:"-"`
	Name      Value `json:"name"`
	Timestamp Value `json:"timestamp"`
}

func (a AccountChange) TemplateName() Name { return a.Kind }
func (a AccountChange) validate() error {
	return require(a.Kind, field{"name", a.Name}, field{"timestamp", a.Timestamp})
}

type CourierAssigned struct {
	Name            Value `json:"name"`
	OrderID         Value `json:"orderId"`
	PickupAddress   Value `json:"pickupAddress"`
	DeliveryAddress Value `json:"deliveryAddress"`
	Timestamp       Value `json:"timestamp"`
}

func (CourierAssigned) TemplateName() Name { return CourierAssignment }
func (c CourierAssigned) validate() error {
	return require(CourierAssignment,
		field{"name", c.Name},
		field{"orderId", c.OrderID},
		field{"pickupAddress", c.PickupAddress},
		field{"deliveryAddress", c.DeliveryAddress},
		field{"timestamp", c.Timestamp},
	)
}

type OrderStatusChanged struct {
	Name      Value `json:"name"`
	OrderID   Value `json:"orderId"`
	Status    Value `json:"status"`
	Timestamp Value `json:"timestamp"`
}

func (OrderStatusChanged) TemplateName() Name { return OrderStatusUpdate }
func (o OrderStatusChanged) validate() error {
	return require(OrderStatusUpdate,
		field{"name", o.Name},
		field{"orderId", o.OrderID},
		field{"status", o.Status},
		field{"timestamp", o.Timestamp},
	)
}

// CourseNotice covers course creation, update, deletion, and enrollment. CourseID is optional.
type CourseNotice struct {
	Kind       Name  `json:"-"`
	Name       Value `json:"name"`
	CourseName Value `json:"courseName"`
	CourseID   Value `json:"courseId"`
}

func (c CourseNotice) TemplateName() Name { return c.Kind }
func (c CourseNotice) validate() error {
	return require(c.Kind, field{"name", c.Name}, field{"courseName", c.CourseName})
}

// Parse maps a template name and its untyped data onto the matching variant.
func Parse(name string, data map[string]any) (Variant, error) {
	var v Variant
	switch n := Name(strings.TrimSpace(name)); n {
	case WelcomeEmail:
		var w Welcome
		if err := decode(n, data, &w); err != nil {
			return nil, err
		}
		v = w
	case PasswordUpdate, ProfileUpdate, AccountDeletion:
		a := AccountChange{Kind: n}
		if err := decode(n, data, &a); err != nil {
			return nil, err
		}
		v = a
	case CourierAssignment:
		var c CourierAssigned
		if err := decode(n, data, &c); err != nil {
			return nil, err
		}
		v = c
	case OrderStatusUpdate:
		var o OrderStatusChanged
		if err := decode(n, data, &o); err != nil {
			return nil, err
		}
		v = o
	case CourseCreation, CourseUpdate, CourseDeletion, CourseEnrollment:
		c := CourseNotice{Kind: n}
		if err := decode(n, data, &c); err != nil {
			return nil, err
		}
		v = c
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrTemplateNotFound, name)
	}

	if err := v.validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func decode(name Name, data map[string]any, target any) error {
	if len(data) == 0 {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %s data: %v", domain.ErrInvalidPayload, name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %s data: %v", domain.ErrInvalidPayload, name, err)
	}
	return nil
}

type field struct {
	key   string
	value Value
}

func require(name Name, fields ...field) error {
	missing := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.value.String()) == "" {
			missing = append(missing, f.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s requires %s", domain.ErrInvalidPayload, name, strings.Join(missing, ", "))
	}
	return nil
}
