package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
)

// Type selects the transport handler for a notification.
type Type string

const (
	TypeEmail Type = "email"
	TypeSMS   Type = "sms"
	TypePush  Type = "push"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case TypeEmail, TypeSMS, TypePush:
		return true
	}
	return false
}

func ParseTypeFromString(s string) (Type, error) {
	tp := Type(strings.ToLower(strings.TrimSpace(s)))
	if !tp.IsValid() {
		return "", fmt.Errorf("%w: invalid type %q", ErrInvalidPayload, s)
	}
	return tp, nil
}

// UnmarshalJSON accepts the type name in any case.
func (t *Type) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: type must be a string", ErrInvalidPayload)
	}
	parsed, err := ParseTypeFromString(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MessageDataKey is the data entry used as SMS/push content when no template is set.
const MessageDataKey = "message"

// EmailContent is literal email content, either supplied by the caller or rendered from a template.
type EmailContent struct {
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

func (c EmailContent) IsEmpty() bool {
	return strings.TrimSpace(c.Subject) == "" &&
		strings.TrimSpace(c.Text) == "" &&
		strings.TrimSpace(c.HTML) == ""
}

// Payload is the unit of work carried through the queue.
type Payload struct {
	Type         Type           `json:"type"`
	Recipient    string         `json:"recipient"`
	Template     string         `json:"template,omitempty"`
	EmailOptions *EmailContent  `json:"emailOptions,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: payload is required", ErrInvalidPayload)
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("%w: invalid type %q", ErrInvalidPayload, p.Type)
	}
	if strings.TrimSpace(p.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidPayload)
	}

	hasTemplate := strings.TrimSpace(p.Template) != ""
	switch p.Type {
	case TypeEmail:
		if _, err := mail.ParseAddress(p.Recipient); err != nil {
			return fmt.Errorf("%w: invalid email recipient %q", ErrInvalidPayload, p.Recipient)
		}
		hasOptions := p.EmailOptions != nil
		if hasTemplate == hasOptions {
			return fmt.Errorf("%w: email requires exactly one of template or emailOptions", ErrInvalidPayload)
		}
		if hasOptions && p.EmailOptions.IsEmpty() {
			return fmt.Errorf("%w: emailOptions is empty", ErrInvalidPayload)
		}
	case TypeSMS, TypePush:
		if p.EmailOptions != nil {
			return fmt.Errorf("%w: emailOptions is only valid for email", ErrInvalidPayload)
		}
		if !hasTemplate && p.Message() == "" {
			return fmt.Errorf("%w: %s requires a template or data.%s", ErrInvalidPayload, p.Type, MessageDataKey)
		}
	}

	return nil
}

// Message returns the literal SMS/push text from data, if any.
func (p *Payload) Message() string {
	if p == nil || p.Data == nil {
		return ""
	}
	msg, _ := p.Data[MessageDataKey].(string)
	return strings.TrimSpace(msg)
}

// Marshal serializes the payload into the queue wire format.
func (p *Payload) Marshal() ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal notification payload: %v", ErrInvalidPayload, err)
	}
	return body, nil
}

// DecodePayload parses queue bytes back into a payload and validates its shape.
// Numbers in data stay json.Number so large identifiers keep every digit.
func DecodePayload(body []byte) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("%w: malformed body: %v", ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Envelope is the out-of-band metadata transported alongside the payload bytes.
// Only the retry engine changes it.
type Envelope struct {
	RetryCount int
	LastError  string
}
