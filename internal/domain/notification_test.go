package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseTypeFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Type
		wantErr bool
	}{
		{name: "valid lowercase", input: "email", want: TypeEmail},
		{name: "valid uppercase with spaces", input: " SMS ", want: TypeSMS},
		{name: "push", input: "push", want: TypePush},
		{name: "invalid", input: "fax", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTypeFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Fatalf("ParseTypeFromString() error = %v, want ErrInvalidPayload", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseTypeFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseTypeFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPayloadValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload *Payload
		wantErr bool
	}{
		{
			name:    "email with template",
			payload: &Payload{Type: TypeEmail, Recipient: "a@x.com", Template: "welcome_email", Data: map[string]any{"name": "Ada"}},
		},
		{
			name:    "email with options",
			payload: &Payload{Type: TypeEmail, Recipient: "a@x.com", EmailOptions: &EmailContent{Subject: "Hi", Text: "hello"}},
		},
		{
			name:    "email with neither",
			payload: &Payload{Type: TypeEmail, Recipient: "a@x.com"},
			wantErr: true,
		},
		{
			name: "email with both",
			payload: &Payload{
				Type:         TypeEmail,
				Recipient:    "a@x.com",
				Template:     "welcome_email",
				EmailOptions: &EmailContent{Subject: "Hi"},
			},
			wantErr: true,
		},
		{
			name:    "email with empty options",
			payload: &Payload{Type: TypeEmail, Recipient: "a@x.com", EmailOptions: &EmailContent{Subject: "  "}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			payload: &Payload{Type: Type("fax"), Recipient: "a@x.com", Template: "welcome_email"},
			wantErr: true,
		},
		{
			name:    "email with unparseable recipient",
			payload: &Payload{Type: TypeEmail, Recipient: "not an address", Template: "welcome_email"},
			wantErr: true,
		},
		{
			name:    "email with display name",
			payload: &Payload{Type: TypeEmail, Recipient: "Ada <a@x.com>", Template: "welcome_email"},
		},
		{
			name:    "missing recipient",
			payload: &Payload{Type: TypeEmail, Template: "welcome_email"},
			wantErr: true,
		},
		{
			name:    "sms with message",
			payload: &Payload{Type: TypeSMS, Recipient: "+905551112233", Data: map[string]any{"message": "hello"}},
		},
		{
			name:    "push with template",
			payload: &Payload{Type: TypePush, Recipient: "device-token", Template: "order_status_update"},
		},
		{
			name:    "sms without content",
			payload: &Payload{Type: TypeSMS, Recipient: "+905551112233"},
			wantErr: true,
		},
		{
			name:    "push with email options",
			payload: &Payload{Type: TypePush, Recipient: "device-token", Template: "x", EmailOptions: &EmailContent{Subject: "Hi"}},
			wantErr: true,
		},
		{
			name:    "nil payload",
			payload: nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.payload.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Fatalf("Validate() error = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	t.Parallel()

	original := &Payload{
		Type:      TypeEmail,
		Recipient: "a@x.com",
		Template:  "welcome_email",
		Data:      map[string]any{"name": "Ada"},
	}
	body, err := original.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, err := DecodePayload(body)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if got.Type != TypeEmail || got.Recipient != "a@x.com" || got.Template != "welcome_email" {
		t.Fatalf("DecodePayload() = %+v", got)
	}
	if got.Data["name"] != "Ada" {
		t.Fatalf("data.name = %v, want Ada", got.Data["name"])
	}

	if _, err := DecodePayload([]byte("not-json")); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("DecodePayload(not-json) error = %v, want ErrInvalidPayload", err)
	}
	if _, err := DecodePayload([]byte(`{"type":"email","recipient":"a@x.com"}`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("DecodePayload(no content) error = %v, want ErrInvalidPayload", err)
	}
}

func TestDecodePayloadKeepsLargeNumbers(t *testing.T) {
	t.Parallel()

	body := []byte(`{"type":"email","recipient":"a@x.com","template":"order_status_update","data":{"orderId":1790000000000000001}}`)

	got, err := DecodePayload(body)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	n, ok := got.Data["orderId"].(json.Number)
	if !ok {
		t.Fatalf("data.orderId = %T, want json.Number", got.Data["orderId"])
	}
	if n.String() != "1790000000000000001" {
		t.Fatalf("data.orderId = %s, want 1790000000000000001", n)
	}
}

func TestDecodePayloadTypeIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	got, err := DecodePayload([]byte(`{"type":" SMS ","recipient":"+905551112233","data":{"message":"hi"}}`))
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if got.Type != TypeSMS {
		t.Fatalf("type = %q, want sms", got.Type)
	}

	if _, err := DecodePayload([]byte(`{"type":"fax","recipient":"x","data":{"message":"hi"}}`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("DecodePayload(fax) error = %v, want ErrInvalidPayload", err)
	}
}

func TestPayloadMarshalUnserializableData(t *testing.T) {
	t.Parallel()

	p := &Payload{
		Type:      TypeSMS,
		Recipient: "+905551112233",
		Data:      map[string]any{"message": "hi", "callback": func() {}},
	}
	if _, err := p.Marshal(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("Marshal() error = %v, want ErrInvalidPayload", err)
	}
}
