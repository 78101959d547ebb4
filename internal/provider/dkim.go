package provider

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	msgauthdkim "github.com/emersion/go-msgauth/dkim"
)

// DKIMConfig enables DKIM signing when Selector and a key are present.
type DKIMConfig struct {
	Selector   string
	Domain     string
	PrivateKey string
	KeyPath    string
}

func (c DKIMConfig) enabled() bool {
	return strings.TrimSpace(c.Selector) != "" ||
		strings.TrimSpace(c.KeyPath) != "" ||
		strings.TrimSpace(c.PrivateKey) != ""
}

// DKIMSigner applies DKIM signatures to outbound messages.
type DKIMSigner struct {
	domain     string
	selector   string
	key        crypto.Signer
	headerKeys []string
}

// NewDKIMSigner returns nil without error when DKIM is not configured.
func NewDKIMSigner(cfg DKIMConfig) (*DKIMSigner, error) {
	if !cfg.enabled() {
		return nil, nil
	}

	selector := strings.TrimSpace(cfg.Selector)
	if selector == "" {
		return nil, fmt.Errorf("dkim: selector is required when enabling DKIM")
	}

	var pemData []byte
	switch {
	case strings.TrimSpace(cfg.PrivateKey) != "":
		pemData = []byte(cfg.PrivateKey)
	case strings.TrimSpace(cfg.KeyPath) != "":
		data, err := os.ReadFile(strings.TrimSpace(cfg.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("dkim: read private key: %w", err)
		}
		pemData = data
	default:
		return nil, fmt.Errorf("dkim: provide a private key or key path")
	}

	key, err := parsePrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("dkim: parse private key: %w", err)
	}

	return &DKIMSigner{
		domain:   strings.ToLower(strings.TrimSpace(cfg.Domain)),
		selector: selector,
		key:      key,
		headerKeys: []string{
			"from",
			"to",
			"subject",
			"date",
			"mime-version",
			"content-type",
			"message-id",
		},
	}, nil
}

// Sign signs message on behalf of from's domain unless a signing domain was configured.
// A nil signer returns the message unchanged.
func (s *DKIMSigner) Sign(message []byte, from string) ([]byte, error) {
	if s == nil || s.key == nil {
		return message, nil
	}

	domain := s.domain
	if domain == "" {
		domain = domainOf(from)
	}
	if domain == "" {
		return nil, fmt.Errorf("dkim: unable to determine signing domain")
	}

	opts := &msgauthdkim.SignOptions{
		Domain:                 domain,
		Selector:               s.selector,
		Signer:                 s.key,
		HeaderCanonicalization: msgauthdkim.CanonicalizationRelaxed,
		BodyCanonicalization:   msgauthdkim.CanonicalizationRelaxed,
		HeaderKeys:             s.headerKeys,
	}

	var signed bytes.Buffer
	if err := msgauthdkim.Sign(&signed, bytes.NewReader(message), opts); err != nil {
		return nil, fmt.Errorf("dkim: signing failed: %w", err)
	}
	return signed.Bytes(), nil
}

func parsePrivateKey(pemData []byte) (crypto.Signer, error) {
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}
		switch block.Type {
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			return key, nil
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			if signer, ok := key.(crypto.Signer); ok {
				return signer, nil
			}
			return nil, fmt.Errorf("unsupported private key type in PKCS#8 container")
		}
		pemData = rest
	}
	return nil, fmt.Errorf("no private key found in PEM data")
}

func domainOf(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimSuffix(strings.TrimPrefix(address, "<"), ">")
	if i := strings.LastIndex(address, "@"); i >= 0 && i+1 < len(address) {
		return strings.ToLower(address[i+1:])
	}
	return ""
}
