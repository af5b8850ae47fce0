package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gaspardpetit/csms/internal/value"
)

// CustomData is the vendor extension block that may be attached to any
// OCPP object. Fields other than vendorId are kept in document order.
// vendorId is written when set or when the decoded block carried one.
type CustomData struct {
	VendorID   string
	Extensions *value.Object

	hasVendorID bool
}

// Set stores an extension field, allocating the map on first use.
func (c *CustomData) Set(key string, v any) {
	if c.Extensions == nil {
		c.Extensions = value.NewObject()
	}
	c.Extensions.Set(key, v)
}

func (c CustomData) MarshalJSON() ([]byte, error) {
	obj := value.NewObject()
	if c.VendorID != "" || c.hasVendorID {
		obj.Set("vendorId", c.VendorID)
	}
	if c.Extensions != nil {
		for p := c.Extensions.Oldest(); p != nil; p = p.Next() {
			if p.Key == "vendorId" {
				continue
			}
			obj.Set(p.Key, p.Value)
		}
	}
	return value.Marshal(obj)
}

func (c *CustomData) UnmarshalJSON(b []byte) error {
	obj, err := value.ParseObject(b)
	if err != nil {
		return fmt.Errorf("customData: %w", err)
	}
	*c = CustomData{}
	for p := obj.Oldest(); p != nil; p = p.Next() {
		if p.Key == "vendorId" {
			s, ok := p.Value.(string)
			if !ok {
				return errors.New("customData: vendorId must be a string")
			}
			c.VendorID = s
			c.hasVendorID = true
			continue
		}
		c.Set(p.Key, p.Value)
	}
	return nil
}

// Signature is a detached signature over a message payload. Value holds the
// base64 encoded signature bytes.
type Signature struct {
	SigningMethod  string      `json:"signingMethod" validate:"required,max=50"`
	EncodingMethod string      `json:"encodingMethod" validate:"required,max=50"`
	PublicKey      string      `json:"publicKey,omitempty" validate:"omitempty,max=2500"`
	Value          string      `json:"value" validate:"required,base64"`
	CustomData     *CustomData `json:"customData,omitempty"`
}

// Extensions is embedded in every request and response payload.
type Extensions struct {
	Signatures []Signature  `json:"signatures,omitempty" validate:"omitempty,dive"`
	CustomData *CustomData  `json:"customData,omitempty"`
}

// DateTime is an RFC 3339 timestamp rendered in UTC.
type DateTime struct {
	time.Time
}

// NewDateTime wraps t.
func NewDateTime(t time.Time) *DateTime {
	return &DateTime{Time: t}
}

// Now returns the current time as a DateTime.
func Now() *DateTime {
	return NewDateTime(time.Now())
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.UTC().Format(time.RFC3339Nano))
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}
