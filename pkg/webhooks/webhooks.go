// Package webhooks signs outbound notification deliveries and verifies them
// on the receiving side.
//
// The signature header carries a unix timestamp and one or more v1 MACs:
//
//	X-Cosign-Signature: t=1760000000,v1=<hex hmac-sha256 of "t.body">
//
// Receivers reject deliveries whose timestamp is outside their tolerance.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader = "X-Cosign-Signature"
	EventIDHeader   = "X-Event-Id"
	EventTypeHeader = "X-Event-Type"

	Scheme           = "cosign-hmac-sha256/v1"
	DefaultTolerance = 5 * time.Minute
)

var ErrEmptySecret = errors.New("webhook secret is empty")

type VerificationResult struct {
	Valid     bool           `json:"valid"`
	Scheme    string         `json:"scheme"`
	Details   map[string]any `json:"details"`
	EventID   string         `json:"event_id,omitempty"`
	EventType string         `json:"event_type,omitempty"`
}

func mac(secret string, ts int64, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	_, _ = m.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = m.Write([]byte{'.'})
	_, _ = m.Write(body)
	return m.Sum(nil)
}

// Sign returns the signature header value for body sent at the given time.
func Sign(secret string, body []byte, at time.Time) string {
	ts := at.UTC().Unix()
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + hex.EncodeToString(mac(secret, ts, body))
}

// Verify checks a delivery. A bad or missing signature is reported through
// Valid=false; an error is returned only for an unusable secret.
func Verify(headers http.Header, body []byte, receivedAt time.Time, secret string, tolerance time.Duration) (VerificationResult, error) {
	if strings.TrimSpace(secret) == "" {
		return VerificationResult{}, ErrEmptySecret
	}
	ts, sigs := parseHeader(headers.Values(SignatureHeader))
	res := VerificationResult{
		Scheme:    Scheme,
		EventID:   strings.TrimSpace(headers.Get(EventIDHeader)),
		EventType: strings.TrimSpace(headers.Get(EventTypeHeader)),
		Details: map[string]any{
			"signature_header_present": len(headers.Values(SignatureHeader)) > 0,
			"timestamp":                ts,
			"v1_present":               len(sigs) > 0,
		},
	}
	if ts <= 0 || len(sigs) == 0 {
		return res, nil
	}

	skew := receivedAt.UTC().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	res.Details["skew_seconds"] = int64(skew / time.Second)
	if tolerance > 0 && skew > tolerance {
		return res, nil
	}

	expected := mac(secret, ts, body)
	for _, s := range sigs {
		got, err := hex.DecodeString(s)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, got) {
			res.Valid = true
			break
		}
	}
	return res, nil
}

func parseHeader(values []string) (int64, []string) {
	var ts int64
	var sigs []string
	for _, part := range strings.Split(strings.Join(values, ","), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "t":
			if ts == 0 {
				ts, _ = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			}
		case "v1":
			if v = strings.TrimSpace(v); v != "" {
				sigs = append(sigs, v)
			}
		}
	}
	return ts, sigs
}
