package webhooks

import (
	"net/http"
	"testing"
	"time"
)

func signed(secret string, body []byte, at time.Time) http.Header {
	h := http.Header{}
	h.Set(SignatureHeader, Sign(secret, body, at))
	h.Set(EventIDHeader, "evt_1")
	h.Set(EventTypeHeader, "document.fully_signed")
	return h
}

func TestVerifyValid(t *testing.T) {
	at := time.Unix(1_760_000_000, 0)
	body := []byte(`{"template_id":"document.fully_signed"}`)
	res, err := Verify(signed("s3cret", body, at), body, at.Add(time.Minute), "s3cret", DefaultTolerance)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Valid || res.EventID != "evt_1" || res.EventType != "document.fully_signed" || res.Scheme != Scheme {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestVerifyRejects(t *testing.T) {
	at := time.Unix(1_760_000_000, 0)
	body := []byte(`{"ok":true}`)
	cases := map[string]struct {
		headers http.Header
		body    []byte
		now     time.Time
	}{
		"wrong secret":   {signed("other", body, at), body, at},
		"tampered body":  {signed("s3cret", body, at), []byte(`{"ok":false}`), at},
		"stale":          {signed("s3cret", body, at), body, at.Add(10 * time.Minute)},
		"missing header": {http.Header{}, body, at},
		"bad hex":        {http.Header{SignatureHeader: []string{"t=1760000000,v1=zz"}}, body, at},
	}
	for name, tc := range cases {
		res, err := Verify(tc.headers, tc.body, tc.now, "s3cret", DefaultTolerance)
		if err != nil {
			t.Fatalf("%s: Verify: %v", name, err)
		}
		if res.Valid {
			t.Fatalf("%s: expected invalid", name)
		}
	}
}

func TestVerifyAcceptsAnyListedSignature(t *testing.T) {
	at := time.Unix(1_760_000_000, 0)
	body := []byte(`{}`)
	h := http.Header{}
	h.Add(SignatureHeader, "t=1760000000,v1=deadbeef")
	h.Add(SignatureHeader, Sign("s3cret", body, at)[len("t=1760000000,"):])
	res, _ := Verify(h, body, at, "s3cret", 0)
	if !res.Valid {
		t.Fatalf("expected a rotated secret signature to verify: %+v", res)
	}
}

func TestVerifyEmptySecret(t *testing.T) {
	if _, err := Verify(http.Header{}, nil, time.Now(), " ", DefaultTolerance); err != ErrEmptySecret {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}
