package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds how old a signed timestamp may be.
const DefaultTolerance = 5 * time.Minute

// Signer produces and checks webhook signature headers of the form
// "t=<unix>,v1=<hex hmac-sha256(secret, t + "." + payload)>".
type Signer struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

func (s Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Signer) mac(ts int64, payload []byte) []byte {
	h := hmac.New(sha256.New, []byte(s.Secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte("."))
	h.Write(payload)
	return h.Sum(nil)
}

// Sign returns the header value for payload at the current time.
func (s Signer) Sign(payload []byte) string {
	ts := s.now().Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(s.mac(ts, payload)))
}

// Verify accepts the header if any v1 entry matches and the timestamp is
// within tolerance.
func (s Signer) Verify(payload []byte, header string) error {
	if s.Secret == "" || header == "" {
		return ErrInvalidSignature
	}
	var (
		ts   int64
		sigs [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			ts = n
		case "v1":
			b, err := hex.DecodeString(v)
			if err == nil {
				sigs = append(sigs, b)
			}
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrInvalidSignature
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	age := s.now().Sub(time.Unix(ts, 0))
	if age > tol || age < -tol {
		return ErrInvalidSignature
	}
	want := s.mac(ts, payload)
	for _, sig := range sigs {
		if hmac.Equal(sig, want) {
			return nil
		}
	}
	return ErrInvalidSignature
}
