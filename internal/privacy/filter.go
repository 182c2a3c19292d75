package privacy

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/crypto/blake2b"

	"example.com/analytics/internal/config"
	"example.com/analytics/internal/domain"
)

// ErrSuppressed is returned by Apply when the event must not be collected
// because the visitor opted out with Do-Not-Track.
var ErrSuppressed = errors.New("event suppressed by do-not-track")

// Filter applies the configured privacy policy to envelopes in place.
type Filter struct {
	cfg    config.Privacy
	cipher *fieldCipher
}

func New(cfg config.Privacy) (*Filter, error) {
	f := &Filter{cfg: cfg}
	if cfg.EncryptionEnabled {
		c, err := newFieldCipher(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("%w: privacy.encryption_key: %v", domain.ErrConfiguration, err)
		}
		f.cipher = c
	}
	return f, nil
}

// Apply runs, in order: the DNT check, cookie consent, IP anonymization,
// user id pseudonymization and field encryption. Only encryption can fail,
// and then the envelope must not be stored.
func (f *Filter) Apply(ctx context.Context, env *domain.EventEnvelope) error {
	if env == nil || env.Event == nil {
		return nil
	}
	p := env.Event.Params()

	if f.cfg.RespectDNT && p.DoNotTrack {
		return ErrSuppressed
	}

	if f.cfg.CookieConsentRequired && !p.ConsentGranted {
		p.ClientID = ""
		p.SessionID = ""
	}

	if f.cfg.AnonymizeIP {
		AnonymizeIP(env.Event)
	}

	if f.cfg.PseudonymizeUserID && p.UserID != "" && !isEncrypted(p.UserID) {
		p.UserID = HashUserID(p.UserID)
	}

	if f.cipher != nil {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPrivacy, err)
		}
		if err := f.encryptParams(env.MeasurementID, p); err != nil {
			return fmt.Errorf("%w: encrypt event %s: %v", domain.ErrPrivacy, env.EventID, err)
		}
	}
	return nil
}

func (f *Filter) encryptParams(measurementID string, p *domain.EventParams) error {
	for _, field := range []*string{&p.UserID, &p.ClientID} {
		if *field == "" || isEncrypted(*field) {
			continue
		}
		ct, err := f.cipher.encrypt(measurementID, *field)
		if err != nil {
			return err
		}
		*field = ct
	}
	return nil
}

// Decrypt reverses field encryption for a value stored under measurementID.
// Values that were never encrypted are returned unchanged.
func (f *Filter) Decrypt(measurementID, value string) (string, error) {
	if !isEncrypted(value) {
		return value, nil
	}
	if f.cipher == nil {
		return "", fmt.Errorf("%w: encryption is not configured", domain.ErrPrivacy)
	}
	pt, err := f.cipher.decrypt(measurementID, value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPrivacy, err)
	}
	return pt, nil
}

// ShouldRetain reports whether data ageDays old is still inside the retention window.
func (f *Filter) ShouldRetain(ageDays int) bool {
	return ageDays < f.cfg.DataRetentionDays
}

// RetentionCutoff returns the instant before which stored events have
// outlived the retention window.
func (f *Filter) RetentionCutoff(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -f.cfg.DataRetentionDays)
}

// HashUserID returns the hex BLAKE2b-256 digest of id.
func HashUserID(id string) string {
	sum := blake2b.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// MaskIP zeroes the host part of an address: the last octet of IPv4, the
// last four segments of IPv6. Unparseable input is returned unchanged.
func MaskIP(s string) string {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return s
	}
	addr = addr.Unmap().WithZone("")
	if addr.Is4() {
		b := addr.As4()
		b[3] = 0
		return netip.AddrFrom4(b).String()
	}
	b := addr.As16()
	for i := 8; i < 16; i++ {
		b[i] = 0
	}
	return netip.AddrFrom16(b).String()
}
