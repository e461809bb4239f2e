// Package policy runs cross-application abuse heuristics at submission time.
// Findings are advisory: they are persisted and audited but never block.
package policy

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"scholarship/internal/application/ports"
	profilemodels "scholarship/internal/profile/models"
	id "scholarship/pkg/domain"
	"scholarship/pkg/requestcontext"
)

// FingerprintKind scopes a fingerprint so identical digits in different
// fields never collide.
type FingerprintKind string

const (
	KindIdentity     FingerprintKind = "identity"
	KindBankAccount  FingerprintKind = "bank_account"
	KindIdentityYear FingerprintKind = "identity_year"
)

// FingerprintStore remembers which students presented a fingerprint.
type FingerprintStore interface {
	// Register records the fingerprint for studentID and returns the other
	// students that presented the same fingerprint earlier.
	Register(ctx context.Context, kind FingerprintKind, fingerprint string, studentID id.UserID, now time.Time) ([]id.UserID, error)
}

type AlertStore interface {
	Save(ctx context.Context, alert ports.PolicyAlert) error
	ListByStudent(ctx context.Context, studentID id.UserID) ([]ports.PolicyAlert, error)
}

type Detector struct {
	fingerprints FingerprintStore
	alerts       AlertStore
	key          []byte
	logger       *slog.Logger
}

type Option func(*Detector)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// NewDetector builds a detector whose fingerprints are keyed with key, so
// stored values cannot be reversed by enumerating number ranges.
func NewDetector(fingerprints FingerprintStore, alerts AlertStore, key string, opts ...Option) *Detector {
	if len(key) == 0 || len(key) > blake2b.Size {
		k := blake2b.Sum256([]byte(key))
		key = string(k[:])
	}
	d := &Detector{fingerprints: fingerprints, alerts: alerts, key: []byte(key), logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect checks identity and bank numbers against every other student and
// flags the same identity number being used for the same year by another
// account.
func (d *Detector) Detect(ctx context.Context, studentID id.UserID, year int, data profilemodels.Data) ([]ports.PolicyAlert, error) {
	identity := normalizeNumber(data.IdentityNumber)
	bank := normalizeNumber(data.BankAccountNumber)

	checks := []struct {
		kind   FingerprintKind
		value  string
		alert  ports.AlertKind
		detail string
	}{
		{KindIdentity, identity, ports.AlertDuplicateIdentity, "identity number already used by another student"},
		{KindBankAccount, bank, ports.AlertDuplicateBankAccount, "bank account already used by another student"},
		{KindIdentityYear, identity + "|" + strconv.Itoa(year), ports.AlertDuplicateYear, fmt.Sprintf("identity number already applied for %d", year)},
	}

	now := requestcontext.Now(ctx)
	var out []ports.PolicyAlert
	for _, c := range checks {
		if c.value == "" || strings.HasPrefix(c.value, "|") {
			continue
		}
		fp, err := d.fingerprint(c.kind, c.value)
		if err != nil {
			return nil, err
		}
		others, err := d.fingerprints.Register(ctx, c.kind, fp, studentID, now)
		if err != nil {
			return nil, fmt.Errorf("register %s fingerprint: %w", c.kind, err)
		}
		if len(others) == 0 {
			continue
		}
		alert := ports.PolicyAlert{
			ID:        id.AlertID(uuid.New()),
			StudentID: studentID,
			Kind:      c.alert,
			Detail:    fmt.Sprintf("%s (%d other account(s))", c.detail, len(others)),
			CreatedAt: now,
		}
		if err := d.alerts.Save(ctx, alert); err != nil {
			return nil, fmt.Errorf("save policy alert: %w", err)
		}
		d.logger.WarnContext(ctx, "policy alert raised",
			"student_id", studentID.String(),
			"kind", string(c.alert),
			"matches", len(others),
		)
		out = append(out, alert)
	}
	return out, nil
}

func (d *Detector) fingerprint(kind FingerprintKind, value string) (string, error) {
	h, err := blake2b.New256(d.key)
	if err != nil {
		return "", fmt.Errorf("init fingerprint hash: %w", err)
	}
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// normalizeNumber keeps letters and digits only, upper-cased, so formatting
// differences ("1234 5678" vs "1234-5678") do not hide duplicates.
func normalizeNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
