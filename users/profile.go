package users

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jrsteele09/go-brew-client/internal/utils"
)

// DefaultTimezone is applied when neither the backend nor the identity provider supplies one
const DefaultTimezone = "UTC"

// Profile is the locally cached view of the signed-in user.
type Profile struct {
	ID        string    `json:"id,omitempty"`        // Backend user ID
	Email     string    `json:"email,omitempty"`     // Lower-cased email address
	FirstName string    `json:"firstName,omitempty"` // Given name
	LastName  string    `json:"lastName,omitempty"`  // Family name
	Country   string    `json:"country,omitempty"`   // Country chosen at sign up
	Interests []string  `json:"interests,omitempty"` // Topics the user picked at sign up
	Timezone  string    `json:"timezone,omitempty"`  // IANA timezone used for brew delivery
	CreatedAt Timestamp `json:"createdAt,omitempty"` // When the account was created
}

// Update is a partial profile. Nil fields are left untouched by Merge.
type Update struct {
	FirstName *string
	LastName  *string
	Country   *string
	Interests []string
	Timezone  *string
}

// Merge returns a copy of p with the non-nil fields of u applied.
func (p Profile) Merge(u Update) Profile {
	merged := p.Clone()
	if u.FirstName != nil {
		merged.FirstName = utils.Value(u.FirstName)
	}
	if u.LastName != nil {
		merged.LastName = utils.Value(u.LastName)
	}
	if u.Country != nil {
		merged.Country = utils.Value(u.Country)
	}
	if u.Interests != nil {
		merged.Interests = slices.Clone(u.Interests)
	}
	if u.Timezone != nil {
		merged.Timezone = utils.Value(u.Timezone)
	}
	return merged
}

// Clone returns a deep copy so callers never share the Interests backing array
func (p Profile) Clone() Profile {
	p.Interests = slices.Clone(p.Interests)
	return p
}

// Name returns the display name, falling back to the email address
func (p Profile) Name() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Email
	}
	return name
}

// NormalizeEmail trims and lower-cases an email address the way the backend does
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Timestamp decodes the ISO-8601 variants the backend emits (with or without an offset).
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("users.Timestamp: %w", err)
	}
	if raw == nil || *raw == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(*raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp parses s using the layouts the backend is known to produce. Offset-less values are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("users.ParseTimestamp: unrecognised timestamp %q", s)
}
