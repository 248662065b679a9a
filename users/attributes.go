package users

import (
	"errors"
	"strings"

	"github.com/jrsteele09/go-brew-client/internal/utils"
)

// Identity provider attribute names mapped onto Profile. Anything else in the bag is dropped.
const (
	AttrSubject    = "sub"
	AttrUsername   = "username"
	AttrEmail      = "email"
	AttrGivenName  = "given_name"
	AttrFamilyName = "family_name"
	AttrZoneInfo   = "zoneinfo"
	AttrCountry    = "custom:country"
	AttrInterests  = "custom:interests"
	AttrCreatedAt  = "created_at"
)

var ErrMissingIdentity = errors.New("attributes contain neither sub nor email")

// FromAttributes maps a provider attribute bag (UserInfo claims, ID token claims or
// a name/value attribute list) onto a fixed Profile.
func FromAttributes(attrs map[string]any) (Profile, error) {
	p := Profile{
		ID:        firstString(attrs, AttrSubject, AttrUsername),
		Email:     NormalizeEmail(firstString(attrs, AttrEmail)),
		FirstName: firstString(attrs, AttrGivenName),
		LastName:  firstString(attrs, AttrFamilyName),
		Country:   firstString(attrs, AttrCountry, "country"),
		Timezone:  firstString(attrs, AttrZoneInfo, "timezone"),
		Interests: interests(attrs),
	}
	if created := firstString(attrs, AttrCreatedAt); created != "" {
		if ts, err := ParseTimestamp(created); err == nil {
			p.CreatedAt = Timestamp{ts}
		}
	}
	if p.ID == "" && p.Email == "" {
		return Profile{}, ErrMissingIdentity
	}
	if p.Timezone == "" {
		p.Timezone = DefaultTimezone
	}
	return p, nil
}

// FromAttributeList converts the provider's [{Name, Value}] form into FromAttributes input
func FromAttributeList(list []Attribute) (Profile, error) {
	attrs := make(map[string]any, len(list))
	for _, a := range list {
		attrs[a.Name] = a.Value
	}
	return FromAttributes(attrs)
}

// Attribute is a single name/value pair as returned by hosted user pools
type Attribute struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

func firstString(attrs map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := attrs[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func interests(attrs map[string]any) []string {
	for _, k := range []string{AttrInterests, "interests"} {
		switch v := attrs[k].(type) {
		case []any:
			return utils.ToStringSlice(v)
		case []string:
			return append([]string(nil), v...)
		case string:
			var out []string
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
			return out
		}
	}
	return nil
}
