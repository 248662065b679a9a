package config

import "strings"

type IdentityConfig interface {
	GetIdentityProvider() string
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetOIDCScopes() []string
}

type Identity struct {
	file *File
}

var _ IdentityConfig = Identity{}

const (
	// IdentityProviderBackend refreshes tokens through the brew backend API
	IdentityProviderBackend = "backend"
	// IdentityProviderOIDC refreshes tokens directly against a hosted OIDC provider
	IdentityProviderOIDC = "oidc"
)

func (i Identity) GetIdentityProvider() string {
	return strings.ToLower(GetEnv("BREW_IDENTITY_PROVIDER", fileOr(i.file.Identity.Provider, IdentityProviderBackend)))
}

func (i Identity) GetOIDCIssuer() string {
	return GetEnv("BREW_OIDC_ISSUER", i.file.Identity.Issuer)
}

func (i Identity) GetOIDCClientID() string {
	return GetEnv("BREW_OIDC_CLIENT_ID", i.file.Identity.ClientID)
}

func (i Identity) GetOIDCClientSecret() string {
	return GetEnv("BREW_OIDC_CLIENT_SECRET", i.file.Identity.ClientSecret)
}

func (i Identity) GetOIDCScopes() []string {
	scopes := GetEnv("BREW_OIDC_SCOPES", "")
	if scopes == "" {
		if len(i.file.Identity.Scopes) > 0 {
			return i.file.Identity.Scopes
		}
		return []string{"openid", "profile", "email", "offline_access"}
	}
	return strings.Fields(strings.ReplaceAll(scopes, ",", " "))
}
