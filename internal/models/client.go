package models

import "gorm.io/datatypes"

// Client is a registered relying party that redirects users here to
// authenticate.
type Client struct {
	BaseModel

	ClientID    string `gorm:"uniqueIndex;not null" json:"client_id"`
	DisplayName string `json:"display_name"`
	Enabled     bool   `gorm:"default:true" json:"enabled"`

	// EnableLocalLogin controls whether the username/password form is offered
	// to users sent here by this client.
	EnableLocalLogin bool `gorm:"default:true" json:"enable_local_login"`

	// NativeClient marks relying parties that cannot reliably process raw
	// HTTP redirects; terminal redirects go through an interstitial page.
	NativeClient bool `gorm:"default:false" json:"native_client"`

	// IdentityProviderRestrictions is the allow-list of external scheme names
	// this client accepts. Empty means no restriction.
	IdentityProviderRestrictions datatypes.JSONSlice[string] `json:"identity_provider_restrictions"`

	// RedirectURIs are the registered callback URIs for the client.
	RedirectURIs datatypes.JSONSlice[string] `json:"redirect_uris"`

	PostLogoutRedirectURI string `json:"post_logout_redirect_uri"`
}
