package model

// Preference keys.
const (
	KeyFillDefault     = "FillDefault"
	KeyProviderDefault = "ProviderDefault"
	KeyEmailDefault    = "EmailDefault"
	KeyPhoneDefault    = "PhoneDefault"
	KeyHide            = "Hide"
	KeyForbid          = "Forbid"
)

// Settings are the process-wide supplier defaults and display toggles.
type Settings struct {
	FillDefault     bool   `json:"fill_default"`
	ProviderDefault string `json:"provider_default"`
	EmailDefault    string `json:"email_default"`
	PhoneDefault    string `json:"phone_default"`
	HideSensitive   bool   `json:"hide_sensitive"`
	ForbidShare     bool   `json:"forbid_share"`
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	FillDefault     *bool   `json:"fill_default"`
	ProviderDefault *string `json:"provider_default"`
	EmailDefault    *string `json:"email_default"`
	PhoneDefault    *string `json:"phone_default"`
	HideSensitive   *bool   `json:"hide_sensitive"`
	ForbidShare     *bool   `json:"forbid_share"`
}

// EntryDefaults returns the entry form state, pre-filled with the supplier
// defaults when FillDefault is on.
func (s Settings) EntryDefaults() ItemDetails {
	d := NewItemDetails()
	if s.FillDefault {
		d.ProviderName = s.ProviderDefault
		d.ProviderEmail = s.EmailDefault
		d.ProviderPhone = s.PhoneDefault
	}
	return d
}
