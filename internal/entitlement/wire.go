package entitlement

// listResponse is the body of GET _apis/userentitlements. Depending on the
// API version the entries live under "members" or "value".
type listResponse struct {
	Members []memberJSON `json:"members"`
	Value   []memberJSON `json:"value"`
}

func (r listResponse) items() []memberJSON {
	if len(r.Members) > 0 {
		return r.Members
	}
	return r.Value
}

type memberJSON struct {
	ID          string          `json:"id"`
	User        userJSON        `json:"user"`
	AccessLevel accessLevelJSON `json:"accessLevel"`
}

type userJSON struct {
	PrincipalName string `json:"principalName"`
	MailAddress   string `json:"mailAddress"`
	DisplayName   string `json:"displayName"`
}

type accessLevelJSON struct {
	AccountLicenseType string `json:"accountLicenseType,omitempty"`
	LicenseDisplayName string `json:"licenseDisplayName,omitempty"`
	LicensingSource    string `json:"licensingSource,omitempty"`
	Status             string `json:"status,omitempty"`
}

func (m memberJSON) record() Record {
	return Record{
		ID:                 m.ID,
		PrincipalName:      m.User.PrincipalName,
		MailAddress:        m.User.MailAddress,
		DisplayName:        m.User.DisplayName,
		LicenseType:        m.AccessLevel.AccountLicenseType,
		LicenseDisplayName: m.AccessLevel.LicenseDisplayName,
	}
}

// patchOperation is a single JSON Patch (RFC 6902) operation.
type patchOperation struct {
	From  string `json:"from"`
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func basicAccessPatch() []patchOperation {
	return []patchOperation{
		{
			From: "",
			Op:   "replace",
			Path: "/accessLevel",
			Value: accessLevelJSON{
				AccountLicenseType: LicenseTypeBasic,
				LicensingSource:    LicensingSourceAccount,
			},
		},
	}
}
