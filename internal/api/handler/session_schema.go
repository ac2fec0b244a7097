package handler

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error   string       `json:"error"`
	Details []FieldIssue `json:"details,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// --- Request / Response types ---

type createSessionRequest struct {
	IDToken string `json:"idToken" validate:"required,max=8192"`
}

type setClaimsRequest struct {
	UID          string `json:"uid"          validate:"required,max=128"`
	TenantID     string `json:"tenantId"     validate:"required,max=128"`
	Role         string `json:"role"         validate:"omitempty,oneof=admin staff"`
	KeepSessions bool   `json:"keepSessions"`
}

type profileResponse struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	ClinicID   string `json:"clinicId,omitempty"`
	ClinicName string `json:"clinicName,omitempty"`
	PhotoURL   string `json:"photoUrl,omitempty"`
}

type currentSessionResponse struct {
	UID       string           `json:"uid"`
	Email     string           `json:"email,omitempty"`
	Name      string           `json:"name,omitempty"`
	TenantID  *string          `json:"tenantId"`
	Role      string           `json:"role"`
	IssuedAt  string           `json:"issuedAt"`
	ExpiresAt string           `json:"expiresAt"`
	Profile   *profileResponse `json:"profile"`
}

type pageShellResponse struct {
	Page     string  `json:"page"`
	UID      string  `json:"uid"`
	TenantID *string `json:"tenantId"`
	Role     string  `json:"role"`
}
