package transport

import "agent_workbench/internal/session"

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Timezone string `json:"timezone,omitempty"`
}

type AuthResponse struct {
	AccessToken string          `json:"accessToken"`
	Agent       session.Profile `json:"agent"`
}
