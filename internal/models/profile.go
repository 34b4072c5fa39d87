package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// ID is an identifier issued by the remote API. Some endpoints send numbers,
// others strings; both decode into the same textual form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// UserProfile is the console user as served by GET /user/profile.
type UserProfile struct {
	ID         ID     `json:"id"`
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Role       string `json:"role"`
}

// Credentials are the identity provider's tokens for one console session.
type Credentials struct {
	Username     string    `json:"username"`
	IDToken      string    `json:"id_token"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (c Credentials) IsZero() bool {
	return c.IDToken == "" && c.AccessToken == "" && c.RefreshToken == ""
}

// SessionSnapshot is what the session store persists between restarts.
type SessionSnapshot struct {
	Token       string       `json:"token,omitempty"`
	Profile     *UserProfile `json:"profile,omitempty"`
	Credentials *Credentials `json:"credentials,omitempty"`
	SavedAt     time.Time    `json:"saved_at"`
}
