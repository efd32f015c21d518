package domain

import "time"

// Account representa un cliente identificado unicamente por su numero de telefono.
// InviteCode se asigna una sola vez al activar la cuenta; InvitedBy se escribe a lo
// sumo una vez al canjear un codigo ajeno.
type Account struct {
	ID           string    `json:"id"`
	PhoneNumber  string    `json:"phone_number"`
	IsActive     bool      `json:"is_active"`
	IsStaff      bool      `json:"-"`
	IsSuperuser  bool      `json:"-"`
	PasswordHash string    `json:"-"`
	InviteCode   *string   `json:"invite_code,omitempty"`
	InvitedBy    *string   `json:"invited_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasInviter indica si la cuenta ya registro quien la invito.
func (a Account) HasInviter() bool {
	return a.InvitedBy != nil && *a.InvitedBy != ""
}
