package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	RoleCaregiver = "caregiver"
	RoleClient    = "client"
	RoleAdmin     = "admin"
)

// Role is a closed set: *CaregiverProfile, *ClientProfile or *AdminProfile.
type Role interface {
	roleName() string
}

type ServiceOffering struct {
	Name  string `json:"name" yaml:"name"`
	Price Money  `json:"price" yaml:"price"`
}

type CaregiverProfile struct {
	Services     []ServiceOffering `json:"services"`
	Location     GeoPoint          `json:"location"`
	BlockedDates []string          `json:"blocked_dates"`
}

type ClientProfile struct {
	Address  string   `json:"address"`
	Location GeoPoint `json:"location"`
}

type AdminProfile struct {
	Permissions []string `json:"permissions"`
}

func (*CaregiverProfile) roleName() string { return RoleCaregiver }
func (*ClientProfile) roleName() string    { return RoleClient }
func (*AdminProfile) roleName() string     { return RoleAdmin }

// Service looks up an offering by name.
func (p *CaregiverProfile) Service(name string) (ServiceOffering, bool) {
	for _, s := range p.Services {
		if s.Name == name {
			return s, true
		}
	}
	return ServiceOffering{}, false
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"-"`
	Wallet    *Wallet   `json:"wallet,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Version   int64     `json:"version"`
}

// RoleName returns the stored tag for u's role.
func RoleName(r Role) string {
	if r == nil {
		return ""
	}
	return r.roleName()
}

type userAlias User

type userDocument struct {
	userAlias
	RoleTag string          `json:"role"`
	Profile json.RawMessage `json:"profile,omitempty"`
}

func (u User) MarshalJSON() ([]byte, error) {
	doc := userDocument{userAlias: userAlias(u), RoleTag: RoleName(u.Role)}
	if u.Role != nil {
		raw, err := json.Marshal(u.Role)
		if err != nil {
			return nil, err
		}
		doc.Profile = raw
	}
	return json.Marshal(doc)
}

func (u *User) UnmarshalJSON(data []byte) error {
	var doc userDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*u = User(doc.userAlias)

	var role Role
	switch doc.RoleTag {
	case RoleCaregiver:
		role = &CaregiverProfile{}
	case RoleClient:
		role = &ClientProfile{}
	case RoleAdmin:
		role = &AdminProfile{}
	default:
		return fmt.Errorf("unknown role %q", doc.RoleTag)
	}
	if len(doc.Profile) > 0 {
		if err := json.Unmarshal(doc.Profile, role); err != nil {
			return fmt.Errorf("decode %s profile: %w", doc.RoleTag, err)
		}
	}
	u.Role = role
	return nil
}

// NormalizeUser fills in the parts legacy records may lack. It reports
// whether anything changed so callers can persist the result once.
func NormalizeUser(u *User) bool {
	changed := false
	if u.Wallet == nil {
		u.Wallet = &Wallet{Transactions: []WalletTransaction{}}
		changed = true
	}
	if u.Wallet.Transactions == nil {
		u.Wallet.Transactions = []WalletTransaction{}
		changed = true
	}
	switch p := u.Role.(type) {
	case *CaregiverProfile:
		if p.BlockedDates == nil {
			p.BlockedDates = []string{}
			changed = true
		}
	case *ClientProfile, *AdminProfile:
	}
	return changed
}

func (u *User) SetVersion(v int64) { u.Version = v }
