// Package catalog reads the yaml seed of users, their roles and the services
// caregivers offer.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"carebook/internal/models"

	"gopkg.in/yaml.v2"
)

type Entry struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Role  string `yaml:"role"`

	Services     []models.ServiceOffering `yaml:"services"`
	BlockedDates []string                 `yaml:"blocked_dates"`
	Location     models.GeoPoint          `yaml:"location"`
	Address      string                   `yaml:"address"`
	Permissions  []string                 `yaml:"permissions"`

	// InitialBalance opens the wallet, in cents.
	InitialBalance models.Money `yaml:"initial_balance"`
}

type File struct {
	Users []Entry `yaml:"users"`
}

// Load reads and converts the catalog at path.
func Load(path string) ([]*models.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]*models.User, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Users))
	users := make([]*models.User, 0, len(f.Users))
	for i, e := range f.Users {
		u, err := e.User()
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %q", i, u.ID)
		}
		seen[u.ID] = true
		users = append(users, u)
	}
	return users, nil
}

// User converts the entry into a user record with an opened wallet.
func (e Entry) User() (*models.User, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return nil, fmt.Errorf("user %q has no id", e.Name)
	}
	if e.InitialBalance < 0 {
		return nil, fmt.Errorf("user %s: negative initial balance", id)
	}

	var role models.Role
	switch strings.ToLower(strings.TrimSpace(e.Role)) {
	case models.RoleCaregiver:
		for _, s := range e.Services {
			if strings.TrimSpace(s.Name) == "" || s.Price <= 0 {
				return nil, fmt.Errorf("user %s: service needs a name and a positive price", id)
			}
		}
		role = &models.CaregiverProfile{
			Services:     e.Services,
			Location:     e.Location,
			BlockedDates: e.BlockedDates,
		}
	case models.RoleClient:
		role = &models.ClientProfile{Address: e.Address, Location: e.Location}
	case models.RoleAdmin:
		role = &models.AdminProfile{Permissions: e.Permissions}
	default:
		return nil, fmt.Errorf("user %s: unknown role %q", id, e.Role)
	}

	u := &models.User{
		ID:    id,
		Name:  e.Name,
		Email: e.Email,
		Role:  role,
		Wallet: &models.Wallet{
			InitialBalance: e.InitialBalance,
			Balance:        e.InitialBalance,
			Transactions:   []models.WalletTransaction{},
		},
	}
	models.NormalizeUser(u)
	return u, nil
}
