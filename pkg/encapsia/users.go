package encapsia

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// SystemUser is a machine user registered under a system@ email.
type SystemUser struct {
	Email        string
	Description  string
	Capabilities []string
}

// SuperUser is a user holding the Superuser role.
type SuperUser struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// capitalize uppercases the first rune and lowercases the rest, matching the
// server's convention for system user descriptions.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// SystemUserEmail constructs the system user email for a description.
func SystemUserEmail(description string) string {
	encoded := strings.ReplaceAll(strings.ToLower(description), " ", "-")
	return "system@" + encoded + ".encapsia.com"
}

// SystemUserRoleName constructs the system user role name for a description.
func SystemUserRoleName(description string) string {
	return "System - " + capitalize(description)
}

// DeleteUser deletes the user with the given email.
func (c *Client) DeleteUser(ctx context.Context, email string) error {
	if err := c.delete(ctx, []string{"users", url.PathEscape(email)}, nil); err != nil {
		return fmt.Errorf("failed to delete user %s: %w", email, err)
	}
	return nil
}

// AllUsers returns the raw listing of all users.
func (c *Client) AllUsers(ctx context.Context) ([]map[string]any, error) {
	var out struct {
		Users []map[string]any `json:"users"`
	}
	if err := c.get(ctx, []string{"users"}, &out); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return out.Users, nil
}

// AllRoles returns the raw listing of all roles.
func (c *Client) AllRoles(ctx context.Context) ([]map[string]any, error) {
	var out struct {
		Roles []map[string]any `json:"roles"`
	}
	if err := c.get(ctx, []string{"roles"}, &out); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return out.Roles, nil
}

type roleSpec struct {
	Name         string   `json:"name"`
	Alias        string   `json:"alias"`
	Capabilities []string `json:"capabilities"`
}

type userSpec struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       string `json:"role"`
	Enabled    bool   `json:"enabled"`
	IsSiteUser bool   `json:"is_site_user"`
}

// AddSystemUser creates a system user and matching system role for the given
// description and capabilities. Unless force is set, an existing system user
// with the same description and capabilities is left alone.
func (c *Client) AddSystemUser(ctx context.Context, description string, capabilities []string, force bool) error {
	description = capitalize(description)
	email := SystemUserEmail(description)
	roleName := SystemUserRoleName(description)

	if !force {
		existing, err := c.SystemUsers(ctx)
		if err != nil {
			return err
		}
		for _, user := range existing {
			if user.Email == email && user.Description == description && sameCapabilities(user.Capabilities, capabilities) {
				return nil
			}
		}
	}

	role := roleSpec{Name: roleName, Alias: roleName, Capabilities: capabilities}
	if err := c.post(ctx, []string{"roles"}, []roleSpec{role}, nil); err != nil {
		return fmt.Errorf("failed to add system role %q: %w", roleName, err)
	}

	user := userSpec{
		Email:     email,
		FirstName: "System",
		LastName:  description,
		Role:      roleName,
		Enabled:   true,
	}
	if err := c.post(ctx, []string{"users"}, []userSpec{user}, nil); err != nil {
		return fmt.Errorf("failed to add system user %s: %w", email, err)
	}
	return nil
}

func sameCapabilities(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, cap := range a {
		set[cap] = true
	}
	for _, cap := range b {
		if !set[cap] {
			return false
		}
	}
	return true
}

// SystemUsers returns all system users with their role capabilities.
func (c *Client) SystemUsers(ctx context.Context) ([]SystemUser, error) {
	users, err := c.AllUsers(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := c.AllRoles(ctx)
	if err != nil {
		return nil, err
	}

	capabilities := make(map[string][]string, len(roles))
	for _, raw := range roles {
		var role roleSpec
		if err := Decode(raw, &role); err != nil {
			return nil, fmt.Errorf("unexpected role entry: %w", err)
		}
		capabilities[role.Name] = role.Capabilities
	}

	var out []SystemUser
	for _, raw := range users {
		var user userSpec
		if err := Decode(raw, &user); err != nil {
			return nil, fmt.Errorf("unexpected user entry: %w", err)
		}
		if !strings.HasPrefix(user.Email, "system@") {
			continue
		}
		out = append(out, SystemUser{
			Email:        user.Email,
			Description:  user.LastName,
			Capabilities: capabilities[user.Role],
		})
	}
	return out, nil
}

// SystemUserByDescription returns the system user with the given
// description, or nil when absent.
func (c *Client) SystemUserByDescription(ctx context.Context, description string) (*SystemUser, error) {
	description = capitalize(description)
	users, err := c.SystemUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		if user.Description == description {
			return &user, nil
		}
	}
	return nil, nil
}

// AddSuperUser creates a superuser and, if needed, the Superuser role.
func (c *Client) AddSuperUser(ctx context.Context, email, firstName, lastName string) error {
	role := roleSpec{Name: "Superuser", Alias: "Superuser", Capabilities: []string{"superuser"}}
	if err := c.post(ctx, []string{"roles"}, []roleSpec{role}, nil); err != nil {
		return fmt.Errorf("failed to add Superuser role: %w", err)
	}

	user := userSpec{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Role:      "Superuser",
		Enabled:   true,
	}
	if err := c.post(ctx, []string{"users"}, []userSpec{user}, nil); err != nil {
		return fmt.Errorf("failed to add super user %s: %w", email, err)
	}
	return nil
}

// SuperUsers returns all users holding the Superuser role.
func (c *Client) SuperUsers(ctx context.Context) ([]SuperUser, error) {
	users, err := c.AllUsers(ctx)
	if err != nil {
		return nil, err
	}

	var out []SuperUser
	for _, raw := range users {
		var user userSpec
		if err := Decode(raw, &user); err != nil {
			return nil, fmt.Errorf("unexpected user entry: %w", err)
		}
		if user.Role != "Superuser" {
			continue
		}
		out = append(out, SuperUser{Email: user.Email, FirstName: user.FirstName, LastName: user.LastName})
	}
	return out, nil
}
