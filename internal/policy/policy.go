// Package policy decides whether one user may message another.
package policy

import (
	"context"

	"privmsg/internal/apperr"
	"privmsg/internal/model"
	"privmsg/internal/toggle"
)

// Denial reasons.
const (
	ReasonUserToUserDisabled  = "user-to-user messaging disabled"
	ReasonUserToAdminDisabled = "messaging admins disabled"
	ReasonNoPermission        = "no permission"
)

// Toggles is the snapshot of feature switches a decision depends on.
type Toggles struct {
	UserToUser  bool
	UserToAdmin bool
}

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Err converts a denial into a PermissionDenied error, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.New(apperr.KindPermissionDenied, d.Reason)
}

// Decide applies the rules in order: staff may message anyone; users
// may message users or staff only when the matching toggle is on.
func Decide(sender, recipient model.Role, t Toggles) Decision {
	switch {
	case sender.IsStaff():
		return Decision{Allowed: true}
	case sender == model.RoleUser && recipient == model.RoleUser:
		if t.UserToUser {
			return Decision{Allowed: true}
		}
		return Decision{Reason: ReasonUserToUserDisabled}
	case sender == model.RoleUser && recipient.IsStaff():
		if t.UserToAdmin {
			return Decision{Allowed: true}
		}
		return Decision{Reason: ReasonUserToAdminDisabled}
	default:
		return Decision{Reason: ReasonNoPermission}
	}
}

// Policy reads the toggles at the start of every check.
type Policy struct {
	toggles toggle.Provider
}

// New creates a Policy reading its switches from toggles.
func New(toggles toggle.Provider) *Policy {
	return &Policy{toggles: toggles}
}

// SystemEnabled returns ErrSystemDisabled when messaging is switched off.
func (p *Policy) SystemEnabled(ctx context.Context) error {
	if !p.toggles.GetBool(ctx, toggle.MessageEnable, true) {
		return apperr.ErrSystemDisabled
	}
	return nil
}

// Toggles snapshots the pair toggles.
func (p *Policy) Toggles(ctx context.Context) Toggles {
	return Toggles{
		UserToUser:  p.toggles.GetBool(ctx, toggle.UserToUserEnable, true),
		UserToAdmin: p.toggles.GetBool(ctx, toggle.UserToAdminEnable, true),
	}
}

// Check decides whether sender may message recipient.
func (p *Policy) Check(ctx context.Context, sender, recipient model.Role) Decision {
	return Decide(sender, recipient, p.Toggles(ctx))
}

// ReachableRoles lists the recipient roles sender may currently message.
func (p *Policy) ReachableRoles(ctx context.Context, sender model.Role) []model.Role {
	t := p.Toggles(ctx)
	var out []model.Role
	for _, r := range []model.Role{model.RoleAdmin, model.RoleEditor, model.RoleAuthor, model.RoleUser} {
		if Decide(sender, r, t).Allowed {
			out = append(out, r)
		}
	}
	return out
}
