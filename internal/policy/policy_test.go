package policy

import (
	"context"
	"errors"
	"testing"

	"privmsg/internal/apperr"
	"privmsg/internal/model"
	"privmsg/internal/toggle"
)

func TestDecide(t *testing.T) {
	on := Toggles{UserToUser: true, UserToAdmin: true}
	off := Toggles{}

	tests := []struct {
		name      string
		sender    model.Role
		recipient model.Role
		toggles   Toggles
		want      Decision
	}{
		{"admin to user, toggles off", model.RoleAdmin, model.RoleUser, off, Decision{Allowed: true}},
		{"editor to admin", model.RoleEditor, model.RoleAdmin, off, Decision{Allowed: true}},
		{"author to user", model.RoleAuthor, model.RoleUser, off, Decision{Allowed: true}},
		{"user to user enabled", model.RoleUser, model.RoleUser, on, Decision{Allowed: true}},
		{"user to user disabled", model.RoleUser, model.RoleUser, off, Decision{Reason: ReasonUserToUserDisabled}},
		{"user to admin enabled", model.RoleUser, model.RoleAdmin, on, Decision{Allowed: true}},
		{"user to editor disabled", model.RoleUser, model.RoleEditor, off, Decision{Reason: ReasonUserToAdminDisabled}},
		{"user to author disabled", model.RoleUser, model.RoleAuthor, Toggles{UserToUser: true}, Decision{Reason: ReasonUserToAdminDisabled}},
		{"unknown sender", model.Role("GUEST"), model.RoleUser, on, Decision{Reason: ReasonNoPermission}},
		{"user to unknown recipient", model.RoleUser, model.Role("GUEST"), on, Decision{Reason: ReasonNoPermission}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.sender, tt.recipient, tt.toggles); got != tt.want {
				t.Errorf("Decide(%s, %s) = %+v, want %+v", tt.sender, tt.recipient, got, tt.want)
			}
		})
	}
}

func TestDecision_Err(t *testing.T) {
	if (Decision{Allowed: true}).Err() != nil {
		t.Error("Allowed decision should have no error")
	}
	err := Decision{Reason: ReasonUserToUserDisabled}.Err()
	if !errors.Is(err, apperr.ErrPermissionDenied) || apperr.ReasonOf(err) != ReasonUserToUserDisabled {
		t.Errorf("Unexpected denial error %v", err)
	}
}

func TestPolicy_ReadsTogglesPerCall(t *testing.T) {
	toggles := toggle.NewStatic(map[string]bool{toggle.UserToUserEnable: true})
	p := New(toggles)
	ctx := context.Background()

	if !p.Check(ctx, model.RoleUser, model.RoleUser).Allowed {
		t.Fatal("Expected allowed while toggle is on")
	}
	toggles.Set(toggle.UserToUserEnable, false)
	if p.Check(ctx, model.RoleUser, model.RoleUser).Allowed {
		t.Error("Toggle change should apply to the next check")
	}

	if err := p.SystemEnabled(ctx); err != nil {
		t.Errorf("System should default to enabled, got %v", err)
	}
	toggles.Set(toggle.MessageEnable, false)
	if err := p.SystemEnabled(ctx); !errors.Is(err, apperr.ErrSystemDisabled) {
		t.Errorf("Expected SystemDisabled, got %v", err)
	}
}

func TestPolicy_ReachableRoles(t *testing.T) {
	p := New(toggle.NewStatic(map[string]bool{toggle.UserToUserEnable: false, toggle.UserToAdminEnable: true}))
	roles := p.ReachableRoles(context.Background(), model.RoleUser)
	if len(roles) != 3 {
		t.Fatalf("Expected 3 staff roles, got %v", roles)
	}
	for _, r := range roles {
		if r == model.RoleUser {
			t.Error("USER should not be reachable with userToUser disabled")
		}
	}
}
