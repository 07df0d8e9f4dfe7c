package model

// Role is the platform role of a user.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleEditor Role = "EDITOR"
	RoleAuthor Role = "AUTHOR"
	RoleUser   Role = "USER"
)

// IsStaff reports whether r is one of the content-team roles.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleEditor || r == RoleAuthor
}

// User is a platform profile as seen by the messaging core.
type User struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Role   Role   `json:"role"`
}

// UserSummary is the public part of a profile attached to events and lists.
type UserSummary struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

func (u User) Summary() UserSummary {
	return UserSummary{UID: u.UID, Name: u.Name, Avatar: u.Avatar}
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	UID  string
	Role Role
}

// Notice is an asynchronous, inbox-style notification.
type Notice struct {
	ID       int64  `json:"id"`
	UserUID  string `json:"userUid"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	LinkPath string `json:"linkPath"`
}
