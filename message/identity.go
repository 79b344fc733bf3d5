////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package message

// RoleAdmin is the role that grants privileged moderation, such as deleting
// messages sent by other users.
const RoleAdmin = "admin"

// Identity is the logged-in user as supplied by the authentication layer. It
// is treated as read-only context.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// IsPrivileged returns true if the identity may moderate other users'
// messages.
func (i Identity) IsPrivileged() bool {
	return i.Role == RoleAdmin
}

// IsZero returns true if no user is logged in.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// IdentitySource returns the current identity. Components call it on every
// decision instead of caching the result so that an identity change is never
// observed stale.
type IdentitySource func() Identity

// StaticIdentity returns an IdentitySource that always returns i.
func StaticIdentity(i Identity) IdentitySource {
	return func() Identity { return i }
}
