//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package session

// AdminRole grants full access to every session.
const AdminRole = "admin"

// hasRole is a tiny helper over a caller's role list.
func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

func sharedWith(s *Session, userID string) bool {
	for _, id := range s.Metadata.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}

// CanRead reports whether the caller may read the session: the owner,
// an admin, anyone the session is shared with, or anyone at all when
// the session is public.
func CanRead(s *Session, userID string, roles []string) bool {
	if s == nil || s.Metadata == nil {
		return false
	}
	if s.Metadata.OwnerID == userID || hasRole(roles, AdminRole) {
		return true
	}
	if sharedWith(s, userID) {
		return true
	}
	return s.Metadata.IsPublic
}

// CanWrite reports whether the caller may append to the session: the
// owner, an admin, or a user the session is shared with. Public grants
// read only.
func CanWrite(s *Session, userID string, roles []string) bool {
	if s == nil || s.Metadata == nil {
		return false
	}
	if s.Metadata.OwnerID == userID || hasRole(roles, AdminRole) {
		return true
	}
	return sharedWith(s, userID)
}

// CanDelete reports whether the caller may delete the session: only the
// owner or an admin.
func CanDelete(s *Session, userID string, roles []string) bool {
	if s == nil || s.Metadata == nil {
		return false
	}
	return s.Metadata.OwnerID == userID || hasRole(roles, AdminRole)
}
