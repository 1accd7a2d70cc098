package authz

import "github.com/geocoder89/placehunt/internal/domain/user"

// Identity is the verified caller behind a request.
type Identity struct {
	SubjectID string
	Role      string
}

func (id Identity) IsAdmin() bool {
	return id.Role == user.RoleAdmin
}

func (id Identity) Valid() bool {
	return id.SubjectID != "" && user.ValidRole(id.Role)
}

// IsOwnerOrAdmin gates every Place/Experience mutation against createdBy.
func IsOwnerOrAdmin(id Identity, ownerID string) bool {
	if id.IsAdmin() {
		return true
	}
	return id.SubjectID != "" && id.SubjectID == ownerID
}

// RequireAdmin gates role changes and user listing.
func RequireAdmin(id Identity) bool {
	return id.IsAdmin()
}

// CanDeleteUser allows account owners to remove themselves; anyone else needs admin.
func CanDeleteUser(id Identity, targetID string) bool {
	return IsOwnerOrAdmin(id, targetID)
}
