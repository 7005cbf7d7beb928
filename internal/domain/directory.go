package domain

// Role mirrors the user directory's role set
type Role string

const (
	RoleSuperAdmin   Role = "SUPER_ADMIN"
	RoleAdmin        Role = "ADMIN"
	RoleTeacher      Role = "TEACHER"
	RoleStudent      Role = "STUDENT"
	RoleParent       Role = "PARENT"
	RoleAccountant   Role = "ACCOUNTANT"
	RoleLibrarian    Role = "LIBRARIAN"
	RoleReceptionist Role = "RECEPTIONIST"
)

const UserActive = "ACTIVE"

// DirectoryUser is the projection of a user that the directory collaborator
// exposes to this service.
type DirectoryUser struct {
	ID        string
	SchoolID  string
	BranchID  *string
	Role      Role
	Status    string
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

func (u *DirectoryUser) Active() bool {
	return u.Status == UserActive
}
