package state

// UserType is the role tag supplied by the authentication layer. It is not
// validated here; the trust boundary is the external auth service.
type UserType string

const (
	UserTypeEmployee UserType = "employee"
	UserTypeClient   UserType = "client"
	UserTypeStudent  UserType = "student"
	UserTypeAdmin    UserType = "admin"
)
