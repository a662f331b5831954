package models

// AccessLevel is a subject's level of access to one application table.
type AccessLevel string

const (
	AccessNone     AccessLevel = "None"
	AccessViewOnly AccessLevel = "ViewOnly"
	AccessManage   AccessLevel = "Manage"
	AccessAdmin    AccessLevel = "Admin"
)

// CanView is true for every level except None.
func (l AccessLevel) CanView() bool {
	switch l {
	case AccessViewOnly, AccessManage, AccessAdmin:
		return true
	default:
		return false
	}
}

// CanManage is true for Manage and Admin.
func (l AccessLevel) CanManage() bool {
	return l == AccessManage || l == AccessAdmin
}

// IsAdmin is true only for Admin.
func (l AccessLevel) IsAdmin() bool {
	return l == AccessAdmin
}

func (l AccessLevel) String() string {
	return string(l)
}
