package constants

const (
	Producer  = "producer"
	Buyer     = "buyer"
	Auditor   = "auditor"
	Regulator = "regulator"
)

// ValidRoles is the set of allowed actor roles.
var ValidRoles = []string{Producer, Buyer, Auditor, Regulator}

// IsValidRole returns true if role is one of the allowed values.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
