package model

type Role string

const (
	RoleSystem    = Role("system")
	RoleUser      = Role("user")
	RoleAssistant = Role("assistant")
)

// AuthorRole is the transcript role of a message quoted by a reply.
func AuthorRole(fromBot bool) Role {
	if fromBot {
		return RoleAssistant
	}
	return RoleUser
}
