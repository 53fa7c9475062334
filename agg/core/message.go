package core

import (
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Msg is a single conversation turn. Values are never mutated after being appended to a
// session, callers only ever see copies.
type Msg struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewMsg(role Role, content string) Msg {
	if !role.Valid() {
		panic(fmt.Errorf("invalid role: %s", role))
	}

	return Msg{Role: role, Content: content}
}

func NewMsgSystem(content string) Msg {
	return NewMsg(RoleSystem, content)
}

func NewMsgUser(content string) Msg {
	return NewMsg(RoleUser, content)
}

func NewMsgAssistant(content string) Msg {
	return NewMsg(RoleAssistant, content)
}

func (m Msg) IsSystem() bool {
	return m.Role == RoleSystem
}
