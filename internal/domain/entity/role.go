// Package entity 定义领域实体
package entity

// Role 对话消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid 是否为会话消息允许的角色
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}
