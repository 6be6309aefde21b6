package auth

import "github.com/gin-gonic/gin"

// 系统内六类业务角色 + 管理员
const (
	RoleSupplier      = "supplier"
	RoleFieldStaff    = "field_staff"
	RoleDeliveryStaff = "delivery_staff"
	RoleLabStaff      = "lab_staff"
	RoleAccountant    = "accountant"
	RoleManager       = "manager"
	RoleAdmin         = "admin"
)

// Actor 当前操作人（由JWT中间件注入的身份信息）
type Actor struct {
	ID    string
	Name  string
	Roles []string
}

// HasRole 判断操作人是否持有指定角色，admin视同持有全部角色
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

// HasAnyRole 判断操作人是否持有任一指定角色
func (a Actor) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if a.HasRole(role) {
			return true
		}
	}
	return false
}

// FromContext 从gin上下文提取操作人身份
func FromContext(c *gin.Context) Actor {
	actor := Actor{}
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(string); ok {
			actor.ID = id
		}
	}
	if v, ok := c.Get("user_name"); ok {
		if name, ok := v.(string); ok {
			actor.Name = name
		}
	}
	if v, ok := c.Get("roles"); ok {
		if roles, ok := v.([]string); ok {
			actor.Roles = roles
		}
	}
	return actor
}
