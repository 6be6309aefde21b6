package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Dispatcher 工作流通知分发器
// fire-and-forget：异步投递，失败只记日志，绝不影响触发它的状态变更
type Dispatcher struct {
	client *Client
	logger *zap.Logger
}

// NewDispatcher 创建通知分发器；client为nil时所有发送都静默跳过
func NewDispatcher(client *Client, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{client: client, logger: logger}
}

// NotifyRoles 向若干角色异步发送通知
func (d *Dispatcher) NotifyRoles(roles []string, msg Message) {
	if d == nil || d.client == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, role := range roles {
			if err := d.client.SendToRole(ctx, role, msg); err != nil {
				d.logger.Warn("notify role failed",
					zap.String("role", role),
					zap.String("title", msg.Title),
					zap.Error(err))
			}
		}
	}()
}

// NotifyUsers 向若干用户异步发送通知
func (d *Dispatcher) NotifyUsers(userIDs []string, msg Message) {
	if d == nil || d.client == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, uid := range userIDs {
			if uid == "" {
				continue
			}
			if err := d.client.SendToUser(ctx, uid, msg); err != nil {
				d.logger.Warn("notify user failed",
					zap.String("user_id", uid),
					zap.String("title", msg.Title),
					zap.Error(err))
			}
		}
	}()
}
