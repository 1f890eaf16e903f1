package health

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
)

// TemporalChecker verifies the worker can reach the Temporal frontend.
type TemporalChecker struct {
	Client    client.Client
	Namespace string
}

func (c *TemporalChecker) Name() string   { return "temporal" }
func (c *TemporalChecker) Critical() bool { return true }

func (c *TemporalChecker) Check(ctx context.Context) error {
	_, err := c.Client.WorkflowService().GetSystemInfo(ctx, nil)
	return err
}

// RedisChecker pings the clarification mirror. Runs degrade without it, so
// it is non-critical.
type RedisChecker struct {
	Client *redis.Client
}

func (c *RedisChecker) Name() string   { return "redis" }
func (c *RedisChecker) Critical() bool { return false }

func (c *RedisChecker) Check(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// DatabaseChecker pings the run persistence store, also non-critical.
type DatabaseChecker struct {
	DB *sqlx.DB
}

func (c *DatabaseChecker) Name() string   { return "database" }
func (c *DatabaseChecker) Critical() bool { return false }

func (c *DatabaseChecker) Check(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// ToolGatewayChecker verifies the tool gateway answers; without it every
// research section degrades, so it is critical.
type ToolGatewayChecker struct {
	Ping func(ctx context.Context) error
}

func (c *ToolGatewayChecker) Name() string   { return "tool_gateway" }
func (c *ToolGatewayChecker) Critical() bool { return true }

func (c *ToolGatewayChecker) Check(ctx context.Context) error {
	return c.Ping(ctx)
}
