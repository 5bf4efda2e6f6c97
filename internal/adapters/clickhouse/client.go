package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"erpinsight/internal/adapters/config"
	"erpinsight/pkg/errors"
)

// Client holds the connection used by the usage and query log repositories
type Client struct {
	conn     driver.Conn
	database string
}

// NewClient opens the connection and pings it within ctx
func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    5,
		ConnMaxLifetime: time.Hour,
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "erpinsight", Version: "1"}},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "open clickhouse")
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "ping clickhouse %s", cfg.Database)
	}

	return &Client{conn: conn, database: cfg.Database}, nil
}

// Conn returns the driver connection for repositories
func (c *Client) Conn() driver.Conn {
	return c.conn
}

func (c *Client) Database() string { return c.database }

func (c *Client) Close() error {
	return c.conn.Close()
}

// Health pings the server
func (c *Client) Health(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Exec runs a statement that returns no rows (DDL, lightweight deletes)
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}
