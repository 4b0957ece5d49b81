package remote

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// pgxBatch is a thin wrapper around pgx.Batch so callers can queue a run of
// same-shaped statements without importing pgx directly in remote.go.
type pgxBatch struct {
	b pgx.Batch
}

func (p *pgxBatch) queue(sql string, args ...any) {
	p.b.Queue(sql, args...)
}

// runBatch sends batch and drains every queued result, returning the first
// error encountered (if any) wrapped with op for context.
func (c *Client) runBatch(ctx context.Context, batch *pgxBatch, op string) error {
	if batch.b.Len() == 0 {
		return nil
	}

	br := c.pool.SendBatch(ctx, &batch.b)
	defer br.Close()

	for i := 0; i < batch.b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("remote: %s: %w", op, err)
		}
	}

	return nil
}
