package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Listener is a connection that can wait for notifications, e.g. *pgx.Conn
// or the *pgx.Conn of an acquired pool connection.
type Listener interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// Listen issues LISTEN on channel and delivers notifications until ctx is
// canceled or the connection fails. Both returned channels are closed when
// listening stops; at most one error is delivered.
func Listen(ctx context.Context, conn Listener, channel string) (<-chan *pgconn.Notification, <-chan error) {
	notifications := make(chan *pgconn.Notification)
	errs := make(chan error, 1)

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		errs <- fmt.Errorf("listen %s: %w", channel, err)
		close(notifications)
		close(errs)
		return notifications, errs
	}

	go func() {
		defer close(notifications)
		defer close(errs)
		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errs <- err
				}
				return
			}
			select {
			case notifications <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return notifications, errs
}
