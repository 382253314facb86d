//go:build linux

package systemd

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Units controls service units over the system bus.
type Units struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func NewUnits(ctx context.Context) (*Units, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return &Units{conn: conn}, nil
}

func (u *Units) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil {
		u.conn.Close()
		u.conn = nil
	}
}

func (u *Units) connection() (*dbus.Conn, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil, fmt.Errorf("systemd connection is closed")
	}
	return u.conn, nil
}

// Status reads the unit state. A missing unit is reported as not-found, not
// as an error.
func (u *Units) Status(ctx context.Context, name string) (UnitStatus, error) {
	conn, err := u.connection()
	if err != nil {
		return UnitStatus{}, err
	}
	unit := unitName(name)
	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		if isNoSuchUnit(err) {
			return notFound(unit), nil
		}
		return UnitStatus{}, fmt.Errorf("status %s: %w", unit, err)
	}
	return statusFromProps(unit, props), nil
}

// Restart restarts the unit and waits for systemd to report the job result.
func (u *Units) Restart(ctx context.Context, name string) error {
	conn, err := u.connection()
	if err != nil {
		return err
	}
	unit := unitName(name)
	done := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, unit, "replace", done); err != nil {
		return fmt.Errorf("restart %s: %w", unit, err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-done:
		if res != "done" {
			return fmt.Errorf("restart %s: job %s", unit, res)
		}
		return nil
	}
}
