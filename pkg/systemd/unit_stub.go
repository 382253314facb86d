//go:build !linux

package systemd

import "context"

type Units struct{}

func NewUnits(ctx context.Context) (*Units, error) { return nil, ErrUnsupported }

func (u *Units) Close() {}

func (u *Units) Status(ctx context.Context, name string) (UnitStatus, error) {
	return UnitStatus{}, ErrUnsupported
}

func (u *Units) Restart(ctx context.Context, name string) error { return ErrUnsupported }
