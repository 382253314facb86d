package systemd

import (
	"errors"
	"strings"
	"time"
)

var ErrUnsupported = errors.New("systemd: unit control is linux only")

// DefaultUnit is the unit name the sync daemon is installed under.
const DefaultUnit = "ontime"

// UnitStatus is the state of one service unit.
type UnitStatus struct {
	Name        string
	Active      string // active, inactive, failed, ...
	SubState    string // running, dead, ...
	LoadState   string // loaded, not-found, ...
	Description string
	ActiveSince time.Time
	StateChange time.Time
}

func (s UnitStatus) Running() bool { return s.Active == "active" && s.SubState == "running" }

func unitName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultUnit
	}
	if !strings.Contains(name, ".") {
		name += ".service"
	}
	return name
}

// timestampProp reads a systemd timestamp property (microseconds since epoch).
func timestampProp(props map[string]any, key string) time.Time {
	if ts, ok := props[key].(uint64); ok && ts > 0 {
		return time.UnixMicro(int64(ts))
	}
	return time.Time{}
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func statusFromProps(name string, props map[string]any) UnitStatus {
	st := UnitStatus{
		Name:        name,
		Active:      stringProp(props, "ActiveState"),
		SubState:    stringProp(props, "SubState"),
		LoadState:   stringProp(props, "LoadState"),
		Description: stringProp(props, "Description"),
		ActiveSince: timestampProp(props, "ActiveEnterTimestamp"),
		StateChange: timestampProp(props, "StateChangeTimestamp"),
	}
	if st.LoadState == "not-found" {
		return notFound(name)
	}
	return st
}

func notFound(name string) UnitStatus {
	return UnitStatus{Name: name, Active: "unknown", SubState: "not-found", LoadState: "not-found"}
}

func isNoSuchUnit(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NoSuchUnit")
}
