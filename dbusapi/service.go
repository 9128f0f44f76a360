// Package dbusapi exports the running updater.StateMachine on the
// message bus at /com/endlessm/Updater (spec.md §6, SPEC_FULL.md
// §4.11). It is new logic specific to this module, built directly on
// top of godbus/dbus/v5's introspect and prop helpers the way
// kola/tests/coretest/dbus.go uses the same module family to talk to
// a bus, generalized here from a signal eavesdropper to a real
// exported object.
package dbusapi

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/sirupsen/logrus"

	"github.com/endlessm/eos-updater/updater"
	"github.com/endlessm/eos-updater/updatererror"
)

// ObjectPath and InterfaceName are fixed by spec.md §6.
const (
	ObjectPath    = dbus.ObjectPath("/com/endlessm/Updater")
	InterfaceName = "com.endlessm.Updater"
)

// Service wraps a *updater.StateMachine and republishes its observable
// surface as D-Bus properties, translating method calls back onto it.
type Service struct {
	Machine *updater.StateMachine

	conn  *dbus.Conn
	props *prop.Properties
}

// NewService returns a Service bound to machine. Call Export to
// publish it on a connection.
func NewService(machine *updater.StateMachine) *Service {
	return &Service{Machine: machine}
}

func propsSpec(initial updater.State) map[string]map[string]*prop.Prop {
	str := func(name string) *prop.Prop {
		return &prop.Prop{Value: "", Writable: false, Emit: prop.EmitTrue}
	}
	u64 := func(name string) *prop.Prop {
		return &prop.Prop{Value: uint64(0), Writable: false, Emit: prop.EmitTrue}
	}
	return map[string]map[string]*prop.Prop{
		InterfaceName: {
			"State":           {Value: uint32(initial), Writable: false, Emit: prop.EmitTrue},
			"ErrorName":       str("ErrorName"),
			"ErrorMessage":    str("ErrorMessage"),
			"UpdateId":        str("UpdateId"),
			"UpdateRefspec":   str("UpdateRefspec"),
			"OriginalRefspec": str("OriginalRefspec"),
			"CurrentId":       str("CurrentId"),
			"UpdateFlags":     {Value: uint32(0), Writable: false, Emit: prop.EmitTrue},
			"DownloadSize":    u64("DownloadSize"),
			"DownloadedBytes": u64("DownloadedBytes"),
			"UnpackedSize":    u64("UnpackedSize"),
			"Version":         str("Version"),
		},
	}
}

// Export publishes the object on conn, wiring StateMachine callbacks
// to live D-Bus property-changed signals.
func (s *Service) Export(conn *dbus.Conn) error {
	s.conn = conn

	props := prop.New(conn, ObjectPath, propsSpec(s.Machine.State()))
	s.props = props

	s.Machine.OnState = s.onState
	s.Machine.OnProgress = s.onProgress

	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("dbusapi: exporting methods: %w", err)
	}

	node := &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: InterfaceName,
				Methods: []introspect.Method{
					{Name: "Poll"},
					{Name: "PollVolume", Args: []introspect.Arg{{Name: "path", Type: "s", Direction: "in"}}},
					{Name: "Fetch"},
					{Name: "FetchFull", Args: []introspect.Arg{{Name: "options", Type: "a{sv}", Direction: "in"}}},
					{Name: "Apply"},
					{Name: "Cancel"},
				},
				Properties: props.Introspection(InterfaceName),
			},
		},
	}
	return conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable")
}

// Poll implements the Poll() D-Bus method.
func (s *Service) Poll() *dbus.Error {
	return asDBusError(s.Machine.Poll(context.Background()))
}

// PollVolume implements the PollVolume(path) D-Bus method. The path
// itself is informational only here: spec.md §4.3 resolves the
// volume-only source set from configuration, not from this argument,
// so it is accepted for API compatibility and otherwise unused.
func (s *Service) PollVolume(path string) *dbus.Error {
	return asDBusError(s.Machine.PollVolume(context.Background()))
}

// Fetch implements the Fetch() D-Bus method.
func (s *Service) Fetch() *dbus.Error {
	return asDBusError(s.Machine.Fetch(context.Background(), false))
}

// FetchFull implements the FetchFull(options) D-Bus method, honouring
// the "force" : b option key (spec.md §6).
func (s *Service) FetchFull(options map[string]dbus.Variant) *dbus.Error {
	force := false
	if v, ok := options["force"]; ok {
		if b, ok := v.Value().(bool); ok {
			force = b
		}
	}
	return asDBusError(s.Machine.Fetch(context.Background(), force))
}

// Apply implements the Apply() D-Bus method.
func (s *Service) Apply() *dbus.Error {
	return asDBusError(s.Machine.Apply(context.Background()))
}

// Cancel implements the Cancel() D-Bus method.
func (s *Service) Cancel() *dbus.Error {
	return asDBusError(s.Machine.Cancel())
}

func asDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	uerr, ok := updatererror.As(err)
	if !ok {
		return dbus.MakeFailedError(err)
	}
	return dbus.NewError(uerr.DBusName(), []interface{}{uerr.Message})
}

func (s *Service) onState(st updater.State) {
	s.props.SetMust(InterfaceName, "State", uint32(st))

	if st == updater.StateError {
		if uerr := s.Machine.LastError(); uerr != nil {
			s.props.SetMust(InterfaceName, "ErrorName", uerr.DBusName())
			s.props.SetMust(InterfaceName, "ErrorMessage", uerr.Message)
		}
	} else {
		s.props.SetMust(InterfaceName, "ErrorName", "")
		s.props.SetMust(InterfaceName, "ErrorMessage", "")
	}

	if st == updater.StateUpdateAvailable {
		if info := s.Machine.UpdateInfo(); info != nil {
			s.props.SetMust(InterfaceName, "UpdateId", info.Checksum.String())
			s.props.SetMust(InterfaceName, "UpdateRefspec", info.UpgradeRefspec.String())
			s.props.SetMust(InterfaceName, "OriginalRefspec", info.OriginalRefspec.String())
			s.props.SetMust(InterfaceName, "Version", info.Version)
		}
	}

	logrus.WithField("state", st).Debug("dbusapi: published state transition")
}

func (s *Service) onProgress(p updater.Progress) {
	s.props.SetMust(InterfaceName, "DownloadSize", p.DownloadSize)
	s.props.SetMust(InterfaceName, "DownloadedBytes", p.DownloadedBytes)
	s.props.SetMust(InterfaceName, "UnpackedSize", p.UnpackedSize)
	if p.CurrentID != "" {
		s.props.SetMust(InterfaceName, "CurrentId", p.CurrentID)
	}
}
