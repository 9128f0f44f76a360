package autodriver

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/endlessm/eos-updater/updater"
)

// Client is the subset of the D-Bus updater proxy the driver needs.
// Depending on an interface here mirrors package updater's poller/
// deployer split: it lets driver tests substitute an in-memory fake
// instead of a real bus connection.
type Client interface {
	Poll(ctx context.Context) error
	PollVolume(ctx context.Context, path string) error
	Fetch(ctx context.Context, force bool) error
	Apply(ctx context.Context) error
	State(ctx context.Context) (updater.State, error)
	LastError(ctx context.Context) (name, message string, err error)
	// WaitForChange blocks until the State property changes or ctx is
	// done, whichever comes first.
	WaitForChange(ctx context.Context) error
}

const (
	busName       = "com.endlessm.Updater"
	objectPath    = dbus.ObjectPath("/com/endlessm/Updater")
	interfaceName = "com.endlessm.Updater"
)

// DBusClient drives the updater daemon over an established bus
// connection, the same GDBusProxy role eos-autoupdater's main.c plays
// against the daemon.
type DBusClient struct {
	conn    *dbus.Conn
	object  dbus.BusObject
	changes chan *dbus.Signal
}

// NewDBusClient subscribes to PropertiesChanged on conn and returns a
// ready-to-use Client.
func NewDBusClient(conn *dbus.Conn) (*DBusClient, error) {
	call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0,
		fmt.Sprintf("type='signal',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged',path='%s'", objectPath))
	if call.Err != nil {
		return nil, fmt.Errorf("autodriver: subscribing to property changes: %w", call.Err)
	}

	sigs := make(chan *dbus.Signal, 16)
	conn.Signal(sigs)

	return &DBusClient{
		conn:    conn,
		object:  conn.Object(busName, objectPath),
		changes: sigs,
	}, nil
}

func (c *DBusClient) Poll(ctx context.Context) error {
	return c.call(ctx, "Poll")
}

func (c *DBusClient) PollVolume(ctx context.Context, path string) error {
	return c.call(ctx, "PollVolume", path)
}

func (c *DBusClient) Fetch(ctx context.Context, force bool) error {
	if !force {
		return c.call(ctx, "Fetch")
	}
	options := map[string]dbus.Variant{"force": dbus.MakeVariant(true)}
	return c.call(ctx, "FetchFull", options)
}

func (c *DBusClient) Apply(ctx context.Context) error {
	return c.call(ctx, "Apply")
}

func (c *DBusClient) call(ctx context.Context, method string, args ...interface{}) error {
	call := c.object.CallWithContext(ctx, interfaceName+"."+method, 0, args...)
	return call.Err
}

func (c *DBusClient) State(ctx context.Context) (updater.State, error) {
	v, err := c.object.GetProperty(interfaceName + ".State")
	if err != nil {
		return updater.StateNone, fmt.Errorf("autodriver: reading State: %w", err)
	}
	n, ok := v.Value().(uint32)
	if !ok {
		return updater.StateNone, fmt.Errorf("autodriver: State property has unexpected type %T", v.Value())
	}
	return updater.State(n), nil
}

func (c *DBusClient) LastError(ctx context.Context) (string, string, error) {
	name, err := c.object.GetProperty(interfaceName + ".ErrorName")
	if err != nil {
		return "", "", err
	}
	msg, err := c.object.GetProperty(interfaceName + ".ErrorMessage")
	if err != nil {
		return "", "", err
	}
	return name.Value().(string), msg.Value().(string), nil
}

// UpdateInfo reports the refspec/id of the update the daemon most
// recently published, satisfying the driver's updateInfoReader
// interface.
func (c *DBusClient) UpdateInfo(ctx context.Context) (string, string, error) {
	refspec, err := c.object.GetProperty(interfaceName + ".UpdateRefspec")
	if err != nil {
		return "", "", err
	}
	id, err := c.object.GetProperty(interfaceName + ".UpdateId")
	if err != nil {
		return "", "", err
	}
	return refspec.Value().(string), id.Value().(string), nil
}

func (c *DBusClient) WaitForChange(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.changes:
		return nil
	}
}
