// Package lanpeers implements sourceset.PeerLister against Avahi's
// system-bus API, the same mDNS/DNS-SD mechanism
// eos-updater-avahi.c/eos-updater/poll.c use upstream to advertise and
// discover OSTree repositories on the local network (spec.md §4.3
// "LAN").
package lanpeers

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/endlessm/eos-updater/ostreerepo"
	"github.com/endlessm/eos-updater/sourceset"
)

const (
	avahiBusName   = "org.freedesktop.Avahi"
	avahiRootPath  = dbus.ObjectPath("/")
	serverIface    = "org.freedesktop.Avahi.Server"
	browserIface   = "org.freedesktop.Avahi.ServiceBrowser"
	resolverIface  = "org.freedesktop.Avahi.ServiceResolver"
	serviceType    = "_ostree_repo._tcp"

	ifaceUnspec = int32(-1)
	protoUnspec = int32(-1)
)

// AvahiLister browses ServiceType on conn for BrowseFor, resolving
// every instance found into a LANPeer. Failures talking to Avahi
// (daemon absent, bus unreachable) surface as an error, which callers
// (sourceset.Build) treat as "drop the LAN finder for this cycle".
type AvahiLister struct {
	Conn     *dbus.Conn
	BrowseFor time.Duration // defaults to 2s
}

// ListPeers implements sourceset.PeerLister.
func (a *AvahiLister) ListPeers(ctx context.Context, ref ostreerepo.CollectionRef) ([]sourceset.LANPeer, error) {
	browseFor := a.BrowseFor
	if browseFor <= 0 {
		browseFor = 2 * time.Second
	}

	server := a.Conn.Object(avahiBusName, avahiRootPath)

	var browserPath dbus.ObjectPath
	if err := server.CallWithContext(ctx, serverIface+".ServiceBrowserNew", 0,
		ifaceUnspec, protoUnspec, serviceType, "local", uint32(0)).Store(&browserPath); err != nil {
		return nil, fmt.Errorf("lanpeers: starting service browser: %w", err)
	}

	sigs := make(chan *dbus.Signal, 32)
	a.Conn.Signal(sigs)
	defer a.Conn.RemoveSignal(sigs)
	matchRule := fmt.Sprintf("type='signal',interface='%s',path='%s'", browserIface, browserPath)
	a.Conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule)
	defer a.Conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, matchRule)

	type instance struct {
		iface, proto int32
		name, typ, domain string
	}
	var found []instance

	deadline := time.After(browseFor)
collect:
	for {
		select {
		case <-ctx.Done():
			break collect
		case <-deadline:
			break collect
		case sig := <-sigs:
			if sig.Name != browserIface+".ItemNew" || len(sig.Body) < 5 {
				continue
			}
			found = append(found, instance{
				iface:  sig.Body[0].(int32),
				proto:  sig.Body[1].(int32),
				name:   sig.Body[2].(string),
				typ:    sig.Body[3].(string),
				domain: sig.Body[4].(string),
			})
		}
	}

	var peers []sourceset.LANPeer
	for _, inst := range found {
		var resolverPath dbus.ObjectPath
		if err := server.CallWithContext(ctx, serverIface+".ServiceResolverNew", 0,
			inst.iface, inst.proto, inst.name, inst.typ, inst.domain, protoUnspec, uint32(0)).Store(&resolverPath); err != nil {
			continue
		}
		peer, ok := a.resolve(ctx, resolverPath)
		if ok {
			peers = append(peers, peer)
		}
	}
	return peers, nil
}

func (a *AvahiLister) resolve(ctx context.Context, resolverPath dbus.ObjectPath) (sourceset.LANPeer, bool) {
	sigs := make(chan *dbus.Signal, 4)
	a.Conn.Signal(sigs)
	defer a.Conn.RemoveSignal(sigs)
	matchRule := fmt.Sprintf("type='signal',interface='%s',path='%s'", resolverIface, resolverPath)
	a.Conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule)
	defer a.Conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, matchRule)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return sourceset.LANPeer{}, false
		case <-timeout:
			return sourceset.LANPeer{}, false
		case sig := <-sigs:
			if sig.Name != resolverIface+".Found" || len(sig.Body) < 9 {
				continue
			}
			host, _ := sig.Body[7].(string)
			port, _ := sig.Body[8].(uint16)
			if host == "" || port == 0 {
				return sourceset.LANPeer{}, false
			}
			// SummaryTimestamp is left at zero: resolving it would need
			// a further HTTP round trip to the peer's /summary, which
			// the fetcher's own pull-commit-only step already performs
			// once a URI is chosen, so peers here are ordered only by
			// discovery order.
			return sourceset.LANPeer{URI: fmt.Sprintf("http://%s:%d", host, port)}, true
		}
	}
}
