// Package rib implements the route and peer adjacency store. Routes are
// shared between the peers that advertise them, and a route is removed from
// the store when the last peer that advertises it is removed.
package rib

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	log "github.com/golang/glog"
	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/constants"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// unixTS is used to determine the current unix timestamp in nanoseconds since the
// epoch. It is defined such that it can be overloaded by unit tests.
var unixTS = time.Now().UnixNano

// RIBHookFn is a function that is used as a hook following a change. It takes:
//   - an OpType determining whether an add, remove, or modify operation was sent.
//   - the timestamp in nanoseconds since the unix epoch that a function was performed.
//   - the table that was changed.
//   - the changed entry, as a Route or Peer.
type RIBHookFn func(constants.OpType, int64, constants.Table, any)

var (
	// ErrPeerNotFound is returned when the peer named in an operation does not exist.
	ErrPeerNotFound = status.Error(codes.NotFound, "peer not found")
	// ErrPeerExists is returned when a strict peer add finds an existing peer.
	ErrPeerExists = status.Error(codes.AlreadyExists, "peer already exists")
	// ErrRouteNotFound is returned when the route named in an operation does not exist,
	// for per-peer operations it indicates that the peer does not advertise the route.
	ErrRouteNotFound = status.Error(codes.NotFound, "route not found")
	// ErrRouteExists is returned when a strict route add finds an existing route.
	ErrRouteExists = status.Error(codes.AlreadyExists, "route already exists")
)

// Route is the external representation of a route entry.
type Route struct {
	// Prefix is the address of the route, and the key of the route table.
	Prefix netip.Addr
	// Mask is the network mask of the route.
	Mask netip.Addr
	// NextHop is the next-hop address of the route.
	NextHop netip.Addr
	// OutIfIndex is the outgoing interface index.
	OutIfIndex uint32
	// Creator is the address of the peer that last wrote the route, it is
	// invalid for routes that were installed directly.
	Creator netip.Addr
	// Peers are the addresses of the peers advertising the route, populated
	// when a route is returned from the RIB.
	Peers []netip.Addr
	// Static indicates that the route was installed directly rather than
	// learnt from a peer, such that it is retained when it has no peers.
	Static bool
}

// Peer is the external representation of a peer entry.
type Peer struct {
	// Prefix is the address of the peer.
	Prefix netip.Addr
	// OutIfIndex is the interface index through which the peer is reached.
	OutIfIndex uint32
	// Routes are the prefixes advertised by the peer, populated when a peer
	// is returned from the RIB.
	Routes []netip.Addr
}

// routeEntry is a route held in the route table. It is shared between the
// route table and the route tables of each peer that advertises it.
type routeEntry struct {
	prefix     netip.Addr
	mask       netip.Addr
	nextHop    netip.Addr
	outIfIndex uint32
	creator    netip.Addr
	static     bool

	// peers is the set of peers advertising the route. It must always mirror
	// the set of peers whose routes map contains this entry.
	peers map[netip.Addr]*peerEntry
}

// peerEntry is a peer held in the peer table.
type peerEntry struct {
	prefix     netip.Addr
	outIfIndex uint32
	// routes is the set of routes advertised by the peer, keyed by prefix.
	routes map[netip.Addr]*routeEntry
}

// table holds the routes and peers of a single address family.
type table struct {
	family address.Family

	// mu protects both the routes and peers maps. A single lock is used for
	// the two maps so that operations that change both sides of the
	// route-peer relationship are atomic.
	mu     sync.RWMutex
	routes map[netip.Addr]*routeEntry
	peers  map[netip.Addr]*peerEntry
}

func newTable(f address.Family) *table {
	return &table{
		family: f,
		routes: map[netip.Addr]*routeEntry{},
		peers:  map[netip.Addr]*peerEntry{},
	}
}

// change is a change that has been made to the RIB that is to be reported to
// the post-change hook once the table lock has been released.
type change struct {
	op    constants.OpType
	table constants.Table
	entry any
}

// RIB is the route and peer store of a router, holding a table per address
// family.
type RIB struct {
	t *address.PerFamily[*table]

	// hookMu protects postChangeHook.
	hookMu sync.RWMutex
	// postChangeHook is a function that is called after each of the operations
	// within the RIB completes.
	postChangeHook RIBHookFn
}

// RIBOpt is an interface that is implemented for options to the RIB.
type RIBOpt interface {
	isRIBOpt()
}

// hook is the internal implementation of the WithHook option.
type hook struct {
	fn RIBHookFn
}

// isRIBOpt implements the RIBOpt interface.
func (*hook) isRIBOpt() {}

// WithHook specifies a function that is called after each change to the RIB.
func WithHook(fn RIBHookFn) *hook {
	return &hook{fn: fn}
}

// New returns a new, empty, RIB.
func New(opts ...RIBOpt) *RIB {
	r := &RIB{
		t: address.NewPerFamily(newTable),
	}
	for _, o := range opts {
		if h, ok := o.(*hook); ok {
			r.postChangeHook = h.fn
		}
	}
	return r
}

// SetHook assigns the supplied hook to the RIB.
func (r *RIB) SetHook(fn RIBHookFn) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.postChangeHook = fn
}

// notify calls the post-change hook for each of the changes in cs.
func (r *RIB) notify(cs []change) {
	r.hookMu.RLock()
	hook := r.postChangeHook
	r.hookMu.RUnlock()
	if hook == nil {
		return
	}
	ts := unixTS()
	for _, c := range cs {
		hook(c.op, ts, c.table, c.entry)
	}
}

// tableFor returns the table for the family of a, or an error if a is not
// a valid address.
func (r *RIB) tableFor(a netip.Addr) (*table, error) {
	if err := address.Validate(a); err != nil {
		return nil, err
	}
	return r.t.For(a), nil
}

// PeerAdd adds a peer with address addr reached through the interface with
// index ifIndex. It returns ErrPeerExists if the peer already exists.
func (r *RIB) PeerAdd(addr netip.Addr, ifIndex uint32) error {
	addr = address.Canonical(addr)
	t, err := r.tableFor(addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if _, ok := t.peers[addr]; ok {
		t.mu.Unlock()
		return fmt.Errorf("cannot add peer %s: %w", addr, ErrPeerExists)
	}
	p := t.addPeer(addr, ifIndex)
	t.mu.Unlock()

	log.V(2).Infof("added peer %s, ifindex %d", addr, ifIndex)
	r.notify([]change{{op: constants.ADD, table: constants.PEER, entry: p}})
	return nil
}

// PeerAddModify adds a peer with address addr, or updates the interface index
// of an existing peer. It returns constants.ADD if the peer was created, and
// constants.REPLACE if it was modified.
func (r *RIB) PeerAddModify(addr netip.Addr, ifIndex uint32) (constants.OpType, error) {
	addr = address.Canonical(addr)
	t, err := r.tableFor(addr)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	op := constants.ADD
	var p Peer
	if pe, ok := t.peers[addr]; ok {
		pe.outIfIndex = ifIndex
		op = constants.REPLACE
		p = pe.view()
	} else {
		p = t.addPeer(addr, ifIndex)
	}
	t.mu.Unlock()

	log.V(2).Infof("peer %s, ifindex %d: %s", addr, ifIndex, op)
	r.notify([]change{{op: op, table: constants.PEER, entry: p}})
	return op, nil
}

// addPeer creates the peer entry for addr. It must be called with t.mu held.
func (t *table) addPeer(addr netip.Addr, ifIndex uint32) Peer {
	pe := &peerEntry{
		prefix:     addr,
		outIfIndex: ifIndex,
		routes:     map[netip.Addr]*routeEntry{},
	}
	t.peers[addr] = pe
	return pe.view()
}

// PeerLookup returns the peer with address addr.
func (r *RIB) PeerLookup(addr netip.Addr) (Peer, error) {
	addr = address.Canonical(addr)
	t, err := r.tableFor(addr)
	if err != nil {
		return Peer{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	pe, ok := t.peers[addr]
	if !ok {
		return Peer{}, fmt.Errorf("cannot find peer %s: %w", addr, ErrPeerNotFound)
	}
	return pe.view(), nil
}

// PeerDelete removes the peer with address addr. The peer is removed from the
// set of peers of each route that it advertises, and any route that is left
// without a peer is removed.
func (r *RIB) PeerDelete(addr netip.Addr) error {
	addr = address.Canonical(addr)
	t, err := r.tableFor(addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	pe, ok := t.peers[addr]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("cannot delete peer %s: %w", addr, ErrPeerNotFound)
	}
	cs := t.deletePeer(pe)
	t.mu.Unlock()

	log.V(2).Infof("deleted peer %s, %d changes", addr, len(cs))
	r.notify(cs)
	return nil
}

// deletePeer removes pe from t, unlinking it from every route that it
// advertises. It must be called with t.mu held.
func (t *table) deletePeer(pe *peerEntry) []change {
	var cs []change
	for _, pfx := range sortedKeys(pe.routes) {
		cs = append(cs, t.unlink(pe, pe.routes[pfx])...)
	}
	delete(t.peers, pe.prefix)
	return append(cs, change{op: constants.DELETE, table: constants.PEER, entry: pe.view()})
}

// unlink removes the relationship between the peer pe and route re, and
// removes re from the route table if it no longer has any peers and was
// not installed directly. It must be called with t.mu held.
func (t *table) unlink(pe *peerEntry, re *routeEntry) []change {
	delete(pe.routes, re.prefix)
	delete(re.peers, pe.prefix)
	cs := []change{{op: constants.DELETE, table: constants.PEER_ROUTE, entry: peerRoute(pe, re)}}
	if len(re.peers) == 0 && !re.static {
		delete(t.routes, re.prefix)
		log.V(2).Infof("route %s removed with its last peer %s", re.prefix, pe.prefix)
		cs = append(cs, change{op: constants.DELETE, table: constants.ROUTE, entry: re.view()})
	}
	return cs
}

// link creates the relationship between the peer pe and route re. It must
// be called with t.mu held.
func link(pe *peerEntry, re *routeEntry) {
	pe.routes[re.prefix] = re
	re.peers[pe.prefix] = pe
}

// checkRoute validates the route rt for use with the peer with address peer,
// returning rt with its addresses in canonical form.
func checkRoute(peer netip.Addr, rt Route) (Route, error) {
	rt.Prefix = address.Canonical(rt.Prefix)
	rt.Mask = address.Canonical(rt.Mask)
	rt.NextHop = address.Canonical(rt.NextHop)
	addrs := []netip.Addr{rt.Prefix}
	if peer.IsValid() {
		addrs = []netip.Addr{peer, rt.Prefix}
	}
	if rt.Mask.IsValid() {
		addrs = append(addrs, rt.Mask)
	}
	if err := address.SameFamily(addrs...); err != nil {
		return Route{}, err
	}
	if rt.Mask.IsValid() {
		if _, err := address.MaskLen(rt.Mask); err != nil {
			return Route{}, err
		}
	}
	return rt, nil
}

// PeerRouteAdd adds the route rt to the set of routes advertised by the peer
// with address peer. ErrPeerNotFound is returned if the peer does not exist,
// and ErrRouteExists if the peer already advertises the route. If another
// peer already advertises the route, the existing route is shared and its
// attributes are left unchanged.
func (r *RIB) PeerRouteAdd(peer netip.Addr, rt Route) error {
	peer = address.Canonical(peer)
	rt, err := checkRoute(peer, rt)
	if err != nil {
		return err
	}
	t := r.t.For(peer)

	t.mu.Lock()
	pe, ok := t.peers[peer]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("cannot add route %s: peer %s: %w", rt.Prefix, peer, ErrPeerNotFound)
	}
	if _, ok := pe.routes[rt.Prefix]; ok {
		t.mu.Unlock()
		return fmt.Errorf("cannot add route %s to peer %s: %w", rt.Prefix, peer, ErrRouteExists)
	}
	cs := t.attach(pe, rt)
	t.mu.Unlock()

	log.V(2).Infof("added route %s for peer %s", rt.Prefix, peer)
	r.notify(cs)
	return nil
}

// PeerRouteAddModify adds the route rt to the set of routes advertised by the
// peer with address peer, or if the peer already advertises the route, updates
// the next-hop and interface of the route. Since routes are shared between
// peers, the update is seen by all peers that advertise the route. It returns
// constants.ADD if the peer did not previously advertise the route, and
// constants.REPLACE if it did.
func (r *RIB) PeerRouteAddModify(peer netip.Addr, rt Route) (constants.OpType, error) {
	peer = address.Canonical(peer)
	rt, err := checkRoute(peer, rt)
	if err != nil {
		return 0, err
	}
	t := r.t.For(peer)

	t.mu.Lock()
	pe, ok := t.peers[peer]
	if !ok {
		t.mu.Unlock()
		return 0, fmt.Errorf("cannot add route %s: peer %s: %w", rt.Prefix, peer, ErrPeerNotFound)
	}
	if re, ok := pe.routes[rt.Prefix]; ok {
		re.nextHop = rt.NextHop
		re.outIfIndex = rt.OutIfIndex
		re.creator = peer
		v := re.view()
		t.mu.Unlock()

		log.V(2).Infof("modified route %s for peer %s, next-hop %s, ifindex %d", rt.Prefix, peer, rt.NextHop, rt.OutIfIndex)
		r.notify([]change{{op: constants.REPLACE, table: constants.ROUTE, entry: v}})
		return constants.REPLACE, nil
	}
	cs := t.attach(pe, rt)
	t.mu.Unlock()

	log.V(2).Infof("added route %s for peer %s", rt.Prefix, peer)
	r.notify(cs)
	return constants.ADD, nil
}

// attach links the peer pe to the route described by rt, creating the route
// if it does not already exist. It must be called with t.mu held.
func (t *table) attach(pe *peerEntry, rt Route) []change {
	var cs []change
	re, ok := t.routes[rt.Prefix]
	if !ok {
		re = &routeEntry{
			prefix:     rt.Prefix,
			mask:       rt.Mask,
			nextHop:    rt.NextHop,
			outIfIndex: rt.OutIfIndex,
			creator:    pe.prefix,
			peers:      map[netip.Addr]*peerEntry{},
		}
		t.routes[rt.Prefix] = re
		cs = append(cs, change{op: constants.ADD, table: constants.ROUTE, entry: re.view()})
	}
	link(pe, re)
	return append(cs, change{op: constants.ADD, table: constants.PEER_ROUTE, entry: peerRoute(pe, re)})
}

// PeerRouteLookup returns the route with prefix pfx from the set of routes
// advertised by the peer with address peer. ErrPeerNotFound is returned if the
// peer does not exist, and ErrRouteNotFound if the peer does not advertise pfx,
// regardless of whether the route is advertised by other peers.
func (r *RIB) PeerRouteLookup(peer, pfx netip.Addr) (Route, error) {
	peer, pfx = address.Canonical(peer), address.Canonical(pfx)
	if err := address.SameFamily(peer, pfx); err != nil {
		return Route{}, err
	}
	t := r.t.For(peer)

	t.mu.RLock()
	defer t.mu.RUnlock()
	pe, ok := t.peers[peer]
	if !ok {
		return Route{}, fmt.Errorf("cannot find route %s: peer %s: %w", pfx, peer, ErrPeerNotFound)
	}
	re, ok := pe.routes[pfx]
	if !ok {
		return Route{}, fmt.Errorf("cannot find route %s for peer %s: %w", pfx, peer, ErrRouteNotFound)
	}
	return re.view(), nil
}

// PeerRouteDelete removes the route with prefix pfx from the set of routes
// advertised by the peer with address peer. If no other peer advertises the
// route it is removed from the route table.
func (r *RIB) PeerRouteDelete(peer, pfx netip.Addr) error {
	peer, pfx = address.Canonical(peer), address.Canonical(pfx)
	if err := address.SameFamily(peer, pfx); err != nil {
		return err
	}
	t := r.t.For(peer)

	t.mu.Lock()
	pe, ok := t.peers[peer]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("cannot delete route %s: peer %s: %w", pfx, peer, ErrPeerNotFound)
	}
	re, ok := pe.routes[pfx]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("cannot delete route %s for peer %s: %w", pfx, peer, ErrRouteNotFound)
	}
	cs := t.unlink(pe, re)
	t.mu.Unlock()

	log.V(2).Infof("deleted route %s for peer %s", pfx, peer)
	r.notify(cs)
	return nil
}

// RouteAdd installs the route rt directly into the route table. Routes
// installed directly are retained when no peer advertises them. It returns
// ErrRouteExists if the prefix is already present.
func (r *RIB) RouteAdd(rt Route) error {
	rt, err := checkRoute(netip.Addr{}, rt)
	if err != nil {
		return err
	}
	t := r.t.For(rt.Prefix)

	t.mu.Lock()
	if _, ok := t.routes[rt.Prefix]; ok {
		t.mu.Unlock()
		return fmt.Errorf("cannot add route %s: %w", rt.Prefix, ErrRouteExists)
	}
	re := &routeEntry{
		prefix:     rt.Prefix,
		mask:       rt.Mask,
		nextHop:    rt.NextHop,
		outIfIndex: rt.OutIfIndex,
		static:     true,
		peers:      map[netip.Addr]*peerEntry{},
	}
	t.routes[rt.Prefix] = re
	v := re.view()
	t.mu.Unlock()

	log.V(2).Infof("added static route %s", rt.Prefix)
	r.notify([]change{{op: constants.ADD, table: constants.ROUTE, entry: v}})
	return nil
}

// RouteLookup returns the route with prefix pfx from the route table,
// regardless of the peers that advertise it.
func (r *RIB) RouteLookup(pfx netip.Addr) (Route, error) {
	pfx = address.Canonical(pfx)
	t, err := r.tableFor(pfx)
	if err != nil {
		return Route{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	re, ok := t.routes[pfx]
	if !ok {
		return Route{}, fmt.Errorf("cannot find route %s: %w", pfx, ErrRouteNotFound)
	}
	return re.view(), nil
}

// RouteDelete removes the route with prefix pfx from the route table, along
// with its membership of each peer's route table.
func (r *RIB) RouteDelete(pfx netip.Addr) error {
	pfx = address.Canonical(pfx)
	t, err := r.tableFor(pfx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	re, ok := t.routes[pfx]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("cannot delete route %s: %w", pfx, ErrRouteNotFound)
	}
	var cs []change
	for _, p := range sortedKeys(re.peers) {
		pe := re.peers[p]
		delete(pe.routes, pfx)
		delete(re.peers, p)
		cs = append(cs, change{op: constants.DELETE, table: constants.PEER_ROUTE, entry: peerRoute(pe, re)})
	}
	delete(t.routes, pfx)
	cs = append(cs, change{op: constants.DELETE, table: constants.ROUTE, entry: re.view()})
	t.mu.Unlock()

	log.V(2).Infof("deleted route %s", pfx)
	r.notify(cs)
	return nil
}

// PeerIterate calls fn for each peer of family f in address order. Iteration
// stops when fn returns false. fn is called with a snapshot of the peer table,
// and hence may call back into the RIB.
func (r *RIB) PeerIterate(f address.Family, fn func(Peer) bool) {
	for _, p := range r.Peers(f) {
		if !fn(p) {
			return
		}
	}
}

// Peers returns the peers of family f in address order.
func (r *RIB) Peers(f address.Family) []Peer {
	t := r.t.Get(f)
	t.mu.RLock()
	defer t.mu.RUnlock()
	ps := make([]Peer, 0, len(t.peers))
	for _, a := range sortedKeys(t.peers) {
		ps = append(ps, t.peers[a].view())
	}
	return ps
}

// Routes returns the routes of family f in prefix order.
func (r *RIB) Routes(f address.Family) []Route {
	t := r.t.Get(f)
	t.mu.RLock()
	defer t.mu.RUnlock()
	rs := make([]Route, 0, len(t.routes))
	for _, a := range sortedKeys(t.routes) {
		rs = append(rs, t.routes[a].view())
	}
	return rs
}

// Close removes every peer from the RIB, with the same side effects as
// calling PeerDelete for each of them.
func (r *RIB) Close() {
	var cs []change
	r.t.Each(func(_ address.Family, t *table) {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, a := range sortedKeys(t.peers) {
			cs = append(cs, t.deletePeer(t.peers[a])...)
		}
	})
	r.notify(cs)
}

// view returns the external representation of the route.
func (re *routeEntry) view() Route {
	return Route{
		Prefix:     re.prefix,
		Mask:       re.mask,
		NextHop:    re.nextHop,
		OutIfIndex: re.outIfIndex,
		Creator:    re.creator,
		Peers:      sortedKeys(re.peers),
		Static:     re.static,
	}
}

// view returns the external representation of the peer.
func (pe *peerEntry) view() Peer {
	return Peer{
		Prefix:     pe.prefix,
		OutIfIndex: pe.outIfIndex,
		Routes:     sortedKeys(pe.routes),
	}
}

// PeerRoute is the entry reported to hooks when the relationship between a
// peer and a route changes.
type PeerRoute struct {
	Peer  netip.Addr
	Route Route
}

func peerRoute(pe *peerEntry, re *routeEntry) PeerRoute {
	return PeerRoute{Peer: pe.prefix, Route: re.view()}
}

// sortedKeys returns the keys of m in address order.
func sortedKeys[V any](m map[netip.Addr]V) []netip.Addr {
	ks := make([]netip.Addr, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Slice(ks, func(i, j int) bool { return ks[i].Less(ks[j]) })
	return ks
}
