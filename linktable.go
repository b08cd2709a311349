package ern

import "sync"

// linkPair is one (local, remote) link established across a single
// connection.
type linkPair struct {
	local  Pid
	remote Pid
}

// linkTable is a small array-backed set of link pairs belonging to one
// connection. Expected occupancy is single digits per connection, so a
// linear scan under one mutex beats any fancier structure.
type linkTable struct {
	mu    sync.Mutex
	pairs []linkPair
}

// add is idempotent: linking the same pair twice leaves the table
// unchanged.
func (lt *linkTable) add(local, remote Pid) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	for _, p := range lt.pairs {
		if p.local.Equal(local) && p.remote.Equal(remote) {
			return
		}
	}
	lt.pairs = append(lt.pairs, linkPair{local: local, remote: remote})
}

func (lt *linkTable) remove(local, remote Pid) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	for i, p := range lt.pairs {
		if p.local.Equal(local) && p.remote.Equal(remote) {
			lt.pairs = append(lt.pairs[:i], lt.pairs[i+1:]...)
			return
		}
	}
}

func (lt *linkTable) exists(local, remote Pid) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	for _, p := range lt.pairs {
		if p.local.Equal(local) && p.remote.Equal(remote) {
			return true
		}
	}
	return false
}

// localPids returns every distinct local pid with at least one link on
// this table.
func (lt *linkTable) localPids() []Pid {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	seen := make(map[string]bool)
	var out []Pid
	for _, p := range lt.pairs {
		key := p.local.String()
		if !seen[key] {
			seen[key] = true
			out = append(out, p.local)
		}
	}
	return out
}

// remotePids returns every distinct remote pid with at least one link
// on this table.
func (lt *linkTable) remotePids() []Pid {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	seen := make(map[string]bool)
	var out []Pid
	for _, p := range lt.pairs {
		key := p.remote.String()
		if !seen[key] {
			seen[key] = true
			out = append(out, p.remote)
		}
	}
	return out
}

// clearAll empties the table and returns what it held, for the caller
// to turn into synthetic exit notifications when a connection dies.
func (lt *linkTable) clearAll() []linkPair {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	pairs := lt.pairs
	lt.pairs = nil
	return pairs
}
