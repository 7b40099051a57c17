// Package connectivity answers the single question the sync logic asks before
// touching the cloud: does this host currently have a usable network.
package connectivity

import (
	"fmt"
	"net"
	"strings"
)

type Probe interface {
	HasInternet() bool
}

// Static always answers the same.
type Static bool

func (s Static) HasInternet() bool { return bool(s) }

// Func adapts a function.
type Func func() bool

func (f Func) HasInternet() bool { return f() }

// InterfaceProbe reports true when an up, non-loopback interface holds a
// global unicast address. It checks capability only; the cloud may still be
// unreachable.
type InterfaceProbe struct {
	// Only interfaces whose name starts with one of these are considered.
	// Empty means any.
	Prefixes []string

	interfaces func() ([]iface, error)
}

type iface struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

func systemInterfaces() ([]iface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]iface, 0, len(ifs))
	for _, i := range ifs {
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}
		out = append(out, iface{name: i.Name, flags: i.Flags, addrs: addrs})
	}
	return out, nil
}

func (p *InterfaceProbe) HasInternet() bool {
	list := p.interfaces
	if list == nil {
		list = systemInterfaces
	}
	ifs, err := list()
	if err != nil {
		return false
	}
	for _, i := range ifs {
		if i.flags&net.FlagUp == 0 || i.flags&net.FlagLoopback != 0 || !p.matches(i.name) {
			continue
		}
		for _, a := range i.addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

func (p *InterfaceProbe) matches(name string) bool {
	if len(p.Prefixes) == 0 {
		return true
	}
	for _, pre := range p.Prefixes {
		if strings.HasPrefix(name, pre) {
			return true
		}
	}
	return false
}

// FromMode builds the probe for a configured mode: auto, online or offline.
func FromMode(mode string) (Probe, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return &InterfaceProbe{}, nil
	case "online":
		return Static(true), nil
	case "offline":
		return Static(false), nil
	}
	return nil, fmt.Errorf("unknown connectivity mode %q", mode)
}
