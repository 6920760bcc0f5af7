package ippool

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/dipakchaulagain/NetAuthVPN/model"

	"gorm.io/gorm"
)

var (
	ErrPoolExhausted    = errors.New("ip pool exhausted")
	ErrDuplicateAddress = errors.New("ip address already assigned")
	ErrInvalidAddress   = errors.New("address not assignable")
)

// Pool hands out the lowest free host address in the VPN subnet. Occupancy
// is derived from active VPN users, never tracked separately, so it cannot
// go stale. The allocation decision and the row writes that claim the
// address run inside one transaction; the mutex keeps concurrent syncs from
// racing on the same decision.
type Pool struct {
	db       *gorm.DB
	mu       sync.Mutex
	subnet   netip.Prefix
	reserved map[netip.Addr]struct{}
}

func New(db *gorm.DB, subnet string, reserved []string) (*Pool, error) {
	prefix, err := netip.ParsePrefix(subnet)
	if err != nil {
		return nil, fmt.Errorf("invalid subnet %q: %w", subnet, err)
	}
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("subnet %q is not IPv4", subnet)
	}

	p := &Pool{
		db:       db,
		subnet:   prefix.Masked(),
		reserved: make(map[netip.Addr]struct{}, len(reserved)),
	}
	for _, r := range reserved {
		addr, err := netip.ParseAddr(r)
		if err != nil {
			return nil, fmt.Errorf("invalid reserved address %q: %w", r, err)
		}
		p.reserved[addr] = struct{}{}
	}

	return p, nil
}

// Allocate finds the lowest free host address and runs claim inside the same
// transaction that made the decision. The address is committed only if claim
// succeeds; a claim error rolls the whole allocation back.
func (p *Pool) Allocate(claim func(tx *gorm.DB, addr string) error) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var allocated string
	err := p.db.Transaction(func(tx *gorm.DB) error {
		occupied, err := occupiedSet(tx)
		if err != nil {
			return err
		}

		addr, ok := p.lowestFree(occupied)
		if !ok {
			return ErrPoolExhausted
		}

		if claim != nil {
			if err := claim(tx, addr.String()); err != nil {
				return err
			}
		}

		allocated = addr.String()
		return nil
	})
	if err != nil {
		return "", err
	}

	return allocated, nil
}

// Claim assigns a caller-chosen address under the same mutex+transaction
// discipline as Allocate: occupancy is re-read inside the claiming
// transaction, so two concurrent claims for the same free address cannot
// both commit.
func (p *Pool) Claim(addr string, claim func(tx *gorm.DB, addr string) error) error {
	a, err := p.validate(addr)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.db.Transaction(func(tx *gorm.DB) error {
		occupied, err := occupiedSet(tx)
		if err != nil {
			return err
		}
		if _, ok := occupied[a]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateAddress, addr)
		}

		if claim != nil {
			return claim(tx, a.String())
		}
		return nil
	})
}

// validate runs the static checks: parseable, inside the subnet, not a
// reserved or structural address. Occupancy is not consulted here.
func (p *Pool) validate(addr string) (netip.Addr, error) {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q is malformed", ErrInvalidAddress, addr)
	}
	if !p.subnet.Contains(a) {
		return netip.Addr{}, fmt.Errorf("%w: %s not in subnet %s", ErrInvalidAddress, addr, p.subnet)
	}
	if a == p.subnet.Addr() || a == broadcast(p.subnet) {
		return netip.Addr{}, fmt.Errorf("%w: %s is reserved for the subnet", ErrInvalidAddress, addr)
	}
	if _, ok := p.reserved[a]; ok {
		return netip.Addr{}, fmt.Errorf("%w: %s is reserved", ErrInvalidAddress, addr)
	}

	return a, nil
}

// CheckFree reports whether addr can be assigned: inside the subnet, not
// reserved, not the network or broadcast address, and not held by an active
// user.
func (p *Pool) CheckFree(addr string) error {
	a, err := p.validate(addr)
	if err != nil {
		return err
	}

	occupied, err := occupiedSet(p.db)
	if err != nil {
		return err
	}
	if _, ok := occupied[a]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAddress, addr)
	}

	return nil
}

func (p *Pool) Subnet() netip.Prefix {
	return p.subnet
}

func (p *Pool) lowestFree(occupied map[netip.Addr]struct{}) (netip.Addr, bool) {
	last := broadcast(p.subnet)
	for a := p.subnet.Addr().Next(); a.Less(last); a = a.Next() {
		if _, ok := p.reserved[a]; ok {
			continue
		}
		if _, ok := occupied[a]; ok {
			continue
		}
		return a, true
	}

	return netip.Addr{}, false
}

func occupiedSet(tx *gorm.DB) (map[netip.Addr]struct{}, error) {
	var ips []string
	err := tx.Model(&model.VPNUser{}).
		Where("active = ? AND ip_address <> ''", true).
		Pluck("ip_address", &ips).Error
	if err != nil {
		return nil, err
	}

	occupied := make(map[netip.Addr]struct{}, len(ips))
	for _, ip := range ips {
		if addr, err := netip.ParseAddr(ip); err == nil {
			occupied[addr] = struct{}{}
		}
	}

	return occupied, nil
}

func broadcast(prefix netip.Prefix) netip.Addr {
	a4 := prefix.Masked().Addr().As4()
	bits := prefix.Bits()
	for i := bits; i < 32; i++ {
		a4[i/8] |= 1 << (7 - i%8)
	}

	return netip.AddrFrom4(a4)
}
