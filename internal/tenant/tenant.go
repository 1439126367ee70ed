// Package tenant maps tenant-specific stores to their base stores.
//
// A tenant store carries its domain in the identifier, as in
// "workspace://@acme@main". The base store of that is "workspace://main".
package tenant

import (
	"fmt"
	"strings"

	"github.com/roach88/noderepo/internal/ir"
)

const separator = "@"

// Service normalises store refs. The zero value is ready to use.
type Service struct{}

// BaseStore strips the tenant domain from store. Stores without a domain
// are returned unchanged.
func (Service) BaseStore(store ir.StoreRef) ir.StoreRef {
	_, base, ok := split(store.Identifier)
	if !ok {
		return store
	}
	return ir.NewStoreRef(store.Protocol, base)
}

// Domain returns the tenant domain of store, or "" for the default tenant.
func (Service) Domain(store ir.StoreRef) string {
	domain, _, _ := split(store.Identifier)
	return domain
}

// TenantStore returns the store of domain whose base store is base. An
// empty domain returns base.
func (s Service) TenantStore(base ir.StoreRef, domain string) (ir.StoreRef, error) {
	if domain == "" {
		return base, nil
	}
	if strings.Contains(domain, separator) {
		return ir.StoreRef{}, fmt.Errorf("tenant domain %q must not contain %q", domain, separator)
	}
	if d := s.Domain(base); d != "" {
		return ir.StoreRef{}, fmt.Errorf("store %s already belongs to tenant %q", base, d)
	}
	return ir.NewStoreRef(base.Protocol, separator+domain+separator+base.Identifier), nil
}

func split(identifier string) (domain, base string, ok bool) {
	rest, found := strings.CutPrefix(identifier, separator)
	if !found {
		return "", identifier, false
	}
	domain, base, ok = strings.Cut(rest, separator)
	if !ok || domain == "" || base == "" {
		return "", identifier, false
	}
	return domain, base, true
}
