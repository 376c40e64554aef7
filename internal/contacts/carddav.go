// Package contacts reads postal addresses from a CardDAV address book
// so prompts can refer to people ("drive to Mom's") instead of street
// addresses.
package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/carddav"

	"github.com/alexlifshitz/teslanav/internal/interpret"
)

// Provider fetches contact addresses from a CardDAV server.
type Provider struct {
	client      *carddav.Client
	maxContacts int
	logger      *slog.Logger
}

// NewProvider connects to the CardDAV endpoint with basic auth.
func NewProvider(endpoint, username, password string, maxContacts int, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := carddav.NewClient(
		webdav.HTTPClientWithBasicAuth(nil, username, password), endpoint)
	if err != nil {
		return nil, fmt.Errorf("creating carddav client: %w", err)
	}
	return &Provider{client: client, maxContacts: maxContacts, logger: logger}, nil
}

// Addresses returns up to maxContacts contacts that carry a postal
// address, as interpretation context. Contacts without an address are
// skipped.
func (p *Provider) Addresses(ctx context.Context) ([]interpret.ContactAddress, error) {
	principal, err := p.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding carddav principal: %w", err)
	}
	homeSet, err := p.client.FindAddressBookHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("finding address book home set: %w", err)
	}
	books, err := p.client.FindAddressBooks(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("listing address books: %w", err)
	}

	query := &carddav.AddressBookQuery{
		DataRequest: carddav.AddressDataRequest{
			Props: []string{vcard.FieldFormattedName, vcard.FieldAddress},
		},
	}

	var out []interpret.ContactAddress
	for _, book := range books {
		objects, err := p.client.QueryAddressBook(ctx, book.Path, query)
		if err != nil {
			p.logger.Warn("address book query failed", "book", book.Path, "error", err)
			continue
		}
		for _, obj := range objects {
			if ca, ok := contactAddress(obj.Card); ok {
				out = append(out, ca)
				if len(out) >= p.maxContacts {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

// contactAddress extracts a display name and formatted postal address
// from one vCard.
func contactAddress(card vcard.Card) (interpret.ContactAddress, bool) {
	name := card.Value(vcard.FieldFormattedName)
	addr := card.Address()
	if name == "" || addr == nil {
		return interpret.ContactAddress{}, false
	}

	formatted := FormatAddress(addr)
	if formatted == "" {
		return interpret.ContactAddress{}, false
	}
	return interpret.ContactAddress{Name: name, Address: formatted}, true
}

// FormatAddress renders a vCard address as a single geocodable line.
func FormatAddress(addr *vcard.Address) string {
	parts := make([]string, 0, 4)
	for _, part := range []string{addr.StreetAddress, addr.Locality, addr.Region, addr.PostalCode} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}
