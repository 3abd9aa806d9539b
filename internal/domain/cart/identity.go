package cart

import "fmt"

const GuestKey = "guest_cart"

// Identity names the persisted cart a shopper owns. The zero value is the
// guest cart.
type Identity struct {
	owner string
}

func OwnerIdentity(owner string) Identity {
	return Identity{owner: owner}
}

func GuestIdentity() Identity {
	return Identity{}
}

func (i Identity) IsGuest() bool {
	return i.owner == ""
}

func (i Identity) Owner() string {
	return i.owner
}

// Key is the storage key of the cart keyspace entry.
func (i Identity) Key() string {
	if i.IsGuest() {
		return GuestKey
	}
	return fmt.Sprintf("cart:%s", i.owner)
}

func (i Identity) String() string {
	return i.Key()
}
