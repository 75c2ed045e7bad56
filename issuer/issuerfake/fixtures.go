package issuerfake

import (
	"github.com/jrsteele09/retail-session/stores"
	"github.com/jrsteele09/retail-session/users"
)

// Fixture usernames and the password shared by every fixture account.
const (
	Password       = "s3cret-pass"
	AdminUser      = "alice"
	StaffUser      = "sam"
	MultiUser      = "morgan"
	UnassignedUser = "noel"
)

var (
	StoreCentral = stores.Ref{ID: "1", Name: "Central", Address: "1 High Street"}
	StoreHarbour = stores.Ref{ID: "2", Name: "Harbour", Address: "9 Quay Road"}
	StoreNorth   = stores.Ref{ID: "3", Name: "North", Address: "40 Ridge Lane"}
)

// Fixtures registers an admin, a single store staff member, a two store staff member and
// a staff member with no store.
func Fixtures() []Option {
	return []Option{
		WithStores(StoreCentral, StoreHarbour, StoreNorth),
		WithAccount(Account{
			Password: Password,
			Identity: users.Identity{ID: 1, Username: AdminUser, Email: "alice@example.com", FirstName: "Alice", LastName: "Admin", Role: users.RoleAdmin},
		}),
		WithAccount(Account{
			Password: Password,
			Identity: users.Identity{ID: 2, Username: StaffUser, Email: "sam@example.com", FirstName: "Sam", Role: users.RoleStaff, StoreID: StoreCentral.ID},
			Stores:   []stores.Ref{StoreCentral},
		}),
		WithAccount(Account{
			Password: Password,
			Identity: users.Identity{ID: 3, Username: MultiUser, FirstName: "Morgan", Role: users.RoleStaff},
			Stores:   []stores.Ref{StoreHarbour, StoreNorth},
		}),
		WithAccount(Account{
			Password: Password,
			Identity: users.Identity{ID: 4, Username: UnassignedUser, Role: users.RoleStaff},
		}),
	}
}

// NewWithFixtures starts a fake service with Fixtures applied before options.
func NewWithFixtures(options ...Option) *Server {
	return New(append(Fixtures(), options...)...)
}
