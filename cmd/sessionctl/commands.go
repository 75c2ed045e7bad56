package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/retail-session/issuer"
	"github.com/jrsteele09/retail-session/session"
	"github.com/jrsteele09/retail-session/stores"
	"github.com/jrsteele09/retail-session/token"
	"github.com/jrsteele09/retail-session/users"
)

type commands struct {
	manager *session.Manager
	issuer  *issuer.Client
	opts    options
}

func (c *commands) run(ctx context.Context) error {
	switch c.opts.command {
	case "signin":
		return c.signIn(ctx)
	case "whoami":
		return c.whoami(ctx)
	case "status":
		return c.status(ctx)
	case "signout":
		return c.signOut(ctx)
	case "stores":
		return c.stores(ctx)
	default:
		return fmt.Errorf("unknown command %q", c.opts.command)
	}
}

func (c *commands) signIn(ctx context.Context) error {
	role, err := users.ParseRole(c.opts.role)
	if err != nil {
		return err
	}
	res, err := c.manager.SignIn(ctx, session.SignInRequest{
		Username: c.opts.username,
		Password: c.opts.password,
		Role:     role,
		StoreID:  stores.ID(c.opts.storeID),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s (%s), session %s\n", res.Identity.FullName(), res.Identity.Role, res.SessionID)
	if res.Store != nil {
		fmt.Printf("Store: %s (%s)\n", res.Store.Name, res.Store.ID)
	}
	return nil
}

func (c *commands) whoami(ctx context.Context) error {
	if err := c.manager.Restore(ctx); err != nil {
		return err
	}
	identity, err := c.manager.RefreshUser(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Username\t%s\n", identity.Username)
	fmt.Fprintf(w, "Name\t%s\n", identity.FullName())
	fmt.Fprintf(w, "Email\t%s\n", identity.Email)
	fmt.Fprintf(w, "Role\t%s\n", identity.Role)
	if !identity.StoreID.IsZero() {
		fmt.Fprintf(w, "Store\t%s\n", identity.StoreID)
	}
	fmt.Fprintf(w, "Permissions\t%v\n", users.PermissionsForRole(identity.Role))
	return w.Flush()
}

func (c *commands) status(ctx context.Context) error {
	if err := c.manager.Restore(ctx); err != nil {
		return err
	}
	fmt.Printf("State: %s\n", c.manager.State())
	if !c.manager.State().Active() {
		return nil
	}
	fmt.Printf("Session: %s (since %s)\n", c.manager.SessionID(), c.manager.SignedInAt().Format(time.RFC3339))

	claims, err := token.Inspect(c.manager.Credentials().AccessToken)
	if err != nil {
		fmt.Println("Access token: not a JWT")
		return nil
	}
	if claims.ExpiresAt != nil {
		fmt.Printf("Access token expires: %s (expired: %t)\n", claims.ExpiresAt.Format(time.RFC3339), claims.Expired())
	}
	return nil
}

func (c *commands) signOut(ctx context.Context) error {
	// Loading the stored session first lets the sign-out listener report it.
	if _, err := c.manager.AccessToken(ctx); err != nil {
		fmt.Println("No stored session")
	}
	c.manager.SignOut(ctx)
	fmt.Println("Signed out")
	return nil
}

func (c *commands) stores(ctx context.Context) error {
	status, err := c.issuer.CheckAdmin(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Admin registered: %t\n", status.AdminExists)

	list, err := c.issuer.ListStores(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tName\tAddress")
	for _, ref := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", ref.ID, ref.Name, ref.Address)
	}
	return w.Flush()
}
