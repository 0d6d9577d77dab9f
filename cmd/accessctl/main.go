// Command accessctl is the operator console for the access-control engine:
// it manages access codes and group memberships and runs ad-hoc access
// checks against the same library surface the application servers use.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"mediagate.org/internal/access"
	"mediagate.org/internal/accesscode"
	"mediagate.org/internal/audit"
	"mediagate.org/internal/groups"
	"mediagate.org/internal/store/pg"
)

const usage = `usage: accessctl <command> [flags]

commands:
  create-code    mint a new access code
  revoke-code    deactivate an access code
  list-codes     list an owner's codes
  add-member     add a user to a group
  change-role    change a member's role
  remove-member  remove a user from a group
  invite         issue a group invitation
  accept-invite  redeem an invitation token
  check          run an access check`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "create-code":
		err = runCreateCode(ctx, os.Args[2:])
	case "revoke-code":
		err = runRevokeCode(ctx, os.Args[2:])
	case "list-codes":
		err = runListCodes(ctx, os.Args[2:])
	case "add-member":
		err = runAddMember(ctx, os.Args[2:])
	case "change-role":
		err = runChangeRole(ctx, os.Args[2:])
	case "remove-member":
		err = runRemoveMember(ctx, os.Args[2:])
	case "invite":
		err = runInvite(ctx, os.Args[2:])
	case "accept-invite":
		err = runAcceptInvite(ctx, os.Args[2:])
	case "check":
		err = runCheck(ctx, os.Args[2:])
	default:
		log.Fatalf("unknown command %q\n%s", os.Args[1], usage)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func openStore(dsn string) (*pg.Store, error) {
	if dsn == "" {
		dsn = os.Getenv("MEDIAGATE_PG_DSN")
	}
	if dsn == "" {
		return nil, fmt.Errorf("missing DSN: provide via -dsn or MEDIAGATE_PG_DSN")
	}
	return pg.Open(dsn)
}

func runCreateCode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-code", flag.ExitOnError)
	var (
		dsn         = fs.String("dsn", "", "PostgreSQL DSN")
		owner       = fs.String("owner", "", "code owner id")
		permission  = fs.String("permission", "read", "permission level (read|download|edit|delete|admin)")
		description = fs.String("description", "", "human-readable description")
		ttl         = fs.Duration("ttl", 0, "lifetime, e.g. 720h (0 = never expires)")
		maxUses     = fs.Int64("max-uses", 0, "usage cap (0 = unlimited)")
		groupID     = fs.Int64("group", 0, "group scope")
		resources   = fs.String("resources", "", "explicit scope, e.g. video:2,image:9")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	perm, err := access.ParsePermission(*permission)
	if err != nil {
		return err
	}
	scope := accesscode.Scope{GroupID: *groupID}
	if *resources != "" {
		for _, raw := range strings.Split(*resources, ",") {
			ref, err := access.ParseResourceRef(raw)
			if err != nil {
				return err
			}
			scope.Resources = append(scope.Resources, ref)
		}
	}
	var expiresAt time.Time
	if *ttl > 0 {
		expiresAt = time.Now().Add(*ttl)
	}

	store, err := openStore(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := accesscode.NewService(store)
	if err != nil {
		return err
	}
	code, secret, err := svc.Create(ctx, accesscode.CreateParams{
		OwnerID:     *owner,
		Description: *description,
		ExpiresAt:   expiresAt,
		MaxUses:     *maxUses,
		Permission:  perm,
		Scope:       scope,
	})
	if err != nil {
		return err
	}
	fmt.Printf("code id: %s\n", code.ID)
	fmt.Printf("secret (shown once): %s\n", secret)
	return nil
}

func runRevokeCode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revoke-code", flag.ExitOnError)
	var (
		dsn    = fs.String("dsn", "", "PostgreSQL DSN")
		owner  = fs.String("owner", "", "code owner id")
		codeID = fs.String("id", "", "code id")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := openStore(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := accesscode.NewService(store)
	if err != nil {
		return err
	}
	if err := svc.Revoke(ctx, *owner, *codeID); err != nil {
		return err
	}
	fmt.Println("revoked")
	return nil
}

func runListCodes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list-codes", flag.ExitOnError)
	var (
		dsn   = fs.String("dsn", "", "PostgreSQL DSN")
		owner = fs.String("owner", "", "code owner id")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := openStore(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := accesscode.NewService(store)
	if err != nil {
		return err
	}
	codes, err := svc.ListByOwner(ctx, *owner)
	if err != nil {
		return err
	}
	for _, c := range codes {
		status := "active"
		if !c.Active {
			status = "revoked"
		}
		scope := fmt.Sprintf("group %d", c.Scope.GroupID)
		if c.Scope.GroupID == 0 {
			parts := make([]string, 0, len(c.Scope.Resources))
			for _, ref := range c.Scope.Resources {
				parts = append(parts, ref.String())
			}
			scope = strings.Join(parts, ",")
		}
		fmt.Printf("%s  %s  %s  uses=%d/%d  scope=%s  %s\n",
			c.ID, status, c.Permission, c.CurrentUses, c.MaxUses, scope, c.Description)
	}
	return nil
}

func runAddMember(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-member", flag.ExitOnError)
	var (
		dsn     = fs.String("dsn", "", "PostgreSQL DSN")
		actor   = fs.String("actor", "", "acting admin/owner id")
		groupID = fs.Int64("group", 0, "group id")
		user    = fs.String("user", "", "user id to add")
		role    = fs.String("role", "viewer", "role (viewer|contributor|editor|admin|owner)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	parsed, err := groups.ParseRole(*role)
	if err != nil {
		return err
	}
	store, err := openStore(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := groups.NewService(store)
	if err != nil {
		return err
	}
	m, err := svc.AddMember(ctx, *actor, *groupID, *user, parsed)
	if err != nil {
		return err
	}
	fmt.Printf("added %s to group %d as %s\n", m.UserID, m.GroupID, m.Role)
	return nil
}

func runChangeRole(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("change-role", flag.ExitOnError)
	var (
		dsn     = fs.String("dsn", "", "PostgreSQL DSN")
		actor   = fs.String("actor", "", "acting admin/owner id")
		groupID = fs.Int64("group", 0, "group id")
		user    = fs.String("user", "", "member user id")
		role    = fs.String("role", "", "new role")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	parsed, err := groups.ParseRole(*role)
	if err != nil {
		return err
	}
	store, err := openStore(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := groups.NewService(store)
	if err != nil {
		return err
	}
	if err := svc.ChangeRole(ctx, *actor, *groupID, *user, parsed); err != nil {
		return err
	}
	fmt.Println("role updated")
	return nil
}

func runRemoveMember(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remove-member", flag.ExitOnError)
	var (
		dsn     = fs.String("dsn", "", "PostgreSQL DSN")
		actor   = fs.String("actor", "", "acting user id")
		groupID = fs.Int64("group", 0, "group id")
		user    = fs.String("user", "", "member user id")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := openStore(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := groups.NewService(store)
	if err != nil {
		return err
	}
	if err := svc.RemoveMember(ctx, *actor, *groupID, *user); err != nil {
		return err
	}
	fmt.Println("removed")
	return nil
}

func runInvite(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("invite", flag.ExitOnError)
	var (
		dsn     = fs.String("dsn", "", "PostgreSQL DSN")
		actor   = fs.String("actor", "", "acting admin/owner id")
		groupID = fs.Int64("group", 0, "group id")
		email   = fs.String("email", "", "invitee email")
		role    = fs.String("role", "viewer", "role to grant on acceptance")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	parsed, err := groups.ParseRole(*role)
	if err != nil {
		return err
	}
	store, err := openStore(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := groups.NewService(store)
	if err != nil {
		return err
	}
	inv, err := svc.Invite(ctx, *actor, *groupID, *email, parsed)
	if err != nil {
		return err
	}
	fmt.Printf("invitation %s, token %s, expires %s\n", inv.ID, inv.Token, inv.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runAcceptInvite(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("accept-invite", flag.ExitOnError)
	var (
		dsn   = fs.String("dsn", "", "PostgreSQL DSN")
		token = fs.String("token", "", "invitation token")
		user  = fs.String("user", "", "accepting user id")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := openStore(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := groups.NewService(store)
	if err != nil {
		return err
	}
	m, err := svc.Accept(ctx, *token, *user)
	if err != nil {
		return err
	}
	fmt.Printf("joined group %d as %s\n", m.GroupID, m.Role)
	return nil
}

func runCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	var (
		dsn        = fs.String("dsn", "", "PostgreSQL DSN")
		resource   = fs.String("resource", "", "target, e.g. video:1")
		user       = fs.String("user", "", "requester id (empty = anonymous)")
		code       = fs.String("code", "", "presented access code")
		permission = fs.String("permission", "read", "required permission")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := access.ParseResourceRef(*resource)
	if err != nil {
		return err
	}
	perm, err := access.ParsePermission(*permission)
	if err != nil {
		return err
	}

	store, err := openStore(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	codes, err := accesscode.NewService(store)
	if err != nil {
		return err
	}
	members, err := groups.NewService(store)
	if err != nil {
		return err
	}
	trail, err := audit.NewLogger(store)
	if err != nil {
		return err
	}
	defer trail.Close()

	engine, err := access.NewService(store, codes, members, access.WithAuditSink(trail))
	if err != nil {
		return err
	}

	req := access.NewRequest(ref)
	req.RequesterID = strings.TrimSpace(*user)
	req.Code = strings.TrimSpace(*code)

	decision, err := engine.CheckAccess(ctx, req, perm)
	if err != nil {
		return err
	}
	if decision.Granted {
		fmt.Printf("granted %s via %s\n", decision.Permission, decision.Layer)
	} else {
		fmt.Printf("denied: %s\n", decision.Reason)
	}
	return nil
}
