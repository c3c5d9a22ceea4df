// Command nntpadmin bootstraps or lists Administrator rows in the NNTP
// archive core's SQLite store. Grounded on the teacher's cmd/usermgr
// (flag-driven CRUD over a principal table, term.ReadPassword for the
// interactive password prompt), narrowed to the operations this core's
// Administrator model actually needs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/go-while/nntpd-core/internal/auth"
	"github.com/go-while/nntpd-core/internal/models"
	"github.com/go-while/nntpd-core/internal/store"
)

func main() {
	var (
		dbPath      = flag.String("db", "data/nntpd.sq3", "path to the SQLite metadata database")
		create      = flag.Bool("create", false, "create a new administrator")
		list        = flag.Bool("list", false, "list administrators")
		username    = flag.String("username", "", "administrator username")
		canApprove  = flag.Bool("can-approve-any", false, "grant CanApproveAny")
		canCancel   = flag.Bool("can-cancel", false, "grant CanCancel")
		canInject   = flag.Bool("can-inject", false, "grant CanInject")
		canCreate   = flag.Bool("can-create-group", false, "grant CanCreateGroup")
		canDelete   = flag.Bool("can-delete-group", false, "grant CanDeleteGroup")
		canCheck    = flag.Bool("can-check-groups", false, "grant CanCheckGroups")
		localOnly   = flag.Bool("local-auth-only", false, "restrict this administrator to loopback connections")
		moderates   = flag.String("moderates", "", "comma-separated newsgroup names this administrator moderates")
	)
	flag.Parse()

	if !*create && !*list {
		fmt.Fprintf(os.Stderr, "Usage: %s [-create|-list] [options]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	st, err := store.OpenSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	switch {
	case *list:
		if err := listAdministrators(ctx, st); err != nil {
			log.Fatalf("list: %v", err)
		}
	case *create:
		if *username == "" {
			log.Fatal("-username is required")
		}
		var groups []string
		if *moderates != "" {
			groups = strings.Split(*moderates, ",")
		}
		a := &models.Administrator{
			Username:                *username,
			CanApproveAny:           *canApprove,
			CanCancel:               *canCancel,
			CanInject:               *canInject,
			CanCreateGroup:          *canCreate,
			CanDeleteGroup:          *canDelete,
			CanCheckGroups:          *canCheck,
			LocalAuthenticationOnly: *localOnly,
			Moderates:               groups,
		}
		if err := createAdministrator(ctx, st, a); err != nil {
			log.Fatalf("create: %v", err)
		}
	}
}

func createAdministrator(ctx context.Context, st *store.SQLiteStore, a *models.Administrator) error {
	password, err := readPassword()
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	a.PasswordHash = hash
	if err := st.InsertAdministrator(ctx, a); err != nil {
		return err
	}
	fmt.Printf("administrator %q created\n", a.Username)
	return nil
}

func readPassword() (string, error) {
	fmt.Print("Password: ")
	pw1, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	pw2, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("read password confirmation: %w", err)
	}
	fmt.Println()

	if string(pw1) != string(pw2) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pw1), nil
}

func listAdministrators(ctx context.Context, st *store.SQLiteStore) error {
	admins, err := st.ListAdministrators(ctx)
	if err != nil {
		return err
	}
	for _, a := range admins {
		fmt.Printf("%-20s approve-any=%-5v cancel=%-5v inject=%-5v create-group=%-5v delete-group=%-5v check-groups=%-5v local-only=%-5v moderates=%v\n",
			a.Username, a.CanApproveAny, a.CanCancel, a.CanInject, a.CanCreateGroup, a.CanDeleteGroup, a.CanCheckGroups, a.LocalAuthenticationOnly, a.Moderates)
	}
	return nil
}
