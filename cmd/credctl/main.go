// Command credctl administers a dashboard credential file.
//
//	credctl init          -f config.yaml [-cookie-name n] [-key k] [-expiry-days 30] [-force]
//	credctl hash          [-p password]            reads stdin when -p is empty
//	credctl add-user      -f config.yaml -u name -name N -email E [-p password]
//	credctl preauthorize  -f config.yaml email...
//	credctl cookie        -f config.yaml [-rotate-key] [-name n] [-expiry-days d]
//	credctl list          -f config.yaml
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MrEthical07/dashauth"
	"github.com/MrEthical07/dashauth/cookie"
	"github.com/MrEthical07/dashauth/password"
	"github.com/MrEthical07/dashauth/store"
)

const usage = "usage: credctl <init|hash|add-user|preauthorize|cookie|list> [flags]"

var errUsage = errors.New(usage)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "credctl:", err)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "init":
		return runInit(ctx, rest, stdout)
	case "hash":
		return runHash(rest, stdin, stdout)
	case "add-user":
		return runAddUser(ctx, rest, stdin, stdout)
	case "preauthorize":
		return runPreauthorize(ctx, rest, stdout)
	case "cookie":
		return runCookie(ctx, rest, stdout)
	case "list":
		return runList(ctx, rest, stdout)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runInit(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("init")
	path := fs.String("f", "config.yaml", "credential file")
	name := fs.String("cookie-name", "dashboard_cookie", "session cookie name")
	key := fs.String("key", "", "cookie signing key; generated when empty")
	expiry := fs.Int("expiry-days", 30, "cookie lifetime in days, 0 disables cookies")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkExpiry(*expiry); err != nil {
		return err
	}

	if !*force {
		if _, err := os.Stat(*path); err == nil {
			return fmt.Errorf("%s already exists; use -force to overwrite", *path)
		}
	}

	if *key == "" {
		generated, err := newSigningKey()
		if err != nil {
			return err
		}
		*key = generated
	} else if len(*key) < cookie.MinKeyBytes {
		fmt.Fprintf(stdout, "warning: signing key shorter than %d bytes\n", cookie.MinKeyBytes)
	}

	s := store.New(store.CookiePolicy{Name: *name, Key: *key, ExpiryDays: *expiry})
	if err := store.NewFileBackend(*path).Save(ctx, s); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", *path)
	return nil
}

func runHash(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := newFlagSet("hash")
	pw := fs.String("p", "", "password; read from stdin when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := passwordArg(*pw, stdin)
	if err != nil {
		return err
	}
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

func runAddUser(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := newFlagSet("add-user")
	path := fs.String("f", "config.yaml", "credential file")
	username := fs.String("u", "", "username")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email")
	pw := fs.String("p", "", "password; read from stdin when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := passwordArg(*pw, stdin)
	if err != nil {
		return err
	}

	engine, err := dashauth.New().WithFile(*path).Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	resp, err := engine.Handle(ctx, dashauth.Request{Register: &dashauth.RegisterRequest{
		Username:    *username,
		DisplayName: *name,
		Email:       *email,
		Password:    secret,
	}})
	if err != nil {
		return err
	}
	if resp.ActionErr != nil {
		return resp.ActionErr
	}
	if resp.PersistErr != nil {
		return resp.PersistErr
	}
	fmt.Fprintf(stdout, "added %s\n", *username)
	return nil
}

func runPreauthorize(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("preauthorize")
	path := fs.String("f", "config.yaml", "credential file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: preauthorize needs at least one email", errUsage)
	}

	return withLockedStore(ctx, *path, func(s *store.CredentialStore) (bool, error) {
		list := s.Preauthorized()
		added := 0
		for _, email := range fs.Args() {
			email = strings.TrimSpace(email)
			if email == "" || store.ContainsEmail(list, email) {
				continue
			}
			list = append(list, email)
			added++
		}
		if added > 0 {
			s.SetPreauthorized(list)
		}
		if !s.Dirty() {
			fmt.Fprintln(stdout, "nothing to add")
			return false, nil
		}
		fmt.Fprintf(stdout, "preauthorized %d email(s)\n", added)
		return true, nil
	})
}

func runCookie(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("cookie")
	path := fs.String("f", "config.yaml", "credential file")
	rotate := fs.Bool("rotate-key", false, "replace the signing key; every issued cookie stops working")
	name := fs.String("name", "", "new cookie name")
	expiry := fs.Int("expiry-days", -1, "new cookie lifetime in days, 0 disables cookies")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *expiry != -1 {
		if err := checkExpiry(*expiry); err != nil {
			return err
		}
	}

	return withLockedStore(ctx, *path, func(s *store.CredentialStore) (bool, error) {
		policy := s.CookiePolicy()
		next := policy
		if *rotate {
			key, err := newSigningKey()
			if err != nil {
				return false, err
			}
			next.Key = key
		}
		if *name != "" {
			next.Name = *name
		}
		if *expiry != -1 {
			next.ExpiryDays = *expiry
		}
		if next != policy {
			s.SetCookiePolicy(next)
		}
		if !s.Dirty() {
			fmt.Fprintln(stdout, "cookie policy unchanged")
			return false, nil
		}
		fmt.Fprintf(stdout, "cookie policy updated: name=%s expiry_days=%d rotated=%t\n",
			next.Name, next.ExpiryDays, next.Key != policy.Key)
		return true, nil
	})
}

// withLockedStore loads the file under its lock, runs fn and saves when fn
// reports a change.
func withLockedStore(ctx context.Context, path string, fn func(*store.CredentialStore) (bool, error)) error {
	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	release, err := store.NewFileLocker(store.LockPathFor(path)).Lock(lockCtx)
	if err != nil {
		return err
	}
	defer func() { _ = release(context.WithoutCancel(ctx)) }()

	backend := store.NewFileBackend(path)
	s, err := backend.Load(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(s)
	if err != nil || !changed {
		return err
	}
	return backend.Save(ctx, s)
}

func checkExpiry(days int) error {
	if days < 0 || days > cookie.MaxExpiryDays {
		return fmt.Errorf("expiry-days must be between 0 and %d", cookie.MaxExpiryDays)
	}
	return nil
}

func newSigningKey() (string, error) {
	buf := make([]byte, cookie.MinKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func runList(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("list")
	path := fs.String("f", "config.yaml", "credential file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := store.NewFileBackend(*path).Load(ctx)
	if err != nil {
		return err
	}
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tNAME\tEMAIL\tHASH")
	for _, u := range s.Usernames() {
		rec, _ := s.User(u)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u, rec.Name, rec.Email, hashState(hasher, rec.Password))
	}
	return tw.Flush()
}

func hashState(hasher *password.Argon2, hash string) string {
	scheme := "argon2id"
	if strings.HasPrefix(hash, "$2") {
		scheme = "bcrypt"
	}
	upgrade, err := hasher.NeedsUpgrade(hash)
	switch {
	case err != nil:
		return "unknown"
	case upgrade:
		return scheme + " (upgrade)"
	default:
		return scheme
	}
}

func passwordArg(flagValue string, stdin io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	sc := bufio.NewScanner(stdin)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no password on stdin")
	}
	return strings.TrimRight(sc.Text(), "\r"), nil
}
