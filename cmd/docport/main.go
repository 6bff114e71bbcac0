// Command docport is the admin CLI for the document publication portal.
//
// Usage:
//
//	docport login -server URL -user NAME
//	docport upload -server URL -title TITLE -expires 2026-12-31 FILE.pdf
//	docport list -server URL
//	docport delete -server URL ID
//	docport hash
//
// Commands that need a session read the token from DOCPORT_TOKEN.
package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"docport/internal/client"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "login":
		err = runLogin(os.Args[2:])
	case "upload":
		err = runUpload(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "delete":
		err = runDelete(os.Args[2:])
	case "hash":
		err = runHash()
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: docport <login|upload|list|delete|hash> [flags]")
}

func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "server base URL")
	user := fs.String("user", "admin", "admin username")
	fs.Parse(args)

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}

	token, err := client.New(*server, "").Login(*user, password)
	if err != nil {
		return err
	}

	fmt.Printf("export DOCPORT_TOKEN=%s\n", token)
	return nil
}

func runUpload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "server base URL")
	title := fs.String("title", "", "document title")
	expires := fs.String("expires", "", "expiry date (YYYY-MM-DD)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one PDF file argument")
	}

	doc, err := sessionClient(*server).Upload(*title, *expires, fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("Uploaded %s\n  id:      %s\n  expires: %s\n  url:     %s\n",
		doc.Title, doc.ID, doc.ExpiresAt.Format("2006-01-02"), doc.Path)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "server base URL")
	fs.Parse(args)

	docs, err := sessionClient(*server).List()
	if err != nil {
		return err
	}

	for _, doc := range docs {
		state := "published"
		if !doc.Published {
			state = "expired"
		}
		fmt.Printf("%s  %-9s  expires %s  %s\n",
			doc.ID, state, doc.ExpiresAt.Format("2006-01-02"), doc.Title)
	}
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "server base URL")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one document ID argument")
	}

	if err := sessionClient(*server).Delete(fs.Arg(0)); err != nil {
		return err
	}

	fmt.Println("Deleted.")
	return nil
}

// runHash produces a bcrypt hash for ADMIN_PASSWORD_HASH.
func runHash() error {
	password, err := readPassword("Password to hash: ")
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	fmt.Println(string(hash))
	return nil
}

func sessionClient(server string) *client.Client {
	return client.New(server, os.Getenv("DOCPORT_TOKEN"))
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}
