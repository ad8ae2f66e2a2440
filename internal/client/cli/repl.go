package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Unlock(ctx context.Context) error
	UnlockBiometric(ctx context.Context) error
	EnableBiometric(ctx context.Context) error
	AddNote(ctx context.Context) error
	AddLogin(ctx context.Context) error
	AddCard(ctx context.Context) error
	Edit(ctx context.Context) error
	Delete(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context) error
	Generate(ctx context.Context) error
	Sync(ctx context.Context) error
	Lock(ctx context.Context) error
	Logout(ctx context.Context) error
}

const (
	helpLocked   = "Available commands: register, login, unlock, biometric, generate, exit"
	helpUnlocked = "Available commands: (l)ist, show, addlogin, addnote, addcard, edit, delete, generate, sync, enable-biometric, lock, logout, exit"
)

// runREPL reads commands line by line and dispatches them to a. It returns
// on scanner EOF or on "exit" / "quit".
//
// Commands that need an unlocked vault are refused while locked. Errors from
// handlers are logged here and do not stop the loop.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("gv> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		var handler func(context.Context) error
		needsUnlock := true

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpUnlocked)
			} else {
				printlnFn(helpLocked)
			}
			continue

		case "register":
			handler, needsUnlock = a.Register, false
		case "login":
			handler, needsUnlock = a.Login, false
		case "unlock":
			handler, needsUnlock = a.Unlock, false
		case "biometric":
			handler, needsUnlock = a.UnlockBiometric, false
		case "generate":
			handler, needsUnlock = a.Generate, false
		case "logout":
			handler, needsUnlock = a.Logout, false

		case "enable-biometric":
			handler = a.EnableBiometric
		case "addnote":
			handler = a.AddNote
		case "addlogin":
			handler = a.AddLogin
		case "addcard":
			handler = a.AddCard
		case "edit":
			handler = a.Edit
		case "delete":
			handler = a.Delete
		case "show":
			handler = a.Show
		case "l", "list":
			handler = a.List
		case "sync":
			handler = a.Sync
		case "lock":
			handler = a.Lock

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
			continue
		}

		if needsUnlock && !a.isLoggedIn() {
			printlnFn("Vault is locked, use login or unlock first")
			continue
		}
		if err := handler(ctx); err != nil {
			log.Printf("%s: %v", cmd, err)
		}
	}
}

func (a *App) getStatus() string {
	s := a.session.State().String()
	if a.Mode != "" {
		s = s + " " + string(a.Mode)
	}
	return fmt.Sprintf("(%s)", s)
}

// Root greets the user, tries to unlock a stored account and runs the REPL.
func (a *App) Root(ctx context.Context) {
	log.Println("Welcome to GophVault CLI (type 'help' for commands)")

	a.checkOnline(ctx)
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	if ok, err := a.authService.HasCredentials(ctx); err == nil && ok {
		if err := a.Unlock(ctx); err != nil {
			log.Printf("unlock: %v", err)
		}
	}

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}
