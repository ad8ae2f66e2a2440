package cli

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dmitrijs2005/gophvault/internal/client/client"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
)

// Input seams, replaced in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
)

// Register prompts for email, password (twice) and an optional hint and
// creates the account. It does not log in.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Master password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := getPassword(a.out, "Repeat master password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	hint, err := getSimpleText(a.reader, "Enter password hint (optional)", a.out)
	if err != nil {
		return err
	}

	if err := a.authService.Register(ctx, email, password, confirm, hint); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Account created, use login to sign in")
	return nil
}

// Login authenticates online and unlocks the vault, then pulls records.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Master password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Login(ctx, email, password); err != nil {
		if errors.Is(err, client.ErrNetwork) {
			a.setMode(ModeOffline)
			log.Printf("Server unavailable, use unlock to open the local vault")
		}
		return err
	}
	a.setMode(ModeOnline)
	log.Printf("Login successful")

	a.syncQuietly(ctx)
	return nil
}

// Unlock opens the locally stored account with the password. It works
// offline.
func (a *App) Unlock(ctx context.Context) error {
	password, err := getPassword(a.out, "Master password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Unlock(ctx, password); err != nil {
		if errors.Is(err, cryptox.ErrInvalidPassword) {
			fmt.Fprintln(a.out, "Invalid password")
		}
		return err
	}
	log.Printf("Vault unlocked")

	if a.Mode == ModeOnline {
		a.syncQuietly(ctx)
	}
	return nil
}

// UnlockBiometric opens the vault with the key sealed in the OS keyring.
func (a *App) UnlockBiometric(ctx context.Context) error {
	if err := a.authService.UnlockWithSealer(ctx); err != nil {
		return err
	}
	log.Printf("Vault unlocked")

	if a.Mode == ModeOnline {
		a.syncQuietly(ctx)
	}
	return nil
}

// EnableBiometric stores the private key in the OS keyring. The password is
// asked once more.
func (a *App) EnableBiometric(ctx context.Context) error {
	password, err := getPassword(a.out, "Master password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.EnableBiometric(ctx, password); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Keyring unlock enabled, use biometric to unlock")
	return nil
}

func (a *App) Lock(ctx context.Context) error {
	a.session.Lock()
	fmt.Fprintln(a.out, "Vault locked")
	return nil
}

// Logout removes the local account and its cached records.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) syncQuietly(ctx context.Context) {
	if _, err := a.syncService.Sync(ctx); err != nil {
		log.Printf("sync: %v", err)
	}
}
