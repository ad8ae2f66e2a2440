package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
)

var errEmptyID = errors.New("id is required")

// addEntry asks for the name, lets details fill the payload and saves the
// new record.
func (a *App) addEntry(ctx context.Context, details func(name string) (models.Envelope, error)) error {
	name, err := getSimpleText(a.reader, "Enter name", a.out)
	if err != nil {
		return err
	}
	env, err := details(name)
	if err != nil {
		return err
	}

	saved, err := a.vaultService.Save(ctx, &models.VaultRecord{Envelope: env})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %s\n", saved.ID)
	return nil
}

func (a *App) AddNote(ctx context.Context) error {
	return a.addEntry(ctx, func(name string) (models.Envelope, error) {
		note, err := a.inputNote(models.Note{})
		if err != nil {
			return models.Envelope{}, err
		}
		return models.Wrap(name, note)
	})
}

func (a *App) AddLogin(ctx context.Context) error {
	return a.addEntry(ctx, func(name string) (models.Envelope, error) {
		login, err := a.inputLogin(models.Login{})
		if err != nil {
			return models.Envelope{}, err
		}
		return models.Wrap(name, login)
	})
}

func (a *App) AddCard(ctx context.Context) error {
	return a.addEntry(ctx, func(name string) (models.Envelope, error) {
		card, err := a.inputCard(models.Card{})
		if err != nil {
			return models.Envelope{}, err
		}
		return models.Wrap(name, card)
	})
}

// keep returns answer, or current when the user just pressed Enter.
func keep(answer, current string) string {
	if answer == "" {
		return current
	}
	return answer
}

func (a *App) ask(prompt, current string) (string, error) {
	if current != "" {
		prompt = fmt.Sprintf("%s [%s]", prompt, current)
	}
	answer, err := getSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return "", err
	}
	return keep(answer, current), nil
}

func (a *App) inputNote(cur models.Note) (models.Note, error) {
	text, err := GetMultiline(a.reader, "Enter note text", a.out)
	if err != nil {
		return cur, err
	}
	cur.Text = keep(text, cur.Text)
	return cur, nil
}

// inputLogin asks for the login fields. An empty password on a new login
// generates one.
func (a *App) inputLogin(cur models.Login) (models.Login, error) {
	var err error
	if cur.Username, err = a.ask("Enter username", cur.Username); err != nil {
		return cur, err
	}

	prompt := "Enter password (empty to keep)"
	if cur.Password == "" {
		prompt = "Enter password (empty to generate)"
	}
	pw, err := getSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return cur, err
	}
	switch {
	case pw != "":
		cur.Password = pw
	case cur.Password == "":
		if cur.Password, err = cryptox.GeneratePassword(cryptox.DefaultPasswordOptions()); err != nil {
			return cur, err
		}
		fmt.Fprintf(a.out, "Generated password: %s\n", cur.Password)
	}

	uris, err := GetLines(a.reader, "Enter URIs", a.out)
	if err != nil {
		return cur, err
	}
	if len(uris) > 0 {
		cur.URIs = uris
	}
	return cur, nil
}

func (a *App) inputCard(cur models.Card) (models.Card, error) {
	var err error
	if cur.Holder, err = a.ask("Enter card holder", cur.Holder); err != nil {
		return cur, err
	}
	if cur.Number, err = a.ask("Enter card number", cur.Number); err != nil {
		return cur, err
	}
	if cur.Expiration, err = a.ask("Enter expiration", cur.Expiration); err != nil {
		return cur, err
	}
	if cur.CVV, err = a.ask("Enter CVV", cur.CVV); err != nil {
		return cur, err
	}
	return cur, nil
}

func (a *App) askID() (string, error) {
	id, err := getSimpleText(a.reader, "Enter ID", a.out)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errEmptyID
	}
	return id, nil
}

// Edit loads a record, lets the user change its fields and saves it.
// Empty answers keep the current value.
func (a *App) Edit(ctx context.Context) error {
	id, err := a.askID()
	if err != nil {
		return err
	}
	rec, err := a.vaultService.Get(ctx, id)
	if err != nil {
		return err
	}

	name, err := a.ask("Enter name", rec.Name)
	if err != nil {
		return err
	}

	payload, err := rec.Unwrap()
	if err != nil {
		return err
	}

	var env models.Envelope
	switch p := payload.(type) {
	case models.Login:
		v, err := a.inputLogin(p)
		if err != nil {
			return err
		}
		env, err = models.Wrap(name, v)
		if err != nil {
			return err
		}
	case models.Note:
		v, err := a.inputNote(p)
		if err != nil {
			return err
		}
		env, err = models.Wrap(name, v)
		if err != nil {
			return err
		}
	case models.Card:
		v, err := a.inputCard(p)
		if err != nil {
			return err
		}
		env, err = models.Wrap(name, v)
		if err != nil {
			return err
		}
	default:
		return models.ErrUnknownEntryType
	}

	rec.Envelope = env
	if _, err := a.vaultService.Save(ctx, rec); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s\n", rec.ID)
	return nil
}

func (a *App) Delete(ctx context.Context) error {
	id, err := a.askID()
	if err != nil {
		return err
	}
	if err := a.vaultService.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s\n", id)
	return nil
}

func (a *App) List(ctx context.Context) error {
	view, err := a.vaultService.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tNAME")
	for _, r := range view.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Type, r.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(view.Unreadable) > 0 {
		fmt.Fprintf(a.out, "%d record(s) could not be decrypted: %s\n",
			len(view.Unreadable), strings.Join(view.Unreadable, ", "))
	}
	return nil
}

func (a *App) Show(ctx context.Context) error {
	id, err := a.askID()
	if err != nil {
		return err
	}
	rec, err := a.vaultService.Get(ctx, id)
	if err != nil {
		return err
	}
	payload, err := rec.Unwrap()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "ID:   %s\nName: %s\nType: %s\n", rec.ID, rec.Name, rec.Type)
	switch p := payload.(type) {
	case models.Login:
		fmt.Fprintf(a.out, "Username: %s\nPassword: %s\n", p.Username, p.Password)
		for _, u := range p.URIs {
			fmt.Fprintf(a.out, "URI: %s\n", u)
		}
	case models.Note:
		fmt.Fprintln(a.out, p.Text)
	case models.Card:
		fmt.Fprintf(a.out, "Holder: %s\nNumber: %s\nExpiration: %s\nCVV: %s\n", p.Holder, p.Number, p.Expiration, p.CVV)
	}
	return nil
}

func (a *App) Generate(ctx context.Context) error {
	pw, err := cryptox.GeneratePassword(cryptox.DefaultPasswordOptions())
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, pw)
	return nil
}

// Sync pulls remote changes and prints a short summary. On failure the
// local view stays usable.
func (a *App) Sync(ctx context.Context) error {
	res, err := a.syncService.Sync(ctx)
	if err != nil {
		if res != nil {
			fmt.Fprintf(a.out, "Sync failed, showing %d cached record(s)\n", len(res.View.Items))
		}
		return err
	}
	fmt.Fprintf(a.out, "Synced: %d updated, %d removed, %d total\n", res.Upserts, res.Deletes, len(res.View.Items))
	return nil
}
