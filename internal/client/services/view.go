package services

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/ciphers"
)

// View is the decrypted state of the local cache. Records that fail to
// decrypt are reported by id in Unreadable instead of being dropped.
type View struct {
	Items      []*models.VaultRecord
	Unreadable []string
}

func (v View) clone() View {
	out := View{Unreadable: slices.Clone(v.Unreadable)}
	if v.Items != nil {
		out.Items = make([]*models.VaultRecord, len(v.Items))
		for i, r := range v.Items {
			c := *r
			c.Details = bytes.Clone(r.Details)
			out.Items[i] = &c
		}
	}
	return out
}

func loadView(ctx context.Context, repo ciphers.Repository, sess Session) (View, error) {
	owner := sess.UserID()
	rows, err := repo.GetAll(ctx, owner)
	if err != nil {
		return View{}, fmt.Errorf("load cache: %w", err)
	}

	view := View{Items: make([]*models.VaultRecord, 0, len(rows))}
	err = sess.WithVaultKey(func(key []byte) error {
		for _, row := range rows {
			r, err := models.DecryptRecord(row, key)
			if err != nil {
				view.Unreadable = append(view.Unreadable, row.ID)
				continue
			}
			view.Items = append(view.Items, r)
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}

	sortRecords(view.Items)
	sort.Strings(view.Unreadable)
	return view, nil
}

// sortRecords orders by name, case-insensitively, then by id.
func sortRecords(items []*models.VaultRecord) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := strings.ToLower(items[i].Name), strings.ToLower(items[j].Name)
		if a != b {
			return a < b
		}
		return items[i].ID < items[j].ID
	})
}
