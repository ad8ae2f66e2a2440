package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/client"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/client/session"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"golang.org/x/sync/singleflight"
)

// SyncResult describes one sync pass. View is always the current local
// view, also when the pass failed.
type SyncResult struct {
	View    View
	Full    bool
	Upserts int
	Deletes int
	// Cursor is the value persisted by this pass; zero when nothing was applied.
	Cursor int64
}

// SyncEngine pulls remote changes into the local cache.
type SyncEngine struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	remote client.Client
	sess   Session
	log    logging.Logger
	group  singleflight.Group

	now func() time.Time
}

func NewSyncEngine(db *sql.DB, repos repomanager.RepositoryManager, remote client.Client, sess Session, log logging.Logger) *SyncEngine {
	return &SyncEngine{
		db:     db,
		repos:  repos,
		remote: remote,
		sess:   sess,
		log:    log.With("module", "sync"),
		now:    time.Now,
	}
}

func (r *SyncResult) clone() *SyncResult {
	if r == nil {
		return nil
	}
	out := *r
	out.View = r.View.clone()
	return &out
}

// fetched is what a remote pull returned, normalized over both modes.
type fetched struct {
	full       bool
	liveIDs    map[string]struct{}
	changed    []*models.EncryptedVaultRecord
	serverTime int64
}

// Sync runs one pass. Concurrent calls for the same account share a pass,
// and each caller gets its own copy of the result.
//
// On failure the cache and the cursor are untouched and the returned
// result still carries the local view. A caller whose ctx ends gets a nil
// result and ctx.Err(); the shared pass keeps running for the others.
func (e *SyncEngine) Sync(ctx context.Context) (*SyncResult, error) {
	owner := e.sess.UserID()
	if owner == "" {
		return nil, session.ErrLocked
	}
	ch := e.group.DoChan(owner, func() (any, error) {
		return e.sync(context.WithoutCancel(ctx), owner)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		res, _ := r.Val.(*SyncResult)
		return res.clone(), r.Err
	}
}

func (e *SyncEngine) sync(ctx context.Context, owner string) (*SyncResult, error) {
	if e.sess.State() == session.Stale {
		if err := e.sess.Refresh(ctx); err != nil {
			e.log.Warn(ctx, "sync aborted, token refresh failed", "error", err)
			return e.failed(ctx, fmt.Errorf("refresh token: %w", err))
		}
	}

	creds, err := e.repos.Credentials(e.db).Get(ctx)
	if err != nil {
		return e.failed(ctx, fmt.Errorf("load sync cursor: %w", err))
	}

	// the cursor is taken before the fetch so changes made while it runs
	// are seen by the next pass
	now := e.now().Unix()
	e.log.Debug(ctx, "sync started", "full", creds.LastSync == nil)

	f, err := callWithToken(ctx, e.sess, func(token string) (*fetched, error) {
		return e.fetch(ctx, token, creds.LastSync)
	})
	if err != nil {
		e.log.Warn(ctx, "sync fetch failed", "error", err)
		return e.failed(ctx, err)
	}

	cursor := now
	if f.serverTime > 0 {
		cursor = f.serverTime
	}

	res := &SyncResult{Full: f.full, Cursor: cursor}
	err = dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		cache := e.repos.Ciphers(tx)

		local, err := cache.GetAllIDs(ctx, owner)
		if err != nil {
			return err
		}
		for _, id := range local {
			if _, ok := f.liveIDs[id]; ok {
				continue
			}
			if err := cache.Delete(ctx, id); err != nil {
				return err
			}
			res.Deletes++
		}

		for _, r := range f.changed {
			if r.OwnerID != owner {
				continue
			}
			if err := cache.Upsert(ctx, r); err != nil {
				return err
			}
			res.Upserts++
		}

		return e.repos.Credentials(tx).SetLastSync(ctx, cursor)
	})
	if err != nil {
		e.log.Error(ctx, "failed to apply sync", "error", err)
		return e.failed(ctx, fmt.Errorf("apply sync: %w", err))
	}

	view, err := loadView(ctx, e.repos.Ciphers(e.db), e.sess)
	if err != nil {
		return nil, err
	}
	res.View = view

	e.log.Info(ctx, "sync completed",
		"full", res.Full, "upserts", res.Upserts, "deletes", res.Deletes, "unreadable", len(view.Unreadable))
	return res, nil
}

func (e *SyncEngine) fetch(ctx context.Context, token string, cursor *int64) (*fetched, error) {
	if cursor == nil {
		snap, err := e.remote.AllRecords(ctx, token)
		if err != nil {
			return nil, err
		}
		live := make(map[string]struct{}, len(snap.Records))
		for _, r := range snap.Records {
			live[r.ID] = struct{}{}
		}
		return &fetched{full: true, liveIDs: live, changed: snap.Records, serverTime: snap.ServerTime}, nil
	}

	delta, err := e.remote.SyncSince(ctx, token, *cursor)
	if err != nil {
		return nil, err
	}
	live := make(map[string]struct{}, len(delta.LiveIDs))
	for _, id := range delta.LiveIDs {
		live[id] = struct{}{}
	}
	return &fetched{liveIDs: live, changed: delta.Changed, serverTime: delta.ServerTime}, nil
}

// failed returns the unchanged local view alongside cause.
func (e *SyncEngine) failed(ctx context.Context, cause error) (*SyncResult, error) {
	view, err := loadView(ctx, e.repos.Ciphers(e.db), e.sess)
	if err != nil && !errors.Is(err, session.ErrLocked) {
		e.log.Warn(ctx, "failed to load local view", "error", err)
	}
	return &SyncResult{View: view}, cause
}
