package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sharedcode/cascade"
)

type commitStore struct {
	locker  sync.Mutex
	commits map[string]map[cascade.Key]cascade.Commit
}

// NewCommitStore instantiates an in-memory commit store.
func NewCommitStore() cascade.CommitStore {
	return &commitStore{commits: make(map[string]map[cascade.Key]cascade.Commit)}
}

type commitCursor struct {
	CreatedAt time.Time   `json:"t"`
	Root      cascade.Key `json:"r"`
}

func (c *commitStore) Create(ctx context.Context, commit cascade.Commit) error {
	c.locker.Lock()
	defer c.locker.Unlock()
	realm := c.commits[commit.Realm]
	if realm == nil {
		realm = make(map[cascade.Key]cascade.Commit)
		c.commits[commit.Realm] = realm
	}
	if _, ok := realm[commit.Root]; ok {
		return cascade.Error{Code: cascade.Conflict, Err: fmt.Errorf("root %s is already committed in realm %s", commit.Root, commit.Realm)}
	}
	realm[commit.Root] = commit
	return nil
}

func (c *commitStore) Get(ctx context.Context, realm string, root cascade.Key) (*cascade.Commit, error) {
	c.locker.Lock()
	defer c.locker.Unlock()
	commit, ok := c.commits[realm][root]
	if !ok {
		return nil, nil
	}
	return &commit, nil
}

func (c *commitStore) SetTitle(ctx context.Context, realm string, root cascade.Key, title string) error {
	c.locker.Lock()
	defer c.locker.Unlock()
	commit, ok := c.commits[realm][root]
	if !ok {
		return cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no commit of %s in realm %s", root, realm)}
	}
	commit.Title = title
	c.commits[realm][root] = commit
	return nil
}

func (c *commitStore) Delete(ctx context.Context, realm string, root cascade.Key) error {
	c.locker.Lock()
	defer c.locker.Unlock()
	delete(c.commits[realm], root)
	return nil
}

func (c *commitStore) List(ctx context.Context, realm string, limit int, cursor string) ([]cascade.Commit, string, error) {
	c.locker.Lock()
	defer c.locker.Unlock()
	all := make([]cascade.Commit, 0, len(c.commits[realm]))
	for _, commit := range c.commits[realm] {
		all = append(all, commit)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Root > all[j].Root
	})
	start := 0
	if cursor != "" {
		var cc commitCursor
		if err := decodeCursor(cursor, &cc); err != nil {
			return nil, "", err
		}
		start = len(all)
		for i, commit := range all {
			if commit.CreatedAt.Before(cc.CreatedAt) || (commit.CreatedAt.Equal(cc.CreatedAt) && commit.Root < cc.Root) {
				start = i
				break
			}
		}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[start:end]
	next := ""
	if end < len(all) && len(page) > 0 {
		last := page[len(page)-1]
		next = encodeCursor(commitCursor{CreatedAt: last.CreatedAt, Root: last.Root})
	}
	return page, next, nil
}
