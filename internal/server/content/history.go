package content

import (
	"context"
	"iter"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/gitx"
)

// Commit is one entry of a page or author history.
type Commit struct {
	ID        string
	Parent    string
	Tree      string
	Author    gitx.Signature
	Committer gitx.Signature
	Message   string
	// Files lists touched paths. Only AuthorHistory fills it.
	Files []string
}

// Timestamp is the commit time.
func (c Commit) Timestamp() time.Time {
	return c.Committer.When
}

func commitFromLog(e gitx.LogEntry) Commit {
	c := Commit{
		ID:        e.ID,
		Tree:      e.Tree,
		Author:    e.Author,
		Committer: e.Committer,
		Message:   e.Message,
	}
	if len(e.Parents) > 0 {
		c.Parent = e.Parents[0]
	}
	return c
}

// History streams the commits touching path, newest first. The walk is
// pinned to the tip at call time and runs lazily; ranging over the result
// again restarts it and yields the same sequence.
func (s *Store) History(ctx context.Context, path string) iter.Seq2[Commit, error] {
	tip := s.Tip()
	path, err := CleanPath(path)
	return func(yield func(Commit, error) bool) {
		if err != nil {
			yield(Commit{}, err)
			return
		}
		for e, err := range s.repo.Log(ctx, tip, gitx.LogOptions{Path: path}) {
			if err != nil {
				yield(Commit{}, err)
				return
			}
			if !yield(commitFromLog(e), nil) {
				return
			}
		}
	}
}

// AuthorHistory streams up to limit recent commits authored by email, with
// the files each one touched.
func (s *Store) AuthorHistory(ctx context.Context, email string, limit int) iter.Seq2[Commit, error] {
	tip := s.Tip()
	return func(yield func(Commit, error) bool) {
		if email == "" {
			return
		}
		opts := gitx.LogOptions{Author: "<" + email + ">", Limit: limit}
		for e, err := range s.repo.Log(ctx, tip, opts) {
			if err != nil {
				yield(Commit{}, err)
				return
			}
			c := commitFromLog(e)
			changes, err := s.repo.Changes(ctx, e.ID)
			if err != nil {
				yield(Commit{}, err)
				return
			}
			for _, ch := range changes {
				c.Files = append(c.Files, ch.Path)
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}
