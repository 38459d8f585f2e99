package search

import (
	"context"

	"github.com/dshills/kemote/internal/diskstore"
	"github.com/dshills/kemote/internal/emote"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Source tells where a lookup's results came from.
type Source string

const (
	SourceDisk   Source = "disk"
	SourceRemote Source = "remote"
	SourceRecent Source = "recent"
)

// Remote runs a search against the emote service.
type Remote interface {
	Search(ctx context.Context, query string) ([]emote.Emote, error)
}

// Searcher resolves normalized queries cache-aside: the disk document for
// the query if present, otherwise the remote service, whose answer is
// persisted before it is returned.
type Searcher struct {
	disk   *diskstore.Store
	remote Remote
	log    logrus.FieldLogger
	group  singleflight.Group
}

// NewSearcher creates a Searcher.
func NewSearcher(disk *diskstore.Store, remote Remote, log logrus.FieldLogger) *Searcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Searcher{disk: disk, remote: remote, log: log}
}

// Lookup returns the emotes for query. Concurrent lookups of the same query
// share one remote call.
func (s *Searcher) Lookup(ctx context.Context, query string) ([]emote.Emote, Source, error) {
	log := s.log.WithField("query", query)

	var cached []emote.Emote
	ok, err := s.disk.ReadJSON(diskstore.Queries, query, &cached)
	if err != nil {
		log.WithError(err).Warn("reading cached query failed, querying remote")
	}
	if ok {
		return nonNil(cached), SourceDisk, nil
	}

	v, err, shared := s.group.Do(query, func() (any, error) {
		found, err := s.remote.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		found = nonNil(found)
		if err := s.disk.WriteJSON(diskstore.Queries, query, found); err != nil {
			log.WithError(err).Warn("persisting query result failed")
		}
		return found, nil
	})
	if err != nil {
		return nil, SourceRemote, err
	}
	log.WithFields(logrus.Fields{"shared": shared, "results": len(v.([]emote.Emote))}).Debug("remote search")
	return v.([]emote.Emote), SourceRemote, nil
}

func nonNil(e []emote.Emote) []emote.Emote {
	if e == nil {
		return []emote.Emote{}
	}
	return e
}
