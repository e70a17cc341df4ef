package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"directory/internal/metrics"
	"directory/internal/queue"
)

// Publisher receives profile change events.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Service is the boundary between request handlers and the store. It
// classifies failures into ErrValidation, ErrNotFound and ErrStorage and
// never lets a read failure reach the caller as anything but an empty result.
type Service struct {
	store Store
	pub   Publisher
	log   *zap.Logger
}

// NewService wires a store. pub may be nil when change events are unused.
func NewService(store Store, pub Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, pub: pub, log: log}
}

// List returns every profile newest first, or an empty list when the store
// cannot be read.
func (s *Service) List(ctx context.Context) []Profile {
	start := time.Now()
	profiles, err := s.store.List(ctx)
	metrics.ObserveStore("list", start, err)
	if err != nil {
		s.log.Error("list profiles failed", zap.Error(err))
		return []Profile{}
	}
	return profiles
}

func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Profile{}, fmt.Errorf("%w: missing profile id", ErrValidation)
	}
	start := time.Now()
	p, ok, err := s.store.Get(ctx, id)
	metrics.ObserveStore("get", start, err)
	if err != nil {
		s.log.Error("get profile failed", zap.String("id", id), zap.Error(err))
		return Profile{}, storageErr("get profile", err)
	}
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// Save validates and upserts p. Client supplied timestamps are ignored.
func (s *Service) Save(ctx context.Context, p Profile) (Profile, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.CreatedAt, p.UpdatedAt = time.Time{}, time.Time{}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	start := time.Now()
	stored, err := s.store.Upsert(ctx, p.normalize())
	metrics.ObserveStore("upsert", start, err)
	if err != nil {
		s.log.Error("save profile failed", zap.String("id", p.ID), zap.Error(err))
		return Profile{}, storageErr("save profile", err)
	}
	s.log.Info("profile saved", zap.String("id", stored.ID), zap.String("role", string(stored.Role)))
	s.publish(ctx, queue.TypeProfileSaved, stored.ID)
	return stored, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: missing profile id", ErrValidation)
	}
	start := time.Now()
	removed, err := s.store.Delete(ctx, id)
	metrics.ObserveStore("delete", start, err)
	if err != nil {
		s.log.Error("delete profile failed", zap.String("id", id), zap.Error(err))
		return storageErr("delete profile", err)
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.log.Info("profile deleted", zap.String("id", id))
	s.publish(ctx, queue.TypeProfileDeleted, id)
	return nil
}

// Browse runs q over the whole collection and applies loads "load more"
// steps to the first page.
func (s *Service) Browse(ctx context.Context, q Query, loads int) Page {
	b := NewBrowser(s.List(ctx))
	b.SetQuery(q)
	for i := 0; i < loads; i++ {
		if !b.LoadMore() {
			break
		}
	}
	return b.Page()
}

// Ping checks the store can be reached.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	_, err := s.store.List(ctx)
	return err
}

// publish is best effort: the write already happened, so a queue failure is
// only logged.
func (s *Service) publish(ctx context.Context, typ, id string) {
	if s.pub == nil {
		return
	}
	err := s.pub.Publish(ctx, queue.Message{Type: typ, Body: []byte(id)})
	metrics.EventsPublished.WithLabelValues(typ, metrics.Result(err)).Inc()
	if err != nil {
		s.log.Warn("publish profile event failed", zap.String("type", typ), zap.String("id", id), zap.Error(err))
	}
}
