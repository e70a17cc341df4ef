package imageoffload

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"directory/internal/cloudinary"
	"directory/internal/metrics"
	"directory/internal/profile"
	"directory/internal/queue"
)

// Uploader hosts an inline image and returns where it lives.
type Uploader interface {
	UploadDataURL(ctx context.Context, dataURL string) (*cloudinary.UploadResult, error)
}

// Offloader moves inline profile images to hosted storage after a save and
// rewrites the profile to reference the hosted URL.
type Offloader struct {
	store profile.Store
	up    Uploader
	log   *zap.Logger
}

func New(store profile.Store, up Uploader, log *zap.Logger) *Offloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Offloader{store: store, up: up, log: log}
}

// Run handles messages until the channel closes.
func (o *Offloader) Run(ctx context.Context, msgs <-chan queue.Message) {
	for msg := range msgs {
		if err := o.Handle(ctx, msg); err != nil {
			o.log.Error("image offload failed", zap.String("type", msg.Type), zap.ByteString("id", msg.Body), zap.Error(err))
		}
	}
}

// Handle processes one message. Events other than profile.saved, profiles
// deleted in the meantime and profiles without an inline image are skipped.
//
// The rewrite goes straight to the store so it does not emit another event.
// It only applies while the profile is unchanged since it was read: a profile
// deleted or edited during the upload is left as it is.
func (o *Offloader) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.TypeProfileSaved {
		return nil
	}
	id := string(msg.Body)
	p, ok, err := o.store.Get(ctx, id)
	if err != nil {
		metrics.ImageOffloads.WithLabelValues("error").Inc()
		return fmt.Errorf("load profile %s: %w", id, err)
	}
	if !ok || p.Image.Kind != profile.ImageInline {
		metrics.ImageOffloads.WithLabelValues("skipped").Inc()
		return nil
	}

	res, err := o.up.UploadDataURL(ctx, p.Image.String())
	if err != nil {
		metrics.ImageOffloads.WithLabelValues("error").Inc()
		return fmt.Errorf("upload image for %s: %w", id, err)
	}
	p.Image = profile.URLImage(res.SecureURL)
	_, ok, err = o.store.Update(ctx, p, p.UpdatedAt)
	if err != nil {
		metrics.ImageOffloads.WithLabelValues("error").Inc()
		return fmt.Errorf("rewrite profile %s: %w", id, err)
	}
	if !ok {
		metrics.ImageOffloads.WithLabelValues("stale").Inc()
		o.log.Info("profile changed during image upload, rewrite skipped", zap.String("id", id), zap.String("public_id", res.PublicID))
		return nil
	}
	metrics.ImageOffloads.WithLabelValues("ok").Inc()
	o.log.Info("image offloaded", zap.String("id", id), zap.String("public_id", res.PublicID))
	return nil
}
