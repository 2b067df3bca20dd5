package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	defaultStoreTimeout  = 5 * time.Second
	defaultNotifyTimeout = 5 * time.Second
	defaultNotifyQueue   = 1024
	defaultMaxTextLength = 4000
)

type IngestOptions struct {
	StoreTimeout  time.Duration
	MaxTextLength int
	// Notifier is optional; it is told about each persisted message from a
	// background worker, never on the send path.
	Notifier      Notifier
	NotifyTimeout time.Duration
	NotifyQueue   int
}

// IngestService is the only way a message enters the store. It rejects
// malformed requests before the store is touched.
type IngestService struct {
	store    Store
	notifier Notifier
	timeout  time.Duration
	maxText  int
	validate *validator.Validate
	log      *zap.Logger

	notifyTimeout time.Duration
	notifyMu      sync.Mutex
	notifyQ       chan MessageRecord
	notifyClosed  bool
	notifyDone    chan struct{}
}

func NewIngestService(store Store, opts IngestOptions, log *zap.Logger) *IngestService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = defaultMaxTextLength
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.NotifyQueue <= 0 {
		opts.NotifyQueue = defaultNotifyQueue
	}
	s := &IngestService{
		store:         store,
		notifier:      opts.Notifier,
		timeout:       opts.StoreTimeout,
		maxText:       opts.MaxTextLength,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           log,
		notifyTimeout: opts.NotifyTimeout,
	}
	if s.notifier != nil {
		s.notifyQ = make(chan MessageRecord, opts.NotifyQueue)
		s.notifyDone = make(chan struct{})
		go s.notifyLoop()
	}
	return s
}

// Close stops accepting notifications and waits for queued ones to be sent.
func (s *IngestService) Close() {
	if s.notifier == nil {
		return
	}
	s.notifyMu.Lock()
	if !s.notifyClosed {
		s.notifyClosed = true
		close(s.notifyQ)
	}
	s.notifyMu.Unlock()
	<-s.notifyDone
}

// notify queues rec without blocking. A full queue drops the notification.
func (s *IngestService) notify(rec MessageRecord) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if s.notifyClosed {
		return
	}
	select {
	case s.notifyQ <- rec:
	default:
		s.log.Warn("notification queue full, dropping", zap.String("message", rec.ID))
	}
}

// notifyLoop sends notifications one at a time so per-conversation order is kept.
func (s *IngestService) notifyLoop() {
	defer close(s.notifyDone)
	for rec := range s.notifyQ {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		if err := s.notifier.MessageCreated(ctx, rec); err != nil {
			s.log.Warn("message notification failed", zap.String("message", rec.ID), zap.Error(err))
		}
		cancel()
	}
}

// Ingest validates sender, addressing and content (in that order), then appends
// the message and returns the durable record.
func (s *IngestService) Ingest(ctx context.Context, sender UserID, ref ConversationRef, content Content) (MessageRecord, error) {
	if strings.TrimSpace(string(sender)) == "" {
		return MessageRecord{}, fmt.Errorf("%w: sender is required", ErrValidation)
	}
	if err := ValidateRef(ref); err != nil {
		return MessageRecord{}, err
	}
	content, err := s.canonicalContent(content)
	if err != nil {
		return MessageRecord{}, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rec, err := s.store.Append(storeCtx, ref, sender, content)
	if err != nil {
		if errors.Is(err, ErrStorage) {
			return MessageRecord{}, err
		}
		return MessageRecord{}, fmt.Errorf("%w: append: %w", ErrStorage, err)
	}

	if s.notifier != nil {
		s.notify(rec)
	}
	return rec, nil
}

// ValidateRef checks that a conversation reference is well formed.
func ValidateRef(ref ConversationRef) error {
	switch ref.Kind {
	case KindDirect:
		if ref.UserA == "" || ref.UserB == "" {
			return fmt.Errorf("%w: direct conversation needs two participants", ErrValidation)
		}
		if ref.UserA == ref.UserB {
			return fmt.Errorf("%w: direct conversation participants must differ", ErrValidation)
		}
	case KindGroup:
		if ref.GroupID == "" {
			return fmt.Errorf("%w: group conversation needs a group id", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown conversation kind %q", ErrValidation, ref.Kind)
	}
	return nil
}

// canonicalContent enforces exactly one populated variant. Blank text counts
// as absent and is cleared.
func (s *IngestService) canonicalContent(c Content) (Content, error) {
	hasText, hasImage := c.hasText(), c.hasImage()
	switch {
	case !hasText && !hasImage:
		return Content{}, fmt.Errorf("%w: message must contain either text or image", ErrContent)
	case hasText && hasImage:
		return Content{}, fmt.Errorf("%w: message must not contain both text and image", ErrContent)
	case hasImage:
		if err := s.validate.Struct(c.Image); err != nil {
			return Content{}, fmt.Errorf("%w: image: %v", ErrContent, err)
		}
		img := *c.Image
		return Content{Image: &img}, nil
	default:
		if err := s.validate.Var(c.Text, "max="+strconv.Itoa(s.maxText)); err != nil {
			return Content{}, fmt.Errorf("%w: text longer than %d characters", ErrContent, s.maxText)
		}
		return Content{Text: c.Text}, nil
	}
}
