package main

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// notifyTimeout bounds the email stage; it is detached from the caller's
// context so a client disconnect does not abort the confirmation.
const notifyTimeout = 30 * time.Second

// ContactService handles contact form submissions and their admin views.
type ContactService struct {
	validator *InputValidator
	mailer    Mailer
	repo      ContactRepository
	now       func() time.Time
}

// NewContactService wires the intake. repo may be nil when no database is configured.
func NewContactService(validator *InputValidator, mailer Mailer, repo ContactRepository) *ContactService {
	if mailer == nil {
		mailer = disabledMailer{}
	}
	return &ContactService{
		validator: validator,
		mailer:    mailer,
		repo:      repo,
		now:       time.Now,
	}
}

// PersistenceEnabled reports whether submissions are stored.
func (s *ContactService) PersistenceEnabled() bool {
	return s.repo != nil
}

// Submit validates the form, sends both notification emails and then tries
// to store the submission. Only validation errors are returned: email and
// storage failures are logged and the submission still succeeds.
func (s *ContactService) Submit(ctx context.Context, in ContactInput, meta ContactMetadata) (*ContactReceipt, error) {
	if err := s.validator.ValidateContact(&in); err != nil {
		log.Debug().Err(err).Msg("contact submission rejected")
		return nil, err
	}

	receivedAt := s.now().UTC()
	logger := log.With().Str("email", maskEmail(in.Email)).Logger()

	if err := s.notify(ctx, in, meta); err != nil {
		logger.Warn().Err(err).Msg("contact email sending failed, continuing with storage")
	} else {
		logger.Info().Msg("contact emails sent")
	}

	receipt := &ContactReceipt{CreatedAt: receivedAt}
	if s.repo == nil {
		logger.Warn().Msg("contact persistence not configured, submission not stored")
		return receipt, nil
	}

	sub := &ContactSubmission{
		Name:      in.Name,
		Email:     in.Email,
		Message:   in.Message,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Status:    ContactStatusUnread,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		logger.Warn().Err(err).Msg("contact storage failed (non-critical)")
		return receipt, nil
	}

	id := sub.ID
	receipt.ID = &id
	receipt.CreatedAt = sub.CreatedAt
	logger.Info().Uint64("contact_id", id).Msg("contact request saved")
	return receipt, nil
}

// notify sends the visitor confirmation and the owner notification
// concurrently. Both are always attempted; the first failure is returned.
func (s *ContactService) notify(ctx context.Context, in ContactInput, meta ContactMetadata) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		return s.mailer.SendToVisitor(ctx, in.Name, in.Email)
	})
	g.Go(func() error {
		return s.mailer.SendToOwner(ctx, in, meta)
	})
	return g.Wait()
}

// List returns a page of stored submissions, newest first.
func (s *ContactService) List(ctx context.Context, filter ContactFilter) (*ContactPage, ContactFilter, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultContactLimit
	}
	if filter.Limit > MaxContactLimit {
		filter.Limit = MaxContactLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Status != "" {
		if err := ValidateStatus(filter.Status); err != nil {
			return nil, filter, err
		}
	}
	if s.repo == nil {
		return nil, filter, ErrPersistenceDisabled
	}

	page, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, filter, err
	}
	return page, filter, nil
}

// UpdateStatus changes the handling status of a stored submission.
func (s *ContactService) UpdateStatus(ctx context.Context, id uint64, status ContactStatus) error {
	if err := ValidateStatus(status); err != nil {
		return err
	}
	if s.repo == nil {
		return ErrPersistenceDisabled
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	log.Info().Uint64("contact_id", id).Str("status", string(status)).Msg("contact status updated")
	return nil
}

// maskEmail keeps the first character of the local part and the domain, so
// log lines can be correlated without recording the full address.
func maskEmail(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || local == "" {
		return "***"
	}
	r, _ := utf8.DecodeRuneInString(local)
	return string(r) + "***@" + domain
}
