// Package notification sends the review-workflow emails.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/marketplace/internal/config"
	identitydomain "github.com/smallbiznis/marketplace/internal/identity/domain"
	"github.com/smallbiznis/marketplace/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	templateForReview = "product_for_review"
	templateApproved  = "product_approved"
	templateRejected  = "product_rejected"
)

var (
	ErrNoRecipient = errors.New("no_recipient")
)

// Submission describes a product that just entered review.
type Submission struct {
	ProductID   string
	ProductName string
	Description string
	Uploader    string
}

// Decision describes the outcome of a review.
type Decision struct {
	ProductID   string
	ProductName string
	Uploader    string
	Comment     string
	ImageURL    string
}

type Params struct {
	fx.In

	Config   config.Config
	Provider email.Provider
	Lookup   identitydomain.Lookup
	Log      *zap.Logger
}

type Notifier struct {
	provider   email.Provider
	lookup     identitydomain.Lookup
	adminEmail string
	log        *zap.Logger
}

func New(p Params) *Notifier {
	return &Notifier{
		provider:   p.Provider,
		lookup:     p.Lookup,
		adminEmail: strings.TrimSpace(p.Config.Review.AdminEmail),
		log:        p.Log.Named("notification"),
	}
}

// SubmittedForReview tells the review mailbox about a new product.
func (n *Notifier) SubmittedForReview(ctx context.Context, s Submission) error {
	if n.adminEmail == "" {
		return ErrNoRecipient
	}
	subject := fmt.Sprintf("New product for review: %s", s.ProductName)
	if err := n.provider.SendTemplate(ctx, []string{n.adminEmail}, subject, templateForReview, s); err != nil {
		return fmt.Errorf("send review notification: %w", err)
	}
	n.log.Info("review notification sent", zap.String("product_id", s.ProductID))
	return nil
}

// Approved tells the uploader their product was published.
func (n *Notifier) Approved(ctx context.Context, d Decision) error {
	subject := fmt.Sprintf("Your product %q was approved", d.ProductName)
	return n.sendDecision(ctx, d, subject, templateApproved)
}

// Rejected tells the uploader their product was turned down.
func (n *Notifier) Rejected(ctx context.Context, d Decision) error {
	subject := fmt.Sprintf("Your product %q was rejected", d.ProductName)
	return n.sendDecision(ctx, d, subject, templateRejected)
}

func (n *Notifier) sendDecision(ctx context.Context, d Decision, subject, templateName string) error {
	to, ok := n.lookup.FindContactByUsername(ctx, d.Uploader)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRecipient, d.Uploader)
	}
	if err := n.provider.SendTemplate(ctx, []string{to}, subject, templateName, d); err != nil {
		return fmt.Errorf("send %s notification: %w", templateName, err)
	}
	n.log.Info("decision notification sent",
		zap.String("product_id", d.ProductID),
		zap.String("template", templateName),
	)
	return nil
}
