package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	entitydomain "github.com/jobsift/jobsift/internal/entity/domain"
	"github.com/jobsift/jobsift/internal/normalizer"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
	"github.com/jobsift/jobsift/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ResolverParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Resolver struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p ResolverParam) entitydomain.Resolver {
	return &Resolver{
		db:    p.DB,
		log:   p.Log.Named("entity.resolver"),
		genID: p.GenID,
	}
}

// ResolveCompany looks up the canonical company for the view's identity
// tuple, creating it when absent. A concurrent create of the same identity
// loses on the unique index and re-reads the winner, so the losing row is
// never observable. Empty domains only ever match rows with an empty domain.
func (r *Resolver) ResolveCompany(ctx context.Context, view normalizer.View, observedAt time.Time) (*entitydomain.CanonicalCompany, error) {
	existing, err := r.findCompany(ctx, view)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		r.touchCompany(ctx, existing, observedAt)
		return existing, nil
	}

	created := &entitydomain.CanonicalCompany{
		ID:             r.genID.Generate(),
		NormalizedName: view.CompanySlug,
		Domain:         view.CompanyDomain,
		DisplayName:    view.CompanyDisplay,
		FirstSeenAt:    observedAt,
		LastSeenAt:     observedAt,
	}
	if err := r.db.WithContext(ctx).Create(created).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			winner, rerr := r.findCompany(ctx, view)
			if rerr != nil {
				return nil, rerr
			}
			if winner == nil {
				// The row that beat us is gone before the re-read.
				return nil, &trackerdomain.ResolutionConflictError{Resource: "company", Key: view.CompanySlug}
			}
			return winner, nil
		}
		return nil, err
	}

	r.log.Debug("canonical company created",
		zap.String("company", view.CompanySlug),
		zap.String("domain", view.CompanyDomain),
	)
	return created, nil
}

// ResolveLocation looks up or creates the canonical location for the view's
// (city, region, country) tuple under the same race discipline.
func (r *Resolver) ResolveLocation(ctx context.Context, view normalizer.View) (*entitydomain.CanonicalLocation, error) {
	existing, err := r.findLocation(ctx, view)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	created := &entitydomain.CanonicalLocation{
		ID:      r.genID.Generate(),
		City:    view.City,
		Region:  view.Region,
		Country: view.Country,
	}
	if err := r.db.WithContext(ctx).Create(created).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			winner, rerr := r.findLocation(ctx, view)
			if rerr != nil {
				return nil, rerr
			}
			if winner == nil {
				return nil, &trackerdomain.ResolutionConflictError{Resource: "location", Key: view.City + "," + view.Region + "," + view.Country}
			}
			return winner, nil
		}
		return nil, err
	}
	return created, nil
}

// Identity components may legitimately be empty strings, so both lookups use
// explicit column predicates instead of struct queries (which skip zero
// values and would collapse distinct identities).
func (r *Resolver) findCompany(ctx context.Context, view normalizer.View) (*entitydomain.CanonicalCompany, error) {
	var company entitydomain.CanonicalCompany
	err := r.db.WithContext(ctx).
		Where("normalized_name = ? AND domain = ?", view.CompanySlug, view.CompanyDomain).
		First(&company).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &company, nil
}

func (r *Resolver) findLocation(ctx context.Context, view normalizer.View) (*entitydomain.CanonicalLocation, error) {
	var loc entitydomain.CanonicalLocation
	err := r.db.WithContext(ctx).
		Where("city = ? AND region = ? AND country = ?", view.City, view.Region, view.Country).
		First(&loc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loc, nil
}

func (r *Resolver) touchCompany(ctx context.Context, company *entitydomain.CanonicalCompany, observedAt time.Time) {
	if !observedAt.After(company.LastSeenAt) {
		return
	}
	company.LastSeenAt = observedAt
	if err := r.db.WithContext(ctx).Model(&entitydomain.CanonicalCompany{}).
		Where("id = ?", company.ID).
		Update("last_seen_at", observedAt).Error; err != nil {
		r.log.Warn("failed to advance company last_seen_at",
			zap.String("company_id", company.ID.String()),
			zap.Error(err),
		)
	}
}
