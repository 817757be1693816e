// Package matcher finds the best existing tracked-job candidate for an
// incoming posting: exact fingerprint first, then fuzzy title comparison
// bounded to the same canonical company and location. A cross-company fuzzy
// match is never performed, regardless of title similarity.
package matcher

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/jobsift/jobsift/internal/config"
	"github.com/jobsift/jobsift/internal/normalizer"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// candidateLimit bounds the fuzzy comparison set per call.
const candidateLimit = 100

type Service interface {
	WithTx(tx *gorm.DB) Service
	FindCandidate(ctx context.Context, fp, descFP string, view normalizer.View, companyID, locationID snowflake.ID) (*trackerdomain.TrackedJob, error)
}

type MatcherParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Tracking *config.TrackingConfigHolder
}

type Matcher struct {
	db       *gorm.DB
	log      *zap.Logger
	tracking *config.TrackingConfigHolder
}

// Module provides the duplicate matcher.
var Module = fx.Module("matcher",
	fx.Provide(New),
)

func New(p MatcherParam) Service {
	return &Matcher{
		db:       p.DB,
		log:      p.Log.Named("matcher"),
		tracking: p.Tracking,
	}
}

// WithTx rebinds the matcher to a transaction so candidate lookup happens
// inside the merge engine's critical section.
func (m *Matcher) WithTx(tx *gorm.DB) Service {
	return &Matcher{db: tx, log: m.log, tracking: m.tracking}
}

// FindCandidate applies the matching policy in order, first hit wins:
// exact fingerprint, then fuzzy within the same company+location, then none.
// At most one candidate is returned; ties break toward the most recent
// last_seen_at.
func (m *Matcher) FindCandidate(ctx context.Context, fp, descFP string, view normalizer.View, companyID, locationID snowflake.ID) (*trackerdomain.TrackedJob, error) {
	exact, err := m.findExact(ctx, fp)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		return exact, nil
	}

	return m.findFuzzy(ctx, descFP, view, companyID, locationID)
}

func (m *Matcher) findExact(ctx context.Context, fp string) (*trackerdomain.TrackedJob, error) {
	var job trackerdomain.TrackedJob
	err := m.db.WithContext(ctx).
		Where("job_fingerprint = ?", fp).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (m *Matcher) findFuzzy(ctx context.Context, descFP string, view normalizer.View, companyID, locationID snowflake.ID) (*trackerdomain.TrackedJob, error) {
	var candidates []*trackerdomain.TrackedJob
	err := m.db.WithContext(ctx).
		Where("company_id = ? AND location_id = ?", companyID, locationID).
		Order("last_seen_at DESC, job_fingerprint ASC").
		Limit(candidateLimit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	threshold := m.tracking.Current().TitleSimilarity

	var best *trackerdomain.TrackedJob
	bestScore := 0.0
	for _, candidate := range candidates {
		descMatch := descFP != "" && candidate.DescriptionFingerprint == descFP
		s := score(view.Title, candidate.NormalizedTitle, descMatch)
		if s < threshold {
			continue
		}
		// Candidates arrive ordered by recency, so a strictly greater
		// score is required to displace an earlier match.
		if best == nil || s > bestScore {
			best = candidate
			bestScore = s
		}
	}

	if best != nil {
		m.log.Debug("fuzzy candidate matched",
			zap.String("title", view.Title),
			zap.String("candidate_title", best.NormalizedTitle),
			zap.Float64("score", bestScore),
		)
	}
	return best, nil
}
