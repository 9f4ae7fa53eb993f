// Package publish runs a validated draft against every selected target.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/blacktop/metapost/internal/logutil"
	"github.com/blacktop/metapost/internal/metapost"
	"github.com/google/uuid"
)

// ResourceResolver finds the page to publish to when no linked account was resolved.
type ResourceResolver interface {
	PrimaryResource(ctx context.Context, session metapost.Session) (metapost.Resource, error)
}

// Planner is implemented by posters that can describe their calls for a dry run.
type Planner interface {
	Plan(req metapost.Request) []string
}

// TargetPlan is the dry-run description of one target.
type TargetPlan struct {
	Target metapost.Target
	Calls  []string
	Err    error
}

// Orchestrator publishes drafts to facebook and instagram in that order.
type Orchestrator struct {
	resolver ResourceResolver
	posters  map[metapost.Target]metapost.Poster
}

// New wires the resolver and the per-target posters.
func New(resolver ResourceResolver, posters ...metapost.Poster) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		posters:  make(map[metapost.Target]metapost.Poster, len(posters)),
	}
	for _, p := range posters {
		o.posters[p.Name()] = p
	}
	return o
}

// Publish submits the draft. The draft is validated and marked as posting
// before any network call. Every selected target gets a result; the returned
// error joins the failures and is nil only when all targets succeeded. A fully
// successful run resets the draft, otherwise its content is kept.
func (o *Orchestrator) Publish(ctx context.Context, draft *metapost.Draft, session metapost.Session, linked *metapost.LinkedAccount) ([]metapost.PublishResult, error) {
	snap, err := draft.BeginPosting()
	if err != nil {
		return nil, err
	}

	success := false
	defer func() { draft.FinishPosting(success) }()

	runID := uuid.NewString()
	logutil.Debugf("publish started: run_id=%s targets=%v image=%t", runID, snap.Targets, snap.Image != nil)

	page, pageErr := o.resource(ctx, snap, session, linked)
	if pageErr != nil {
		logutil.Debugf("resource resolution failed: run_id=%s err=%v", runID, pageErr)
	}

	results := make([]metapost.PublishResult, 0, len(snap.Targets))
	var errs []error
	for _, target := range snap.Targets {
		res := metapost.PublishResult{Target: target}
		res.RemoteID, res.Err = o.post(ctx, target, snap, page, pageErr, linked)
		res.Success = res.Err == nil
		if res.Success {
			logutil.Debugf("target published: run_id=%s target=%s id=%s", runID, target, res.RemoteID)
		} else {
			logutil.Debugf("target failed: run_id=%s target=%s err=%v", runID, target, res.Err)
			errs = append(errs, targetErr(target, res.Err))
		}
		results = append(results, res)
	}

	success = len(errs) == 0
	logutil.Debugf("publish finished: run_id=%s ok=%t", runID, success)
	return results, errors.Join(errs...)
}

func (o *Orchestrator) post(ctx context.Context, target metapost.Target, snap metapost.DraftSnapshot, page metapost.Resource, pageErr error, linked *metapost.LinkedAccount) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	poster, ok := o.posters[target]
	if !ok {
		return "", fmt.Errorf("target %q is not configured", target)
	}

	req := metapost.Request{Message: snap.Text, Image: snap.Image}
	switch target {
	case metapost.TargetInstagram:
		if !linked.Connected() {
			return "", metapost.ErrNoLinkedAccount
		}
		req.Page = linked.Page
		req.AccountID = linked.AccountID
	default:
		if pageErr != nil {
			return "", fmt.Errorf("resolve page: %w", pageErr)
		}
		req.Page = page
	}
	return poster.Post(ctx, req)
}

// resource picks the page for non-instagram targets: the linked account's
// page when one is connected, otherwise the user's first page.
func (o *Orchestrator) resource(ctx context.Context, snap metapost.DraftSnapshot, session metapost.Session, linked *metapost.LinkedAccount) (metapost.Resource, error) {
	if linked.Connected() {
		return linked.Page, nil
	}
	if !snap.Has(metapost.TargetFacebook) {
		return metapost.Resource{}, nil
	}
	if o.resolver == nil {
		return metapost.Resource{}, metapost.ErrNoPrimaryResource
	}
	return o.resolver.PrimaryResource(ctx, session)
}

// Plan describes what Publish would do with the draft without touching the
// network or the posting flag.
func (o *Orchestrator) Plan(draft *metapost.Draft, linked *metapost.LinkedAccount) ([]TargetPlan, error) {
	snap := draft.Snapshot()
	if snap.Posting {
		return nil, metapost.ErrPublishInProgress
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	plans := make([]TargetPlan, 0, len(snap.Targets))
	for _, target := range snap.Targets {
		plan := TargetPlan{Target: target}
		req := metapost.Request{Message: snap.Text, Image: snap.Image}
		if linked.Connected() {
			req.Page = linked.Page
			req.AccountID = linked.AccountID
		} else if target == metapost.TargetInstagram {
			plan.Err = metapost.ErrNoLinkedAccount
		}

		if p, ok := o.posters[target].(Planner); ok {
			plan.Calls = p.Plan(req)
		} else {
			plan.Err = errors.Join(plan.Err, fmt.Errorf("target %q cannot be planned", target))
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func targetErr(target metapost.Target, err error) error {
	var stepErr *metapost.StepError
	if errors.As(err, &stepErr) && stepErr.Target == target {
		return err
	}
	return fmt.Errorf("%s: %w", target, err)
}
