package events

import (
	"context"

	"github.com/korjavin/eventbot/pkg/proposal"
)

// ProposeEvent validates a request, checks it against existing events and
// parks it until the owner confirms or the proposal expires.
func (s *Service) ProposeEvent(ctx context.Context, req CreateRequest) (proposal.Proposal, error) {
	draft, err := s.Draft(ctx, req)
	if err != nil {
		return proposal.Proposal{}, err
	}

	checkCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.checkOverlap(checkCtx, draft.OwnerID, draft.GroupID, draft.Start, draft.End, 0); err != nil {
		return proposal.Proposal{}, err
	}

	p := s.proposals.Put(draft)
	s.logger.Debug("Proposal %s stored for user %s", p.ID, draft.OwnerID)
	return p, nil
}

// ConfirmProposal creates the event of a live proposal owned by requester.
// Overlap is checked again since other events may have been created meanwhile.
func (s *Service) ConfirmProposal(ctx context.Context, requester, id string) (int64, error) {
	p, ok := s.proposals.Get(id)
	if !ok {
		return 0, ErrProposalExpired
	}
	if p.Draft.OwnerID != requester {
		return 0, ErrNotFoundOrForbidden
	}
	if _, ok := s.proposals.Take(id); !ok {
		return 0, ErrProposalExpired
	}
	return s.Create(ctx, p.Draft)
}

// CancelProposal discards a proposal owned by requester
func (s *Service) CancelProposal(requester, id string) error {
	p, ok := s.proposals.Get(id)
	if !ok {
		return ErrProposalExpired
	}
	if p.Draft.OwnerID != requester {
		return ErrNotFoundOrForbidden
	}
	if !s.proposals.Cancel(id) {
		return ErrProposalExpired
	}
	return nil
}

// Proposal returns a live proposal
func (s *Service) Proposal(id string) (proposal.Proposal, bool) {
	return s.proposals.Get(id)
}

// SweepProposals drops expired proposals
func (s *Service) SweepProposals() int {
	return s.proposals.Sweep()
}
