package domain_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

func TestResolveApprovals(t *testing.T) {
	tests := []struct {
		name      string
		approvals domain.Approvals
		want      domain.ProposalStatus
	}{
		{name: "empty", approvals: domain.Approvals{}, want: domain.ProposalPending},
		{name: "all approved", approvals: domain.Approvals{"a": domain.VoteApproved, "b": domain.VoteApproved}, want: domain.ProposalApproved},
		{name: "one unset", approvals: domain.Approvals{"a": domain.VoteApproved, "b": domain.VoteUnset}, want: domain.ProposalPending},
		{name: "veto", approvals: domain.Approvals{"a": domain.VoteApproved, "b": domain.VoteRejected, "c": domain.VoteUnset}, want: domain.ProposalRejected},
		{name: "unknown value", approvals: domain.Approvals{"a": domain.VoteApproved, "b": domain.Vote(7)}, want: domain.ProposalPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.ResolveApprovals(tt.approvals))
		})
	}
}

func newProposal(participants ...string) *domain.ChangeProposal {
	p := &domain.ChangeProposal{ID: "p-1", ProposerID: participants[0]}
	p.Open(participants, time.Now())
	return p
}

func TestProposalOpenRecordsProposerApproval(t *testing.T) {
	p := newProposal("alice", "bob", "carol")
	assert.Equal(t, domain.ProposalPending, p.Status)
	assert.Equal(t, domain.VoteApproved, p.Approvals["alice"])
	approved, rejected, unset := p.Tally()
	assert.Equal(t, 1, approved)
	assert.Equal(t, 0, rejected)
	assert.Equal(t, 2, unset)

	solo := newProposal("alice")
	assert.Equal(t, domain.ProposalApproved, solo.Status)
	assert.NotNil(t, solo.ResolvedAt)
}

func TestCastVote(t *testing.T) {
	now := time.Now()
	p := newProposal("alice", "bob", "carol")

	err := p.CastVote("mallory", domain.VoteApproved, true, now)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConsensus))

	require.NoError(t, p.CastVote("bob", domain.VoteApproved, true, now))
	assert.Equal(t, domain.ProposalPending, p.Status)

	require.NoError(t, p.CastVote("carol", domain.VoteApproved, true, now))
	assert.Equal(t, domain.ProposalApproved, p.Status)

	err = p.CastVote("carol", domain.VoteRejected, true, now)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConsensus), "terminal proposals refuse votes")
	assert.Equal(t, domain.ProposalApproved, p.Status)
}

func TestCastVoteRevote(t *testing.T) {
	now := time.Now()

	p := newProposal("alice", "bob", "carol")
	require.NoError(t, p.CastVote("bob", domain.VoteApproved, false, now))
	err := p.CastVote("bob", domain.VoteRejected, false, now)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConsensus))

	p = newProposal("alice", "bob", "carol")
	require.NoError(t, p.CastVote("bob", domain.VoteApproved, true, now))
	require.NoError(t, p.CastVote("bob", domain.VoteRejected, true, now))
	assert.Equal(t, domain.ProposalRejected, p.Status)
}

func TestCastVoteRejectsUnset(t *testing.T) {
	p := newProposal("alice", "bob")
	err := p.CastVote("bob", domain.VoteUnset, true, time.Now())
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestVoteJSON(t *testing.T) {
	raw, err := domain.VoteApproved.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"approved"`, string(raw))

	var v domain.Vote
	require.NoError(t, v.UnmarshalJSON([]byte(`"rejected"`)))
	assert.Equal(t, domain.VoteRejected, v)
	assert.Error(t, v.UnmarshalJSON([]byte(`"maybe"`)))
}

func genVotes() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, 2)).Map(func(raw []int) []domain.Vote {
		out := make([]domain.Vote, len(raw))
		for i, v := range raw {
			out[i] = domain.Vote(v)
		}
		return out
	})
}

func approvalsOf(votes []domain.Vote) domain.Approvals {
	a := make(domain.Approvals, len(votes))
	for i, v := range votes {
		a[string(rune('A'+i%26))+string(rune('a'+i/26))] = v
	}
	return a
}

func TestResolveApprovalsProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("any rejection vetoes", prop.ForAll(
		func(votes []domain.Vote) bool {
			votes = append(votes, domain.VoteRejected)
			return domain.ResolveApprovals(approvalsOf(votes)) == domain.ProposalRejected
		},
		genVotes(),
	))

	properties.Property("approved only when every vote approves", prop.ForAll(
		func(votes []domain.Vote) bool {
			all := len(votes) > 0
			for _, v := range votes {
				if v != domain.VoteApproved {
					all = false
				}
			}
			got := domain.ResolveApprovals(approvalsOf(votes))
			return (got == domain.ProposalApproved) == all
		},
		genVotes(),
	))

	properties.Property("casting order does not change the outcome", prop.ForAll(
		func(votes []domain.Vote) bool {
			participants := []string{"proposer"}
			for i := range votes {
				participants = append(participants, string(rune('a'+i%26))+string(rune('A'+i/26)))
			}
			forward := &domain.ChangeProposal{ProposerID: "proposer"}
			forward.Open(participants, time.Time{})
			backward := &domain.ChangeProposal{ProposerID: "proposer"}
			backward.Open(participants, time.Time{})

			for i, v := range votes {
				if v != domain.VoteUnset {
					_ = forward.CastVote(participants[i+1], v, false, time.Time{})
				}
			}
			for i := len(votes) - 1; i >= 0; i-- {
				if votes[i] != domain.VoteUnset {
					_ = backward.CastVote(participants[i+1], votes[i], false, time.Time{})
				}
			}
			return forward.Status == backward.Status
		},
		genVotes(),
	))

	properties.TestingRun(t)
}
