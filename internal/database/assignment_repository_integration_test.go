package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agokrani/moltbook-api/internal/domain"
)

func newTestAssignment(postID uuid.UUID, arm domain.Arm, delay *int) *domain.TreatmentAssignment {
	return &domain.TreatmentAssignment{
		ExperimentName:    "ranking-nudge",
		ExperimentMode:    "organic",
		PostID:            postID,
		Arm:               arm,
		NudgeDelayMinutes: delay,
	}
}

func intPtr(v int) *int { return &v }

func TestAssignmentRepo_Insert(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAssignmentRepo(pool)
	ctx := context.Background()

	author := CreateTestAgent(t, pool, "author")
	post := CreateTestPost(t, pool, author.ID, "assigned")

	a := newTestAssignment(post.ID, domain.ArmNudgeUp, intPtr(10))
	require.NoError(t, repo.Insert(ctx, a))

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.False(t, a.CreatedAt.IsZero())
	assert.Nil(t, a.NudgeAppliedAt)
	assert.Nil(t, a.NudgeVoteID)
}

func TestAssignmentRepo_Insert_DuplicatePost(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAssignmentRepo(pool)
	ctx := context.Background()

	author := CreateTestAgent(t, pool, "author")
	post := CreateTestPost(t, pool, author.ID, "double assigned")

	first := newTestAssignment(post.ID, domain.ArmNudgeDown, intPtr(0))
	require.NoError(t, repo.Insert(ctx, first))

	second := newTestAssignment(post.ID, domain.ArmControl, nil)
	err := repo.Insert(ctx, second)
	assert.ErrorIs(t, err, domain.ErrAssignmentExists)

	// Original row untouched by the failed insert.
	kept, err := repo.GetByPostID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, kept.ID)
	assert.Equal(t, domain.ArmNudgeDown, kept.Arm)
}

func TestAssignmentRepo_Insert_UnknownPost(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAssignmentRepo(pool)
	ctx := context.Background()

	a := newTestAssignment(uuid.New(), domain.ArmControl, nil)
	err := repo.Insert(ctx, a)
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestAssignmentRepo_MarkNudgeApplied(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAssignmentRepo(pool)
	votes := NewVoteRepo(pool)
	ctx := context.Background()

	author := CreateTestAgent(t, pool, "author")
	bot := CreateTestAgent(t, pool, "nudge_bot")
	post := CreateTestPost(t, pool, author.ID, "nudged")

	a := newTestAssignment(post.ID, domain.ArmNudgeUp, intPtr(0))
	require.NoError(t, repo.Insert(ctx, a))

	vote, err := votes.Cast(ctx, post.ID, bot.ID, 1)
	require.NoError(t, err)

	appliedAt := time.Now().UTC()
	require.NoError(t, repo.MarkNudgeApplied(ctx, a.ID, vote.ID, appliedAt))

	stored, err := repo.GetByPostID(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NudgeAppliedAt)
	require.NotNil(t, stored.NudgeVoteID)
	assert.Equal(t, vote.ID, *stored.NudgeVoteID)
	assert.WithinDuration(t, appliedAt, *stored.NudgeAppliedAt, time.Second)
	assert.True(t, stored.NudgeApplied())
}

func TestAssignmentRepo_MarkNudgeApplied_ExactlyOnce(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAssignmentRepo(pool)
	votes := NewVoteRepo(pool)
	ctx := context.Background()

	author := CreateTestAgent(t, pool, "author")
	bot := CreateTestAgent(t, pool, "nudge_bot")
	post := CreateTestPost(t, pool, author.ID, "nudged once")

	a := newTestAssignment(post.ID, domain.ArmNudgeDown, intPtr(2))
	require.NoError(t, repo.Insert(ctx, a))

	vote, err := votes.Cast(ctx, post.ID, bot.ID, -1)
	require.NoError(t, err)

	firstAt := time.Now().UTC()
	require.NoError(t, repo.MarkNudgeApplied(ctx, a.ID, vote.ID, firstAt))

	err = repo.MarkNudgeApplied(ctx, a.ID, vote.ID, firstAt.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrNudgeAlreadyApplied)

	// The first timestamp survives the second attempt.
	stored, err := repo.GetByPostID(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NudgeAppliedAt)
	assert.WithinDuration(t, firstAt, *stored.NudgeAppliedAt, time.Second)
}

func TestAssignmentRepo_MarkNudgeApplied_UnknownAssignment(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAssignmentRepo(pool)
	ctx := context.Background()

	err := repo.MarkNudgeApplied(ctx, uuid.New(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, domain.ErrAssignmentNotFound)
}

func TestAssignmentRepo_GetByPostID_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAssignmentRepo(pool)
	ctx := context.Background()

	_, err := repo.GetByPostID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAssignmentNotFound)
}

func TestAssignmentRepo_List_OrderedByCreation(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAssignmentRepo(pool)
	ctx := context.Background()

	author := CreateTestAgent(t, pool, "author")

	var postIDs []uuid.UUID
	for _, title := range []string{"first", "second", "third"} {
		post := CreateTestPost(t, pool, author.ID, title)
		a := newTestAssignment(post.ID, domain.ArmControl, nil)
		require.NoError(t, repo.Insert(ctx, a))
		postIDs = append(postIDs, post.ID)
	}

	listed, err := repo.List(ctx, "ranking-nudge", 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, a := range listed {
		assert.Equal(t, postIDs[i], a.PostID)
	}

	// Pagination.
	page, err := repo.List(ctx, "ranking-nudge", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, postIDs[1], page[0].PostID)

	// Other experiment names are invisible.
	other, err := repo.List(ctx, "other-experiment", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAssignmentRepo_ListWithScores_ExcludesNudgerVotes(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAssignmentRepo(pool)
	votes := NewVoteRepo(pool)
	ctx := context.Background()

	author := CreateTestAgent(t, pool, "author")
	bot := CreateTestAgent(t, pool, "nudge_bot")
	organic := CreateTestAgent(t, pool, "organic_voter")
	post := CreateTestPost(t, pool, author.ID, "scored")

	a := newTestAssignment(post.ID, domain.ArmNudgeUp, intPtr(0))
	require.NoError(t, repo.Insert(ctx, a))

	_, err := votes.Cast(ctx, post.ID, organic.ID, 1)
	require.NoError(t, err)
	_, err = votes.Cast(ctx, post.ID, bot.ID, 1)
	require.NoError(t, err)

	results, err := repo.ListWithScores(ctx, "ranking-nudge", bot.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Score includes the bot's vote, organic count does not.
	assert.Equal(t, 2, results[0].Score)
	assert.Equal(t, 1, results[0].OrganicVotes)
	assert.Equal(t, a.ID, results[0].Assignment.ID)
}

func TestAssignmentRepo_CountByArm(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAssignmentRepo(pool)
	ctx := context.Background()

	author := CreateTestAgent(t, pool, "author")

	arms := []domain.Arm{domain.ArmNudgeUp, domain.ArmNudgeUp, domain.ArmControl}
	for i, arm := range arms {
		post := CreateTestPost(t, pool, author.ID, string(arm)+string(rune('a'+i)))
		var delay *int
		if arm != domain.ArmControl {
			delay = intPtr(0)
		}
		require.NoError(t, repo.Insert(ctx, newTestAssignment(post.ID, arm, delay)))
	}

	counts, err := repo.CountByArm(ctx, "ranking-nudge")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.ArmNudgeUp])
	assert.Equal(t, 0, counts[domain.ArmNudgeDown])
	assert.Equal(t, 1, counts[domain.ArmControl])
}
