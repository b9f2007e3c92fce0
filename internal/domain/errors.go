package domain

import "errors"

var (
	ErrAgentNotFound      = errors.New("agent not found")
	ErrPostNotFound       = errors.New("post not found")
	ErrVoteNotFound       = errors.New("vote not found")
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrAssignmentExists is returned when a second treatment assignment is
	// attempted for the same post.
	ErrAssignmentExists = errors.New("post already has a treatment assignment")

	// ErrNudgeAlreadyApplied is returned by the guarded nudge-apply update
	// when the assignment row already carries an applied nudge.
	ErrNudgeAlreadyApplied = errors.New("nudge already applied")

	ErrAlreadyVoted = errors.New("agent already voted on this post")
)
