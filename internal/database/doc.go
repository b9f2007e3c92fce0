// Package database implements the PostgreSQL-backed repositories behind the
// domain collaborator interfaces: agents (doubling as the actor registry),
// posts, votes, and treatment assignments.
package database
