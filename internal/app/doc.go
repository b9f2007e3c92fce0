// Package app is the application layer, the only component that references
// multiple domain components. It orchestrates all use cases: agent and post
// CRUD, voting, feed-view recording, treatment assignment on post creation,
// the world-content feed, and the experiment read surface.
package app
