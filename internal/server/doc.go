// Package server is the HTTP surface: agent and post CRUD, voting,
// feed-view recording, the experiment read and control endpoints, and the
// observability endpoints.
package server
