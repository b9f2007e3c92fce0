// Package domain holds the core model types, collaborator interfaces, and
// sentinel errors shared across the application. It has no dependencies on
// storage or transport packages; those implement the interfaces defined here.
package domain
