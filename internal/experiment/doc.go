// Package experiment implements randomized treatment assignment and delayed
// nudge execution. Every new post draws one of three arms uniformly; posts in
// a nudge arm get a synthetic vote from the nudge bot after a randomly chosen
// delay. Assignments are durable rows; the pending timers are process-local
// and do not survive a restart.
package experiment
