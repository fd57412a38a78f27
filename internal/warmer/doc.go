// Package warmer implements the cache warming run: a Controller that accepts
// start/stop commands and reports progress, and a Stepper that advances the
// persisted run by one batch per scheduler tick.
//
// A run walks every published content item in ascending ID order, requesting
// each item's URL so that whatever cache sits in front of the site is
// populated as a side effect. Progress is persisted after every item so a run
// resumes from its cursor after a restart.
package warmer
