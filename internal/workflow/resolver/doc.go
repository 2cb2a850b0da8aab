// Package resolver contains the dependency resolver for task chains. It
// inspects chain definitions, instantiates tasks from the registry, checks that
// every input key is produced upstream, and evaluates readiness against a run
// state for the engine.
package resolver
