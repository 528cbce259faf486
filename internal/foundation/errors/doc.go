// Package errors provides the classified error primitives used across the build worker.
//
// A ClassifiedError carries a category (config, network, git, build, process, ...),
// a severity and a retry strategy, so callers can route failures without parsing
// messages. Errors are constructed through a fluent builder:
//
//	err := errors.NewError(errors.CategoryGit, "fetch failed").
//		WithRetry(errors.RetryBackoff).
//		WithContext("remote", remoteName).
//		WithCause(originalErr).
//		Build()
//
// The CLI adapter maps categories to process exit codes.
package errors
