// Package preflight provides system validation and pre-flight checks
// to ensure DocIndex can run successfully before starting operations.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Memory (minimum 1GB, compared against a fixed 4GB estimate)
//   - Write permissions in the store directory
//   - File descriptor limits (minimum 1024)
//   - Embedder credentials (non-critical)
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, "/path/to/store", cfg.Embeddings)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
