package transform

import (
	"context"
	"path/filepath"
	"sync"

	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
)

// OutputClaims records which task wrote each output path during one run.
// Two tasks writing the same path in the same run is an output conflict.
type OutputClaims struct {
	mu     sync.Mutex
	owners map[string]string
}

// NewOutputClaims returns an empty registry.
func NewOutputClaims() *OutputClaims {
	return &OutputClaims{owners: make(map[string]string)}
}

// Claim registers path as written by task. Claiming a path again from the
// same task is allowed.
func (c *OutputClaims) Claim(path, task string) error {
	path = filepath.Clean(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.owners[path]; ok && owner != task {
		return &serrors.SitepipeError{
			Kind:    serrors.KindConfig,
			Task:    task,
			Message: "output conflict: " + path + " is already written by " + owner,
		}
	}
	c.owners[path] = task
	return nil
}

// Len returns the number of claimed paths.
func (c *OutputClaims) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.owners)
}

type claimsKey struct{}

// WithClaims returns a context whose pipelines register their outputs in c.
func WithClaims(ctx context.Context, c *OutputClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the registry carried by ctx, or nil.
func ClaimsFrom(ctx context.Context) *OutputClaims {
	c, _ := ctx.Value(claimsKey{}).(*OutputClaims)
	return c
}
