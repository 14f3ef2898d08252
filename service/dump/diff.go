package dump

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

// Diff returns a unified diff from a to b, or an empty string when they
// render identically.
func Diff(a, b *Dump, fromName, toName string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a.String()),
		B:        difflib.SplitLines(b.String()),
		FromFile: fromName,
		ToFile:   toName,
		Context:  1,
	}
	ret, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to diff dumps: %w", err)
	}
	return ret, nil
}

// Save writes the rendered dump to URL.
func Save(ctx context.Context, fs afs.Service, URL string, d *Dump) error {
	if fs == nil {
		fs = afs.New()
	}
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return err
	}
	if err := fs.Upload(ctx, URL, file.DefaultFileOsMode, &buf); err != nil {
		return fmt.Errorf("failed to save dump to %v: %w", URL, err)
	}
	return nil
}
