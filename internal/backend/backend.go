// Package backend defines the contract shared by the media backends that a
// dispatch engine can route a request to.
package backend

import (
	"context"
	"fmt"

	"github.com/jmylchreest/mediaxcode/internal/transform"
)

// Backend loads one source, accumulates operations and renders output.
// A Backend serves a single request and is not safe for concurrent use.
type Backend interface {
	// Load replaces the source and resets all operations.
	Load(ctx context.Context, buf []byte, ext string) error
	// Read renders the output for ext. Re-encoding backends return the
	// source unchanged when quality is nil.
	Read(ctx context.Context, ext string, quality *int) ([]byte, error)
	// Size returns the current output size.
	Size() transform.Size

	Resize(width, height int)
	Crop(left, top, right, bottom int)
	Rotate(degrees int)
	FlipVertically()
	FlipHorizontally()
	ConvertToGrayscale()
	// Reorientate applies stored orientation metadata. Backends without
	// orientation metadata treat it as a no-op.
	Reorientate()

	IsMultiple() bool
	Cleanup()
}

// Replay applies a logged operation sequence to b in order.
func Replay(b Backend, ops []transform.Operation) error {
	for _, op := range ops {
		if err := apply(b, op); err != nil {
			return err
		}
	}
	return nil
}

func apply(b Backend, op transform.Operation) error {
	want := map[string]int{
		transform.OpResize:             2,
		transform.OpCrop:               4,
		transform.OpRotate:             1,
		transform.OpFlipVertically:     0,
		transform.OpFlipHorizontally:   0,
		transform.OpConvertToGrayscale: 0,
	}
	n, known := want[op.Name]
	if !known {
		return fmt.Errorf("unknown operation %q", op.Name)
	}
	if len(op.Args) != n {
		return fmt.Errorf("operation %q takes %d arguments, got %d", op.Name, n, len(op.Args))
	}

	switch op.Name {
	case transform.OpResize:
		b.Resize(op.Args[0], op.Args[1])
	case transform.OpCrop:
		b.Crop(op.Args[0], op.Args[1], op.Args[2], op.Args[3])
	case transform.OpRotate:
		b.Rotate(op.Args[0])
	case transform.OpFlipVertically:
		b.FlipVertically()
	case transform.OpFlipHorizontally:
		b.FlipHorizontally()
	case transform.OpConvertToGrayscale:
		b.ConvertToGrayscale()
	}
	return nil
}
