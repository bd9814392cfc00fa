// Package reconcile repairs the duplicate kernel field left behind when a
// sampling tool appends a suffixed copy of an existing field.
package reconcile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/layer"
)

// Default field names.
const (
	CanonicalField = "kernel_val"
	DuplicateField = "kernel_val_1"
)

// Report describes what a reconciliation did.
type Report struct {
	Layer   string `json:"layer"`
	NoOp    bool   `json:"no_op"`   // duplicate absent, nothing changed
	Created bool   `json:"created"` // canonical field had to be added
	Merged  int    `json:"merged"`  // rows that took the duplicate's value
}

// Reconciler merges a duplicate field into its canonical field.
type Reconciler struct {
	Canonical layer.Field
	Duplicate string
}

// New returns a Reconciler for kernel_val / kernel_val_1.
func New() *Reconciler {
	return &Reconciler{
		Canonical: layer.Field{Name: CanonicalField, Type: layer.Double},
		Duplicate: DuplicateField,
	}
}

// Reconcile copies every non-null duplicate value into the canonical field,
// keeps the canonical value where the duplicate is null, and drops the
// duplicate. A layer without the duplicate is left untouched, so repeated
// runs are no-ops.
func (rc *Reconciler) Reconcile(ctx context.Context, l layer.Layer) (Report, error) {
	rep := Report{Layer: l.Name()}
	log := zap.L().With(zap.String("component", "reconcile"), zap.String("layer", l.Name()))

	fields, err := l.Fields(ctx)
	if err != nil {
		return rep, eris.Wrapf(err, "reconcile: list fields of %s", l.Name())
	}
	dup, ok := layer.FindField(fields, rc.Duplicate)
	if !ok {
		rep.NoOp = true
		log.Debug("no duplicate field", zap.String("field", rc.Duplicate))
		return rep, nil
	}

	canonical, ok := layer.FindField(fields, rc.Canonical.Name)
	if !ok {
		if err := l.AddField(ctx, rc.Canonical); err != nil {
			return rep, eris.Wrapf(err, "reconcile: add field %s to %s", rc.Canonical.Name, l.Name())
		}
		canonical = rc.Canonical
		rep.Created = true
	}

	var updates []layer.Row
	err = l.Read(ctx, []string{dup.Name}, func(r layer.Row) error {
		v := r.Values[dup.Name]
		if v == nil {
			return nil
		}
		updates = append(updates, layer.Row{FID: r.FID, Values: map[string]any{canonical.Name: v}})
		return nil
	})
	if err != nil {
		return rep, eris.Wrapf(err, "reconcile: read %s from %s", dup.Name, l.Name())
	}
	if err := l.Update(ctx, []string{canonical.Name}, updates); err != nil {
		return rep, eris.Wrapf(err, "reconcile: write %s on %s", canonical.Name, l.Name())
	}
	rep.Merged = len(updates)

	if err := l.DropField(ctx, dup.Name); err != nil {
		return rep, eris.Wrapf(err, "reconcile: drop %s from %s", dup.Name, l.Name())
	}

	log.Info("duplicate field merged",
		zap.String("canonical", canonical.Name),
		zap.String("duplicate", dup.Name),
		zap.Bool("created", rep.Created),
		zap.Int("merged", rep.Merged),
	)
	return rep, nil
}
