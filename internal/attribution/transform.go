package attribution

import (
	"github.com/alumet-io/alumet/internal/measurement"
	"github.com/alumet-io/alumet/internal/timeseries"
)

// Key identifies a resource dimension for grouping, grounded on
// original_source/plugin-energy-attribution/src/formula.rs's
// AttributionKey implementing the Rust source's Key trait.
type Key struct {
	ResourceKind measurement.ResourceKind
	ResourceID   string
}

func keyOf(p measurement.Point) Key {
	return Key{ResourceKind: p.Resource.Kind, ResourceID: p.Resource.ID}
}

// InputBinding names one formula identifier, bound to the aggregation of
// one or more resource keys' interpolated values at each aligned row.
type InputBinding struct {
	Name      string
	Keys      []Key
	Aggregate AggregateOperator
}

// Transform implements plugin.Transform: for each buffer, it groups points
// by resource key, extracts the common range and interpolates every
// non-reference key onto the reference key's timeline, evaluates the
// formula per aligned row, and appends one derived point per row.
type Transform struct {
	RefKey       Key
	Inputs       []InputBinding
	Formula      *Formula
	OutputMetric uint32
	Filter       func(measurement.Point) bool
}

// Apply satisfies pkg/plugin.Transform.
func (t *Transform) Apply(buf *measurement.Buffer) error {
	group := timeseries.NewGroupedBuffer(keyOf)
	group.Extend(buf, t.Filter)

	rows, ok := group.InterpolateAll(t.RefKey)
	if !ok {
		// No common range this round (e.g. a contributing series had no
		// samples yet) — not an error, simply nothing to attribute.
		return nil
	}

	for _, row := range rows {
		params := make(map[string]interface{}, len(t.Inputs))
		for _, in := range t.Inputs {
			values := make([]float64, 0, len(in.Keys))
			for _, k := range in.Keys {
				if k == t.RefKey {
					values = append(values, row.Reference.Value.AsF64())
					continue
				}
				if v, present := row.Values[k]; present {
					values = append(values, v)
				}
			}
			params[in.Name] = in.Aggregate.Apply(values)
		}

		result, err := t.Formula.Eval(params)
		if err != nil {
			return err
		}

		buf.Push(measurement.Point{
			Timestamp:  row.Timestamp,
			MetricID:   t.OutputMetric,
			Resource:   row.Reference.Resource,
			Consumer:   row.Reference.Consumer,
			Value:      measurement.F64(result),
			Attributes: row.Reference.Attributes,
		})
	}
	return nil
}
