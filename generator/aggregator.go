package generator

import (
	"bytes"
	"fmt"

	"github.com/appstream-tools/dep11-generator/archive"
	"github.com/appstream-tools/dep11-generator/cache"
	"github.com/appstream-tools/dep11-generator/dep11"
)

// ignoreSentinel is the literal hints value marking a package that yielded
// no extractable components. Its presence makes the skip rule treat the
// package as handled without adding anything to the published streams.
const ignoreSentinel = "ignore"

type resultKind int

const (
	// resultComponents carries one or more extracted components.
	resultComponents resultKind = iota
	// resultEmpty marks a package that produced nothing extractable.
	resultEmpty
	// resultFailed marks a package whose extraction task failed.
	resultFailed
)

type aggEntry struct {
	rec    archive.PackageRecord
	kind   resultKind
	cpts   []*dep11.Component
	reason string
}

// aggregator buffers per-package results of one processing batch. It is
// owned exclusively by the coordinating goroutine: record is fed from the
// pool's result channel and flush runs only after the pool has drained,
// so cache writes never race with extraction.
type aggregator struct {
	entries []aggEntry
}

func newAggregator() *aggregator {
	return &aggregator{}
}

// record buffers one pool result, classifying it into the tagged variant
// the flush step switches over. An extraction failure is converted into an
// ignored result carrying the failure reason, never dropped.
func (a *aggregator) record(res result) {
	switch {
	case res.err != nil:
		a.entries = append(a.entries, aggEntry{rec: res.rec, kind: resultFailed, reason: res.err.Error()})
	case len(res.cpts) == 0:
		a.entries = append(a.entries, aggEntry{rec: res.rec, kind: resultEmpty})
	default:
		a.entries = append(a.entries, aggEntry{rec: res.rec, kind: resultComponents, cpts: res.cpts})
	}
}

// flush writes every buffered entry into the cache:
//
//   - empty: hints/<id> = "ignore", no data key
//   - failed: hints/<id> = a hints document with the failure as error, no data key
//   - components: data/<id> holds the documents of all non-ignored
//     components (omitted when every component is ignored); hints/<id>
//     always exists, holding the hint documents or empty bytes.
func (a *aggregator) flush(c *cache.Cache) error {
	for _, entry := range a.entries {
		id := entry.rec.ID()
		switch entry.kind {
		case resultEmpty:
			if err := c.Put("hints/"+id, []byte(ignoreSentinel)); err != nil {
				return err
			}

		case resultFailed:
			cpt := dep11.NewComponent("generic", entry.rec.Name)
			cpt.AddErrorHint("Extraction failed: %s", entry.reason)
			doc, err := cpt.HintsYAML()
			if err != nil {
				return fmt.Errorf("package %s: %w", id, err)
			}
			if err := c.Put("hints/"+id, doc); err != nil {
				return err
			}

		case resultComponents:
			var data, hints bytes.Buffer
			for _, cpt := range entry.cpts {
				if !cpt.Ignored() {
					doc, err := cpt.MetadataYAML()
					if err != nil {
						return fmt.Errorf("package %s: %w", id, err)
					}
					data.Write(doc)
				}
				doc, err := cpt.HintsYAML()
				if err != nil {
					return fmt.Errorf("package %s: %w", id, err)
				}
				hints.Write(doc)
			}
			if data.Len() > 0 {
				if err := c.Put("data/"+id, data.Bytes()); err != nil {
					return err
				}
			}
			if err := c.Put("hints/"+id, hints.Bytes()); err != nil {
				return err
			}
		}
	}
	return nil
}

// size returns the number of buffered entries.
func (a *aggregator) size() int {
	return len(a.entries)
}
