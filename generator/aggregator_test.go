package generator

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/appstream-tools/dep11-generator/archive"
	"github.com/appstream-tools/dep11-generator/cache"
	"github.com/appstream-tools/dep11-generator/dep11"
)

func openTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func aggRecord(name string) archive.PackageRecord {
	return archive.PackageRecord{Name: name, Version: "1.0", Arch: "amd64", Filename: "pool/" + name + ".deb"}
}

func TestAggregatorEmptyResult(t *testing.T) {
	c := openTestCache(t)
	agg := newAggregator()
	agg.record(result{rec: aggRecord("foo")})

	if err := agg.flush(c); err != nil {
		t.Fatalf("flush: %v", err)
	}

	hints, err := c.Get("hints/foo_1.0_amd64")
	if err != nil {
		t.Fatalf("hints entry: %v", err)
	}
	if string(hints) != ignoreSentinel {
		t.Errorf("hints = %q, want the ignore sentinel", hints)
	}
	if ok, _ := c.Has("data/foo_1.0_amd64"); ok {
		t.Error("empty result must not create a data entry")
	}
}

func TestAggregatorFailedResult(t *testing.T) {
	c := openTestCache(t)
	agg := newAggregator()
	agg.record(result{rec: aggRecord("foo"), err: fmt.Errorf("corrupt archive")})

	if err := agg.flush(c); err != nil {
		t.Fatalf("flush: %v", err)
	}

	hints, err := c.Get("hints/foo_1.0_amd64")
	if err != nil {
		t.Fatalf("hints entry: %v", err)
	}
	if string(hints) == ignoreSentinel {
		t.Fatal("failure must not be recorded as the ignore sentinel")
	}
	docs, err := dep11.ParseHintsStream(hints)
	if err != nil {
		t.Fatalf("parsing hints: %v", err)
	}
	if len(docs) != 1 || len(docs[0].Errors) != 1 {
		t.Fatalf("docs = %+v", docs)
	}
	if !strings.Contains(docs[0].Errors[0], "corrupt archive") {
		t.Errorf("error hint %q does not carry the failure reason", docs[0].Errors[0])
	}
	if ok, _ := c.Has("data/foo_1.0_amd64"); ok {
		t.Error("failed result must not create a data entry")
	}
}

func TestAggregatorComponents(t *testing.T) {
	c := openTestCache(t)

	good := dep11.NewComponent("desktop-app", "foo")
	good.ID = "foo.desktop"
	good.Name = map[string]string{"C": "Foo"}
	good.AddWarningHint("minor issue")

	bad := dep11.NewComponent("desktop-app", "foo")
	bad.ID = "broken.desktop"
	bad.AddErrorHint("no name")

	agg := newAggregator()
	agg.record(result{rec: aggRecord("foo"), cpts: []*dep11.Component{good, bad}})
	if err := agg.flush(c); err != nil {
		t.Fatalf("flush: %v", err)
	}

	data, err := c.Get("data/foo_1.0_amd64")
	if err != nil {
		t.Fatalf("data entry: %v", err)
	}
	if !strings.Contains(string(data), "foo.desktop") {
		t.Error("data entry missing the good component")
	}
	if strings.Contains(string(data), "broken.desktop") {
		t.Error("ignored component leaked into the data entry")
	}

	hints, err := c.Get("hints/foo_1.0_amd64")
	if err != nil {
		t.Fatalf("hints entry: %v", err)
	}
	docs, err := dep11.ParseHintsStream(hints)
	if err != nil {
		t.Fatalf("parsing hints: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d hint documents, want 2", len(docs))
	}
}

func TestAggregatorAllIgnoredComponents(t *testing.T) {
	c := openTestCache(t)

	hidden := dep11.NewComponent("desktop-app", "foo")
	hidden.ID = "hidden.desktop"
	hidden.Ignore("marked invisible")

	agg := newAggregator()
	agg.record(result{rec: aggRecord("foo"), cpts: []*dep11.Component{hidden}})
	if err := agg.flush(c); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if ok, _ := c.Has("data/foo_1.0_amd64"); ok {
		t.Error("all-ignored package must not create a data entry")
	}
	// the hints key still marks the package as handled
	hints, err := c.Get("hints/foo_1.0_amd64")
	if err != nil {
		t.Fatalf("hints entry: %v", err)
	}
	if len(hints) != 0 {
		t.Errorf("hints = %q, want an empty marker entry", hints)
	}
}

func TestAggregatorFlushErrorPropagates(t *testing.T) {
	c := openTestCache(t)
	c.Close()

	agg := newAggregator()
	agg.record(result{rec: aggRecord("foo")})
	if err := agg.flush(c); err == nil {
		t.Fatal("expected an error writing to a closed cache")
	} else if errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("unexpected error kind: %v", err)
	}
}
