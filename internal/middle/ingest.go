package middle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wegman-software/osmpoi-go/internal/source"
	"github.com/wegman-software/osmpoi-go/internal/store"
)

// Counts tallies rows written to the raw tables.
type Counts struct {
	Nodes      int64
	Ways       int64
	WayNodes   int64
	Relations  int64
	References int64
}

// Elements returns the number of nodes, ways and relations ingested.
func (c Counts) Elements() int64 {
	return c.Nodes + c.Ways + c.Relations
}

// IngestOptions configures Ingest.
type IngestOptions struct {
	// Progress, when set, is called every ProgressEvery elements.
	Progress      func(Counts)
	ProgressEvery int64
}

// HasName reports whether any tag key contains "name".
func HasName(tags map[string]string) bool {
	for k := range tags {
		if strings.Contains(k, "name") {
			return true
		}
	}
	return false
}

// TagsJSON encodes tags as a JSON object with sorted keys.
func TagsJSON(tags map[string]string) (string, error) {
	if len(tags) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type inserters struct {
	node, way, wayNode, relation, reference *store.Stmt
}

func prepare(ctx context.Context, tx *store.Tx) (*inserters, error) {
	ins := &inserters{}
	queries := []struct {
		dst **store.Stmt
		sql string
	}{
		{&ins.node, "INSERT INTO nodes (node_id, lat, lon, has_name, tags) VALUES (?, ?, ?, ?, ?)"},
		{&ins.way, "INSERT INTO ways (way_id, has_name, tags) VALUES (?, ?, ?)"},
		{&ins.wayNode, "INSERT INTO way_nodes (way_id, node_id) VALUES (?, ?)"},
		{&ins.relation, "INSERT INTO relations (relation_id, has_name, tags) VALUES (?, ?, ?)"},
		{&ins.reference, "INSERT INTO relation_references (relation_id, reference_id, reference_type) VALUES (?, ?, ?)"},
	}
	for _, q := range queries {
		st, err := tx.Prepare(ctx, q.sql)
		if err != nil {
			ins.close()
			return nil, fmt.Errorf("preparing insert: %w", err)
		}
		*q.dst = st
	}
	return ins, nil
}

func (ins *inserters) close() {
	for _, st := range []*store.Stmt{ins.node, ins.way, ins.wayNode, ins.relation, ins.reference} {
		if st != nil {
			st.Close()
		}
	}
}

// Ingest consumes the stream once, in order, writing every element to the
// raw tables. It stops at the first decode or insert error; the caller's
// transaction is expected to roll back.
func Ingest(ctx context.Context, tx *store.Tx, stream source.Stream, opts IngestOptions) (Counts, error) {
	var c Counts

	ins, err := prepare(ctx, tx)
	if err != nil {
		return c, err
	}
	defer ins.close()

	every := opts.ProgressEvery
	if every <= 0 {
		every = 100000
	}

	for stream.Next() {
		el := stream.Element()
		if err := ins.insert(ctx, el, &c); err != nil {
			return c, fmt.Errorf("ingesting %s %d: %w", el.Kind, el.ID, err)
		}
		if n := c.Elements(); n%every == 0 {
			if err := ctx.Err(); err != nil {
				return c, err
			}
			if opts.Progress != nil {
				opts.Progress(c)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return c, err
	}
	if opts.Progress != nil {
		opts.Progress(c)
	}
	return c, nil
}

func (ins *inserters) insert(ctx context.Context, el source.Element, c *Counts) error {
	tags, err := TagsJSON(el.Tags)
	if err != nil {
		return err
	}
	named := HasName(el.Tags)

	switch el.Kind {
	case source.KindNode:
		if _, err := ins.node.Exec(ctx, el.ID, el.Lat, el.Lon, named, tags); err != nil {
			return err
		}
		c.Nodes++

	case source.KindWay:
		if _, err := ins.way.Exec(ctx, el.ID, named, tags); err != nil {
			return err
		}
		c.Ways++
		for _, ref := range el.Nodes {
			if _, err := ins.wayNode.Exec(ctx, el.ID, ref); err != nil {
				return err
			}
			c.WayNodes++
		}

	case source.KindRelation:
		if _, err := ins.relation.Exec(ctx, el.ID, named, tags); err != nil {
			return err
		}
		c.Relations++
		for _, m := range el.Members {
			if _, err := ins.reference.Exec(ctx, el.ID, m.Ref, int(m.Kind)); err != nil {
				return err
			}
			c.References++
		}

	default:
		return fmt.Errorf("unknown element kind %d", el.Kind)
	}
	return nil
}
