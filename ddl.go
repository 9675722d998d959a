package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// generateCreateTable produces the CREATE TABLE statement for an inferred
// layer. The geometry column stays untyped until alterGeometryColumn runs.
func generateCreateTable(id TableIdentity, s *LayerSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", id.Quoted())
	for _, col := range s.Columns {
		fmt.Fprintf(&b, "  %s %s,\n", pgIdent(col.Name), col.PGType)
	}
	fmt.Fprintf(&b, "  %s geometry\n)", geomColumn)
	return b.String()
}

// generateAlterGeometry types the geometry column with the layer's kind and SRID.
func generateAlterGeometry(id TableIdentity, kind GeometryKind, srid int) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE geometry(%s, %d)",
		id.Quoted(), geomColumn, kind, srid)
}

// LayerStyle is the rendering annotation stored as the table comment.
type LayerStyle struct {
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
}

func layerStyleFromConfig(c StyleConfig) LayerStyle {
	return LayerStyle{
		FillColor:   c.FillColor,
		FillOpacity: c.FillOpacity,
		Color:       c.Color,
		Weight:      c.Weight,
	}
}

// generateStyleComment renders COMMENT ON TABLE. COMMENT takes no bind
// parameters, so the JSON document goes through pgLiteral.
func generateStyleComment(id TableIdentity, style LayerStyle) (string, error) {
	doc, err := json.Marshal(style)
	if err != nil {
		return "", fmt.Errorf("encode style: %w", err)
	}
	return fmt.Sprintf("COMMENT ON TABLE %s IS %s", id.Quoted(), pgLiteral(string(doc))), nil
}

// tableExists checks information_schema for an existing table.
func tableExists(ctx context.Context, conn storeConn, id TableIdentity) (bool, error) {
	var exists bool
	err := conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)",
		id.Schema, id.Name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", id, err)
	}
	return exists, nil
}

// createLayerTable creates the canonical table, refusing to merge into an
// existing one.
func createLayerTable(ctx context.Context, conn storeConn, id TableIdentity, s *LayerSchema) error {
	exists, err := tableExists(ctx, conn, id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s: %w", id, ErrTableExists)
	}

	ddl := generateCreateTable(id, s)
	log.Printf("  creating %s (%d cols)", id, len(s.Columns))
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w\nDDL: %s", id, err, ddl)
	}
	return nil
}

func alterGeometryColumn(ctx context.Context, conn storeConn, id TableIdentity, s *LayerSchema) error {
	ddl := generateAlterGeometry(id, s.Kind, s.SRID)
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("alter geometry %s: %w\nDDL: %s", id, err, ddl)
	}
	return nil
}

// ensureTargetSchema creates the import schema when the store lacks it.
func ensureTargetSchema(ctx context.Context, conn storeConn, schema string) error {
	var exists bool
	if err := conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)", schema).Scan(&exists); err != nil {
		return fmt.Errorf("check schema existence: %w", err)
	}
	if exists {
		return nil
	}
	log.Printf("  creating schema %s", schema)
	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", pgIdent(schema))); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
