package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/evodash/internal/specstore"
)

const todoSource = `/**
 * A simple todo list with add and remove.
 */
import React from 'react';

export function TodoList() {
  return <ul />;
}

export default TodoList;
`

func writeComponent(t *testing.T, dir, name, src string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

type fakeSpec struct {
	doc specstore.Document
	err error
}

func (f fakeSpec) Read() (specstore.Document, error) { return f.doc, f.err }

func TestScan_FiltersAndDescribes(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	writeComponent(t, dir, "TodoList.tsx", todoSource, base)
	writeComponent(t, dir, "Clock.jsx", "export default function Clock() {}\n", base.Add(time.Minute))
	writeComponent(t, dir, "TodoList.test.tsx", todoSource, base)
	writeComponent(t, dir, "WeatherWidget.tsx", todoSource, base)
	writeComponent(t, dir, "helper.tsx", todoSource, base)
	writeComponent(t, dir, "Styles.css", "", base)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Nested.tsx"), 0o755))

	features, err := NewScanner(dir, nil).Scan()
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Equal(t, "Clock", features[0].Name)
	assert.Equal(t, "clock", features[0].ID)
	assert.Equal(t, "Generated component: Clock", features[0].Description)
	assert.True(t, features[0].HasDefaultExport)
	assert.Empty(t, features[0].ExportName)
	assert.Equal(t, StatusActive, features[0].Status)

	assert.Equal(t, "TodoList", features[1].Name)
	assert.Equal(t, "todolist", features[1].ID)
	assert.Equal(t, "A simple todo list with add and remove.", features[1].Description)
	assert.Equal(t, "TodoList", features[1].ExportName)
	assert.Equal(t, filepath.ToSlash(filepath.Join(dir, "TodoList.tsx")), features[1].ComponentPath)
}

func TestScan_MissingDirIsEmpty(t *testing.T) {
	features, err := NewScanner(filepath.Join(t.TempDir(), "absent"), nil).Scan()
	require.NoError(t, err)
	assert.NotNil(t, features)
	assert.Empty(t, features)
}

func TestScan_NoExportsIsInactive(t *testing.T) {
	dir := t.TempDir()
	writeComponent(t, dir, "Orphan.tsx", "const Orphan = () => null;\n", time.Now())

	features, err := NewScanner(dir, nil).Scan()
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, StatusInactive, features[0].Status)
}

func TestScan_TiesSortByFilename(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, n := range []string{"Zebra.tsx", "Apple.tsx", "Mango.tsx"} {
		writeComponent(t, dir, n, "export default function X() {}\n", at)
	}

	features, err := NewScanner(dir, nil).Scan()
	require.NoError(t, err)
	require.Len(t, features, 3)
	assert.Equal(t, "Apple", features[0].Name)
	assert.Equal(t, "Mango", features[1].Name)
	assert.Equal(t, "Zebra", features[2].Name)
}

func TestScan_IgnoreSources(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	for _, n := range []string{"Keep.tsx", "Legacy.tsx", "Draft.tsx"} {
		writeComponent(t, dir, n, "export default function X() {}\n", now)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, IgnoreFile), []byte("# drafts\nDraft*\n"), 0o644))

	features, err := NewScanner(dir, []string{"Legacy.tsx"}).Scan()
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "Keep", features[0].Name)
}

func TestScan_SpecOverridesTimeAndStatus(t *testing.T) {
	dir := t.TempDir()
	recent := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	writeComponent(t, dir, "Old.tsx", "export default function Old() {}\n", recent)
	writeComponent(t, dir, "New.tsx", "export default function New() {}\n", recent.Add(-time.Hour))

	doc := specstore.Default()
	doc.Features["Old"] = specstore.FeatureSpec{Component: "Old.tsx", Status: specstore.FeatureInactive, CreatedAt: recent.Add(-48 * time.Hour)}

	features, err := NewScanner(dir, nil, WithSpec(fakeSpec{doc: doc})).Scan()
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "New", features[0].Name)
	assert.Equal(t, "Old", features[1].Name)
	assert.Equal(t, StatusInactive, features[1].Status)
	assert.True(t, features[1].CreatedAt.Equal(recent.Add(-48*time.Hour)))

	// An unreadable spec falls back to file times.
	features, err = NewScanner(dir, nil, WithSpec(fakeSpec{err: errors.New("gone")})).Scan()
	require.NoError(t, err)
	assert.Equal(t, "Old", features[0].Name)
	assert.Equal(t, StatusActive, features[0].Status)
}

func TestExtractDescription(t *testing.T) {
	cases := []struct {
		src, want string
	}{
		{"/* Inline note */\nexport default X", "Inline note"},
		{"/**\n *\n * Second line wins\n */", "Second line wins"},
		{"// line comment only\nexport default X", "Generated component: Card"},
		{"/* */ /* later */", "Generated component: Card"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, extractDescription(c.src, "Card"), c.src)
	}
}

func TestDetectExports(t *testing.T) {
	cases := []struct {
		src              string
		named, isDefault bool
	}{
		{"export const Card = () => null;", true, false},
		{"export async function Card() {}", true, false},
		{"const Card = 1;\nexport { Card };", true, false},
		{"export const CardList = 1;", false, false},
		{"export default function Card() {}", false, true},
		{"export function Card() {}\nexport default Card;", true, true},
	}
	for _, c := range cases {
		named, def := detectExports(c.src, "Card")
		assert.Equal(t, c.named, named, c.src)
		assert.Equal(t, c.isDefault, def, c.src)
	}
}
