package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sheetA = "0b7c5a2e-3f1d-4c8e-9a6b-1d2e3f4a5b6c"
	sheetB = "1c8d6b3f-4a2e-4d9f-8b7c-2e3f4a5b6c7d"
)

func TestPartitionDocs_EveryDocumentInExactlyOneBucket(t *testing.T) {
	docs := []Document{
		{FieldID: sheetA, "name": "Ash"},
		{FieldID: RootID, "title": "Night"},
		{FieldID: "_design/app"},
		{FieldID: sheetB, "name": "Birch"},
		{FieldID: "not-a-uuid"},
	}

	p := PartitionDocs(docs)

	require.NotNil(t, p.Game)
	assert.Equal(t, "Night", p.Game["title"])
	assert.Equal(t, []string{sheetA, sheetB}, p.SheetIDs())
	for _, s := range p.Sheets {
		assert.NotEqual(t, RootID, s.ID(), "root must not be classified as a sheet")
	}
	assert.Empty(t, p.Deleted)
}

func TestPartitionDocs_Tombstones(t *testing.T) {
	docs := []Document{
		{FieldID: sheetA, FieldDeleted: true},
		{FieldID: "_local/x", FieldDeleted: true},
		{FieldID: sheetB},
	}

	p := PartitionDocs(docs)

	assert.Nil(t, p.Game)
	assert.Equal(t, []string{sheetA}, p.Deleted)
	assert.Equal(t, []string{sheetB}, p.SheetIDs())
}

func TestPartitionDocs_EmptyInput(t *testing.T) {
	p := PartitionDocs(nil)
	assert.Nil(t, p.Game)
	assert.NotNil(t, p.Sheets)
	assert.True(t, p.Empty())
}

func TestPartitionDocs_OneRootTwoSheets(t *testing.T) {
	batch := []Document{
		{FieldID: RootID, "round": 2},
		{FieldID: sheetA},
		{FieldID: sheetB},
	}
	p := PartitionDocs(batch)
	assert.NotNil(t, p.Game)
	assert.ElementsMatch(t, []string{sheetA, sheetB}, p.SheetIDs())
	assert.False(t, p.Empty())
}
