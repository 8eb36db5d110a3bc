package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litebox/litebox/pkg/clause"
	"github.com/litebox/litebox/pkg/schema"
)

func TestHandle_Tables(t *testing.T) {
	h, err := Open(Memory, Opts{})
	require.NoError(t, err)
	defer func() { require.NoError(t, h.Close()) }()

	got, err := h.Tables()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, h.CreateTable("books", schema.Columns{{Name: "title", Constraint: "text"}}))
	require.NoError(t, h.CreateTable("movies", schema.Columns{{Name: "title", Constraint: "text"}}))

	got, err = h.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"books", "movies"}, got, "creation order")

	// autoincrement brings the sqlite_sequence catalog table, must stay hidden
	require.NoError(t, h.CreateTable("logs", schema.Columns{
		{Name: "id", Constraint: "integer primary key autoincrement"},
		{Name: "msg", Constraint: "text"},
	}))
	_, err = h.Insert("logs", clause.Pairs{clause.Eq("msg", "hello")})
	require.NoError(t, err)

	got, err = h.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"books", "movies", "logs"}, got)
}

func TestHandle_Columns(t *testing.T) {
	h := prepMovies(t)

	got, err := h.Columns("movies")
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "year", "watched"}, got)

	_, err = h.Columns("absent")
	assert.ErrorContains(t, err, "no such table absent")

	_, err = h.Columns("mov ies")
	assert.ErrorContains(t, err, "invalid")
}

func TestHandle_RenameTable(t *testing.T) {
	h := prepMovies(t)

	require.NoError(t, h.RenameTable("movies", "films"))

	got, err := h.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"films"}, got)
	assert.Equal(t, 6, countRows(t, h, "films"), "rows follow the rename")

	_, err = h.Select("movies", nil, clause.Criteria{})
	assert.Error(t, err, "old name gone")

	assert.ErrorContains(t, h.RenameTable("absent", "other"), "can't rename table absent")
	assert.ErrorContains(t, h.RenameTable("films", "no good"), "invalid identifier")
}

func TestHandle_AddColumn(t *testing.T) {
	h := prepMovies(t)

	require.NoError(t, h.AddColumn("movies", "genre", "text"))

	got, err := h.Columns("movies")
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "year", "watched", "genre"}, got, "new column appended")

	rows, err := h.Select("movies", nil, clause.Criteria{Pairs: clause.Pairs{clause.Eq("title", "Star Wars")}})
	require.NoError(t, err)
	all, err := rows.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].Value("genre"), "existing rows get null")

	err = h.Update("movies", clause.Pairs{clause.Eq("genre", "space opera")},
		clause.Criteria{Pairs: clause.Pairs{clause.Eq("title", "Star Wars")}})
	require.NoError(t, err)

	// constraint is optional
	require.NoError(t, h.AddColumn("movies", "note", ""))
	got, err = h.Columns("movies")
	require.NoError(t, err)
	assert.Contains(t, got, "note")

	assert.ErrorContains(t, h.AddColumn("movies", "genre", "text"), "can't add column genre")
	assert.ErrorContains(t, h.AddColumn("movies", "bad name", "text"), "invalid identifier")
}

func TestHandle_DropTable(t *testing.T) {
	h := prepMovies(t)

	require.NoError(t, h.DropTable("movies"))

	got, err := h.Tables()
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = h.Select("movies", nil, clause.Criteria{})
	assert.Error(t, err)

	assert.NoError(t, h.DropTable("movies"), "dropping a dropped table is fine")
	assert.ErrorContains(t, h.DropTable("no good"), "invalid")
}

func TestHandle_DropDatabase(t *testing.T) {

	t.Run("file backed", func(t *testing.T) {
		h, err := Open("victim", Opts{Folder: t.TempDir()})
		require.NoError(t, err)
		require.NoError(t, h.CreateTable("stuff", schema.Columns{{Name: "id", Constraint: "integer"}}))

		file := h.File()
		_, err = os.Stat(file)
		require.NoError(t, err)

		require.NoError(t, h.DropDatabase())
		_, err = os.Stat(file)
		assert.True(t, os.IsNotExist(err), "backing file removed")

		_, err = h.Tables()
		assert.Error(t, err, "handle unusable after drop")
	})

	t.Run("in-memory", func(t *testing.T) {
		h, err := Open(Memory, Opts{})
		require.NoError(t, err)
		assert.NoError(t, h.DropDatabase())
	})
}

func TestHandle_DropColumn(t *testing.T) {

	t.Run("drops and preserves data", func(t *testing.T) {
		h := prepMovies(t)
		require.NoError(t, h.DropColumn("movies", "year"))

		got, err := h.Columns("movies")
		require.NoError(t, err)
		assert.Equal(t, []string{"title", "watched"}, got)
		assert.Equal(t, 6, countRows(t, h, "movies"))

		rows, err := h.Select("movies", nil, clause.Criteria{Pairs: clause.Pairs{clause.Eq("title", "Star Wars")}})
		require.NoError(t, err)
		all, err := rows.All()
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, int64(1), all[0].Value("watched"))
		assert.Nil(t, all[0].Value("year"))
	})

	t.Run("column sharing a prefix stays", func(t *testing.T) {
		h, err := Open(Memory, Opts{})
		require.NoError(t, err)
		defer func() { require.NoError(t, h.Close()) }()

		require.NoError(t, h.CreateTable("ids", schema.Columns{
			{Name: "id", Constraint: "integer"},
			{Name: "id_long", Constraint: "integer"},
		}))
		_, err = h.Insert("ids", clause.Pairs{clause.Eq("id", 1), clause.Eq("id_long", 100)})
		require.NoError(t, err)

		require.NoError(t, h.DropColumn("ids", "id"))

		got, err := h.Columns("ids")
		require.NoError(t, err)
		assert.Equal(t, []string{"id_long"}, got)

		rows, err := h.Select("ids", nil, clause.Criteria{})
		require.NoError(t, err)
		all, err := rows.All()
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, int64(100), all[0].Value("id_long"))
	})

	t.Run("missing column refused", func(t *testing.T) {
		h := prepMovies(t)
		err := h.DropColumn("movies", "nope")
		assert.ErrorIs(t, err, ErrNoColumn)

		got, err := h.Columns("movies")
		require.NoError(t, err)
		assert.Equal(t, []string{"title", "year", "watched"}, got, "table untouched")
	})

	t.Run("last column refused", func(t *testing.T) {
		h, err := Open(Memory, Opts{})
		require.NoError(t, err)
		defer func() { require.NoError(t, h.Close()) }()

		require.NoError(t, h.CreateTable("solo", schema.Columns{{Name: "only", Constraint: "text"}}))
		assert.ErrorContains(t, h.DropColumn("solo", "only"), "only column")
	})

	t.Run("referenced parent key rolls back", func(t *testing.T) {
		h, err := Open(Memory, Opts{})
		require.NoError(t, err)
		defer func() { require.NoError(t, h.Close()) }()

		require.NoError(t, h.CreateTable("parent", schema.Columns{
			{Name: "id", Constraint: "integer primary key"},
			{Name: "name", Constraint: "text"},
		}))
		require.NoError(t, h.CreateTable("child", schema.Columns{
			{Name: "pid", Constraint: "integer references parent(id)"},
			{Name: "note", Constraint: "text"},
		}))
		_, err = h.Insert("parent", clause.Pairs{clause.Eq("id", 1), clause.Eq("name", "p")})
		require.NoError(t, err)
		_, err = h.Insert("child", clause.Pairs{clause.Eq("pid", 1), clause.Eq("note", "n")})
		require.NoError(t, err)

		require.Error(t, h.DropColumn("parent", "id"))

		got, err := h.Columns("parent")
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, got, "parent fully restored")
		assert.Equal(t, 1, countRows(t, h, "parent"))
	})

	t.Run("detected violation rolls back", func(t *testing.T) {
		h, err := Open(Memory, Opts{})
		require.NoError(t, err)
		defer func() { require.NoError(t, h.Close()) }()

		require.NoError(t, h.CreateTable("parent", schema.Columns{
			{Name: "id", Constraint: "integer primary key"},
		}))
		require.NoError(t, h.CreateTable("child", schema.Columns{
			{Name: "pid", Constraint: "integer references parent(id)"},
			{Name: "note", Constraint: "text"},
		}))
		_, err = h.Insert("parent", clause.Pairs{clause.Eq("id", 1)})
		require.NoError(t, err)
		_, err = h.Insert("child", clause.Pairs{clause.Eq("pid", 1), clause.Eq("note", "first")})
		require.NoError(t, err)

		// sneak an orphan in with enforcement off, the shape of a file
		// produced by a tool that never enabled foreign keys
		_, err = h.db.Exec("PRAGMA foreign_keys = OFF")
		require.NoError(t, err)
		_, err = h.Insert("child", clause.Pairs{clause.Eq("pid", 99), clause.Eq("note", "orphan")})
		require.NoError(t, err)
		_, err = h.db.Exec("PRAGMA foreign_keys = ON")
		require.NoError(t, err)

		err = h.DropColumn("child", "note")
		assert.ErrorIs(t, err, ErrIntegrity)

		got, err := h.Columns("child")
		require.NoError(t, err)
		assert.Equal(t, []string{"pid", "note"}, got, "rebuild rolled back")
		assert.Equal(t, 2, countRows(t, h, "child"))
	})

	t.Run("enforcement survives the rebuild", func(t *testing.T) {
		h, err := Open(Memory, Opts{})
		require.NoError(t, err)
		defer func() { require.NoError(t, h.Close()) }()

		require.NoError(t, h.CreateTable("parent", schema.Columns{
			{Name: "id", Constraint: "integer primary key"},
		}))
		require.NoError(t, h.CreateTable("child", schema.Columns{
			{Name: "pid", Constraint: "integer references parent(id)"},
			{Name: "note", Constraint: "text"},
		}))
		_, err = h.Insert("parent", clause.Pairs{clause.Eq("id", 1)})
		require.NoError(t, err)
		_, err = h.Insert("child", clause.Pairs{clause.Eq("pid", 1), clause.Eq("note", "n")})
		require.NoError(t, err)

		require.NoError(t, h.DropColumn("child", "note"))

		got, err := h.Columns("child")
		require.NoError(t, err)
		assert.Equal(t, []string{"pid"}, got)

		_, err = h.Insert("child", clause.Pairs{clause.Eq("pid", 99)})
		assert.Error(t, err, "foreign keys back on after the rebuild")
	})
}
