package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadLocatesEmailColumn(t *testing.T) {
	path := writeFile(t, t.TempDir(), "roster.csv",
		"Name,Student ID,Email Address,Section\n"+
			"Oski Bear,3034567890,oski@berkeley.edu,101\n"+
			"Carol Christ,3031234567,carol@berkeley.edu,102\n")

	r, err := Read(path)
	require.NoError(t, err)

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "oski@berkeley.edu", entries[0].Email)
	assert.Equal(t, "carol@berkeley.edu", entries[1].Email)
	assert.NotNil(t, r.Lookup("oski@berkeley.edu"))
	assert.Nil(t, r.Lookup("nobody@berkeley.edu"))
}

func TestReadMissingEmailColumn(t *testing.T) {
	path := writeFile(t, t.TempDir(), "roster.csv", "Name,SID\nOski,123\n")

	_, err := Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing email column")
}

func TestReadSkipsDuplicatesAndBlanks(t *testing.T) {
	path := writeFile(t, t.TempDir(), "roster.csv",
		"Email\noski@berkeley.edu\n\noski@berkeley.edu\n")

	r, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, r.Entries(), 1)
}

func TestMergeOutputPreservesExistingLinks(t *testing.T) {
	dir := t.TempDir()
	rosterPath := writeFile(t, dir, "roster.csv",
		"Email\noski@berkeley.edu\ncarol@berkeley.edu\n")
	outputPath := writeFile(t, dir, "meetings.csv",
		"email,link,passcode\n"+
			"oski@berkeley.edu,https://berkeley.zoom.us/rec/share/abc,s3cret\n"+
			"dropped@berkeley.edu,https://berkeley.zoom.us/rec/share/old,x\n")

	r, err := Read(rosterPath)
	require.NoError(t, err)
	require.NoError(t, r.MergeOutput(outputPath))

	oski := r.Lookup("oski@berkeley.edu")
	assert.Equal(t, "https://berkeley.zoom.us/rec/share/abc", oski.Link)
	assert.Equal(t, "s3cret", oski.Passcode)
	assert.Empty(t, r.Lookup("carol@berkeley.edu").Link)
	assert.Nil(t, r.Lookup("dropped@berkeley.edu"), "rows off the roster are dropped")
}

func TestMergeOutputMissingFileIsFine(t *testing.T) {
	dir := t.TempDir()
	rosterPath := writeFile(t, dir, "roster.csv", "Email\noski@berkeley.edu\n")

	r, err := Read(rosterPath)
	require.NoError(t, err)
	assert.NoError(t, r.MergeOutput(filepath.Join(dir, "nope.csv")))
}

func TestMergeOutputRejectsWrongSchema(t *testing.T) {
	dir := t.TempDir()
	rosterPath := writeFile(t, dir, "roster.csv", "Email\noski@berkeley.edu\n")
	outputPath := writeFile(t, dir, "meetings.csv", "email,url\noski@berkeley.edu,x\n")

	r, err := Read(rosterPath)
	require.NoError(t, err)
	assert.Error(t, r.MergeOutput(outputPath))
}

func TestWriteOutputRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rosterPath := writeFile(t, dir, "roster.csv",
		"Email\noski@berkeley.edu\ncarol@berkeley.edu\n")
	outputPath := filepath.Join(dir, "meetings.csv")

	r, err := Read(rosterPath)
	require.NoError(t, err)
	r.Lookup("oski@berkeley.edu").Link = "https://berkeley.zoom.us/rec/share/abc"
	require.NoError(t, r.WriteOutput(outputPath))

	// Partial progress: the row without a link is still written, and a
	// re-read picks the link back up.
	r2, err := Read(rosterPath)
	require.NoError(t, err)
	require.NoError(t, r2.MergeOutput(outputPath))
	assert.Equal(t, "https://berkeley.zoom.us/rec/share/abc", r2.Lookup("oski@berkeley.edu").Link)
	assert.Empty(t, r2.Lookup("carol@berkeley.edu").Link)
}
