package vcs

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCommit struct {
	msg  string
	when time.Time
}

// initRepo creates dir as a git repository with one commit per entry.
func initRepo(t *testing.T, dir string, commits ...testCommit) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	w, err := repo.Worktree()
	require.NoError(t, err)

	for i, c := range commits {
		file := filepath.Join(dir, "file.txt")
		require.NoError(t, os.WriteFile(file, []byte(c.msg+string(rune('a'+i))), 0644))
		_, err := w.Add("file.txt")
		require.NoError(t, err)
		_, err = w.Commit(c.msg, &git.CommitOptions{
			Author: &object.Signature{Name: "Test", Email: "test@example.com", When: c.when},
		})
		require.NoError(t, err)
	}
}

func TestGitOpener_PlainOpen(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir, testCommit{"Initial commit", time.Now()})

	repo, err := NewGitOpener().PlainOpen(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, repo.RepoPath())

	head, err := repo.Head()
	require.NoError(t, err)
	assert.False(t, head.Hash().IsZero())
}

func TestGitOpener_PlainOpen_NonExistent(t *testing.T) {
	_, err := NewGitOpener().PlainOpen("/nonexistent/path")
	assert.Error(t, err)
}

func TestMiner_Mine(t *testing.T) {
	dir := t.TempDir()
	plus8 := time.FixedZone("", 8*3600)
	initRepo(t, dir,
		testCommit{"Initial import", time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)},
		testCommit{"RATIS-940. Add sonar check", time.Date(2020, 5, 27, 18, 2, 11, 0, plus8)},
		testCommit{"Fix flaky test", time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)},
		testCommit{"Update SonarCloud badge", time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)},
	)

	m := NewMiner(regexp.MustCompile("(?i)sonar"))
	commits, err := m.Mine(context.Background(), "ratis", dir)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	for _, c := range commits {
		assert.Equal(t, "ratis", c.Project)
		assert.Len(t, c.Hash, 40)
	}
	var found bool
	for _, c := range commits {
		if c.Message == "RATIS-940. Add sonar check" {
			found = true
			assert.True(t, c.Date.Equal(time.Date(2020, 5, 27, 10, 2, 11, 0, time.UTC)))
		}
	}
	assert.True(t, found)
}

func TestMiner_EmptyRepository(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)

	_, err := NewMiner(regexp.MustCompile("sonar")).Mine(context.Background(), "x", dir)
	assert.ErrorIs(t, err, ErrEmptyRepository)
}

func TestMiner_MineAll(t *testing.T) {
	root := t.TempDir()
	initRepo(t, filepath.Join(root, "ratis"), testCommit{"add sonar", time.Now()})
	initRepo(t, filepath.Join(root, "ant"), testCommit{"Sonar badge", time.Now()}, testCommit{"sonar again", time.Now()})

	m := NewMiner(regexp.MustCompile("(?i)sonar"), WithWorkers(2))
	res := m.MineAll(context.Background(), root, []string{"ratis", "ant", "missing"})

	assert.Len(t, res.Commits, 3)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "missing", res.Skipped[0].Project)
	assert.Equal(t, "mine", res.Skipped[0].Stage)
}

func TestMiner_ContextCanceled(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir, testCommit{"sonar", time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMiner(regexp.MustCompile("sonar")).Mine(ctx, "x", dir)
	assert.ErrorIs(t, err, context.Canceled)
}
