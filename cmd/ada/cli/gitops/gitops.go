// Package gitops wraps the project repository operations the harness needs:
// dirty checks, checkpoint commits, WIP commits on handoff, and recovery
// resets. Backed by go-git so no git binary is required.
package gitops

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

// Harness commit identity.
const (
	AuthorName  = "ada-harness"
	AuthorEmail = "ada-harness@localhost"
)

// ErrNotARepo is returned when the project root is not a git repository.
var ErrNotARepo = errors.New("project is not a git repository")

// Commit is a summarized repository commit.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// Repo is the harness view of the project repository.
type Repo struct {
	repo *git.Repository
	now  func() time.Time
}

// Open opens the repository at the project root, searching parent
// directories the way the git CLI does.
func Open(projectRoot string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(projectRoot, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNotARepo
		}
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return &Repo{repo: r, now: time.Now}, nil
}

// Init creates a new repository at the project root.
func Init(projectRoot string) (*Repo, error) {
	r, err := git.PlainInit(projectRoot, false)
	if err != nil {
		return nil, fmt.Errorf("initializing repository: %w", err)
	}
	return &Repo{repo: r, now: time.Now}, nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return head.Name().Short(), nil
}

// Head returns the current HEAD commit, or (nil, nil) on an unborn branch.
func (r *Repo) Head() (*Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading HEAD: %w", err)
	}
	c, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading HEAD commit: %w", err)
	}
	return summarize(c), nil
}

func summarize(c *object.Commit) *Commit {
	return &Commit{
		Hash:    c.Hash.String(),
		Message: c.Message,
		Author:  fmt.Sprintf("%s <%s>", c.Author.Name, c.Author.Email),
		When:    c.Author.When,
	}
}

// IsDirty reports whether the worktree has uncommitted changes, ignoring
// the harness workspace directory.
func (r *Repo) IsDirty() (bool, error) {
	files, err := r.ChangedFiles()
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// ChangedFiles lists modified, added, and deleted paths relative to HEAD,
// excluding the .ada workspace.
func (r *Repo) ChangedFiles() ([]string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("getting worktree status: %w", err)
	}

	var files []string
	for file, st := range status {
		if paths.IsWorkspacePath(file) {
			continue
		}
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		files = append(files, file)
	}
	return files, nil
}

// CommitAll stages everything outside the workspace dir and commits with
// the harness author. Returns the commit hash, or empty string when there
// was nothing to commit.
func (r *Repo) CommitAll(message string) (string, error) {
	files, err := r.ChangedFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}
	for _, f := range files {
		if _, err := wt.Add(f); err != nil {
			return "", fmt.Errorf("staging %s: %w", f, err)
		}
	}

	sig := &object.Signature{Name: AuthorName, Email: AuthorEmail, When: r.now()}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return hash.String(), nil
}

// CommitFeature commits completed feature work.
func (r *Repo) CommitFeature(featureID, featureName string) (string, error) {
	return r.CommitAll(fmt.Sprintf("feat: %s\n\nCompleted feature %s.", featureName, featureID))
}

// CommitHandoff writes a WIP commit when a session hands off at the
// context threshold.
func (r *Repo) CommitHandoff(featureName, sessionID string) (string, error) {
	return r.CommitAll(fmt.Sprintf("wip: %s - session %s handoff", featureName, sessionID))
}

// RecentCommits returns up to n commits from HEAD, newest first. An unborn
// branch yields an empty list.
func (r *Repo) RecentCommits(n int) ([]Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading HEAD: %w", err)
	}
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()

	var out []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if len(out) >= n {
			return errStopIteration
		}
		out = append(out, *summarize(c))
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, fmt.Errorf("iterating log: %w", err)
	}
	return out, nil
}

var errStopIteration = errors.New("stop iteration")

// Revert restores the worktree state of the files a commit touched to their
// state in its parent, then commits the result. Returns the new commit hash.
func (r *Repo) Revert(hash string) (string, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return "", fmt.Errorf("reading commit %s: %w", hash, err)
	}
	parent, err := c.Parent(0)
	if err != nil {
		return "", fmt.Errorf("commit %s has no parent to revert to: %w", hash, err)
	}
	cTree, err := c.Tree()
	if err != nil {
		return "", fmt.Errorf("reading commit tree: %w", err)
	}
	pTree, err := parent.Tree()
	if err != nil {
		return "", fmt.Errorf("reading parent tree: %w", err)
	}
	changes, err := object.DiffTree(pTree, cTree)
	if err != nil {
		return "", fmt.Errorf("diffing trees: %w", err)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}
	for _, ch := range changes {
		if ch.From.Name == "" {
			// Added by the commit; removing it undoes the addition.
			if err := wt.Filesystem.Remove(ch.To.Name); err != nil {
				return "", fmt.Errorf("removing %s: %w", ch.To.Name, err)
			}
			if _, err := wt.Add(ch.To.Name); err != nil {
				return "", fmt.Errorf("staging %s: %w", ch.To.Name, err)
			}
			continue
		}
		if err := restoreFile(wt, pTree, ch.From.Name); err != nil {
			return "", err
		}
		if _, err := wt.Add(ch.From.Name); err != nil {
			return "", fmt.Errorf("staging %s: %w", ch.From.Name, err)
		}
	}

	subject := strings.SplitN(c.Message, "\n", 2)[0]
	sig := &object.Signature{Name: AuthorName, Email: AuthorEmail, When: r.now()}
	newHash, err := wt.Commit(fmt.Sprintf("revert: %s", subject), &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return "", fmt.Errorf("committing revert: %w", err)
	}
	return newHash.String(), nil
}

// restoreFile writes a tree entry's content into the worktree.
func restoreFile(wt *git.Worktree, tree *object.Tree, name string) error {
	f, err := tree.File(name)
	if err != nil {
		return fmt.Errorf("reading %s from tree: %w", name, err)
	}
	src, err := f.Reader()
	if err != nil {
		return fmt.Errorf("opening %s blob: %w", name, err)
	}
	defer src.Close() //nolint:errcheck

	dst, err := wt.Filesystem.Create(name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("restoring %s: %w", name, err)
	}
	return dst.Close()
}

// ResetHard discards the worktree back to the given commit. Used to recover
// from a session that left the project broken.
func (r *Repo) ResetHard(hash string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: plumbing.NewHash(hash), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting to %s: %w", hash, err)
	}
	return nil
}
