// Package git implements the VersionControl port by shelling out to the git CLI.
package git

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-multierror"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
	"github.com/ericfisherdev/ciwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.VersionControl = (*Repository)(nil)

const lockFileName = "ciwatch-autofix.lock"

// Repository drives one git checkout. It is not safe for concurrent use; the
// work-tree lock serializes writers across processes.
type Repository struct {
	dir string
	// exec runs one git command with extra environment and returns its stdout.
	exec func(ctx context.Context, env []string, args ...string) (string, error)

	// stashed is true while a snapshot entry sits on top of the stash stack.
	stashed bool
	// untracked lists the untracked files present when the snapshot was taken.
	untracked map[string]bool
}

// NewRepository creates a Repository rooted at dir.
func NewRepository(dir string) *Repository {
	r := &Repository{dir: dir}
	r.exec = r.execGit
	return r
}

// Lock takes a non-blocking flock on a file inside the git directory.
func (r *Repository) Lock(ctx context.Context) (func() error, error) {
	gitDir, err := r.run(ctx, "rev-parse", "--git-dir")
	if err != nil {
		return nil, err
	}
	gitDir = strings.TrimSpace(gitDir)
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(r.dir, gitDir)
	}

	fl := flock.New(filepath.Join(gitDir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, model.ErrWorkTreeLocked
	}

	slog.Debug("work tree locked", "path", fl.Path())
	return fl.Unlock, nil
}

// Stash snapshots tracked and untracked changes into a stash entry and
// immediately re-applies them, so the working tree is left unchanged. A clean
// tree produces no entry; restoring then only resets to HEAD. If the re-apply
// fails the entry is popped back and no snapshot is kept.
func (r *Repository) Stash(ctx context.Context) error {
	if r.untracked != nil {
		return model.ErrSnapshotOutstanding
	}

	untracked, err := r.untrackedFiles(ctx)
	if err != nil {
		return err
	}

	before, err := r.stashHead(ctx)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("ciwatch-snapshot-%d", time.Now().UnixNano())
	if _, err := r.run(ctx, "stash", "push", "--include-untracked", "-m", message); err != nil {
		return err
	}
	after, err := r.stashHead(ctx)
	if err != nil {
		return err
	}

	r.stashed = after != "" && after != before
	if r.stashed {
		if _, err := r.run(ctx, "stash", "apply", "--index", "-q", "stash@{0}"); err != nil {
			var result *multierror.Error
			result = multierror.Append(result, fmt.Errorf("re-applying snapshot: %w", err))
			if restoreErr := r.restoreSnapshot(ctx); restoreErr != nil {
				result = multierror.Append(result, fmt.Errorf("restoring stashed changes: %w", restoreErr))
			}
			r.stashed = false
			return result.ErrorOrNil()
		}
	}
	r.untracked = untracked

	slog.Debug("work tree snapshot taken", "dir", r.dir, "stashed", r.stashed)
	return nil
}

// StashPop discards every change made since Stash and restores the snapshot.
func (r *Repository) StashPop(ctx context.Context) error {
	if r.stashed {
		if err := r.restoreSnapshot(ctx); err != nil {
			return err
		}
	} else if err := r.resetTree(ctx); err != nil {
		return err
	}

	r.stashed = false
	r.untracked = nil
	slog.Debug("work tree restored from snapshot", "dir", r.dir)
	return nil
}

// StashDrop forgets the snapshot, keeping the working tree as it is.
func (r *Repository) StashDrop(ctx context.Context) error {
	if r.stashed {
		if _, err := r.run(ctx, "stash", "drop", "-q"); err != nil {
			return err
		}
	}
	r.stashed = false
	r.untracked = nil
	return nil
}

// DiffStat counts lines added plus removed since the snapshot. Untracked files
// that did not exist when it was taken count in full; those that did are
// diffed against their stashed content.
func (r *Repository) DiffStat(ctx context.Context) (int, error) {
	base := "HEAD"
	if r.stashed {
		base = "stash@{0}"
	}

	out, err := r.run(ctx, "diff", "--numstat", base)
	if err != nil {
		return 0, err
	}
	total := parseNumstat(out)

	untracked, err := r.untrackedFiles(ctx)
	if err != nil {
		return 0, err
	}
	for path := range untracked {
		if r.untracked[path] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, path))
		if err != nil {
			return 0, fmt.Errorf("reading new file %s: %w", path, err)
		}
		total += countLines(data)
	}

	if r.stashed && len(r.untracked) > 0 {
		changed, err := r.untrackedDiffStat(ctx)
		if err != nil {
			return 0, err
		}
		total += changed
	}

	return total, nil
}

// untrackedDiffStat diffs the untracked files recorded at snapshot time
// against the stash's untracked-files commit, using a throwaway index so the
// real one is never touched.
func (r *Repository) untrackedDiffStat(ctx context.Context) (int, error) {
	tmp, err := os.MkdirTemp("", "ciwatch-index-")
	if err != nil {
		return 0, fmt.Errorf("creating temporary index: %w", err)
	}
	defer os.RemoveAll(tmp)
	env := []string{"GIT_INDEX_FILE=" + filepath.Join(tmp, "index"), "GIT_LITERAL_PATHSPECS=1"}

	paths := make([]string, 0, len(r.untracked))
	for path := range r.untracked {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	const snapshotTree = "stash@{0}^3"
	if _, err := r.exec(ctx, env, "read-tree", snapshotTree); err != nil {
		return 0, err
	}
	if _, err := r.exec(ctx, env, append([]string{"add", "-A", "--"}, paths...)...); err != nil {
		return 0, err
	}
	out, err := r.exec(ctx, env, append([]string{"diff", "--cached", "--numstat", snapshotTree, "--"}, paths...)...)
	if err != nil {
		return 0, err
	}
	return parseNumstat(out), nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CreateBranch creates and checks out a new branch, carrying working-tree changes.
func (r *Repository) CreateBranch(ctx context.Context, name string) error {
	_, err := r.run(ctx, "checkout", "-q", "-b", name)
	return err
}

// CommitAll stages every change and commits it.
func (r *Repository) CommitAll(ctx context.Context, message string) error {
	if _, err := r.run(ctx, "add", "-A"); err != nil {
		return err
	}
	_, err := r.run(ctx, "commit", "-q", "-m", message)
	return err
}

// Push publishes a branch to origin and sets its upstream.
func (r *Repository) Push(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "push", "-q", "-u", "origin", branch)
	return err
}

// resetTree discards tracked changes and removes untracked files.
func (r *Repository) resetTree(ctx context.Context) error {
	if _, err := r.run(ctx, "reset", "--hard", "-q", "HEAD"); err != nil {
		return err
	}
	_, err := r.run(ctx, "clean", "-fdq")
	return err
}

// restoreSnapshot resets the tree and pops the snapshot entry back onto it.
func (r *Repository) restoreSnapshot(ctx context.Context) error {
	if err := r.resetTree(ctx); err != nil {
		return err
	}
	_, err := r.run(ctx, "stash", "pop", "--index", "-q")
	return err
}

func (r *Repository) stashHead(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "stash", "list", "-n", "1", "--format=%H")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *Repository) untrackedFiles(ctx context.Context) (map[string]bool, error) {
	out, err := r.run(ctx, "ls-files", "--others", "--exclude-standard", "-z")
	if err != nil {
		return nil, err
	}
	files := map[string]bool{}
	for _, p := range strings.Split(out, "\x00") {
		if p != "" {
			files[p] = true
		}
	}
	return files, nil
}

// run executes a git subcommand in the repository and returns its stdout.
func (r *Repository) run(ctx context.Context, args ...string) (string, error) {
	return r.exec(ctx, nil, args...)
}

func (r *Repository) execGit(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &GitError{
			Operation: args[0],
			Args:      args[1:],
			Err:       fmt.Errorf("%w: %v", ErrGitOperationFailed, err),
			Output:    stderr.String(),
		}
	}
	return stdout.String(), nil
}

// parseNumstat sums the added and deleted columns of `git diff --numstat`.
// Binary files report "-" and count as one changed line.
func parseNumstat(out string) int {
	total := 0
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) < 3 {
			continue
		}
		if fields[0] == "-" && fields[1] == "-" {
			total++
			continue
		}
		added, _ := strconv.Atoi(fields[0])
		deleted, _ := strconv.Atoi(fields[1])
		total += added + deleted
	}
	return total
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}
