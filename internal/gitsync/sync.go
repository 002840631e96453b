// Package gitsync queues vault writes and pushes them to a remote
// git repository. Writes are coalesced into commits; pushes retry with
// escalating backoff; failed batches are re-queued so nothing is dropped.
package gitsync

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fivarsson/triage/internal/domain"
)

// pushDelays are the escalating backoff delays between push attempts.
var pushDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}

const (
	maxPushRetries  = 4
	rescheduleDelay = time.Second
)

// Item is one queued write: the note path and the record that produced it.
type Item struct {
	Path   string
	Record *domain.Record
}

// Options configures a Syncer.
type Options struct {
	VaultPath string
	RemoteURL string
	Branch    string
	Token     string
}

// FromEnv builds Options from the environment.
func FromEnv(vaultPath string) (Options, error) {
	remote := os.Getenv("GIT_REMOTE_URL")
	token := os.Getenv("GIT_TOKEN")
	if remote == "" || token == "" {
		return Options{}, fmt.Errorf("GIT_REMOTE_URL and GIT_TOKEN environment variables must be set")
	}

	branch := os.Getenv("GIT_BRANCH")
	if branch == "" {
		branch = "main"
	}

	return Options{
		VaultPath: vaultPath,
		RemoteURL: remote,
		Branch:    branch,
		Token:     token,
	}, nil
}

// Syncer owns the pending-item queue. At most one drain cycle runs at a
// time, guarded by the inFlight flag; items enqueued during a cycle are
// picked up by a subsequent one.
type Syncer struct {
	git  GitRunner
	opts Options

	mu       sync.Mutex
	pending  []Item
	inFlight bool

	wg sync.WaitGroup

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(time.Duration)
}

// New creates a Syncer using the given git runner.
func New(git GitRunner, opts Options) *Syncer {
	return &Syncer{
		git:   git,
		opts:  opts,
		sleep: time.Sleep,
	}
}

// Init prepares the local vault clone: clones the remote if the vault is not
// a repository yet, pulls otherwise (best-effort), and sets the commit
// identity.
func (s *Syncer) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.opts.VaultPath, 0755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	if _, _, err := s.git.Run(ctx, s.opts.VaultPath, "rev-parse", "--is-inside-work-tree"); err != nil {
		authURL, err := s.authenticatedURL()
		if err != nil {
			return err
		}
		if _, stderr, err := s.git.Run(ctx, s.opts.VaultPath, "clone", authURL, "."); err != nil {
			return fmt.Errorf("clone repository: %w (%s)", err, strings.TrimSpace(stderr))
		}
	} else {
		if _, stderr, err := s.git.Run(ctx, s.opts.VaultPath, "pull", "origin", s.opts.Branch); err != nil {
			log.Printf("gitsync: initial pull failed, continuing: %v (%s)", err, strings.TrimSpace(stderr))
		}
	}

	if _, _, err := s.git.Run(ctx, s.opts.VaultPath, "config", "user.name", "Life Triage Bot"); err != nil {
		return fmt.Errorf("set git user.name: %w", err)
	}
	if _, _, err := s.git.Run(ctx, s.opts.VaultPath, "config", "user.email", "triage@localhost"); err != nil {
		return fmt.Errorf("set git user.email: %w", err)
	}

	return nil
}

// Enqueue appends an item and starts a drain if none is running.
func (s *Syncer) Enqueue(item Item) {
	s.mu.Lock()
	s.pending = append(s.pending, item)
	if s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.drainLoop()
}

// Pending returns the number of queued items.
func (s *Syncer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// drainLoop runs drain cycles until the queue is empty. Between cycles it
// waits a short delay so rapid-fire enqueues batch into fewer commits.
// A permanently failing remote means this loop runs indefinitely; every
// failure is logged for operator intervention.
func (s *Syncer) drainLoop() {
	defer s.wg.Done()

	for {
		if err := s.drainOnce(context.Background()); err != nil {
			log.Printf("gitsync: sync cycle failed, items re-queued: %v", err)
		}

		s.mu.Lock()
		if len(s.pending) == 0 {
			s.inFlight = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.sleep(rescheduleDelay)
	}
}

// drainOnce is one commit-and-push pass. The current queue is snapshotted
// into a batch; on commit or push failure only that batch is re-queued at
// the front, never the queue's current contents.
func (s *Syncer) drainOnce(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	// Pull first so the commit lands on the latest remote state. A pull
	// failure must not block committing local changes.
	if _, stderr, err := s.git.Run(ctx, s.opts.VaultPath, "pull", "origin", s.opts.Branch); err != nil {
		log.Printf("gitsync: pull failed, continuing: %v (%s)", err, strings.TrimSpace(stderr))
	}

	if _, stderr, err := s.git.Run(ctx, s.opts.VaultPath, "add", "-A"); err != nil {
		s.requeue(batch)
		return fmt.Errorf("stage files: %w (%s)", err, strings.TrimSpace(stderr))
	}

	stdout, stderr, err := s.git.Run(ctx, s.opts.VaultPath, "commit", "-m", commitMessage(batch))
	if err != nil {
		if !strings.Contains(stdout, "nothing to commit") && !strings.Contains(stderr, "nothing to commit") {
			s.requeue(batch)
			return fmt.Errorf("commit: %w (%s)", err, strings.TrimSpace(stderr))
		}
		// An empty tree can mean a previous cycle committed this batch but
		// failed to push. Push anyway; it is a no-op when the remote is
		// already current.
	}

	if err := s.pushWithRetry(ctx); err != nil {
		s.requeue(batch)
		return err
	}

	log.Printf("gitsync: synced %d item(s)", len(batch))
	return nil
}

// requeue puts a failed batch back at the front of the queue, preserving
// commit order.
func (s *Syncer) requeue(batch []Item) {
	s.mu.Lock()
	s.pending = append(batch, s.pending...)
	s.mu.Unlock()
}

// pushWithRetry pushes up to maxPushRetries times with escalating delays.
// The final attempt's error is surfaced to the caller.
func (s *Syncer) pushWithRetry(ctx context.Context) error {
	for i := 0; i < maxPushRetries; i++ {
		_, stderr, err := s.git.Run(ctx, s.opts.VaultPath, "push", "origin", s.opts.Branch)
		if err == nil {
			return nil
		}

		if i == maxPushRetries-1 {
			return fmt.Errorf("push failed after %d attempts: %w (%s)", maxPushRetries, err, strings.TrimSpace(stderr))
		}

		log.Printf("gitsync: push failed (attempt %d/%d), retrying in %s: %v", i+1, maxPushRetries, pushDelays[i], err)
		s.sleep(pushDelays[i])
	}
	return nil
}

// FinalSync drains the queue synchronously. Called at shutdown so no queued
// item is lost on graceful termination.
func (s *Syncer) FinalSync(ctx context.Context) error {
	// Wait for any background drain to hand over the queue.
	for {
		s.mu.Lock()
		if !s.inFlight {
			if len(s.pending) == 0 {
				s.mu.Unlock()
				return nil
			}
			s.inFlight = true
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()
		time.Sleep(50 * time.Millisecond)
	}

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	for {
		if err := s.drainOnce(ctx); err != nil {
			return err
		}

		s.mu.Lock()
		empty := len(s.pending) == 0
		s.mu.Unlock()
		if empty {
			return nil
		}
	}
}

// PushLocal stages and pushes whatever is already modified in the vault,
// outside the queue. Used by the manual sync command to flush hand edits.
func (s *Syncer) PushLocal(ctx context.Context, message string) error {
	if _, stderr, err := s.git.Run(ctx, s.opts.VaultPath, "add", "-A"); err != nil {
		return fmt.Errorf("stage files: %w (%s)", err, strings.TrimSpace(stderr))
	}

	stdout, stderr, err := s.git.Run(ctx, s.opts.VaultPath, "commit", "-m", message)
	if err != nil {
		if !strings.Contains(stdout, "nothing to commit") && !strings.Contains(stderr, "nothing to commit") {
			return fmt.Errorf("commit: %w (%s)", err, strings.TrimSpace(stderr))
		}
		// Still push: an earlier commit may be stranded locally.
	}

	return s.pushWithRetry(ctx)
}

// commitMessage builds the commit message: a detailed message for a single
// item, a summary line plus one bullet per item for a batch.
func commitMessage(batch []Item) string {
	if len(batch) == 1 {
		rec := batch[0].Record
		return fmt.Sprintf("Add triage: %s\n\nType: %s\nCategory: %s\nPriority: %s",
			rec.Title, rec.Type, rec.Category, rec.Priority)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Add %d triage items\n\n", len(batch))
	for _, item := range batch {
		fmt.Fprintf(&sb, "- %s (%s)\n", item.Record.Title, item.Record.Type)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// authenticatedURL embeds the access token into the remote URL.
func (s *Syncer) authenticatedURL() (string, error) {
	u, err := url.Parse(s.opts.RemoteURL)
	if err != nil {
		return "", fmt.Errorf("parse remote URL: %w", err)
	}
	u.User = url.User(s.opts.Token)
	return u.String(), nil
}
