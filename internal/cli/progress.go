package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/mindbase/internal/client"
)

const (
	jobPollInterval = time.Second
	jobPollTimeout  = 10 * time.Second
	// maxPollMisses is how many status requests in a row may fail before
	// the watcher gives up.
	maxPollMisses = 3
)

type (
	pollMsg   struct{}
	statusMsg struct {
		job *client.Job
		err error
	}
)

// fetchJobFunc loads the current state of the watched job.
type fetchJobFunc func(ctx context.Context) (*client.Job, error)

// reindexWatch renders a running reindex job until it finishes or the user
// detaches with Ctrl+C.
type reindexWatch struct {
	fetch    fetchJobFunc
	job      client.Job
	bar      progress.Model
	began    time.Time
	now      func() time.Time
	misses   int
	detached bool
	finished bool
	err      error
}

func newReindexWatch(job client.Job, fetch fetchJobFunc) reindexWatch {
	began := job.StartedAt
	if began.IsZero() {
		began = time.Now()
	}
	return reindexWatch{
		fetch: fetch,
		job:   job,
		bar:   progress.New(progress.WithDefaultBlend(), progress.WithWidth(32)),
		began: began,
		now:   time.Now,
	}
}

func (w reindexWatch) Init() tea.Cmd {
	return w.poll()
}

func (w reindexWatch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		if k := msg.String(); k == "ctrl+c" || k == "q" || k == "esc" {
			w.detached = true
			return w, tea.Quit
		}
	case pollMsg:
		return w, w.load()
	case statusMsg:
		next, cmd := w.apply(msg)
		return next, cmd
	}
	return w, nil
}

// apply folds one status response into the watch state.
func (w reindexWatch) apply(msg statusMsg) (reindexWatch, tea.Cmd) {
	if msg.err != nil {
		w.misses++
		if w.misses >= maxPollMisses {
			w.finished = true
			w.err = fmt.Errorf("lost track of job %s: %w", w.job.ID, msg.err)
			return w, tea.Quit
		}
		return w, w.poll()
	}
	w.misses = 0
	w.job = *msg.job

	switch w.job.Status {
	case "completed":
		w.finished = true
		return w, tea.Quit
	case "failed":
		w.finished = true
		w.err = errors.New(orDefault(w.job.Error, "reindex failed"))
		return w, tea.Quit
	}
	return w, w.poll()
}

func (w reindexWatch) View() tea.View {
	return tea.NewView(w.render())
}

func (w reindexWatch) render() string {
	if w.detached {
		return hintStyle.Render(fmt.Sprintf("Job %s keeps running. Check it with 'mindbase jobs %s'.", w.job.ID, w.job.ID)) + "\n"
	}
	if w.finished {
		return w.summary()
	}

	var frac float64
	if w.job.Total > 0 {
		frac = float64(w.job.Progress) / float64(w.job.Total)
	}
	elapsed := w.now().Sub(w.began).Truncate(time.Second)
	line := fmt.Sprintf("%s %s %d/%d · %s",
		labelStyle.Render("Reindexing"), w.bar.ViewAs(frac), w.job.Progress, w.job.Total, elapsed)
	if eta, ok := remaining(w.job.Progress, w.job.Total, elapsed); ok {
		line += fmt.Sprintf(" · ~%s left", eta)
	}
	return line + "\n" + hintStyle.Render("Ctrl+C leaves the job running in the background") + "\n"
}

func (w reindexWatch) summary() string {
	if w.err != nil {
		return errStyle.Render("✗ "+w.err.Error()) + "\n"
	}
	var b strings.Builder
	b.WriteString(okStyle.Render("✓ Reindex completed") + "\n\n")
	if w.job.Result != nil {
		printReindexResult(&b, w.job.Result)
	}
	return b.String()
}

func (w reindexWatch) poll() tea.Cmd {
	return tea.Tick(jobPollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (w reindexWatch) load() tea.Cmd {
	fetch := w.fetch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), jobPollTimeout)
		defer cancel()
		job, err := fetch(ctx)
		if err == nil && job == nil {
			err = errors.New("empty job status")
		}
		return statusMsg{job: job, err: err}
	}
}

// remaining estimates the time left from the average rate so far.
func remaining(done, total int, elapsed time.Duration) (time.Duration, bool) {
	if done <= 0 || total <= done || elapsed <= 0 {
		return 0, false
	}
	per := elapsed / time.Duration(done)
	return (per * time.Duration(total-done)).Round(time.Second), true
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// watchReindex follows job until it ends. Detaching is not an error; a
// failed job is.
func watchReindex(ctx context.Context, c *client.Client, job *client.Job, out io.Writer) error {
	id := job.ID
	w := newReindexWatch(*job, func(ctx context.Context) (*client.Job, error) {
		return c.GetJob(ctx, id)
	})

	final, err := tea.NewProgram(w, tea.WithContext(ctx), tea.WithOutput(out)).Run()
	if err != nil {
		return fmt.Errorf("progress display: %w", err)
	}
	if fw, ok := final.(reindexWatch); ok && !fw.detached {
		return fw.err
	}
	return nil
}
