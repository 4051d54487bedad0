package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/studyctl/internal/chat"
	"github.com/desertthunder/studyctl/internal/jobs"
	"github.com/desertthunder/studyctl/internal/repositories"
	"github.com/desertthunder/studyctl/internal/services"
	"github.com/desertthunder/studyctl/internal/shared"
	"github.com/desertthunder/studyctl/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	api        *services.APIService
	db         *sql.DB
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	API        *services.APIService
	DB         *sql.DB // Opened from the config on first use when nil
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		api:        opts.API,
		db:         opts.DB,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, chatCommand, jobsCommand, plansCommand, apiCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by subsequently created components.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Close releases the database connection, if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *Runner) requireAPI() (*services.APIService, error) {
	if r.api == nil {
		return nil, fmt.Errorf("%w: API client not initialized, check api.base_url", shared.ErrServiceUnavailable)
	}
	return r.api, nil
}

func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenMigrated(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

func (r *Runner) conversations() (*repositories.ConversationRepository, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	return repositories.NewConversationRepository(db), nil
}

func (r *Runner) jobHistory() (*repositories.JobRepository, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	return repositories.NewJobRepository(db), nil
}

func (r *Runner) newController() (*chat.Controller, error) {
	api, err := r.requireAPI()
	if err != nil {
		return nil, err
	}
	return chat.New(api, nil, chat.Options{FlushDelay: r.config.Chat.FlushDelay()}, r.logger), nil
}

// monitorOptions builds job monitor options from the config, letting a non-empty strategy override it.
func (r *Runner) monitorOptions(strategy string) (jobs.Options, error) {
	if strategy == "" {
		strategy = r.config.Jobs.Strategy
	}
	s, err := jobs.ParseStrategy(strategy)
	if err != nil {
		return jobs.Options{}, err
	}
	return jobs.Options{
		Strategy:         s,
		Interval:         r.config.Jobs.PollInterval(),
		DisableStreaming: r.config.Jobs.DisableStreaming,
	}, nil
}

func (r *Runner) newEngine(strategy string) (*tasks.PlanEngine, error) {
	api, err := r.requireAPI()
	if err != nil {
		return nil, err
	}
	monitor, err := r.monitorOptions(strategy)
	if err != nil {
		return nil, err
	}

	opts := tasks.EngineOptions{Monitor: monitor}
	if history, err := r.jobHistory(); err == nil {
		opts.Recorder = history
	} else {
		r.logger.Warn("job history disabled", "error", err)
	}
	return tasks.NewPlanEngine(api, api, api, opts, r.logger), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
