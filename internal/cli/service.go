package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/lucasnoah/healfactory/internal/checks"
	"github.com/lucasnoah/healfactory/internal/config"
	"github.com/lucasnoah/healfactory/internal/db"
	"github.com/lucasnoah/healfactory/internal/fixer"
	"github.com/lucasnoah/healfactory/internal/github"
	"github.com/lucasnoah/healfactory/internal/metrics"
	"github.com/lucasnoah/healfactory/internal/orchestrator"
	"github.com/lucasnoah/healfactory/internal/pipeline"
	"github.com/lucasnoah/healfactory/internal/stage"
	"github.com/lucasnoah/healfactory/internal/worktree"
)

// service is the fully wired pipeline behind serve and run.
type service struct {
	controller *orchestrator.Controller
	engine     *stage.Engine
	store      *pipeline.Store
	database   *db.DB // nil without database.url
	metrics    *metrics.Metrics
	registry   *prometheus.Registry
}

// newService wires every component from cfg. The caller must call close.
func newService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*service, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cloner := worktree.NewGoGitCloner()
	cloner.Depth = cfg.Git.CloneDepth
	workspace := worktree.NewManager(cloner, cfg.Storage.WorkspaceDir)

	store := pipeline.NewStore(cfg.Storage.DataDir)
	suite := checks.NewSuite(checks.NewRunner(&checks.ExecRunner{}), cfg.Tools.Python.Toolset(), cfg.Tools.JavaScript.Toolset())
	publisher := github.NewPublisher(&github.ExecGit{Timeout: config.Duration(cfg.Git.Timeout, 2*time.Minute)},
		cfg.Git.AuthorName, cfg.Git.AuthorEmail)

	engine := stage.NewEngine(stage.Deps{
		Workspace: workspace,
		Analyzer:  suite,
		NewFixer:  fixerFactory(cfg.Delegate, logger),
		Publisher: publisher,
		NewCI: func(ctx context.Context, token string) (stage.CIWatcher, error) {
			client, err := github.NewAPIClient(ctx, token, cfg.GitHub.APIURL)
			if err != nil {
				return nil, err
			}
			return github.NewMonitor(client, github.MonitorOpts{
				InitialDelay:      config.Duration(cfg.CI.InitialDelay, 5*time.Second),
				PollInterval:      config.Duration(cfg.CI.PollInterval, 10*time.Second),
				MaxPolls:          cfg.CI.MaxPolls,
				RequestsPerSecond: cfg.CI.RequestsPerSecond,
			}), nil
		},
		NewPRs: func(ctx context.Context, token string) (stage.PROpener, error) {
			client, err := github.NewAPIClient(ctx, token, cfg.GitHub.APIURL)
			if err != nil {
				return nil, err
			}
			return github.NewPullRequests(client), nil
		},
		Outputs:  store,
		Observer: m,
	}, logger)
	engine.SetPullRequests(cfg.Git.OpenPR, cfg.Git.BaseBranch)

	driver := orchestrator.NewDriver(engine, logger)
	ctrl := orchestrator.NewController(driver, store, orchestrator.Defaults{
		TeamName:      cfg.Pipeline.DefaultTeam,
		LeaderName:    cfg.Pipeline.DefaultLeader,
		RetryLimit:    cfg.Pipeline.DefaultRetryLimit,
		MaxRetryLimit: cfg.Pipeline.MaxRetryLimit,
		FixerKey:      cfg.Delegate.FixerKey,
		GitHubToken:   cfg.GitHub.Token,
	}, logger)
	ctrl.SetCleaner(workspace)
	ctrl.SetObserver(m)
	engine.SetPublish(ctrl.Publish)

	svc := &service{
		controller: ctrl,
		engine:     engine,
		store:      store,
		metrics:    m,
		registry:   reg,
	}

	if cfg.Database.URL != "" {
		database, err := db.Open(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		ctrl.SetHistory(database)
		ctrl.SetEventLog(database)
		svc.database = database
	}
	return svc, nil
}

func (s *service) close() {
	if s.database != nil {
		s.database.Close()
	}
}

// fixerFactory builds a fixer per run key. A key the delegate cannot use
// falls back to the deterministic rules.
func fixerFactory(cfg config.DelegateConfig, logger *zap.Logger) func(key string) stage.Fixer {
	opts := fixer.Options{
		OpenAIModel:      cfg.OpenAIModel,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		AnthropicModel:   cfg.AnthropicModel,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		Timeout:          config.Duration(cfg.Timeout, 60*time.Second),
		MaxRetries:       cfg.MaxRetries,
		MaxTokens:        cfg.MaxTokens,
		Temperature:      cfg.Temperature,
	}
	return func(key string) stage.Fixer {
		delegate, err := fixer.NewDelegate(key, opts)
		if err != nil {
			logger.Warn("fixer delegate unavailable, using rules", zap.String("kind", fixer.KeyKind(key)), zap.Error(err))
			delegate = nil
		}
		f := fixer.New(delegate, logger)
		f.SetContextLines(cfg.ContextLines)
		f.SetTemplateDir(cfg.TemplateDir)
		return f
	}
}

// openDatabase connects to the configured history database.
func openDatabase(ctx context.Context) (*db.DB, error) {
	if appConfig.Database.URL == "" {
		return nil, fmt.Errorf("no database configured: set database.url or HEALFACTORY_DATABASE_URL")
	}
	return db.Open(ctx, appConfig.Database.URL, logger)
}
