package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kingrea/reelscript/internal/config"
	"github.com/kingrea/reelscript/internal/logging"
	"github.com/kingrea/reelscript/internal/pipeline"
	"github.com/kingrea/reelscript/internal/server"
	"github.com/kingrea/reelscript/internal/tasks"
	"github.com/kingrea/reelscript/internal/workflow"
	"github.com/kingrea/reelscript/internal/workflow/engine"
)

func main() {
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	target := flag.String("target", "", "state key to produce: videos, video, extracted_text or generated_script (routed from the prompt when empty)")
	seed := flag.Int64("seed", 0, "seed for the random video selection")
	video := flag.String("video", "", "YouTube URL or id to script directly, skipping listing and selection")
	runs := flag.Int("runs", 1, "number of independent runs to execute concurrently")
	listTimeout := flag.Duration("list-timeout", 0, "listing deadline (defaults to config)")
	extractTimeout := flag.Duration("extract-timeout", 0, "extraction deadline (defaults to config)")
	transformTimeout := flag.Duration("transform-timeout", 0, "transform deadline (defaults to config)")
	export := flag.Bool("export", false, "write every produced value under .reelscript/runs/<run-id>")
	workflowID := flag.String("workflow", "", "chain definition id in .reelscript/workflows (defaults to config)")
	initWorkflow := flag.Bool("init-workflow", false, "write the built-in chain to .reelscript/workflows and exit")
	serve := flag.Bool("serve", false, "serve POST /runs over HTTP instead of running once")
	addr := flag.String("addr", "", "listen address for -serve (defaults to :$PORT)")
	verbose := flag.Bool("v", false, "mirror the process log to stderr")
	sets := keyValueFlag{}
	flag.Var(&sets, "set", "task config override (task.key=value, repeatable)")
	flag.Parse()

	project := *projectDir
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
	}
	absoluteProject, err := filepath.Abs(project)
	if err != nil {
		die("resolve project dir: %v", err)
	}
	if err := config.InitDataDir(absoluteProject); err != nil {
		die("init %s: %v", config.DataDir, err)
	}
	cfg, err := config.NewConfig(absoluteProject)
	if err != nil {
		die("load config: %v", err)
	}
	wf := workflow.New(cfg.DataDir)
	logger, err := logging.New(wf)
	if err != nil {
		die("open log: %v", err)
	}
	defer logger.Close()
	if *verbose {
		logger.Mirror(os.Stderr)
	}

	if *initWorkflow {
		path, err := writeDefaultWorkflow(wf)
		if err != nil {
			die("write workflow: %v", err)
		}
		fmt.Println(styles.muted.Render("wrote " + path))
		return
	}

	id := strings.TrimSpace(*workflowID)
	if id == "" {
		id = cfg.DefaultWorkflow()
	}
	def, err := loadDefinition(wf, id)
	if err != nil {
		die("load workflow: %v", err)
	}
	if err := sets.apply(&def); err != nil {
		die("apply overrides: %v", err)
	}
	for _, check := range []func() error{cfg.ValidateListing, cfg.ValidateGemini} {
		if err := check(); err != nil {
			logger.Printf("config: %v", err)
		}
	}

	ctrl, err := pipeline.FromConfig(cfg, def, logger, pipeline.WithConcurrency(*runs))
	if err != nil {
		die("build pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		runServer(ctx, cfg, *addr, ctrl, logger)
		return
	}

	req := pipeline.Request{
		Prompt: strings.Join(flag.Args(), " "),
		Target: *target,
		Options: pipeline.Options{
			Video:  *video,
			Export: *export,
			Timeouts: engine.Timeouts{
				Listing:    *listTimeout,
				Extraction: *extractTimeout,
				Transform:  *transformTimeout,
			},
		},
	}
	if flagSet("seed") {
		req.Options.Seed = seed
	}
	count := *runs
	if count < 1 {
		count = 1
	}
	reqs := make([]pipeline.Request, count)
	for i := range reqs {
		reqs[i] = req
	}
	failed := false
	for _, res := range ctrl.RunMany(ctx, reqs) {
		fmt.Println(render(res))
		if res.Err != nil {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config, addr string, ctrl *pipeline.Controller, logger *logging.Logger) {
	settings := server.SettingsFromConfig(cfg)
	if strings.TrimSpace(addr) != "" {
		parsed, err := server.ParseAddress(addr)
		if err != nil {
			die("parse -addr: %v", err)
		}
		settings = parsed
	}
	srv := server.New(settings, ctrl, server.WithLogger(logger))
	if err := srv.Start(ctx); err != nil {
		die("start server: %v", err)
	}
	fmt.Println(styles.title.Render("reelscript") + " " + styles.muted.Render("listening on "+srv.Addr()))
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		die("shutdown: %v", err)
	}
}

func loadDefinition(wf *workflow.Workflow, id string) (workflow.Definition, error) {
	def, err := wf.LoadDefinitionByID(id)
	if err == nil {
		return def, nil
	}
	if errors.Is(err, fs.ErrNotExist) && id == tasks.DefaultWorkflowID {
		return tasks.DefaultDefinition(), nil
	}
	return workflow.Definition{}, err
}

func writeDefaultWorkflow(wf *workflow.Workflow) (string, error) {
	data, err := workflow.EncodeDefinitionYAML(tasks.DefaultDefinition())
	if err != nil {
		return "", err
	}
	path := filepath.Join(wf.DefinitionsDir(), tasks.DefaultWorkflowID+".yaml")
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0644)
}

func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func die(format string, args ...any) {
	fmt.Fprintln(os.Stderr, styles.failure.Render(fmt.Sprintf(format, args...)))
	os.Exit(1)
}
