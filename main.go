package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"agentedit/config"
	"agentedit/document"
	"agentedit/engine"
	"agentedit/model"
	"agentedit/provider"
	"agentedit/storage"
	"agentedit/tools"
	"agentedit/ui"
	"agentedit/workspace"
)

const Version = "v0.1.0"

var (
	providerFlag  string
	modelFlag     string
	workspaceFlag string
	noToolsFlag   bool
	newFlag       bool
)

var rootCmd = &cobra.Command{
	Use:     "agentedit [file]",
	Short:   "Edit a document together with an LLM agent",
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runChat,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search messages across all archived sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the chat archive from stored sessions",
	Args:  cobra.NoArgs,
	RunE:  runReindex,
}

func init() {
	rootCmd.Flags().StringVar(&providerFlag, "provider", "", "Provider ID (defaults to default_provider)")
	rootCmd.Flags().StringVar(&modelFlag, "model", "", "Model name (defaults to default_model)")
	rootCmd.Flags().StringVar(&workspaceFlag, "workspace", "", "Workspace root (defaults to workspace_root)")
	rootCmd.Flags().BoolVar(&noToolsFlag, "no-tools", false, "Start with tools disabled")
	rootCmd.Flags().BoolVar(&newFlag, "new", false, "Start a new session instead of resuming the last one")

	rootCmd.AddCommand(sessionsCmd, searchCmd, reindexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.InitDebugLog(cfg.DataDir())
	return cfg, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workspaceFlag != "" {
		cfg.WorkspaceRoot = workspaceFlag
	}
	if providerFlag != "" {
		cfg.DefaultProvider = providerFlag
	}
	if modelFlag != "" {
		cfg.DefaultModel = modelFlag
	}
	if noToolsFlag {
		cfg.ToolsEnabled = false
	}

	sessionStorage, err := storage.NewSessionStorage(cfg.DataDir())
	if err != nil {
		return fmt.Errorf("failed to initialize session storage: %w", err)
	}

	// Single-instance enforcement
	isLocked, runningPID, err := sessionStorage.CheckInstanceLock()
	if err != nil {
		return fmt.Errorf("failed to check instance lock: %w", err)
	}
	if isLocked {
		msg := fmt.Sprintf("Another agentedit instance is already running (PID %d).\n\n"+
			"Only one instance can use a data directory at a time.\n"+
			"Close the other instance or set AGENTEDIT_DATA_DIR.", runningPID)
		if _, err := tea.NewProgram(ui.NewErrorModal("agentedit already running", msg), tea.WithAltScreen()).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return nil
	}
	if err := sessionStorage.LockInstance(); err != nil {
		return fmt.Errorf("failed to lock instance: %w", err)
	}
	defer func() {
		if err := sessionStorage.UnlockInstance(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("Warning: failed to unlock instance: %v", err)
		}
	}()

	archive, err := storage.NewArchive(cfg.DataDir())
	if err != nil {
		return fmt.Errorf("failed to open chat archive: %w", err)
	}
	defer archive.Close()

	fs, err := workspace.NewOSFileSystem(cfg.WorkspaceDir())
	if err != nil {
		return err
	}
	cache := workspace.NewContentCache(cfg.Workspace.CacheEntries)
	if cfg.Workspace.Watch {
		watcher, err := workspace.NewWatcher(string(fs.Root()), cache.Invalidate)
		if err != nil {
			// the cache still works, it just won't notice outside edits
			if config.DebugLog != nil {
				config.DebugLog.Printf("Warning: workspace watcher disabled: %v", err)
			}
		} else {
			defer watcher.Close()
		}
	}

	doc := document.NewManager(fs, cache, document.RetryConfig{
		MaxRetries:      cfg.Document.IORetries,
		InitialInterval: time.Duration(cfg.Document.RetryInitialMS) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Document.RetryMaxMS) * time.Millisecond,
	})
	defer doc.Close()

	if len(args) == 1 {
		if err := openDocument(cmd.Context(), fs, doc, args[0]); err != nil {
			return err
		}
	}
	if interval := cfg.AutoSaveInterval(); interval > 0 {
		doc.StartAutoSave(interval)
	}

	providers := provider.InitializeProviders(cfg)
	if _, ok := providers[cfg.DefaultProvider]; !ok {
		fmt.Fprintf(os.Stderr, "Warning: provider %q is not available; check config.toml and credentials.toml\n", cfg.DefaultProvider)
	}

	eng := engine.New(providers, engine.Options{
		Tools:        tools.NewDispatcher(doc, fs, fs.Root(), cache),
		Persister:    sessionStorage,
		Archiver:     archive,
		SystemPrompt: cfg.SystemPrompt,
	})

	stored, err := sessionStorage.LoadAll()
	if err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: failed to load sessions: %v", err)
	}
	for _, s := range stored {
		if err := eng.Restore(s); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("Warning: failed to restore session %s: %v", s.ID, err)
		}
	}

	var resume *model.ChatSession
	if !newFlag {
		if id, err := sessionStorage.LoadCurrentSessionID(); err == nil {
			resume, _ = eng.Session(id)
		}
	}

	view := ui.NewAppView(ui.Options{
		Engine:       eng,
		Document:     doc,
		Archive:      archive,
		ProviderID:   cfg.DefaultProvider,
		Model:        cfg.DefaultModel,
		Session:      resume,
		ToolsEnabled: cfg.ToolsEnabled,
		OnSessionChange: func(id string) {
			if err := sessionStorage.SaveCurrentSessionID(id); err != nil && config.DebugLog != nil {
				config.DebugLog.Printf("Warning: failed to save current session: %v", err)
			}
		},
	})
	defer view.Close()

	_, runErr := tea.NewProgram(view, tea.WithAltScreen()).Run()
	// nothing reads events once the program is gone
	view.Close()
	if runErr != nil {
		return fmt.Errorf("error running agentedit: %w", runErr)
	}

	// flush edits the auto-save timer has not picked up yet
	if st, err := doc.State(); err == nil && st.IsDirty {
		if err := doc.Save(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save %s: %v\n", st.Path, err)
		}
	}
	return nil
}

// openDocument loads path, relative to the workspace root, as the active
// document. A missing file is created empty.
func openDocument(ctx context.Context, fs *workspace.OSFileSystem, doc *document.Manager, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if filepath.IsAbs(path) {
		// the root is symlink-resolved, so the argument must be too
		if dir, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
			path = filepath.Join(dir, filepath.Base(path))
		}
		rel, err := filepath.Rel(string(fs.Root()), path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		path = rel
	}

	ref, err := fs.ResolvePath(fs.Root(), path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, statErr := os.Stat(string(ref)); os.IsNotExist(statErr) {
		if err := fs.WriteBytes(ctx, ref, ""); err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
	if _, err := doc.Load(ctx, ref, path); err != nil {
		return err
	}
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessionStorage, err := storage.NewSessionStorage(cfg.DataDir())
	if err != nil {
		return err
	}
	list, err := sessionStorage.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range list {
		fmt.Fprintf(out, "%s  %s  %-30s  %d messages  (%s)\n",
			shortID(s.ID), s.UpdatedAt.Format("2006-01-02 15:04"), s.Name, s.MessageCount, s.SelectedModel)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	archive, err := storage.NewArchive(cfg.DataDir())
	if err != nil {
		return err
	}
	defer archive.Close()

	matches, err := archive.Search(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintln(out, "No matches found")
		return nil
	}
	for _, m := range matches {
		fmt.Fprintf(out, "%s  %s #%d [%s]\n    %s\n", shortID(m.SessionID), m.SessionName, m.MessageIndex, m.Role, m.Preview)
	}
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessionStorage, err := storage.NewSessionStorage(cfg.DataDir())
	if err != nil {
		return err
	}
	archive, err := storage.NewArchive(cfg.DataDir())
	if err != nil {
		return err
	}
	defer archive.Close()

	if err := archive.Rebuild(sessionStorage); err != nil {
		return err
	}
	n, err := archive.Count()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d sessions\n", n)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
