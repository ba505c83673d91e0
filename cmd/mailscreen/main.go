// Command mailscreen scrapes a mailbox for resume attachments, builds
// candidate profiles from them, and scores candidates against stored
// job requisitions.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tdvo/mailscreen/internal/credential"
	"github.com/tdvo/mailscreen/internal/dedup"
	"github.com/tdvo/mailscreen/internal/ingest"
	"github.com/tdvo/mailscreen/internal/mailbox"
	"github.com/tdvo/mailscreen/internal/mailbox/graph"
	"github.com/tdvo/mailscreen/internal/mailbox/imapx"
	"github.com/tdvo/mailscreen/internal/match"
	"github.com/tdvo/mailscreen/internal/model"
	"github.com/tdvo/mailscreen/internal/scrape"
	"github.com/tdvo/mailscreen/internal/store"
)

const (
	imapPasswordKey = "imap-password"
	graphTokensKey  = "graph-tokens"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "initializing logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "scrape"
	}

	ctx := context.Background()
	if err := run(ctx, cmd, flag.Args(), cfg, logger); err != nil {
		logger.Fatal("command failed", zap.String("command", cmd), zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}

func run(ctx context.Context, cmd string, args []string, cfg *model.AppConfig, logger *zap.Logger) error {
	switch cmd {
	case "connect":
		return runConnect(ctx, cfg, logger)
	case "scrape":
		return runScrape(ctx, args, cfg, logger)
	case "match":
		return runMatch(ctx, args, cfg, logger)
	case "job":
		return runAddJob(ctx, args, cfg, logger)
	case "candidates":
		return runCandidates(ctx, args, cfg, logger)
	case "dedup":
		return runDedup(ctx, cfg, logger)
	case "stats":
		return runStats(ctx, cfg, logger)
	case "folders":
		return runFolders(ctx, cfg, logger)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// newProvider builds the configured mailbox provider.
func newProvider(cfg *model.AppConfig, logger *zap.Logger) (mailbox.Provider, error) {
	switch cfg.Provider {
	case "imap", "":
		password, err := credential.Get(imapPasswordKey)
		if err != nil {
			return nil, fmt.Errorf("no stored password; run 'mailscreen connect' first: %w", err)
		}
		return imapx.NewClient(imapx.Config{
			Host: cfg.IMAP.Host,
			Port: cfg.IMAP.Port,
			Credentials: mailbox.Credentials{
				Email:    cfg.IMAP.Username,
				Password: password,
			},
		}, logger), nil
	case "graph":
		client := graph.NewClient(cfg.Graph.ClientID,
			&graph.KeyringTokenStore{Key: graphTokensKey}, logger)
		return graph.NewProvider(client, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// runConnect stores IMAP credentials or walks the Graph device-code
// sign-in, then verifies the account with a login.
func runConnect(ctx context.Context, cfg *model.AppConfig, logger *zap.Logger) error {
	switch cfg.Provider {
	case "imap", "":
		fmt.Printf("Password for %s: ", cfg.IMAP.Username)
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		if err := credential.Set(imapPasswordKey, strings.TrimSpace(password)); err != nil {
			return err
		}
	case "graph":
		client := graph.NewClient(cfg.Graph.ClientID,
			&graph.KeyringTokenStore{Key: graphTokensKey}, logger)
		code, err := client.BeginDeviceAuth(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Visit %s and enter code %s\n", code.VerificationURL, code.UserCode)
		if err := client.WaitForDeviceAuth(ctx, code); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	if err := provider.Login(ctx); err != nil {
		return err
	}
	fmt.Println("Account connected.")
	return nil
}

func runScrape(ctx context.Context, args []string, cfg *model.AppConfig, logger *zap.Logger) error {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	folder := fs.String("folder", cfg.Scrape.Folder, "mailbox folder to scrape")
	since := fs.String("since", "", "only messages on or after this date (YYYY-MM-DD)")
	before := fs.String("before", "", "only messages on or before this date (YYYY-MM-DD)")
	sender := fs.String("sender", "", "filter on sender address")
	maxResults := fs.Int("max", cfg.Scrape.MaxResults, "max messages to process")
	if err := fs.Parse(argsAfter(args)); err != nil {
		return err
	}

	criteria := mailbox.SearchCriteria{Sender: *sender}
	if *since != "" {
		t, err := time.Parse("2006-01-02", *since)
		if err != nil {
			return fmt.Errorf("parsing -since: %w", err)
		}
		criteria.Since = t
	}
	if *before != "" {
		t, err := time.Parse("2006-01-02", *before)
		if err != nil {
			return fmt.Errorf("parsing -before: %w", err)
		}
		criteria.Before = t
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	scraper := scrape.New(provider, ingest.New(st, logger), logger)
	result, err := scraper.Run(ctx, scrape.Options{
		Folder:         *folder,
		Criteria:       criteria,
		MaxResults:     *maxResults,
		AttachmentsDir: cfg.Scrape.AttachmentsDir,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Scraped %d messages, saved %d attachments, added %d candidates\n",
		result.MessagesScraped, result.AttachmentsSaved, result.CandidatesAdded)
	return nil
}

func runMatch(ctx context.Context, args []string, cfg *model.AppConfig, logger *zap.Logger) error {
	rest := argsAfter(args)
	if len(rest) == 0 {
		return errors.New("usage: mailscreen match <job-id>")
	}
	jobID, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parsing job id: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ranked, err := match.Run(ctx, st, jobID, logger)
	if err != nil {
		return err
	}

	for _, r := range ranked {
		fmt.Printf("%6.1f  %-8s  %s <%s>\n",
			r.Result.Score, r.Result.FitLevel, r.Candidate.Name, r.Candidate.Email)
		for _, reason := range r.Result.Reasons {
			fmt.Printf("        - %s\n", reason)
		}
	}
	return nil
}

func runAddJob(ctx context.Context, args []string, cfg *model.AppConfig, logger *zap.Logger) error {
	fs := flag.NewFlagSet("job", flag.ExitOnError)
	title := fs.String("title", "", "job title (required)")
	skills := fs.String("skills", "", "comma-separated required skills")
	minExp := fs.Float64("min-exp", 0, "minimum years of experience")
	location := fs.String("location", "", "job location")
	remote := fs.Bool("remote", false, "remote eligible")
	if err := fs.Parse(argsAfter(args)); err != nil {
		return err
	}
	if *title == "" {
		return errors.New("-title is required")
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	job := &model.JobRequisition{
		Title:          *title,
		RequiredSkills: splitList(*skills),
		MinExp:         *minExp,
		Location:       *location,
		RemoteOK:       *remote,
	}
	if err := st.CreateJob(ctx, job); err != nil {
		return err
	}
	fmt.Printf("Created job %d: %s\n", job.ID, job.Title)
	return nil
}

func runCandidates(ctx context.Context, args []string, cfg *model.AppConfig, logger *zap.Logger) error {
	fs := flag.NewFlagSet("candidates", flag.ExitOnError)
	query := fs.String("q", "", "substring filter over name, email, and notes")
	skill := fs.String("skill", "", "filter on a skill")
	if err := fs.Parse(argsAfter(args)); err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	filter := store.CandidateFilter{SortBy: "created_at", SortDesc: true}
	if *query != "" {
		filter.Query = query
	}
	if *skill != "" {
		filter.Skill = skill
	}

	candidates, err := st.GetCandidates(ctx, filter)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		fmt.Printf("%4d  %-24s  %-30s  %s\n",
			c.ID, c.Name, c.Email, strings.Join(c.Skills, ", "))
	}
	return nil
}

func runDedup(ctx context.Context, cfg *model.AppConfig, logger *zap.Logger) error {
	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	candidates, err := st.GetCandidates(ctx, store.CandidateFilter{})
	if err != nil {
		return err
	}

	for _, f := range dedup.Detect(candidates) {
		marker := " "
		if f.IsDuplicate {
			marker = fmt.Sprintf("duplicate of %d", f.CanonicalID)
		}
		fmt.Printf("%4d  %-24s  %-30s  %s\n",
			f.Candidate.ID, f.Candidate.Name, f.Candidate.Email, marker)
	}
	return nil
}

// mailboxStater is implemented by both providers but is not part of
// the core transport contract.
type mailboxStater interface {
	Stats(ctx context.Context) (*model.MailboxStats, error)
}

func runStats(ctx context.Context, cfg *model.AppConfig, logger *zap.Logger) error {
	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	stater, ok := provider.(mailboxStater)
	if !ok {
		return errors.New("provider does not support stats")
	}

	stats, err := stater.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Messages: %d total, %d unread, %d in the last 7 days\n",
		stats.TotalMessages, stats.TotalUnread, stats.RecentCount)
	for _, f := range stats.Folders {
		fmt.Printf("  %-30s %6d total %6d unread\n", f.Name, f.Total, f.Unread)
	}
	if len(stats.TopSenders) > 0 {
		fmt.Println("Top senders:")
		for _, s := range stats.TopSenders {
			fmt.Printf("  %3d  %s <%s>\n", s.Count, s.Name, s.Email)
		}
	}
	return nil
}

func runFolders(ctx context.Context, cfg *model.AppConfig, logger *zap.Logger) error {
	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	folders, err := provider.ListFolders(ctx)
	if err != nil {
		return err
	}
	for _, f := range folders {
		fmt.Printf("%-30s %6d total %6d unread\n", f.Name, f.TotalCount, f.UnreadCount)
	}
	return nil
}

// argsAfter drops the subcommand word from the argument list.
func argsAfter(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
