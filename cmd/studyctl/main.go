// Package main provides the studyctl CLI for running study sessions from a terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"studyflow/internal/apiclient"
	"studyflow/internal/cliconfig"
	"studyflow/internal/models"
	"studyflow/internal/studysession"
	"studyflow/internal/tui"
)

var (
	flagAPIURL string
	flagToken  string
	flagConfig string

	loginEmail string

	sessionsStatus string

	planTitle       string
	planDescription string
	planTarget      int

	sessionTitle     string
	sessionPlan      string
	sessionMinutes   int
	sessionAt        string
	sessionObjective []string

	// populated by the root PersistentPreRunE
	fileCfg  cliconfig.FileConfig
	settings cliconfig.Settings
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "studyctl",
		Short:             "Run and track study sessions",
		SilenceUsage:      true,
		PersistentPreRunE: loadSettings,
	}

	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "API root (default "+cliconfig.DefaultAPIURL+")")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "access token")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default "+cliconfig.DefaultConfigPath()+")")

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newPlansCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newRunCmd())

	return rootCmd
}

func loadSettings(cmd *cobra.Command, _ []string) error {
	// .env is optional
	_ = godotenv.Load()

	var err error
	fileCfg, err = cliconfig.LoadConfig(configPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	settings = fileCfg.Resolve()
	if cmd.Flags().Changed("api-url") {
		settings.APIURL = flagAPIURL
	}
	if cmd.Flags().Changed("token") {
		settings.Token = flagToken
	}
	return nil
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return cliconfig.DefaultConfigPath()
}

func newClient() (*apiclient.Client, error) {
	return apiclient.New(settings.APIURL, apiclient.WithToken(settings.Token))
}

// authedClient refuses to build a client without a token so the user gets a
// hint instead of a bare 401.
func authedClient() (*apiclient.Client, error) {
	if settings.Token == "" {
		return nil, fmt.Errorf("not logged in: run `studyctl login` or set %s", cliconfig.EnvToken)
	}
	return newClient()
}

func explain(err error) error {
	if apiclient.IsStatus(err, http.StatusUnauthorized) {
		return fmt.Errorf("%w\nyour token was rejected, run `studyctl login` again", err)
	}
	return err
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store an access token in the config file",
		Args:  cobra.NoArgs,
		RunE:  runLoginCmd,
	}
	cmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	return cmd
}

func runLoginCmd(cmd *cobra.Command, _ []string) error {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	email := strings.TrimSpace(loginEmail)
	if email == "" {
		email = settings.Email
	}
	if email == "" {
		fmt.Fprint(out, "Email: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}

	password, err := readPassword(in, out)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	tokens, err := client.Login(ctx, email, password)
	if err != nil {
		return err
	}

	fileCfg.API.Email = &email
	fileCfg.API.Token = &tokens.AccessToken
	if cmd.Flags().Changed("api-url") {
		fileCfg.API.URL = &settings.APIURL
	}
	if err := cliconfig.SaveConfig(configPath(), fileCfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s. Token saved to %s (expires in %s).\n",
		email, configPath(), time.Duration(tokens.ExpiresIn)*time.Second)
	return nil
}

func readPassword(in *bufio.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newPlansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List study plans",
		Args:  cobra.NoArgs,
		RunE:  runPlansCmd,
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a study plan",
		Args:  cobra.NoArgs,
		RunE:  runPlanCreateCmd,
	}
	create.Flags().StringVar(&planTitle, "title", "", "plan title")
	create.Flags().StringVar(&planDescription, "description", "", "plan description")
	create.Flags().IntVar(&planTarget, "target-minutes", 0, "total study time goal")
	cmd.AddCommand(create)

	return cmd
}

func runPlansCmd(cmd *cobra.Command, _ []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}
	plans, err := client.ListPlans(cmd.Context())
	if err != nil {
		return explain(err)
	}
	if len(plans) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No study plans yet. Create one with: studyctl plans create --title <title>")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Title", "Sessions", "Minutes", "Target"}, planRows(plans)))
	return nil
}

func runPlanCreateCmd(cmd *cobra.Command, _ []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}
	plan, err := client.CreatePlan(cmd.Context(), models.CreatePlanRequest{
		Title:         planTitle,
		Description:   planDescription,
		TargetMinutes: planTarget,
	})
	if err != nil {
		return explain(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), plan.ID)
	return nil
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List study sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessionsCmd,
	}
	cmd.Flags().StringVar(&sessionsStatus, "status", "", "filter by status (scheduled, active, paused, completed)")

	create := &cobra.Command{
		Use:   "create",
		Short: "Schedule a study session",
		Args:  cobra.NoArgs,
		RunE:  runSessionCreateCmd,
	}
	create.Flags().StringVar(&sessionTitle, "title", "", "session title")
	create.Flags().StringVar(&sessionPlan, "plan", "", "parent study plan id")
	create.Flags().IntVar(&sessionMinutes, "minutes", 25, "estimated duration in minutes")
	create.Flags().StringVar(&sessionAt, "at", "", "scheduled start (RFC 3339)")
	create.Flags().StringArrayVar(&sessionObjective, "objective", nil, "objective title, repeatable")
	cmd.AddCommand(create)

	return cmd
}

func runSessionsCmd(cmd *cobra.Command, _ []string) error {
	status := models.SessionStatus(sessionsStatus)
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", sessionsStatus)
	}
	client, err := authedClient()
	if err != nil {
		return err
	}
	sessions, err := client.ListSessions(cmd.Context(), status)
	if err != nil {
		return explain(err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No study sessions found.")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Title", "Status", "Elapsed", "Scheduled"}, sessionRows(sessions)))
	return nil
}

func runSessionCreateCmd(cmd *cobra.Command, _ []string) error {
	req := models.CreateSessionRequest{
		Title:                    sessionTitle,
		EstimatedDurationSeconds: sessionMinutes * 60,
	}
	if sessionPlan != "" {
		id, err := uuid.Parse(sessionPlan)
		if err != nil {
			return fmt.Errorf("invalid plan id: %w", err)
		}
		req.StudyPlanID = &id
	}
	if sessionAt != "" {
		at, err := time.Parse(time.RFC3339, sessionAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		req.ScheduledFor = &at
	}
	for _, title := range sessionObjective {
		req.Objectives = append(req.Objectives, models.Objective{Title: title})
	}

	client, err := authedClient()
	if err != nil {
		return err
	}
	s, err := client.CreateSession(cmd.Context(), req)
	if err != nil {
		return explain(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.ID)
	return nil
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a study session",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowCmd,
	}
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}
	client, err := authedClient()
	if err != nil {
		return err
	}
	s, err := client.ReadSession(cmd.Context(), id)
	if err != nil {
		return explain(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", s.Title)
	fmt.Fprintf(out, "  status:    %s\n", s.Status)
	fmt.Fprintf(out, "  elapsed:   %s of %s\n",
		time.Duration(s.ElapsedSeconds)*time.Second, time.Duration(s.EstimatedDurationSeconds)*time.Second)
	if s.StudyPlanID != nil {
		fmt.Fprintf(out, "  plan:      %s\n", s.StudyPlanID)
	}
	if s.ScheduledFor != nil {
		fmt.Fprintf(out, "  scheduled: %s\n", s.ScheduledFor.Local().Format(time.RFC1123))
	}

	done := make(map[string]bool, len(s.CompletedObjectiveIDs))
	for _, oid := range s.CompletedObjectiveIDs {
		done[oid] = true
	}
	for _, o := range s.Objectives {
		mark := "[ ]"
		if done[o.ID] {
			mark = "[x]"
		}
		fmt.Fprintf(out, "  %s %s\n", mark, o.Title)
	}

	if s.Status == models.StatusCompleted {
		fmt.Fprintf(out, "  ratings:   confidence %s, focus %s, effectiveness %s\n",
			ratingString(s.ConfidenceRating), ratingString(s.FocusLevel), ratingString(s.EffectivenessRating))
	}
	if s.Notes != "" {
		fmt.Fprintf(out, "  notes:     %s\n", s.Notes)
	}
	return nil
}

func ratingString(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d", *v, models.MaxRating)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <session-id>",
		Short: "Open the interactive timer for a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunCmd,
	}
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}
	client, err := authedClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	relay := &tui.Relay{}
	ctrl, err := studysession.New(&studysession.Config{
		SessionID: id,
		Store:     client,
		OnChange:  relay.OnChange,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	st, err := ctrl.Load(ctx)
	if err != nil {
		return explain(err)
	}
	if st.Status == models.StatusCompleted {
		return fmt.Errorf("session %q is already completed", st.Title)
	}

	model := tui.NewModel(ctx, ctrl, settings.Ratings)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	relay.Attach(program)
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	if c := model.Completion(); c != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Session complete: %s in %s.\nNext: %s\n",
			c.State.Title, time.Duration(c.State.ElapsedSeconds)*time.Second, c.NavigateTo)
		return nil
	}

	if final := ctrl.State(); final.IsActive {
		fmt.Fprintln(cmd.OutOrStdout(), "Session is still running on the server. Resume with: studyctl run", id)
	}
	return nil
}
