package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"quizdesk/internal/app"
	"quizdesk/internal/domain"
)

const maxBlankAnswers = 3

func NewQuizzesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "quizzes",
		Short: "List your quizzes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), *configPath, func(d *deps) error {
				quizzes, err := d.service.ListQuizzes(cmd.Context())
				if err != nil {
					return err
				}
				if len(quizzes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No quizzes yet. Create one with `quizdesk generate`.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSUBJECT\tDIFFICULTY\tQUESTIONS\tCREATED")
				for _, q := range quizzes {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", q.ID, q.Subject, q.Difficulty, len(q.Questions), formatDate(q.CreatedAt))
				}
				return tw.Flush()
			})
		},
	}
}

func NewGenerateCmd(configPath *string) *cobra.Command {
	var subject, difficulty string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new quiz on a subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), *configPath, func(d *deps) error {
				quiz, err := d.service.GenerateQuiz(cmd.Context(), subject, difficulty)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created quiz %d: %s (%s, %d questions)\n", quiz.ID, quiz.Subject, quiz.Difficulty, len(quiz.Questions))
				fmt.Fprintf(cmd.OutOrStdout(), "Take it with `quizdesk take %d`.\n", quiz.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "quiz subject")
	cmd.Flags().StringVar(&difficulty, "difficulty", string(domain.DifficultyMedium), "easy, medium or hard")
	return cmd
}

func NewTakeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "take QUIZ_ID",
		Short: "Answer a quiz and get your certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: invalid quiz id %q", domain.ErrValidation, args[0])
			}
			return withSession(cmd.Context(), *configPath, func(d *deps) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()
				session, err := d.service.StartSession(ctx, quizID)
				if err != nil {
					return err
				}
				defer session.Close()

				reader := bufio.NewReader(cmd.InOrStdin())
				result, err := playQuiz(ctx, session, reader, out)
				if err != nil {
					return err
				}
				return reportResult(ctx, d.issuer, session, d.bridge.Session().Identity, result, out)
			})
		},
	}
}

func NewHistoryCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List completed quizzes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), *configPath, func(d *deps) error {
				entries, err := d.service.History(cmd.Context())
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No completed quizzes yet.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "HISTORY\tSUBJECT\tSCORE\tPERCENT\tCOMPLETED\tCERTIFICATE")
				for _, e := range entries {
					cert := "-"
					if e.HasCertificate {
						cert = "yes"
					}
					fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%d%%\t%s\t%s\n", e.ID, e.Quiz.Subject, e.Score, len(e.Quiz.Questions), e.ScorePercentage, formatDate(e.CompletedAt), cert)
				}
				return tw.Flush()
			})
		},
	}
}

// playQuiz asks every question on out, reads answers from reader and submits
// them. A failed submission can be retried without answering again.
func playQuiz(ctx context.Context, session *app.QuizSession, reader *bufio.Reader, out io.Writer) (domain.Result, error) {
	quiz := session.Quiz()
	fmt.Fprintf(out, "%s (%s), %d questions\n", quiz.Subject, quiz.Difficulty, len(quiz.Questions))

	for i, question := range quiz.Questions {
		fmt.Fprintf(out, "\n%d. %s\n", i+1, question.Text)
		blanks := 0
		for {
			answer, err := promptLine(reader, out, "Your answer: ")
			if err != nil {
				return domain.Result{}, err
			}
			if answer == "" {
				blanks++
				if blanks >= maxBlankAnswers {
					return domain.Result{}, fmt.Errorf("%w: question %d left blank", domain.ErrIncompleteAnswers, i+1)
				}
				fmt.Fprintln(out, "An answer is required.")
				continue
			}
			if err := session.SetAnswer(i, answer); err != nil {
				return domain.Result{}, err
			}
			break
		}
		fmt.Fprintf(out, "Progress: %.0f%%\n", session.Progress()*100)
	}

	for {
		result, err := session.Submit(ctx)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, domain.ErrNetwork) && !errors.Is(err, domain.ErrServer) {
			return domain.Result{}, err
		}
		fmt.Fprintf(out, "Submission failed: %v\n", err)
		retry, promptErr := promptYesNo(reader, out, "Retry? (yes/no): ")
		if promptErr != nil || !retry {
			return domain.Result{}, err
		}
	}
}

func reportResult(ctx context.Context, issuer *app.CertificateIssuer, session *app.QuizSession, identity *domain.Identity, result domain.Result, out io.Writer) error {
	issuance, err := issuer.Issue(ctx, session, identity)
	fmt.Fprintf(out, "\nScore: %d/%d (%d%%)\n", result.Score, result.Total, issuance.Verdict.Percentage)
	if err != nil {
		return err
	}
	if !issuance.Verdict.Passed {
		fmt.Fprintln(out, "Not passed this time. Keep practicing!")
		return nil
	}
	fmt.Fprintln(out, "Passed with Distinction!")
	fmt.Fprintf(out, "Certificate saved to %s\n", issuance.Path)
	return nil
}

func promptYesNo(reader *bufio.Reader, out io.Writer, prompt string) (bool, error) {
	for {
		fmt.Fprint(out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Fprintln(out, "Please answer yes or no.")
		}
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
