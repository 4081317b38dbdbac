package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"quizdesk/internal/app"
)

type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", os.Getenv("QUIZ_EMAIL"), "account email")
	cmd.Flags().StringVar(&f.password, "password", os.Getenv("QUIZ_PASSWORD"), "account password (prefer QUIZ_PASSWORD; flags show up in process listings)")
}

// resolve prompts for whatever was not given on the command line. The
// password is read without echo when in is a terminal.
func (f *credentialFlags) resolve(in io.Reader, out io.Writer) (string, string, error) {
	reader := bufio.NewReader(in)
	email, password := strings.TrimSpace(f.email), f.password
	var err error
	if email == "" {
		if email, err = promptLine(reader, out, "Email: "); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if password, err = promptPassword(in, reader, out, "Password: "); err != nil {
			return "", "", err
		}
	}
	return email, password, nil
}

func NewLoginCmd(configPath *string) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the quiz backend and the identity provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := creds.resolve(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			d, err := loadDeps(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer d.Close()

			session, err := d.bridge.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", app.RecipientName(session.Identity))
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func NewRegisterCmd(configPath *string) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := creds.resolve(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			d, err := loadDeps(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.bridge.Register(cmd.Context(), email, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s. Sign in with `quizdesk login`.\n", email)
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func NewLogoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer d.Close()
			d.bridge.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func NewStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the restored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer d.Close()

			out := cmd.OutOrStdout()
			session := d.bridge.Session()
			if !session.Authenticated {
				fmt.Fprintln(out, "Not signed in.")
				if err := d.bridge.Require(); err != nil {
					fmt.Fprintf(out, "(%v)\n", err)
				}
				return nil
			}
			fmt.Fprintf(out, "Signed in as %s\n", app.RecipientName(session.Identity))
			if session.Identity != nil && !session.Identity.Expiry.IsZero() {
				fmt.Fprintf(out, "Identity token valid until %s\n", session.Identity.Expiry.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func promptLine(reader *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(in io.Reader, reader *bufio.Reader, out io.Writer, prompt string) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return promptLine(reader, out, prompt)
	}
	fmt.Fprint(out, prompt)
	raw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
