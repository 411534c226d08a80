package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/VK79/Radar12/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in to Telegram and store the session file",
	Long: "auth performs the interactive MTProto login (phone number, confirmation\n" +
		"code, optional two-factor password) and writes the session file the\n" +
		"daemon reads. Run it once per host, then restart the daemon.",
	RunE: authAction,
}

func authAction(_ *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return err
	}
	if cfg.Telegram.APIID == 0 || strings.TrimSpace(cfg.Telegram.APIHash) == "" {
		return errors.New("telegram.api_id and telegram.api_hash are required for sign-in " +
			"(set them in the config or via TELEGRAM_API_ID / TELEGRAM_API_HASH)")
	}

	path := cfg.Telegram.SessionPath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("session directory: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := telegram.NewClient(cfg.Telegram.APIID, cfg.Telegram.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: path},
	})
	flow := auth.NewFlow(terminalAuth{}, auth.SendCodeOptions{})

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("sign-in: %w", err)
		}
		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("who am i: %w", err)
		}
		name := strings.TrimSpace(self.FirstName + " " + self.LastName)
		if self.Username != "" {
			name = name + " (@" + self.Username + ")"
		}
		fmt.Printf("Signed in as %s.\nSession stored at %s; the daemon will pick it up on restart.\n", name, path)
		return nil
	})
}

// terminalAuth prompts on the terminal for every credential the login
// flow asks for. Account sign-up is refused: this tool only attaches to
// an existing account.
type terminalAuth struct{}

func (terminalAuth) Phone(_ context.Context) (string, error) {
	return promptLine("Phone number (international format, e.g. +79991234567): ")
}

func (terminalAuth) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return promptLine("Confirmation code: ")
}

func (terminalAuth) Password(_ context.Context) (string, error) {
	fmt.Print("Two-factor password: ")
	pwd, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(pwd)), nil
}

func (terminalAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (terminalAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("this phone number has no Telegram account; sign up with an official client first")
}

func promptLine(label string) (string, error) {
	fmt.Print(label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
