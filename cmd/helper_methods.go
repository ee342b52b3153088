package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/ui"
	"github.com/PolarWolf314/docvault/internal/utils"
	"github.com/PolarWolf314/docvault/internal/workflows"

	"github.com/briandowns/spinner"
)

// startSpinner creates and starts a spinner with the given message when not in verbose or debug mode.
// Returns the spinner and a function that should be deferred to clean up.
//
// IMPORTANT: spinner.FinalMSG values do NOT need trailing newlines. The cleanup function
// automatically calls ui.EnsureNewline() on the final message before printing it.
func startSpinner(message string) (*spinner.Spinner, func()) {
	Logger.Debugf("Starting spinner with message: %s", message)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr

	if err := s.Color("cyan"); err != nil {
		Logger.Warnf("Failed to set spinner color: %v", err)
	}

	quiet := !verbose && !debug
	if quiet {
		s.Start()
		log.SetOutput(io.Discard)
	} else {
		Logger.Infof("Running in verbose or debug mode: %s", message)
	}

	cleanup := func() {
		if quiet {
			log.SetOutput(os.Stderr)
		}

		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			// Clear FinalMSG so s.Stop() doesn't print it.
			s.FinalMSG = ""
		}

		if quiet {
			s.Stop()
		}

		// Print final message to stdout (for tests to capture).
		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}

	return s, cleanup
}

// openVault opens the vault above the working directory.
func openVault(ctx context.Context) (*workflows.Vault, error) {
	return workflows.Open(ctx, workflows.OpenOptions{Logger: Logger})
}

// readPassword reads one password from stdin with --password-stdin, and
// from the terminal otherwise. The spinner is paused while prompting.
func readPassword(s *spinner.Spinner, prompt string) ([]byte, error) {
	if passwordStdin {
		return readStdinPassword()
	}
	return prompting(s, func() ([]byte, error) { return utils.ReadPassword(prompt) })
}

// readNewPassword is readPassword with a confirmation prompt.
func readNewPassword(s *spinner.Spinner, prompt string) ([]byte, error) {
	if passwordStdin {
		return readStdinPassword()
	}
	return prompting(s, func() ([]byte, error) { return utils.ReadNewPassword(prompt) })
}

func readStdinPassword() ([]byte, error) {
	if stdinReader == nil {
		stat, err := os.Stdin.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat stdin: %w", err)
		}
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			return nil, fmt.Errorf("no data provided on stdin (hint: pipe your password to this command)")
		}
		stdinReader = bufio.NewReader(os.Stdin)
	}
	return utils.ReadPasswordFromStdin(stdinReader)
}

func prompting(s *spinner.Spinner, read func() ([]byte, error)) ([]byte, error) {
	if s != nil && s.Active() {
		s.Stop()
		defer s.Restart()
	}
	return read()
}

// confirm asks a yes/no question on the terminal.
func confirm(s *spinner.Spinner, question string) bool {
	if s != nil && s.Active() {
		s.Stop()
		defer s.Restart()
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print(question + " [y/N]: ")
	response, err := reader.ReadString('\n')
	if err != nil {
		Logger.Errorf("Failed to read response: %v", err)
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// formatError renders a workflow error as a final spinner message.
func formatError(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrVaultNotInitialized):
		return ui.Error.Sprint("✗") + " No vault found here\n" +
			ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("docvault keys init") + " first"

	case errors.Is(err, kerrors.ErrNotProvisioned):
		return ui.Error.Sprint("✗") + " Encryption has not been provisioned for this vault\n" +
			ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("docvault keys init") + " first"

	case errors.Is(err, kerrors.ErrAlreadyProvisioned):
		return ui.Error.Sprint("✗") + " Encryption has already been provisioned for this vault\n" +
			ui.Info.Sprint("→") + " Use " + ui.Code.Sprint("docvault keys rotate") + " to change the password"

	case errors.Is(err, kerrors.ErrSessionExpired):
		return ui.Error.Sprint("✗") + " The vault is locked\n" +
			ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("docvault keys unlock") + " and try again"

	case errors.Is(err, kerrors.ErrWrongPassword), errors.Is(err, kerrors.ErrAuthentication):
		return ui.Error.Sprint("✗") + " Incorrect password"

	case errors.Is(err, kerrors.ErrPasswordRequired):
		return ui.Error.Sprint("✗") + " This legacy document needs the password it was uploaded with"

	case errors.Is(err, kerrors.ErrRotationAborted):
		return ui.Error.Sprint("✗") + " Key rotation aborted, nothing was changed\n\n" +
			ui.Error.Sprint("Error: ") + err.Error()

	case errors.Is(err, kerrors.ErrDecryptFailed):
		return ui.Error.Sprint("✗") + " Document corrupted or key mismatch"

	case errors.Is(err, kerrors.ErrDocumentNotFound):
		return ui.Error.Sprint("✗") + " " + err.Error() + "\n" +
			ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("docvault docs list") + " to see stored documents"

	case errors.Is(err, kerrors.ErrNoFilesFound), errors.Is(err, kerrors.ErrFileNotFound):
		return ui.Error.Sprint("✗") + " " + err.Error()

	case errors.Is(err, kerrors.ErrUnsupportedImage):
		return ui.Error.Sprint("✗") + " Only images can be previewed\n" +
			ui.Info.Sprint("→") + " Use " + ui.Code.Sprint("docvault docs download") + " instead"

	case errors.Is(err, kerrors.ErrNoWatermark):
		return ui.Warning.Sprint("⚠") + " No provenance found in this image"

	default:
		return ui.Error.Sprint("✗") + " " + err.Error()
	}
}

// isUnexpectedError returns true if the error should cause a non-zero exit
// beyond the message already shown.
func isUnexpectedError(err error) bool {
	for _, known := range []error{
		kerrors.ErrVaultNotInitialized,
		kerrors.ErrNotProvisioned,
		kerrors.ErrAlreadyProvisioned,
		kerrors.ErrSessionExpired,
		kerrors.ErrWrongPassword,
		kerrors.ErrAuthentication,
		kerrors.ErrPasswordRequired,
		kerrors.ErrDocumentNotFound,
		kerrors.ErrNoFilesFound,
		kerrors.ErrFileNotFound,
		kerrors.ErrUnsupportedImage,
		kerrors.ErrNoWatermark,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}

// fail sets the final message for err and returns err when it is unexpected.
func fail(s *spinner.Spinner, err error) error {
	s.FinalMSG = formatError(err)
	if isUnexpectedError(err) {
		return err
	}
	return nil
}
