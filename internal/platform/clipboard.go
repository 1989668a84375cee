package platform

import (
	"bytes"
	"fmt"
	"os/exec"

	"github.com/spindb/spindb/internal/apperrors"
)

// CopyToClipboard copies text to the system clipboard. No CLI command calls
// it. Failures are reported as a typed ClipboardFailed error rather than a
// bare exec error.
func CopyToClipboard(text string) error {
	osName, _ := Detect()

	var cmd *exec.Cmd
	switch osName {
	case OSDarwin:
		cmd = exec.Command("pbcopy")
	case OSWindows:
		cmd = exec.Command("clip")
	default:
		cmd = exec.Command("xclip", "-selection", "clipboard")
	}

	cmd.Stdin = bytes.NewBufferString(text)
	if err := cmd.Run(); err != nil {
		return apperrors.New(apperrors.CodeClipboardFailed, apperrors.SeverityWarn,
			fmt.Sprintf("could not copy to clipboard: %v", err)).WithCause(err)
	}
	return nil
}
